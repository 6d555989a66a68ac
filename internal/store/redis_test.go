package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/chatboard/internal/models"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreWithClient(client), mr
}

func addMessages(t *testing.T, s *RedisStore, room string, n int) []models.Message {
	t.Helper()
	out := make([]models.Message, 0, n)
	for i := 0; i < n; i++ {
		msg := &models.Message{Room: room, UserID: "u1", User: "alice", Text: fmt.Sprintf("message %d", i)}
		if err := s.AddMessage(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
		out = append(out, *msg)
	}
	return out
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAddMessageAssignsIDAndTimestamp(t *testing.T) {
	s, _ := newTestRedis(t)
	msgs := addMessages(t, s, "default/lobby", 2)

	if msgs[0].ID == "" || msgs[0].Timestamp == 0 {
		t.Fatalf("id/ts not assigned: %+v", msgs[0])
	}
	if msgs[0].ID >= msgs[1].ID {
		t.Fatalf("ids not increasing: %s >= %s", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].Timestamp > msgs[1].Timestamp {
		t.Fatal("timestamps not ordered")
	}

	got, err := s.GetMessage(context.Background(), "default/lobby", msgs[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Text != "message 1" {
		t.Fatalf("unexpected message %+v", got)
	}

	missing, err := s.GetMessage(context.Background(), "default/lobby", "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", missing, err)
	}
}

func TestGetRoomMessagesPaging(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()
	room := "games/minecraft"
	all := ids(addMessages(t, s, room, 5))

	latest, err := s.GetRoomMessages(ctx, room, 2, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(latest.Messages), all[3:5]) || !latest.HasMore {
		t.Fatalf("latest page: got %v more=%v", ids(latest.Messages), latest.HasMore)
	}

	older, err := s.GetRoomMessages(ctx, room, 2, all[3], "")
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(older.Messages), all[1:3]) || !older.HasMore {
		t.Fatalf("older page: got %v more=%v", ids(older.Messages), older.HasMore)
	}

	oldest, err := s.GetRoomMessages(ctx, room, 2, all[1], "")
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(oldest.Messages), all[0:1]) || oldest.HasMore {
		t.Fatalf("oldest page: got %v more=%v", ids(oldest.Messages), oldest.HasMore)
	}

	empty, err := s.GetRoomMessages(ctx, room, 2, all[0], "")
	if err != nil {
		t.Fatal(err)
	}
	if len(empty.Messages) != 0 || empty.HasMore {
		t.Fatalf("expected empty page, got %v", ids(empty.Messages))
	}

	newer, err := s.GetRoomMessages(ctx, room, 2, "", all[0])
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(newer.Messages), all[1:3]) || !newer.HasMore {
		t.Fatalf("newer page: got %v more=%v", ids(newer.Messages), newer.HasMore)
	}

	tail, err := s.GetRoomMessages(ctx, room, 2, "", all[3])
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(tail.Messages), all[4:5]) || tail.HasMore {
		t.Fatalf("tail page: got %v more=%v", ids(tail.Messages), tail.HasMore)
	}
}

// Messages sharing a millisecond share a score; paging by ID must still
// visit every one exactly once in both directions.
func TestGetRoomMessagesSameMillisecond(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()
	room := "default/lobby"

	ms := ulid.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(1)), 0)
	var all []string
	for i := 0; i < 7; i++ {
		id := ulid.MustNew(ms, entropy).String()
		data, _ := json.Marshal(models.Message{ID: id, Room: room, Text: fmt.Sprintf("m%d", i), Timestamp: int64(ms)})
		s.client.HSet(ctx, messagesKey(room), id, data)
		s.client.ZAdd(ctx, timelineKey(room), redis.Z{Score: float64(ms), Member: id})
		all = append(all, id)
	}

	var backward []string
	page, err := s.GetRoomMessages(ctx, room, 3, "", "")
	for {
		if err != nil {
			t.Fatal(err)
		}
		backward = append(ids(page.Messages), backward...)
		if !page.HasMore {
			break
		}
		page, err = s.GetRoomMessages(ctx, room, 3, page.Messages[0].ID, "")
	}
	if !equalIDs(backward, all) {
		t.Fatalf("backward paging: got %v, want %v", backward, all)
	}

	forward := []string{all[0]}
	page, err = s.GetRoomMessages(ctx, room, 3, "", all[0])
	for {
		if err != nil {
			t.Fatal(err)
		}
		forward = append(forward, ids(page.Messages)...)
		if !page.HasMore {
			break
		}
		page, err = s.GetRoomMessages(ctx, room, 3, "", page.Messages[len(page.Messages)-1].ID)
	}
	if !equalIDs(forward, all) {
		t.Fatalf("forward paging: got %v, want %v", forward, all)
	}
}

func TestGetRoomMessagesUnknownCursor(t *testing.T) {
	s, _ := newTestRedis(t)
	addMessages(t, s, "default/lobby", 1)

	_, err := s.GetRoomMessages(context.Background(), "default/lobby", 10, "01HZZZZZZZZZZZZZZZZZZZZZZZ", "")
	if !errors.Is(err, ErrCursorNotFound) {
		t.Fatalf("expected ErrCursorNotFound, got %v", err)
	}
}

func TestGetRoomMessagesEmptyRoom(t *testing.T) {
	s, _ := newTestRedis(t)
	page, err := s.GetRoomMessages(context.Background(), "default/empty", 40, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 0 || page.HasMore {
		t.Fatalf("expected empty page, got %+v", page)
	}
}

func TestRepliesAndCounts(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()
	room := "default/lobby"
	parent := addMessages(t, s, room, 1)[0]

	for i := 0; i < 3; i++ {
		reply := &models.Reply{ParentID: parent.ID, Room: room, UserID: "u2", User: "bob", Text: fmt.Sprintf("reply %d", i)}
		if err := s.AddReply(ctx, reply); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetMessage(ctx, room, parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReplyCount != 3 {
		t.Fatalf("expected 3 replies, got %d", got.ReplyCount)
	}

	page, err := s.GetRoomMessages(ctx, room, 10, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if page.Messages[0].ReplyCount != 3 {
		t.Fatalf("page reply count: expected 3, got %d", page.Messages[0].ReplyCount)
	}

	first, more, err := s.GetReplies(ctx, room, parent.ID, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 || !more || first[0].Text != "reply 0" {
		t.Fatalf("unexpected first replies %+v more=%v", first, more)
	}

	rest, more, err := s.GetReplies(ctx, room, parent.ID, 2, first[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || more || rest[0].Text != "reply 2" {
		t.Fatalf("unexpected rest %+v more=%v", rest, more)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := s.Subscribe(ctx, "default/lobby")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	msg := &models.Message{Room: "default/lobby", UserID: "u1", User: "alice", Text: "hello"}
	if err := s.AddMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	received, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ev Event
	if err := json.Unmarshal([]byte(received.Payload), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventMessage || ev.Message == nil || ev.Message.ID != msg.ID {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestSearchMessages(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()

	for _, m := range []*models.Message{
		{Room: "games/minecraft", UserID: "u1", User: "a", Text: "building a castle tonight"},
		{Room: "games/minecraft", UserID: "u1", User: "a", Text: "castle walls done"},
		{Room: "default/lobby", UserID: "u2", User: "b", Text: "anyone seen the castle"},
	} {
		if err := s.AddMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	results, err := s.SearchMessages(ctx, []string{"castle"}, 10, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	filtered, err := s.SearchMessages(ctx, []string{"castle"}, 10, 0, "default/lobby")
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].Room != "default/lobby" {
		t.Fatalf("room filter failed: %+v", filtered)
	}

	both, err := s.SearchMessages(ctx, []string{"castle", "walls"}, 10, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(both) != 1 || both[0].Text != "castle walls done" {
		t.Fatalf("intersection failed: %+v", both)
	}
}

func TestAddMessageSurvivesIndexFailure(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	// A string under the word key makes ZADD fail with WRONGTYPE
	if err := mr.Set(searchWordKey("castle"), "not a zset"); err != nil {
		t.Fatal(err)
	}

	msg := &models.Message{Room: "default/lobby", UserID: "u1", User: "a", Text: "castle"}
	if err := s.AddMessage(ctx, msg); err != nil {
		t.Fatalf("indexing failure must not fail the post: %v", err)
	}
	if err := s.IndexMessage(ctx, msg); err == nil {
		t.Fatal("expected the index write to fail")
	}

	got, err := s.GetMessage(ctx, "default/lobby", msg.ID)
	if err != nil || got == nil {
		t.Fatalf("message not stored: %+v %v", got, err)
	}
}

func TestSessions(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, "tok", "acct-1", time.Hour); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("session:tok") {
		t.Fatal("raw token must not be used as key")
	}

	id, err := s.GetSession(ctx, "tok")
	if err != nil || id != "acct-1" {
		t.Fatalf("expected acct-1, got %q %v", id, err)
	}

	mr.FastForward(2 * time.Hour)
	id, err = s.GetSession(ctx, "tok")
	if err != nil || id != "" {
		t.Fatalf("expected expired session, got %q %v", id, err)
	}

	_ = s.CreateSession(ctx, "tok2", "acct-2", time.Hour)
	if err := s.DeleteSession(ctx, "tok2"); err != nil {
		t.Fatal(err)
	}
	if id, _ := s.GetSession(ctx, "tok2"); id != "" {
		t.Fatal("session should be deleted")
	}
}

func TestConsumeVerificationSingleUse(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()

	if err := s.CreateVerification(ctx, "verify-me", "acct-1", time.Hour); err != nil {
		t.Fatal(err)
	}
	id, err := s.ConsumeVerification(ctx, "verify-me")
	if err != nil || id != "acct-1" {
		t.Fatalf("expected acct-1, got %q %v", id, err)
	}
	id, err = s.ConsumeVerification(ctx, "verify-me")
	if err != nil || id != "" {
		t.Fatalf("token should be single use, got %q %v", id, err)
	}
}

func TestRetentionSetsExpiry(t *testing.T) {
	s, mr := newTestRedis(t)
	s.SetRetention(time.Hour)
	addMessages(t, s, "default/lobby", 1)

	if ttl := mr.TTL(timelineKey("default/lobby")); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}

	s2, mr2 := newTestRedis(t)
	addMessages(t, s2, "default/lobby", 1)
	if ttl := mr2.TTL(timelineKey("default/lobby")); ttl != 0 {
		t.Fatalf("expected no ttl, got %s", ttl)
	}
}
