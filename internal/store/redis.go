package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/chatboard/internal/crypto"
	"github.com/eldtechnologies/chatboard/internal/models"
)

// Event types published on a room's live channel.
const (
	EventMessage = "message"
	EventReply   = "reply"
)

// Event is the payload published to live subscribers of a room.
type Event struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message,omitempty"`
	Reply   *models.Reply   `json:"reply,omitempty"`
}

// RedisStore handles Redis operations for messages, sessions and fan-out.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// SetRetention makes room history expire after d without new posts.
// Zero keeps history forever.
func (s *RedisStore) SetRetention(d time.Duration) {
	s.retention = d
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// timelineKey returns the key for a room's message ID sorted set.
func timelineKey(room string) string {
	return fmt.Sprintf("room:%s:timeline", room)
}

// messagesKey returns the key for a room's message hash.
func messagesKey(room string) string {
	return fmt.Sprintf("room:%s:messages", room)
}

// replyCountsKey returns the key for a room's reply counters.
func replyCountsKey(room string) string {
	return fmt.Sprintf("room:%s:replycounts", room)
}

// repliesKey returns the key for a message's reply ID sorted set.
func repliesKey(room, parentID string) string {
	return fmt.Sprintf("room:%s:msg:%s:replies", room, parentID)
}

// replyDataKey returns the key for a message's reply hash.
func replyDataKey(room, parentID string) string {
	return fmt.Sprintf("room:%s:msg:%s:replydata", room, parentID)
}

// eventsChannel returns the pub/sub channel for a room.
func eventsChannel(room string) string {
	return fmt.Sprintf("room:%s:events", room)
}

// searchWordKey returns the key for a search word index.
func searchWordKey(word string) string {
	return fmt.Sprintf("search:words:%s", strings.ToLower(word))
}

func (s *RedisStore) expire(ctx context.Context, pipe redis.Pipeliner, keys ...string) {
	if s.retention <= 0 {
		return
	}
	for _, key := range keys {
		pipe.Expire(ctx, key, s.retention)
	}
}

// AddMessage stores a message and publishes it to live subscribers.
// ID and timestamp are assigned here; the timestamp is the ULID's time so
// (ts, id) ordering and ID ordering agree.
func (s *RedisStore) AddMessage(ctx context.Context, msg *models.Message) error {
	id := ulid.Make()
	msg.ID = id.String()
	msg.Timestamp = int64(id.Time())
	msg.ReplyCount = 0

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, messagesKey(msg.Room), msg.ID, data)
		pipe.ZAdd(ctx, timelineKey(msg.Room), redis.Z{
			Score:  float64(msg.Timestamp),
			Member: msg.ID,
		})
		s.expire(ctx, pipe, messagesKey(msg.Room), timelineKey(msg.Room), replyCountsKey(msg.Room))
		return nil
	})
	if err != nil {
		return err
	}

	// Search indexing is best-effort; a stored message is never rolled back
	_ = s.IndexMessage(ctx, msg)

	return s.publish(ctx, msg.Room, Event{Type: EventMessage, Message: msg})
}

// GetMessage retrieves a specific message by ID. Returns nil if missing.
func (s *RedisStore) GetMessage(ctx context.Context, room, msgID string) (*models.Message, error) {
	data, err := s.client.HGet(ctx, messagesKey(room), msgID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var msg models.Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, err
	}

	count, err := s.client.HGet(ctx, replyCountsKey(room), msgID).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	msg.ReplyCount = count

	return &msg, nil
}

// MessagePage is one page of a room timeline, ascending by (ts, id).
type MessagePage struct {
	Messages []models.Message
	HasMore  bool
}

// GetRoomMessages returns a page of messages from a room.
// With no cursor it returns the latest page. before returns the page
// immediately older than that message ID, after the page immediately newer.
// HasMore reports whether further pages exist in the paging direction.
func (s *RedisStore) GetRoomMessages(ctx context.Context, room string, limit int, before, after string) (*MessagePage, error) {
	ids, hasMore, err := s.pageIDs(ctx, timelineKey(room), limit, before, after)
	if err != nil {
		return nil, err
	}

	page := &MessagePage{Messages: make([]models.Message, 0, len(ids)), HasMore: hasMore}
	if len(ids) == 0 {
		return page, nil
	}

	pipe := s.client.Pipeline()
	dataCmd := pipe.HMGet(ctx, messagesKey(room), ids...)
	countCmd := pipe.HMGet(ctx, replyCountsKey(room), ids...)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	counts := countCmd.Val()
	for i, raw := range dataCmd.Val() {
		str, ok := raw.(string)
		if !ok {
			continue // expired between index and data read
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(str), &msg); err != nil {
			continue
		}
		if i < len(counts) {
			if c, ok := counts[i].(string); ok {
				msg.ReplyCount, _ = strconv.ParseInt(c, 10, 64)
			}
		}
		page.Messages = append(page.Messages, msg)
	}

	return page, nil
}

// pageIDs walks a sorted set index by rank. Ranks follow (score, member)
// order, so members sharing a score are never skipped between pages.
func (s *RedisStore) pageIDs(ctx context.Context, key string, limit int, before, after string) ([]string, bool, error) {
	switch {
	case before != "":
		rank, err := s.rank(ctx, key, before)
		if err != nil {
			return nil, false, err
		}
		if rank == 0 {
			return nil, false, nil
		}
		start := rank - int64(limit)
		if start < 0 {
			start = 0
		}
		ids, err := s.client.ZRange(ctx, key, start, rank-1).Result()
		return ids, start > 0, err

	case after != "":
		rank, err := s.rank(ctx, key, after)
		if err != nil {
			return nil, false, err
		}
		// Fetch one extra for has_more
		ids, err := s.client.ZRange(ctx, key, rank+1, rank+int64(limit)+1).Result()
		if err != nil {
			return nil, false, err
		}
		hasMore := len(ids) > limit
		if hasMore {
			ids = ids[:limit]
		}
		return ids, hasMore, nil

	default:
		// Newest first, +1 for has_more
		ids, err := s.client.ZRevRange(ctx, key, 0, int64(limit)).Result()
		if err != nil {
			return nil, false, err
		}
		hasMore := len(ids) > limit
		if hasMore {
			ids = ids[:limit]
		}
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
		return ids, hasMore, nil
	}
}

func (s *RedisStore) rank(ctx context.Context, key, member string) (int64, error) {
	rank, err := s.client.ZRank(ctx, key, member).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCursorNotFound
		}
		return 0, err
	}
	return rank, nil
}

// AddReply stores a reply under its parent message and publishes it.
func (s *RedisStore) AddReply(ctx context.Context, reply *models.Reply) error {
	id := ulid.Make()
	reply.ID = id.String()
	reply.Timestamp = int64(id.Time())

	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, replyDataKey(reply.Room, reply.ParentID), reply.ID, data)
		pipe.ZAdd(ctx, repliesKey(reply.Room, reply.ParentID), redis.Z{
			Score:  float64(reply.Timestamp),
			Member: reply.ID,
		})
		pipe.HIncrBy(ctx, replyCountsKey(reply.Room), reply.ParentID, 1)
		s.expire(ctx, pipe,
			replyDataKey(reply.Room, reply.ParentID),
			repliesKey(reply.Room, reply.ParentID),
			replyCountsKey(reply.Room),
		)
		return nil
	})
	if err != nil {
		return err
	}

	return s.publish(ctx, reply.Room, Event{Type: EventReply, Reply: reply})
}

// GetReplies returns replies to a message, ascending, starting after the
// given reply ID (or from the first reply when after is empty).
func (s *RedisStore) GetReplies(ctx context.Context, room, parentID string, limit int, after string) ([]models.Reply, bool, error) {
	key := repliesKey(room, parentID)

	var (
		ids     []string
		hasMore bool
		err     error
	)
	if after == "" {
		ids, err = s.client.ZRange(ctx, key, 0, int64(limit)).Result()
		if err == nil && len(ids) > limit {
			ids, hasMore = ids[:limit], true
		}
	} else {
		ids, hasMore, err = s.pageIDs(ctx, key, limit, "", after)
	}
	if err != nil {
		return nil, false, err
	}

	replies := make([]models.Reply, 0, len(ids))
	if len(ids) == 0 {
		return replies, hasMore, nil
	}

	raws, err := s.client.HMGet(ctx, replyDataKey(room, parentID), ids...).Result()
	if err != nil {
		return nil, false, err
	}
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var reply models.Reply
		if err := json.Unmarshal([]byte(str), &reply); err != nil {
			continue
		}
		replies = append(replies, reply)
	}

	return replies, hasMore, nil
}

func (s *RedisStore) publish(ctx context.Context, room string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, eventsChannel(room), data).Err()
}

// Subscribe opens a pub/sub subscription to a room's live events.
// The caller must close the returned PubSub.
func (s *RedisStore) Subscribe(ctx context.Context, room string) (*redis.PubSub, error) {
	sub := s.client.Subscribe(ctx, eventsChannel(room))
	// Wait for the subscription to be confirmed so no event is missed
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// wordRegex matches word characters for search indexing.
var wordRegex = regexp.MustCompile(`\w+`)

// IndexMessage indexes a message for search.
func (s *RedisStore) IndexMessage(ctx context.Context, msg *models.Message) error {
	// Tokenize text
	words := wordRegex.FindAllString(strings.ToLower(msg.Text), -1)

	pipe := s.client.Pipeline()

	// Deduplicate words
	seen := make(map[string]bool)
	for _, word := range words {
		if len(word) < 3 || seen[word] {
			continue
		}
		seen[word] = true

		key := searchWordKey(word)
		ref := fmt.Sprintf("%s:%s", msg.Room, msg.ID)

		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(msg.Timestamp),
			Member: ref,
		})
		s.expire(ctx, pipe, key)
	}

	if len(seen) == 0 {
		return nil
	}
	_, err := pipe.Exec(ctx)
	return err
}

// SearchMessages searches for messages with filters.
func (s *RedisStore) SearchMessages(ctx context.Context, tokens []string, limit int, after int64, roomFilter string) ([]models.Message, error) {
	if len(tokens) == 0 {
		return []models.Message{}, nil
	}

	// Build keys for all tokens
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = searchWordKey(t)
	}

	minScore := "-inf"
	if after > 0 {
		minScore = fmt.Sprintf("(%d", after) // exclusive
	}

	var refs []string

	if len(keys) == 1 {
		// Single word: simple range query
		refs, _ = s.client.ZRevRangeByScore(ctx, keys[0], &redis.ZRangeBy{
			Min:   minScore,
			Max:   "+inf",
			Count: int64(limit * 3), // Fetch extra for filtering
		}).Result()
	} else {
		// Multiple words: use ZINTERSTORE
		tempKey := fmt.Sprintf("search:temp:%s", ulid.Make().String())

		s.client.ZInterStore(ctx, tempKey, &redis.ZStore{
			Keys:      keys,
			Aggregate: "MIN",
		})
		s.client.Expire(ctx, tempKey, 10*time.Second)

		refs, _ = s.client.ZRevRangeByScore(ctx, tempKey, &redis.ZRangeBy{
			Min:   minScore,
			Max:   "+inf",
			Count: int64(limit * 3),
		}).Result()

		s.client.Del(ctx, tempKey)
	}

	// Fetch actual messages with filtering
	messages := make([]models.Message, 0, limit)
	for _, ref := range refs {
		room, msgID, ok := strings.Cut(ref, ":")
		if !ok {
			continue
		}

		// Room filter
		if roomFilter != "" && room != roomFilter {
			continue
		}

		msg, err := s.GetMessage(ctx, room, msgID)
		if err != nil || msg == nil {
			continue // Message expired
		}

		messages = append(messages, *msg)

		if len(messages) >= limit {
			break
		}
	}

	return messages, nil
}

// sessionKey returns the key for a session, addressed by token digest.
func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", crypto.HashToken(token))
}

// verifyKey returns the key for a pending email verification.
func verifyKey(token string) string {
	return fmt.Sprintf("verify:%s", crypto.HashToken(token))
}

// CreateSession binds a bearer token to an account for ttl.
func (s *RedisStore) CreateSession(ctx context.Context, token, accountID string, ttl time.Duration) error {
	return s.client.Set(ctx, sessionKey(token), accountID, ttl).Err()
}

// GetSession returns the account ID for a token, or "" if unknown or expired.
func (s *RedisStore) GetSession(ctx context.Context, token string) (string, error) {
	accountID, err := s.client.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return accountID, err
}

// DeleteSession ends a session.
func (s *RedisStore) DeleteSession(ctx context.Context, token string) error {
	return s.client.Del(ctx, sessionKey(token)).Err()
}

// CreateVerification stores a single-use email verification token.
func (s *RedisStore) CreateVerification(ctx context.Context, token, accountID string, ttl time.Duration) error {
	return s.client.Set(ctx, verifyKey(token), accountID, ttl).Err()
}

// ConsumeVerification atomically reads and deletes a verification token.
// Returns "" if the token is unknown, used or expired.
func (s *RedisStore) ConsumeVerification(ctx context.Context, token string) (string, error) {
	accountID, err := s.client.GetDel(ctx, verifyKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return accountID, err
}
