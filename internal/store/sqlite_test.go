package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteAccounts(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	acct, err := s.CreateAccount(ctx, "alice@example.com", "hash", "")
	if err != nil {
		t.Fatal(err)
	}
	if acct.ID.Version() != 7 || acct.EmailVerified {
		t.Fatalf("unexpected account %+v", acct)
	}

	if _, err := s.CreateAccount(ctx, "alice@example.com", "hash2", ""); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	byEmail, err := s.GetAccountByEmail(ctx, "alice@example.com")
	if err != nil || byEmail == nil || byEmail.ID != acct.ID {
		t.Fatalf("lookup by email failed: %+v %v", byEmail, err)
	}

	if err := s.MarkEmailVerified(ctx, acct.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateDisplayName(ctx, acct.ID, "Alice"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetAccountByID(ctx, acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.EmailVerified || got.DisplayName != "Alice" || got.PasswordHash != "hash" {
		t.Fatalf("updates not applied: %+v", got)
	}

	missing, err := s.GetAccountByID(ctx, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil; got %+v %v", missing, err)
	}

	if n, _ := s.CountAccounts(ctx); n != 1 {
		t.Fatalf("expected 1 account, got %d", n)
	}
}

func TestSQLiteRooms(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	lobby, err := s.GetRoom(ctx, DefaultCategory, DefaultRoom)
	if err != nil || lobby == nil {
		t.Fatalf("lobby not seeded: %v", err)
	}

	acct, _ := s.CreateAccount(ctx, "bob@example.com", "hash", "Bob")
	room, err := s.CreateRoom(ctx, "games", "minecraft", &acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if room.CreatedBy == nil || *room.CreatedBy != acct.ID {
		t.Fatalf("created_by not stored: %+v", room)
	}
	if _, err := s.CreateRoom(ctx, "games", "minecraft", nil); !errors.Is(err, ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}

	again, err := s.EnsureRoom(ctx, "games", "minecraft", nil)
	if err != nil || again.CreatedBy == nil {
		t.Fatalf("EnsureRoom should return the existing room: %+v %v", again, err)
	}
	if _, err := s.EnsureRoom(ctx, "games", "terraria", nil); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := s.IncrementMessageCount(ctx, "games", "terraria"); err != nil {
			t.Fatal(err)
		}
	}

	rooms, total, err := s.ListRooms(ctx, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(rooms) != 2 {
		t.Fatalf("expected 2 of 3 rooms, got %d of %d", len(rooms), total)
	}
	if rooms[0].Key() != "default/lobby" || rooms[1].Key() != "games/minecraft" {
		t.Fatalf("unexpected order: %s, %s", rooms[0].Key(), rooms[1].Key())
	}

	top, err := s.GetTopActiveRooms(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].Name != "terraria" || top[0].MessageCount != 3 {
		t.Fatalf("unexpected top room %+v", top)
	}

	if sum, _ := s.SumMessageCount(ctx); sum != 3 {
		t.Fatalf("expected 3 messages, got %d", sum)
	}
	if n, _ := s.CountRooms(ctx); n != 3 {
		t.Fatalf("expected 3 rooms, got %d", n)
	}

	last, err := s.GetMostRecentActivity(ctx)
	if err != nil || last == nil {
		t.Fatalf("expected last activity, got %v %v", last, err)
	}
}

func TestPgxMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@db:5432/chat":   "pgx5://u:p@db:5432/chat",
		"postgresql://u:p@db:5432/chat": "pgx5://u:p@db:5432/chat",
		"pgx5://db/chat":                "pgx5://db/chat",
	}
	for in, want := range tests {
		if got := pgxMigrateURL(in); got != want {
			t.Errorf("pgxMigrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}
