package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/chatboard/internal/models"
)

var (
	ErrEmailTaken     = errors.New("email already registered")
	ErrRoomExists     = errors.New("room already exists")
	ErrCursorNotFound = errors.New("cursor message not found")
)

// DefaultCategory and DefaultRoom name the lobby seeded at startup.
const (
	DefaultCategory = "default"
	DefaultRoom     = "lobby"
)

// DataStore defines the interface for persistent storage of accounts and rooms.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Account operations
	CreateAccount(ctx context.Context, email, passwordHash, displayName string) (*models.Account, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error
	UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error
	CountAccounts(ctx context.Context) (int64, error)

	// Room operations
	CreateRoom(ctx context.Context, category, name string, createdBy *uuid.UUID) (*models.Room, error)
	EnsureRoom(ctx context.Context, category, name string, createdBy *uuid.UUID) (*models.Room, error)
	GetRoom(ctx context.Context, category, name string) (*models.Room, error)
	ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error)
	IncrementMessageCount(ctx context.Context, category, name string) error
	CountRooms(ctx context.Context) (int64, error)
	SumMessageCount(ctx context.Context) (int64, error)
	GetMostRecentActivity(ctx context.Context) (*time.Time, error)
	GetTopActiveRooms(ctx context.Context, limit int) ([]models.Room, error)
}
