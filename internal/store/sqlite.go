package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/chatboard/internal/crypto"
	"github.com/eldtechnologies/chatboard/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chatboard.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chatboard.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		email_verified INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rooms (
		category TEXT NOT NULL,
		name TEXT NOT NULL,
		created_by TEXT REFERENCES accounts(id) ON DELETE SET NULL,
		created_at DATETIME NOT NULL,
		last_active_at DATETIME NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (category, name)
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_last_active ON rooms(last_active_at);
	CREATE INDEX IF NOT EXISTS idx_rooms_message_count ON rooms(message_count);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	// Seed the lobby
	_, err := s.EnsureRoom(ctx, DefaultCategory, DefaultRoom, nil)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func scanSQLiteAccount(row *sql.Row) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.DisplayName,
		&account.EmailVerified,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// CreateAccount creates a new unverified account.
func (s *SQLiteStore) CreateAccount(ctx context.Context, email, passwordHash, displayName string) (*models.Account, error) {
	id := crypto.NewAccountID()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, display_name, email_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, id.String(), email, passwordHash, displayName, now, now)
	if err != nil {
		if isSQLiteConstraint(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	return s.GetAccountByID(ctx, id)
}

// GetAccountByID retrieves an account by ID.
func (s *SQLiteStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanSQLiteAccount(s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = ?
	`, id.String()))
}

// GetAccountByEmail retrieves an account by its (lower-cased) email.
func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanSQLiteAccount(s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE email = ?
	`, email))
}

// MarkEmailVerified flags the account's email as verified.
func (s *SQLiteStore) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET email_verified = 1, updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id.String())
	return err
}

// UpdateDisplayName sets the account's display name.
func (s *SQLiteStore) UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET display_name = ?, updated_at = ? WHERE id = ?
	`, displayName, time.Now().UTC(), id.String())
	return err
}

// CountAccounts returns the total number of registered accounts.
func (s *SQLiteStore) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRoom(row rowScanner) (*models.Room, error) {
	room := &models.Room{}
	var createdBy uuid.NullUUID

	err := row.Scan(
		&room.Category,
		&room.Name,
		&createdBy,
		&room.CreatedAt,
		&room.LastActiveAt,
		&room.MessageCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if createdBy.Valid {
		room.CreatedBy = &createdBy.UUID
	}
	return room, nil
}

func nullableUUID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	str := id.String()
	return &str
}

// CreateRoom creates a new room, failing with ErrRoomExists on duplicates.
func (s *SQLiteStore) CreateRoom(ctx context.Context, category, name string, createdBy *uuid.UUID) (*models.Room, error) {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (category, name, created_by, created_at, last_active_at, message_count)
		VALUES (?, ?, ?, ?, ?, 0)
	`, category, name, nullableUUID(createdBy), now, now)
	if err != nil {
		if isSQLiteConstraint(err) {
			return nil, ErrRoomExists
		}
		return nil, err
	}

	return s.GetRoom(ctx, category, name)
}

// EnsureRoom returns the room, creating it first if needed.
func (s *SQLiteStore) EnsureRoom(ctx context.Context, category, name string, createdBy *uuid.UUID) (*models.Room, error) {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO rooms (category, name, created_by, created_at, last_active_at, message_count)
		VALUES (?, ?, ?, ?, ?, 0)
	`, category, name, nullableUUID(createdBy), now, now)
	if err != nil {
		return nil, err
	}

	return s.GetRoom(ctx, category, name)
}

// GetRoom retrieves a room by its address.
func (s *SQLiteStore) GetRoom(ctx context.Context, category, name string) (*models.Room, error) {
	return scanSQLiteRoom(s.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE category = ? AND name = ?
	`, category, name))
}

func (s *SQLiteStore) queryRooms(ctx context.Context, query string, args ...any) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		room, err := scanSQLiteRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

// ListRooms retrieves all rooms ordered by address, with pagination.
func (s *SQLiteStore) ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	// Get total count
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rooms, err := s.queryRooms(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		ORDER BY category, name
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return rooms, total, nil
}

// IncrementMessageCount increments the message count and updates activity.
func (s *SQLiteStore) IncrementMessageCount(ctx context.Context, category, name string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rooms
		SET message_count = message_count + 1, last_active_at = ?
		WHERE category = ? AND name = ?
	`, time.Now().UTC(), category, name)
	return err
}

// CountRooms returns the total number of rooms.
func (s *SQLiteStore) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

// SumMessageCount returns the total message count across all rooms.
func (s *SQLiteStore) SumMessageCount(ctx context.Context) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(message_count), 0) FROM rooms`).Scan(&sum)
	return sum, err
}

// GetMostRecentActivity returns the most recent activity timestamp across all rooms.
// MAX() loses the column's declared type, so the driver hands back text.
func (s *SQLiteStore) GetMostRecentActivity(ctx context.Context) (*time.Time, error) {
	var raw sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(last_active_at) FROM rooms`).Scan(&raw); err != nil {
		return nil, err
	}
	if !raw.Valid {
		return nil, nil
	}
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, raw.String, time.UTC); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("unparseable last_active_at: " + raw.String)
}

// GetTopActiveRooms returns the top N rooms by message count.
func (s *SQLiteStore) GetTopActiveRooms(ctx context.Context, limit int) ([]models.Room, error) {
	return s.queryRooms(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		ORDER BY message_count DESC, last_active_at DESC
		LIMIT ?
	`, limit)
}
