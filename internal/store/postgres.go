package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/chatboard/internal/crypto"
	"github.com/eldtechnologies/chatboard/internal/models"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const accountColumns = `id, email, password_hash, display_name, email_verified, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
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
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// CreateAccount creates a new unverified account.
func (s *PostgresStore) CreateAccount(ctx context.Context, email, passwordHash, displayName string) (*models.Account, error) {
	account, err := scanAccount(s.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, password_hash, display_name)
		VALUES ($1, $2, $3, $4)
		RETURNING `+accountColumns,
		crypto.NewAccountID(), email, passwordHash, displayName))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return account, nil
}

// GetAccountByID retrieves an account by ID.
func (s *PostgresStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1
	`, id))
}

// GetAccountByEmail retrieves an account by its (lower-cased) email.
func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE email = $1
	`, email))
}

// MarkEmailVerified flags the account's email as verified.
func (s *PostgresStore) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts SET email_verified = TRUE, updated_at = NOW() WHERE id = $1
	`, id)
	return err
}

// UpdateDisplayName sets the account's display name.
func (s *PostgresStore) UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts SET display_name = $2, updated_at = NOW() WHERE id = $1
	`, id, displayName)
	return err
}

// CountAccounts returns the total number of registered accounts.
func (s *PostgresStore) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count)
	return count, err
}

const roomColumns = `category, name, created_by, created_at, last_active_at, message_count`

func scanRoom(row pgx.Row) (*models.Room, error) {
	room := &models.Room{}
	err := row.Scan(
		&room.Category,
		&room.Name,
		&room.CreatedBy,
		&room.CreatedAt,
		&room.LastActiveAt,
		&room.MessageCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// CreateRoom creates a new room, failing with ErrRoomExists on duplicates.
func (s *PostgresStore) CreateRoom(ctx context.Context, category, name string, createdBy *uuid.UUID) (*models.Room, error) {
	room, err := scanRoom(s.pool.QueryRow(ctx, `
		INSERT INTO rooms (category, name, created_by)
		VALUES ($1, $2, $3)
		RETURNING `+roomColumns,
		category, name, createdBy))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrRoomExists
		}
		return nil, err
	}
	return room, nil
}

// EnsureRoom returns the room, creating it first if needed.
func (s *PostgresStore) EnsureRoom(ctx context.Context, category, name string, createdBy *uuid.UUID) (*models.Room, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (category, name, created_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (category, name) DO NOTHING
	`, category, name, createdBy)
	if err != nil {
		return nil, err
	}
	return s.GetRoom(ctx, category, name)
}

// GetRoom retrieves a room by its address.
func (s *PostgresStore) GetRoom(ctx context.Context, category, name string) (*models.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE category = $1 AND name = $2
	`, category, name))
}

func (s *PostgresStore) queryRooms(ctx context.Context, sql string, args ...any) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

// ListRooms retrieves all rooms ordered by address, with pagination.
func (s *PostgresStore) ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	// Get total count
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rooms, err := s.queryRooms(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		ORDER BY category, name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return rooms, total, nil
}

// IncrementMessageCount increments the message count and updates activity.
func (s *PostgresStore) IncrementMessageCount(ctx context.Context, category, name string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE rooms
		SET message_count = message_count + 1, last_active_at = NOW()
		WHERE category = $1 AND name = $2
	`, category, name)
	return err
}

// CountRooms returns the total number of rooms.
func (s *PostgresStore) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

// SumMessageCount returns the total message count across all rooms.
func (s *PostgresStore) SumMessageCount(ctx context.Context) (int64, error) {
	var sum int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(message_count), 0) FROM rooms`).Scan(&sum)
	return sum, err
}

// GetMostRecentActivity returns the most recent activity timestamp across all rooms.
func (s *PostgresStore) GetMostRecentActivity(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MAX(last_active_at) FROM rooms`).Scan(&t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTopActiveRooms returns the top N rooms by message count.
func (s *PostgresStore) GetTopActiveRooms(ctx context.Context, limit int) ([]models.Room, error) {
	return s.queryRooms(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		ORDER BY message_count DESC, last_active_at DESC
		LIMIT $1
	`, limit)
}
