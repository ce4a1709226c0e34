package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/farmrank/internal/tracing"
	"github.com/onnwee/farmrank/internal/validate"
)

var (
	// ErrNotFound is returned when no user exists for the given id.
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateEmail is returned when inserting a user whose email already exists.
	ErrDuplicateEmail = errors.New("email already registered")
)

// pqUniqueViolation is the Postgres SQLSTATE for unique constraint violations.
const pqUniqueViolation = "23505"

// Repository defines user persistence operations.
type Repository interface {
	// Insert stores a new user and sets its ID and timestamps.
	Insert(ctx context.Context, u *User) error

	// GetByID retrieves a user by id. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail retrieves a user by email, case-insensitively.
	// Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// Insert stores a new user.
func (r *PostgresRepository) Insert(ctx context.Context, u *User) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "users", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	query := `
		INSERT INTO users (email, hashed_password, coordinates, address)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRowContext(ctx, query, u.Email, u.HashedPassword, u.Coordinates, u.Address).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	r.logger.DebugContext(ctx, "user inserted", slog.String("user_id", u.ID))
	return nil
}

// GetByID retrieves a user by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (u *User, err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		// Non-uuid ids can never match the uuid primary key.
		return nil, ErrNotFound
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "users", tracing.DBOperationQuery)
	defer func() {
		if errors.Is(err, ErrNotFound) {
			endSpan(nil)
			return
		}
		endSpan(err)
	}()

	return r.getOne(ctx, "id = $1", id)
}

// GetByEmail retrieves a user by email.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (u *User, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "users", tracing.DBOperationQuery)
	defer func() {
		if errors.Is(err, ErrNotFound) {
			endSpan(nil)
			return
		}
		endSpan(err)
	}()

	return r.getOne(ctx, "LOWER(email) = $1", validate.EmailKey(email))
}

// getOne scans the single user matching where.
func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*User, error) {
	query := `
		SELECT id, email, hashed_password, coordinates, address, created_at, updated_at
		FROM users
		WHERE ` + where

	u := &User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.HashedPassword,
		&u.Coordinates,
		&u.Address,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Safe for concurrent use.
type InMemoryRepository struct {
	mu      sync.RWMutex
	users   map[string]*User
	byEmail map[string]string
}

// NewInMemoryRepository creates a new in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

// Insert stores a new user. An empty ID is replaced with a fresh UUID.
func (r *InMemoryRepository) Insert(ctx context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := validate.EmailKey(u.Email)
	if _, exists := r.byEmail[email]; exists {
		return ErrDuplicateEmail
	}

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	userCopy := *u
	r.users[u.ID] = &userCopy
	r.byEmail[email] = u.ID
	return nil
}

// GetByID retrieves a user by id, returning a copy.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	userCopy := *u
	return &userCopy, nil
}

// GetByEmail retrieves a user by email, returning a copy.
func (r *InMemoryRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[validate.EmailKey(email)]
	if !ok {
		return nil, ErrNotFound
	}
	userCopy := *r.users[id]
	return &userCopy, nil
}
