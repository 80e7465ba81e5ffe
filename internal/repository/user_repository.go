package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	List(ctx context.Context) ([]*User, error)
	ListNonAdmins(ctx context.Context) ([]*User, error)
	GrantUnlock(ctx context.Context, userID, contentID uuid.UUID, kind ContentKind) error
	RevokeUnlock(ctx context.Context, userID, contentID uuid.UUID, kind ContentKind) error
	SetBlocked(ctx context.Context, userID uuid.UUID, blocked bool, reason *string) error
}

// userRepository implements UserRepository using PostgreSQL
type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, email, password_hash, is_admin, registration_date,
	unlocked_courses, unlocked_products, is_blocked, blocked_reason, blocked_at,
	created_at, updated_at`

// Create inserts a new user into the database
func (r *userRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (email, password_hash, is_admin, registration_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	registrationDate := user.RegistrationDate
	if registrationDate.IsZero() {
		registrationDate = time.Now().UTC()
	}

	err := r.pool.QueryRow(ctx, query,
		strings.ToLower(user.Email),
		user.PasswordHash,
		user.IsAdmin,
		registrationDate,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		// Check for unique constraint violation
		if strings.Contains(err.Error(), "idx_users_email") {
			return ErrEmailAlreadyExists
		}
		return err
	}

	user.RegistrationDate = registrationDate
	return nil
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := r.scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

// GetByEmail retrieves a user by their email address (case-insensitive)
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`

	user, err := r.scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

// EmailExists checks if an email address is already registered (case-insensitive)
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`

	var exists bool
	err := r.pool.QueryRow(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// List retrieves all users
func (r *userRepository) List(ctx context.Context) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY registration_date`
	return r.queryUsers(ctx, query)
}

// ListNonAdmins retrieves all non-admin users, used for notification fan-out
func (r *userRepository) ListNonAdmins(ctx context.Context) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE NOT is_admin ORDER BY registration_date`
	return r.queryUsers(ctx, query)
}

// GrantUnlock adds a content item to the user's override set.
// Adding an id already present is a no-op.
func (r *userRepository) GrantUnlock(ctx context.Context, userID, contentID uuid.UUID, kind ContentKind) error {
	column := unlockColumn(kind)
	query := `
		UPDATE users
		SET ` + column + ` = array_append(` + column + `, $2), updated_at = $3
		WHERE id = $1 AND NOT ($2 = ANY(` + column + `))
	`

	result, err := r.pool.Exec(ctx, query, userID, contentID, time.Now().UTC())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		// Either already unlocked or user missing; disambiguate.
		exists, err := r.userExists(ctx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrUserNotFound
		}
	}
	return nil
}

// RevokeUnlock removes a content item from the user's override set
func (r *userRepository) RevokeUnlock(ctx context.Context, userID, contentID uuid.UUID, kind ContentKind) error {
	column := unlockColumn(kind)
	query := `
		UPDATE users
		SET ` + column + ` = array_remove(` + column + `, $2), updated_at = $3
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, userID, contentID, time.Now().UTC())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetBlocked updates the user's blocked flag. Blocking records the
// reason and timestamp; unblocking clears both.
func (r *userRepository) SetBlocked(ctx context.Context, userID uuid.UUID, blocked bool, reason *string) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()

	if blocked {
		query = `
			UPDATE users
			SET is_blocked = true, blocked_reason = $2, blocked_at = $3, updated_at = $3
			WHERE id = $1
		`
		args = []interface{}{userID, reason, now}
	} else {
		query = `
			UPDATE users
			SET is_blocked = false, blocked_reason = NULL, blocked_at = NULL, updated_at = $2
			WHERE id = $1
		`
		args = []interface{}{userID, now}
	}

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// unlockColumn maps a content kind to its override-set column
func unlockColumn(kind ContentKind) string {
	if kind == KindProduct {
		return "unlocked_products"
	}
	return "unlocked_courses"
}

func (r *userRepository) userExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *userRepository) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *userRepository) scanUser(row rowScanner) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.RegistrationDate,
		&user.UnlockedCourses,
		&user.UnlockedProducts,
		&user.IsBlocked,
		&user.BlockedReason,
		&user.BlockedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}
