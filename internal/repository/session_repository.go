package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session repository errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionInactive = errors.New("session already terminated")
)

// SessionRepository defines the interface for session data access.
// Sessions are created exclusively by the session manager.
type SessionRepository interface {
	Create(ctx context.Context, session *UserSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*UserSession, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*UserSession, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*UserSession, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	Terminate(ctx context.Context, id uuid.UUID, at time.Time) (*UserSession, error)
	TerminateAllByUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	CountDistinctActiveIPs(ctx context.Context, userID uuid.UUID) (int, error)
	CountActive(ctx context.Context) (int64, error)
}

// sessionRepository implements SessionRepository using PostgreSQL
type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

const sessionColumns = `id, user_id, ip_address, user_agent, device, browser, location,
	login_time, last_activity, is_active, logout_time, duration_minutes`

// Create inserts a new active session
func (r *sessionRepository) Create(ctx context.Context, session *UserSession) error {
	query := `
		INSERT INTO user_sessions
			(user_id, ip_address, user_agent, device, browser, location, login_time, last_activity, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, true)
		RETURNING id
	`

	loginTime := session.LoginTime
	if loginTime.IsZero() {
		loginTime = time.Now().UTC()
	}

	err := r.pool.QueryRow(ctx, query,
		session.UserID,
		session.IPAddress,
		session.UserAgent,
		session.Device,
		session.Browser,
		session.Location,
		loginTime,
	).Scan(&session.ID)
	if err != nil {
		return err
	}

	session.LoginTime = loginTime
	session.LastActivity = loginTime
	session.IsActive = true
	return nil
}

// GetByID retrieves a session by its ID
func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*UserSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_sessions WHERE id = $1`

	session, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// ListActiveByUser retrieves the user's currently active sessions
func (r *sessionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*UserSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE user_id = $1 AND is_active
		ORDER BY login_time DESC
	`
	return r.querySessions(ctx, query, userID)
}

// ListByUser retrieves the user's sessions, newest-first
func (r *sessionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*UserSession, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE user_id = $1
		ORDER BY login_time DESC
		LIMIT $2
	`
	return r.querySessions(ctx, query, userID, limit)
}

// Touch refreshes last_activity on an active session. Terminated
// sessions are immutable, hence the is_active guard.
func (r *sessionRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE user_sessions SET last_activity = $2 WHERE id = $1 AND is_active`

	result, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSessionInactive
	}
	return nil
}

// Terminate transitions a session to its terminal state exactly once,
// fixing logout_time and the realized duration in whole minutes.
func (r *sessionRepository) Terminate(ctx context.Context, id uuid.UUID, at time.Time) (*UserSession, error) {
	query := `
		UPDATE user_sessions
		SET is_active = false,
		    logout_time = $2,
		    duration_minutes = FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - login_time)) / 60)
		WHERE id = $1 AND is_active
		RETURNING ` + sessionColumns + `
	`

	session, err := scanSession(r.pool.QueryRow(ctx, query, id, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionInactive
		}
		return nil, err
	}
	return session, nil
}

// TerminateAllByUser terminates every active session of a user and
// returns the affected count
func (r *sessionRepository) TerminateAllByUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE user_sessions
		SET is_active = false,
		    logout_time = $2,
		    duration_minutes = FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - login_time)) / 60)
		WHERE user_id = $1 AND is_active
	`

	result, err := r.pool.Exec(ctx, query, userID, at)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// CountDistinctActiveIPs counts the distinct origins among a user's
// active sessions; input to both the login-time signal and risk tiers
func (r *sessionRepository) CountDistinctActiveIPs(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(DISTINCT ip_address)
		FROM user_sessions
		WHERE user_id = $1 AND is_active
	`

	var count int
	err := r.pool.QueryRow(ctx, query, userID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountActive counts active sessions across all users, used for metrics
func (r *sessionRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_sessions WHERE is_active`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *sessionRepository) querySessions(ctx context.Context, query string, args ...interface{}) ([]*UserSession, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*UserSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func scanSession(row rowScanner) (*UserSession, error) {
	session := &UserSession{}
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.IPAddress,
		&session.UserAgent,
		&session.Device,
		&session.Browser,
		&session.Location,
		&session.LoginTime,
		&session.LastActivity,
		&session.IsActive,
		&session.LogoutTime,
		&session.DurationMinutes,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}
