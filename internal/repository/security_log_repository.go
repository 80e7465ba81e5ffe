package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SecurityLogRepository defines the interface for the append-only
// security audit log. Entries are created exclusively by the session
// manager; there is no update or delete path.
type SecurityLogRepository interface {
	Append(ctx context.Context, entry *SecurityLogEntry) error
	List(ctx context.Context, filter SecurityLogFilter) ([]SecurityLogEntry, int, error)
	CountByUserAndAction(ctx context.Context, userID uuid.UUID, action SecurityAction) (int, error)
}

// SecurityLogRepo implements SecurityLogRepository using PostgreSQL
type SecurityLogRepo struct {
	db *sqlx.DB
}

// NewSecurityLogRepo creates a new SecurityLogRepo instance
func NewSecurityLogRepo(db *sqlx.DB) *SecurityLogRepo {
	return &SecurityLogRepo{db: db}
}

// Append inserts a new audit entry
func (r *SecurityLogRepo) Append(ctx context.Context, entry *SecurityLogEntry) error {
	query := `
		INSERT INTO security_log (user_id, action, ip_address, user_agent, timestamp, details, severity, admin_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	return r.db.QueryRowContext(ctx, query,
		entry.UserID,
		entry.Action,
		entry.IPAddress,
		entry.UserAgent,
		entry.Timestamp,
		entry.Details,
		entry.Severity,
		entry.AdminID,
	).Scan(&entry.ID)
}

// List retrieves audit entries matching the filter, newest-first,
// along with the total match count for pagination
func (r *SecurityLogRepo) List(ctx context.Context, filter SecurityLogFilter) ([]SecurityLogEntry, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}

	baseQuery := ` FROM security_log WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != nil {
		baseQuery += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, *filter.UserID)
		argIdx++
	}
	if filter.Action != nil {
		baseQuery += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, *filter.Action)
		argIdx++
	}
	if filter.Severity != nil {
		baseQuery += fmt.Sprintf(" AND severity = $%d", argIdx)
		args = append(args, *filter.Severity)
		argIdx++
	}

	countQuery := `SELECT COUNT(*)` + baseQuery
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count security log entries: %w", err)
	}

	selectQuery := `
		SELECT id, user_id, action, ip_address, user_agent, timestamp, details, severity, admin_id
	` + baseQuery + ` ORDER BY timestamp DESC`

	offset := (filter.Page - 1) * filter.Limit
	selectQuery += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, filter.Limit, offset)

	var entries []SecurityLogEntry
	if err := r.db.SelectContext(ctx, &entries, selectQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to query security log entries: %w", err)
	}

	return entries, totalCount, nil
}

// CountByUserAndAction counts entries of one action kind for a user
func (r *SecurityLogRepo) CountByUserAndAction(ctx context.Context, userID uuid.UUID, action SecurityAction) (int, error) {
	query := `SELECT COUNT(*) FROM security_log WHERE user_id = $1 AND action = $2`

	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, action); err != nil {
		return 0, err
	}
	return count, nil
}
