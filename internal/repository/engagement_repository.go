package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Engagement repository errors
var (
	ErrFavoriteNotFound     = errors.New("favorite not found")
	ErrWatchHistoryNotFound = errors.New("watch history not found")
)

// EngagementRepository defines the interface for favorites and watch history
type EngagementRepository interface {
	AddFavorite(ctx context.Context, userID, contentID uuid.UUID) error
	RemoveFavorite(ctx context.Context, userID, contentID uuid.UUID) error
	ListFavorites(ctx context.Context, userID uuid.UUID) ([]Favorite, error)
	GetWatchHistory(ctx context.Context, userID, contentID uuid.UUID) (*WatchHistory, error)
	ListWatchHistory(ctx context.Context, userID uuid.UUID) ([]WatchHistory, error)
	RecordProgress(ctx context.Context, userID, contentID, lessonID uuid.UUID, watchedMinutes int) (*WatchHistory, error)
}

// engagementRepository implements EngagementRepository using PostgreSQL
type engagementRepository struct {
	pool *pgxpool.Pool
}

// NewEngagementRepository creates a new EngagementRepository instance
func NewEngagementRepository(pool *pgxpool.Pool) EngagementRepository {
	return &engagementRepository{pool: pool}
}

// AddFavorite marks a content item as favorited; duplicates are a no-op
func (r *engagementRepository) AddFavorite(ctx context.Context, userID, contentID uuid.UUID) error {
	query := `
		INSERT INTO favorites (user_id, content_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, content_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, userID, contentID)
	return err
}

// RemoveFavorite clears a favorite mark
func (r *engagementRepository) RemoveFavorite(ctx context.Context, userID, contentID uuid.UUID) error {
	query := `DELETE FROM favorites WHERE user_id = $1 AND content_id = $2`

	result, err := r.pool.Exec(ctx, query, userID, contentID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrFavoriteNotFound
	}
	return nil
}

// ListFavorites retrieves the user's favorites, newest-first
func (r *engagementRepository) ListFavorites(ctx context.Context, userID uuid.UUID) ([]Favorite, error) {
	query := `
		SELECT id, user_id, content_id, created_at
		FROM favorites
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var favorites []Favorite
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.ID, &f.UserID, &f.ContentID, &f.CreatedAt); err != nil {
			return nil, err
		}
		favorites = append(favorites, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return favorites, nil
}

// GetWatchHistory retrieves the progress record for a (user, content) pair
func (r *engagementRepository) GetWatchHistory(ctx context.Context, userID, contentID uuid.UUID) (*WatchHistory, error) {
	query := `
		SELECT id, user_id, content_id, completed_lessons, watch_time_minutes, updated_at
		FROM watch_history
		WHERE user_id = $1 AND content_id = $2
	`

	wh := &WatchHistory{}
	err := r.pool.QueryRow(ctx, query, userID, contentID).Scan(
		&wh.ID,
		&wh.UserID,
		&wh.ContentID,
		&wh.CompletedLessons,
		&wh.WatchTimeMinutes,
		&wh.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWatchHistoryNotFound
		}
		return nil, err
	}
	return wh, nil
}

// ListWatchHistory retrieves all progress records for a user,
// most recently updated first
func (r *engagementRepository) ListWatchHistory(ctx context.Context, userID uuid.UUID) ([]WatchHistory, error) {
	query := `
		SELECT id, user_id, content_id, completed_lessons, watch_time_minutes, updated_at
		FROM watch_history
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var histories []WatchHistory
	for rows.Next() {
		var wh WatchHistory
		if err := rows.Scan(&wh.ID, &wh.UserID, &wh.ContentID, &wh.CompletedLessons, &wh.WatchTimeMinutes, &wh.UpdatedAt); err != nil {
			return nil, err
		}
		histories = append(histories, wh)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return histories, nil
}

// RecordProgress upserts a progress record, appending the completed
// lesson (if not already present) and adding watched minutes
func (r *engagementRepository) RecordProgress(ctx context.Context, userID, contentID, lessonID uuid.UUID, watchedMinutes int) (*WatchHistory, error) {
	query := `
		INSERT INTO watch_history (user_id, content_id, completed_lessons, watch_time_minutes, updated_at)
		VALUES ($1, $2, ARRAY[$3]::uuid[], $4, $5)
		ON CONFLICT (user_id, content_id) DO UPDATE SET
			completed_lessons = CASE
				WHEN $3 = ANY(watch_history.completed_lessons) THEN watch_history.completed_lessons
				ELSE array_append(watch_history.completed_lessons, $3)
			END,
			watch_time_minutes = watch_history.watch_time_minutes + $4,
			updated_at = $5
		RETURNING id, user_id, content_id, completed_lessons, watch_time_minutes, updated_at
	`

	wh := &WatchHistory{}
	err := r.pool.QueryRow(ctx, query, userID, contentID, lessonID, watchedMinutes, time.Now().UTC()).Scan(
		&wh.ID,
		&wh.UserID,
		&wh.ContentID,
		&wh.CompletedLessons,
		&wh.WatchTimeMinutes,
		&wh.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return wh, nil
}
