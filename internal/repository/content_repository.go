package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Content repository errors
var (
	ErrContentNotFound  = errors.New("content item not found")
	ErrMaterialNotFound = errors.New("lesson material not found")
)

// ContentRepository defines the interface for catalog data access
type ContentRepository interface {
	Create(ctx context.Context, item *ContentItem) error
	Update(ctx context.Context, item *ContentItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*ContentItem, error)
	List(ctx context.Context) ([]*ContentItem, error)
	ListScheduledBefore(ctx context.Context, cutoff time.Time) ([]*ContentItem, error)
	ApplyScheduledUnlock(ctx context.Context, id uuid.UUID) (bool, error)
	ListTopics(ctx context.Context, contentID uuid.UUID) ([]Topic, error)
	ListLessons(ctx context.Context, contentID uuid.UUID) ([]Lesson, error)
	ListLessonMaterials(ctx context.Context, lessonID uuid.UUID) ([]LessonMaterial, error)
	AddLessonMaterial(ctx context.Context, material *LessonMaterial) error
	DeleteLessonMaterial(ctx context.Context, lessonID, materialID uuid.UUID) (string, error)
}

// contentRepository implements ContentRepository using PostgreSQL
type contentRepository struct {
	pool *pgxpool.Pool
}

// NewContentRepository creates a new ContentRepository instance
func NewContentRepository(pool *pgxpool.Pool) ContentRepository {
	return &contentRepository{pool: pool}
}

const contentColumns = `id, kind, title, description, is_blocked, unlock_after_days,
	manual_unlock_only, scheduled_unlock_date, unblock_link, created_at, updated_at`

// Create inserts a new content item
func (r *contentRepository) Create(ctx context.Context, item *ContentItem) error {
	query := `
		INSERT INTO content_items
			(kind, title, description, is_blocked, unlock_after_days,
			 manual_unlock_only, scheduled_unlock_date, unblock_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	return r.pool.QueryRow(ctx, query,
		item.Kind,
		item.Title,
		item.Description,
		item.IsBlocked,
		item.UnlockAfterDays,
		item.ManualUnlockOnly,
		item.ScheduledUnlockDate,
		item.UnblockLink,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
}

// Update overwrites the access-control fields of a content item.
// Last write wins; concurrent admin edits are not serialized.
func (r *contentRepository) Update(ctx context.Context, item *ContentItem) error {
	query := `
		UPDATE content_items
		SET title = $2, description = $3, is_blocked = $4, unlock_after_days = $5,
		    manual_unlock_only = $6, scheduled_unlock_date = $7, unblock_link = $8,
		    updated_at = $9
		WHERE id = $1
	`

	now := time.Now().UTC()
	result, err := r.pool.Exec(ctx, query,
		item.ID,
		item.Title,
		item.Description,
		item.IsBlocked,
		item.UnlockAfterDays,
		item.ManualUnlockOnly,
		item.ScheduledUnlockDate,
		item.UnblockLink,
		now,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrContentNotFound
	}
	item.UpdatedAt = now
	return nil
}

// GetByID retrieves a content item by its ID
func (r *contentRepository) GetByID(ctx context.Context, id uuid.UUID) (*ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE id = $1`

	item, err := scanContentItem(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContentNotFound
		}
		return nil, err
	}
	return item, nil
}

// List retrieves the full catalog
func (r *contentRepository) List(ctx context.Context) ([]*ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// ListScheduledBefore retrieves blocked items whose scheduled unlock
// date has passed, candidates for the scheduler's content-level pass.
func (r *contentRepository) ListScheduledBefore(ctx context.Context, cutoff time.Time) ([]*ContentItem, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM content_items
		WHERE is_blocked AND scheduled_unlock_date IS NOT NULL AND scheduled_unlock_date <= $1
		ORDER BY scheduled_unlock_date
	`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// ApplyScheduledUnlock flips is_blocked off and consumes the scheduled
// date. The is_blocked guard makes the flip idempotent at the database
// level: a second call (or a concurrent instance) reports false.
func (r *contentRepository) ApplyScheduledUnlock(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE content_items
		SET is_blocked = false, scheduled_unlock_date = NULL, updated_at = $2
		WHERE id = $1 AND is_blocked
	`

	result, err := r.pool.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ListTopics retrieves the ordered topics of a content item
func (r *contentRepository) ListTopics(ctx context.Context, contentID uuid.UUID) ([]Topic, error) {
	query := `
		SELECT id, content_id, title, position, is_active
		FROM topics
		WHERE content_id = $1
		ORDER BY position
	`

	rows, err := r.pool.Query(ctx, query, contentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.ContentID, &t.Title, &t.Position, &t.IsActive); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return topics, nil
}

// ListLessons retrieves the ordered lessons of a content item
func (r *contentRepository) ListLessons(ctx context.Context, contentID uuid.UUID) ([]Lesson, error) {
	query := `
		SELECT id, content_id, topic_id, title, media_ref, notes, position
		FROM lessons
		WHERE content_id = $1
		ORDER BY position
	`

	rows, err := r.pool.Query(ctx, query, contentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lessons []Lesson
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.ID, &l.ContentID, &l.TopicID, &l.Title, &l.MediaRef, &l.Notes, &l.Position); err != nil {
			return nil, err
		}
		lessons = append(lessons, l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lessons, nil
}

// ListLessonMaterials retrieves the supplementary files of a lesson
func (r *contentRepository) ListLessonMaterials(ctx context.Context, lessonID uuid.UUID) ([]LessonMaterial, error) {
	query := `
		SELECT id, lesson_id, title, storage_key, size_bytes, created_at
		FROM lesson_materials
		WHERE lesson_id = $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var materials []LessonMaterial
	for rows.Next() {
		var m LessonMaterial
		if err := rows.Scan(&m.ID, &m.LessonID, &m.Title, &m.StorageKey, &m.SizeBytes, &m.CreatedAt); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return materials, nil
}

// AddLessonMaterial registers an uploaded file against a lesson
func (r *contentRepository) AddLessonMaterial(ctx context.Context, material *LessonMaterial) error {
	query := `
		INSERT INTO lesson_materials (lesson_id, title, storage_key, size_bytes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	return r.pool.QueryRow(ctx, query,
		material.LessonID,
		material.Title,
		material.StorageKey,
		material.SizeBytes,
	).Scan(&material.ID, &material.CreatedAt)
}

// DeleteLessonMaterial removes a material row and returns its storage
// key so the caller can delete the stored object too
func (r *contentRepository) DeleteLessonMaterial(ctx context.Context, lessonID, materialID uuid.UUID) (string, error) {
	query := `
		DELETE FROM lesson_materials
		WHERE id = $1 AND lesson_id = $2
		RETURNING storage_key
	`

	var storageKey string
	err := r.pool.QueryRow(ctx, query, materialID, lessonID).Scan(&storageKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrMaterialNotFound
		}
		return "", err
	}
	return storageKey, nil
}

func scanContentItem(row rowScanner) (*ContentItem, error) {
	item := &ContentItem{}
	err := row.Scan(
		&item.ID,
		&item.Kind,
		&item.Title,
		&item.Description,
		&item.IsBlocked,
		&item.UnlockAfterDays,
		&item.ManualUnlockOnly,
		&item.ScheduledUnlockDate,
		&item.UnblockLink,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}
