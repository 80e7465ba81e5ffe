// Package engagement tracks favorites and viewing progress. Progress
// feeds the continue-watching surface, which only ever shows items the
// caller can currently access.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/access"
	"github.com/andersonlima/membergate/backend/internal/repository"
)

// Progress summarizes one (user, content) viewing record
type Progress struct {
	ContentID        uuid.UUID `json:"content_id"`
	Title            string    `json:"title"`
	CompletedLessons int       `json:"completed_lessons"`
	TotalLessons     int       `json:"total_lessons"`
	ProgressPercent  int       `json:"progress_percent"`
	WatchTimeMinutes int       `json:"watch_time_minutes"`
	LastWatchedAt    time.Time `json:"last_watched_at"`
}

// Service implements favorites and watch-history operations
type Service struct {
	engagement repository.EngagementRepository
	content    repository.ContentRepository
	users      repository.UserRepository
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a new engagement Service instance
func NewService(
	engagement repository.EngagementRepository,
	content repository.ContentRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engagement: engagement,
		content:    content,
		users:      users,
		logger:     logger,
		now:        time.Now,
	}
}

// AddFavorite marks a content item as favorited. The item must exist;
// favoriting inaccessible content is allowed, it just sits locked.
func (s *Service) AddFavorite(ctx context.Context, userID, contentID uuid.UUID) error {
	if _, err := s.content.GetByID(ctx, contentID); err != nil {
		return err
	}
	return s.engagement.AddFavorite(ctx, userID, contentID)
}

// RemoveFavorite clears a favorite mark
func (s *Service) RemoveFavorite(ctx context.Context, userID, contentID uuid.UUID) error {
	return s.engagement.RemoveFavorite(ctx, userID, contentID)
}

// ListFavorites retrieves the user's favorites, newest-first
func (s *Service) ListFavorites(ctx context.Context, userID uuid.UUID) ([]repository.Favorite, error) {
	return s.engagement.ListFavorites(ctx, userID)
}

// RecordProgress marks a lesson completed and adds watched minutes,
// returning the updated progress summary. The lesson must belong to
// the content item.
func (s *Service) RecordProgress(ctx context.Context, userID, contentID, lessonID uuid.UUID, watchedMinutes int) (*Progress, error) {
	if watchedMinutes < 0 {
		watchedMinutes = 0
	}

	item, err := s.content.GetByID(ctx, contentID)
	if err != nil {
		return nil, err
	}

	lessons, err := s.content.ListLessons(ctx, contentID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, l := range lessons {
		if l.ID == lessonID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("lesson %s does not belong to content %s", lessonID, contentID)
	}

	wh, err := s.engagement.RecordProgress(ctx, userID, contentID, lessonID, watchedMinutes)
	if err != nil {
		return nil, err
	}

	return s.toProgress(item, wh, len(lessons)), nil
}

// GetProgress returns the progress summary for one content item.
// A user with no history gets a zeroed summary, not an error.
func (s *Service) GetProgress(ctx context.Context, userID, contentID uuid.UUID) (*Progress, error) {
	item, err := s.content.GetByID(ctx, contentID)
	if err != nil {
		return nil, err
	}

	lessons, err := s.content.ListLessons(ctx, contentID)
	if err != nil {
		return nil, err
	}

	wh, err := s.engagement.GetWatchHistory(ctx, userID, contentID)
	if err != nil {
		if errors.Is(err, repository.ErrWatchHistoryNotFound) {
			return s.toProgress(item, &repository.WatchHistory{}, len(lessons)), nil
		}
		return nil, err
	}

	return s.toProgress(item, wh, len(lessons)), nil
}

// ContinueWatching lists the user's in-progress items, most recently
// watched first. Items the user can no longer access and items already
// finished are filtered out.
func (s *Service) ContinueWatching(ctx context.Context, userID uuid.UUID) ([]Progress, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	histories, err := s.engagement.ListWatchHistory(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	out := []Progress{}
	for i := range histories {
		wh := &histories[i]

		item, err := s.content.GetByID(ctx, wh.ContentID)
		if err != nil {
			// stale history for deleted content; skip it
			s.logger.Warn("Watch history references missing content",
				"user_id", userID, "content_id", wh.ContentID)
			continue
		}

		decision := access.Evaluate(item, user, now)
		if !decision.Accessible {
			continue
		}

		lessons, err := s.content.ListLessons(ctx, wh.ContentID)
		if err != nil {
			return nil, err
		}

		p := s.toProgress(item, wh, len(lessons))
		if p.ProgressPercent >= 100 {
			continue
		}
		out = append(out, *p)
	}

	return out, nil
}

func (s *Service) toProgress(item *repository.ContentItem, wh *repository.WatchHistory, totalLessons int) *Progress {
	percent := 0
	if totalLessons > 0 {
		percent = len(wh.CompletedLessons) * 100 / totalLessons
		if percent > 100 {
			percent = 100
		}
	}
	return &Progress{
		ContentID:        item.ID,
		Title:            item.Title,
		CompletedLessons: len(wh.CompletedLessons),
		TotalLessons:     totalLessons,
		ProgressPercent:  percent,
		WatchTimeMinutes: wh.WatchTimeMinutes,
		LastWatchedAt:    wh.UpdatedAt,
	}
}
