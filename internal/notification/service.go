// Package notification persists per-user notifications and mirrors
// them onto the event bus for live delivery.
package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/events"
	"github.com/andersonlima/membergate/backend/internal/metrics"
	"github.com/andersonlima/membergate/backend/internal/repository"
)

// Service creates and lists notifications. Notify is fire-and-forget:
// a failed insert or publish is logged and swallowed so it can never
// fail the state change that triggered it.
type Service struct {
	repo   repository.NotificationRepository
	bus    events.EventBus
	logger *slog.Logger
}

// NewService creates a new notification Service instance
func NewService(repo repository.NotificationRepository, bus events.EventBus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, bus: bus, logger: logger}
}

// Notify persists a notification and publishes it for live delivery.
// Errors are logged, never returned.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, notifType, title, message string) {
	n := &repository.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    notifType,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error("Failed to persist notification", "error", err, "user_id", userID, "title", title)
		return
	}

	metrics.NotificationsPublished.WithLabelValues(notifType).Inc()

	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(events.NotificationEvent{
		ID:        n.ID.String(),
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		s.logger.Error("Failed to encode notification event", "error", err, "notification_id", n.ID)
		return
	}

	event := events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeNotification,
		UserID:    userID.String(),
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}
	if err := s.bus.Publish(event); err != nil {
		s.logger.Error("Failed to publish notification event", "error", err, "notification_id", n.ID)
	}
}

// List retrieves the user's notifications, newest-first
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]repository.Notification, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}

// MarkRead marks one of the user's notifications as read
func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, userID)
}

// CountUnread counts the user's unread notifications
func (s *Service) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
