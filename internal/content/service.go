// Package content exposes the catalog: member-facing listings with
// per-caller access decisions, and the admin surface that edits the
// unlock rules those decisions derive from.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/access"
	"github.com/andersonlima/membergate/backend/internal/events"
	"github.com/andersonlima/membergate/backend/internal/repository"
	"github.com/andersonlima/membergate/backend/internal/sanitizer"
)

// Content service errors
var (
	ErrContentLocked = errors.New("content is locked for this user")
)

// CatalogEntry pairs a catalog item with the caller's access decision
type CatalogEntry struct {
	Item     *repository.ContentItem
	Decision access.Decision
}

// Detail is a fully loaded, accessible content item
type Detail struct {
	Item    *repository.ContentItem
	Topics  []repository.Topic
	Lessons []repository.Lesson
}

// ItemInput carries the admin-editable fields of a content item.
// Description is rich text and is sanitized before storage.
type ItemInput struct {
	Kind             repository.ContentKind
	Title            string
	Description      *string
	IsBlocked        bool
	UnlockAfterDays  *int
	ManualUnlockOnly bool
	UnblockLink      *string
}

// Service implements catalog reads and admin rule edits
type Service struct {
	content repository.ContentRepository
	users   repository.UserRepository
	html    sanitizer.HTMLSanitizer
	bus     events.EventBus
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new content Service instance
func NewService(
	content repository.ContentRepository,
	users repository.UserRepository,
	html sanitizer.HTMLSanitizer,
	bus events.EventBus,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if html == nil {
		html = sanitizer.NewHTMLSanitizer()
	}
	return &Service{
		content: content,
		users:   users,
		html:    html,
		bus:     bus,
		logger:  logger,
		now:     time.Now,
	}
}

// Catalog lists every content item with the caller's access decision.
// Locked items are listed too; the decision carries the lock reason,
// remaining days and unblock link for the UI.
func (s *Service) Catalog(ctx context.Context, userID uuid.UUID) ([]CatalogEntry, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.content.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	entries := make([]CatalogEntry, 0, len(items))
	for _, item := range items {
		if access.RuleConflict(item) {
			s.logger.Warn("Content item has conflicting unlock rules",
				"content_id", item.ID, "title", item.Title)
		}
		entries = append(entries, CatalogEntry{
			Item:     item,
			Decision: access.Evaluate(item, user, now),
		})
	}
	return entries, nil
}

// GetDetail loads an accessible item with its topics and lessons.
// Lessons under inactive topics are hidden. A locked item returns
// ErrContentLocked; the caller surfaces the catalog decision instead.
func (s *Service) GetDetail(ctx context.Context, userID, contentID uuid.UUID) (*Detail, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	item, err := s.content.GetByID(ctx, contentID)
	if err != nil {
		return nil, err
	}

	decision := access.Evaluate(item, user, s.now().UTC())
	if !decision.Accessible {
		return nil, ErrContentLocked
	}

	topics, err := s.content.ListTopics(ctx, contentID)
	if err != nil {
		return nil, err
	}
	activeTopics := make([]repository.Topic, 0, len(topics))
	activeIDs := make(map[uuid.UUID]bool, len(topics))
	for _, topic := range topics {
		if topic.IsActive {
			activeTopics = append(activeTopics, topic)
			activeIDs[topic.ID] = true
		}
	}

	lessons, err := s.content.ListLessons(ctx, contentID)
	if err != nil {
		return nil, err
	}
	visible := make([]repository.Lesson, 0, len(lessons))
	for _, lesson := range lessons {
		if lesson.TopicID != nil && !activeIDs[*lesson.TopicID] {
			continue
		}
		visible = append(visible, lesson)
	}

	return &Detail{Item: item, Topics: activeTopics, Lessons: visible}, nil
}

// CreateItem creates a catalog item with sanitized text fields
func (s *Service) CreateItem(ctx context.Context, input ItemInput) (*repository.ContentItem, error) {
	item := &repository.ContentItem{
		Kind:             input.Kind,
		Title:            s.html.SanitizePlainText(input.Title),
		Description:      s.sanitizeDescription(input.Description),
		IsBlocked:        input.IsBlocked,
		UnlockAfterDays:  input.UnlockAfterDays,
		ManualUnlockOnly: input.ManualUnlockOnly,
		UnblockLink:      input.UnblockLink,
	}
	if err := s.content.Create(ctx, item); err != nil {
		return nil, err
	}

	s.publishRuleChange(item.ID, "content_created")
	return item, nil
}

// UpdateItem overwrites an item's fields. Last write wins; concurrent
// admin edits are not serialized. Any edit may change who can access
// the item, so every update broadcasts a rule change.
func (s *Service) UpdateItem(ctx context.Context, id uuid.UUID, input ItemInput) (*repository.ContentItem, error) {
	item, err := s.content.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	item.Title = s.html.SanitizePlainText(input.Title)
	item.Description = s.sanitizeDescription(input.Description)
	item.IsBlocked = input.IsBlocked
	item.UnlockAfterDays = input.UnlockAfterDays
	item.ManualUnlockOnly = input.ManualUnlockOnly
	item.UnblockLink = input.UnblockLink

	if err := s.content.Update(ctx, item); err != nil {
		return nil, err
	}

	s.publishRuleChange(item.ID, "rule_change")
	return item, nil
}

// ScheduleUnlock sets the date at which the scheduler opens the item
// for everyone. The date must be in the future.
func (s *Service) ScheduleUnlock(ctx context.Context, id uuid.UUID, at time.Time) (*repository.ContentItem, error) {
	item, err := s.content.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	at = at.UTC()
	item.ScheduledUnlockDate = &at
	if err := s.content.Update(ctx, item); err != nil {
		return nil, err
	}

	if item.ManualUnlockOnly {
		s.logger.Warn("Scheduled unlock set on manual-only item; manual-only wins",
			"content_id", item.ID, "title", item.Title)
	}

	s.publishRuleChange(item.ID, "unlock_scheduled")
	return item, nil
}

// ClearScheduledUnlock removes a pending scheduled unlock
func (s *Service) ClearScheduledUnlock(ctx context.Context, id uuid.UUID) (*repository.ContentItem, error) {
	item, err := s.content.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	item.ScheduledUnlockDate = nil
	if err := s.content.Update(ctx, item); err != nil {
		return nil, err
	}

	s.publishRuleChange(item.ID, "unlock_schedule_cleared")
	return item, nil
}

// GrantAccess adds an item to a user's override set
func (s *Service) GrantAccess(ctx context.Context, userID, contentID uuid.UUID) error {
	item, err := s.content.GetByID(ctx, contentID)
	if err != nil {
		return err
	}

	if err := s.users.GrantUnlock(ctx, userID, contentID, item.Kind); err != nil {
		return err
	}

	s.publishUserAccessChange(userID, contentID, "manual_grant")
	return nil
}

// RevokeAccess removes an item from a user's override set
func (s *Service) RevokeAccess(ctx context.Context, userID, contentID uuid.UUID) error {
	item, err := s.content.GetByID(ctx, contentID)
	if err != nil {
		return err
	}

	if err := s.users.RevokeUnlock(ctx, userID, contentID, item.Kind); err != nil {
		return err
	}

	s.publishUserAccessChange(userID, contentID, "manual_revoke")
	return nil
}

func (s *Service) sanitizeDescription(desc *string) *string {
	if desc == nil {
		return nil
	}
	clean := s.html.SanitizeRichText(*desc)
	return &clean
}

// publishRuleChange broadcasts an access change affecting all users
func (s *Service) publishRuleChange(contentID uuid.UUID, reason string) {
	s.publish("", contentID, reason)
}

// publishUserAccessChange signals an access change for one user
func (s *Service) publishUserAccessChange(userID, contentID uuid.UUID, reason string) {
	s.publish(userID.String(), contentID, reason)
}

func (s *Service) publish(userID string, contentID uuid.UUID, reason string) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(events.AccessChangedEvent{
		Reason:    reason,
		ContentID: contentID.String(),
		ChangedAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("Failed to encode access-change event", "error", err, "content_id", contentID)
		return
	}
	event := events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeAccessChanged,
		UserID:    userID,
		Data:      payload,
		Timestamp: s.now().UTC(),
	}
	if err := s.bus.Publish(event); err != nil {
		s.logger.Error("Failed to publish access-change event", "error", err, "content_id", contentID)
	}
}
