package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/events"
	"github.com/andersonlima/membergate/backend/internal/repository"
)

type mockNotificationRepo struct {
	mu        sync.Mutex
	notes     []repository.Notification
	createErr error
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *repository.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	n.ID = uuid.New()
	n.CreatedAt = time.Now().UTC()
	m.notes = append(m.notes, *n)
	return nil
}

func (m *mockNotificationRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]repository.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Notification
	for i := len(m.notes) - 1; i >= 0; i-- {
		if m.notes[i].UserID == userID {
			out = append(out, m.notes[i])
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notes {
		if m.notes[i].ID == id && m.notes[i].UserID == userID {
			m.notes[i].IsRead = true
			return nil
		}
	}
	return repository.ErrNotificationNotFound
}

func (m *mockNotificationRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.notes {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyPersistsAndPublishes(t *testing.T) {
	repo := &mockNotificationRepo{}
	bus := events.NewEventBus(events.NewEventStore(10))
	svc := NewService(repo, bus, discardLogger())

	userID := uuid.New()
	received := make(chan events.Event, 1)
	unsubscribe := bus.Subscribe(userID.String(), func(e events.Event) {
		received <- e
	})
	defer unsubscribe()

	svc.Notify(context.Background(), userID, repository.NotificationSuccess,
		"Content unlocked", "Intro Course is now available.")

	notes, err := svc.List(context.Background(), userID, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notes))
	}
	if notes[0].Type != repository.NotificationSuccess {
		t.Errorf("type = %q, want success", notes[0].Type)
	}

	select {
	case e := <-received:
		if e.Type != events.EventTypeNotification {
			t.Errorf("event type = %q, want notification", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestNotifySwallowsPersistFailure(t *testing.T) {
	repo := &mockNotificationRepo{createErr: errors.New("connection lost")}
	bus := events.NewEventBus(events.NewEventStore(10))
	svc := NewService(repo, bus, discardLogger())

	userID := uuid.New()
	received := make(chan events.Event, 1)
	unsubscribe := bus.Subscribe(userID.String(), func(e events.Event) {
		received <- e
	})
	defer unsubscribe()

	// must not panic or publish when the insert fails
	svc.Notify(context.Background(), userID, repository.NotificationInfo, "t", "m")

	select {
	case <-received:
		t.Fatal("event published despite persist failure")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMarkReadAndCountUnread(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := NewService(repo, nil, discardLogger())

	userID := uuid.New()
	svc.Notify(context.Background(), userID, repository.NotificationInfo, "first", "m")
	svc.Notify(context.Background(), userID, repository.NotificationInfo, "second", "m")

	count, err := svc.CountUnread(context.Background(), userID)
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if count != 2 {
		t.Fatalf("unread = %d, want 2", count)
	}

	notes, _ := svc.List(context.Background(), userID, 10)
	if err := svc.MarkRead(context.Background(), notes[0].ID, userID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	count, _ = svc.CountUnread(context.Background(), userID)
	if count != 1 {
		t.Errorf("unread after mark = %d, want 1", count)
	}

	// another user's notification cannot be marked
	if err := svc.MarkRead(context.Background(), notes[1].ID, uuid.New()); !errors.Is(err, repository.ErrNotificationNotFound) {
		t.Errorf("MarkRead for wrong user = %v, want ErrNotificationNotFound", err)
	}
}
