package events

import (
	"fmt"
	"testing"
	"time"
)

func storedEvent(id, userID string, ts time.Time) Event {
	return Event{
		ID:        id,
		Type:      EventTypeNotification,
		UserID:    userID,
		Timestamp: ts,
	}
}

func TestStoreEvictsOldestWhenFull(t *testing.T) {
	store := NewEventStore(3)
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		store.Store(storedEvent(fmt.Sprintf("e%d", i), "user-1", base.Add(time.Duration(i)*time.Second)))
	}

	if store.Len() != 3 {
		t.Fatalf("expected 3 events after eviction, got %d", store.Len())
	}

	replay, err := store.GetSince("user-1", "", 10)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(replay) != 3 || replay[0].ID != "e2" {
		t.Fatalf("expected oldest surviving event e2, got %+v", replay)
	}
}

func TestGetSinceFiltersByUser(t *testing.T) {
	store := NewEventStore(10)
	base := time.Now().UTC()

	store.Store(storedEvent("a1", "user-1", base))
	store.Store(storedEvent("b1", "user-2", base.Add(time.Second)))
	store.Store(storedEvent("a2", "user-1", base.Add(2*time.Second)))

	replay, err := store.GetSince("user-1", "a1", 10)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(replay) != 1 || replay[0].ID != "a2" {
		t.Fatalf("expected only a2, got %+v", replay)
	}
}

func TestGetSinceUnknownCursorReturnsEmpty(t *testing.T) {
	store := NewEventStore(10)
	store.Store(storedEvent("a1", "user-1", time.Now().UTC()))

	replay, err := store.GetSince("user-1", "missing", 10)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(replay) != 0 {
		t.Fatalf("expected empty replay for unknown cursor, got %+v", replay)
	}
}

func TestCleanupDropsOldEvents(t *testing.T) {
	store := NewEventStore(10)
	now := time.Now().UTC()

	store.Store(storedEvent("old", "user-1", now.Add(-2*time.Hour)))
	store.Store(storedEvent("new", "user-1", now))

	if err := store.Cleanup(time.Hour); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("expected 1 event after cleanup, got %d", store.Len())
	}
}
