package events

import (
	"sync"
	"time"
)

// InMemoryEventStore keeps a bounded, ordered buffer of recent events
// so SSE clients can replay what they missed across a reconnect.
type InMemoryEventStore struct {
	mu      sync.RWMutex
	events  []Event
	maxSize int
}

// NewEventStore creates a new InMemoryEventStore with the given buffer size.
func NewEventStore(maxSize int) *InMemoryEventStore {
	if maxSize <= 0 {
		maxSize = 1000
	}

	return &InMemoryEventStore{
		events:  make([]Event, 0, maxSize),
		maxSize: maxSize,
	}
}

// Store saves an event for later replay.
// If the buffer is full, the oldest event is dropped.
func (es *InMemoryEventStore) Store(event Event) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	if len(es.events) >= es.maxSize {
		es.events = es.events[1:]
	}
	es.events = append(es.events, event)

	return nil
}

// GetSince returns events after the given event ID for a specific user.
// If eventID is empty, returns the most recent events up to limit. An
// unknown eventID yields an empty result; the client should refresh.
func (es *InMemoryEventStore) GetSince(userID string, eventID string, limit int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	start := 0
	if eventID != "" {
		found := false
		for i, e := range es.events {
			if e.ID == eventID {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return []Event{}, nil
		}
	}

	result := make([]Event, 0)
	for _, e := range es.events[start:] {
		if e.UserID != userID {
			continue
		}
		result = append(result, e)
	}

	// When replaying without a cursor, keep only the newest events
	if eventID == "" && len(result) > limit {
		result = result[len(result)-limit:]
	} else if len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Cleanup removes events older than the given duration.
func (es *InMemoryEventStore) Cleanup(olderThan time.Duration) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)

	firstKept := len(es.events)
	for i, e := range es.events {
		if e.Timestamp.After(cutoff) {
			firstKept = i
			break
		}
	}
	es.events = es.events[firstKept:]

	return nil
}

// Len returns the number of events in the store.
func (es *InMemoryEventStore) Len() int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.events)
}

// Clear removes all events from the store.
func (es *InMemoryEventStore) Clear() {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.events = es.events[:0]
}
