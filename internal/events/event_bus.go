package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// InMemoryEventBus implements EventBus using in-memory maps. User
// subscribers receive events addressed to them; type subscribers
// receive every event of their type, which is how the unlock
// scheduler listens for access changes.
type InMemoryEventBus struct {
	mu              sync.RWMutex
	userSubscribers map[string]map[string]EventHandler // userID -> subscriptionID -> handler
	typeSubscribers map[string]map[string]EventHandler // eventType -> subscriptionID -> handler
	store           EventStore
}

// NewEventBus creates a new InMemoryEventBus with the given event store.
func NewEventBus(store EventStore) *InMemoryEventBus {
	return &InMemoryEventBus{
		userSubscribers: make(map[string]map[string]EventHandler),
		typeSubscribers: make(map[string]map[string]EventHandler),
		store:           store,
	}
}

// Publish sends an event to the user's subscribers and to all type
// subscribers. It also stores the event for replay if a store is
// configured. Events without a UserID are broadcast-only: they reach
// type subscribers but are not stored for replay.
func (eb *InMemoryEventBus) Publish(event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event must have a Type")
	}

	if eb.store != nil && event.UserID != "" {
		// Best effort; replay is an optimization, delivery is not
		_ = eb.store.Store(event)
	}

	eb.mu.RLock()
	handlersCopy := make([]EventHandler, 0)
	if event.UserID != "" {
		for _, handler := range eb.userSubscribers[event.UserID] {
			handlersCopy = append(handlersCopy, handler)
		}
	}
	for _, handler := range eb.typeSubscribers[event.Type] {
		handlersCopy = append(handlersCopy, handler)
	}
	eb.mu.RUnlock()

	for _, handler := range handlersCopy {
		handler(event)
	}

	return nil
}

// Subscribe registers a handler for events addressed to a user.
// Returns an unsubscribe function that removes the subscription.
func (eb *InMemoryEventBus) Subscribe(userID string, handler EventHandler) (unsubscribe func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.userSubscribers[userID] == nil {
		eb.userSubscribers[userID] = make(map[string]EventHandler)
	}

	subscriptionID := uuid.New().String()
	eb.userSubscribers[userID][subscriptionID] = handler

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()

		if handlers, exists := eb.userSubscribers[userID]; exists {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(eb.userSubscribers, userID)
			}
		}
	}
}

// SubscribeType registers a handler for every event of one type.
// Returns an unsubscribe function that removes the subscription.
func (eb *InMemoryEventBus) SubscribeType(eventType string, handler EventHandler) (unsubscribe func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.typeSubscribers[eventType] == nil {
		eb.typeSubscribers[eventType] = make(map[string]EventHandler)
	}

	subscriptionID := uuid.New().String()
	eb.typeSubscribers[eventType][subscriptionID] = handler

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()

		if handlers, exists := eb.typeSubscribers[eventType]; exists {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(eb.typeSubscribers, eventType)
			}
		}
	}
}

// GetEventsSince returns events after the given event ID for replay.
// Returns empty slice if no store is configured or no events found.
func (eb *InMemoryEventBus) GetEventsSince(userID string, lastEventID string) ([]Event, error) {
	if eb.store == nil {
		return []Event{}, nil
	}

	return eb.store.GetSince(userID, lastEventID, 100)
}

// SubscriberCount returns the number of subscribers for a user.
func (eb *InMemoryEventBus) SubscriberCount(userID string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	return len(eb.userSubscribers[userID])
}

// TotalSubscribers returns the total subscriber count across users
// and types.
func (eb *InMemoryEventBus) TotalSubscribers() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	total := 0
	for _, handlers := range eb.userSubscribers {
		total += len(handlers)
	}
	for _, handlers := range eb.typeSubscribers {
		total += len(handlers)
	}
	return total
}
