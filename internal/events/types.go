// Package events provides event types and the in-process event bus
// that connects the admin mutation paths, the unlock scheduler, and
// the real-time notification stream.
package events

import (
	"encoding/json"
	"time"
)

// Event represents a notification event delivered to subscribers.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	UserID    string          `json:"-"` // internal, not sent to client
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventHandler is a function that handles incoming events.
type EventHandler func(event Event)

// EventBus defines the interface for publishing and subscribing to events.
type EventBus interface {
	// Publish sends an event to the user's subscribers and to every
	// type subscriber for the event's type.
	Publish(event Event) error
	// Subscribe registers a handler for events addressed to a user.
	// Returns an unsubscribe function.
	Subscribe(userID string, handler EventHandler) (unsubscribe func())
	// SubscribeType registers a handler for every event of one type,
	// regardless of user. Returns an unsubscribe function.
	SubscribeType(eventType string, handler EventHandler) (unsubscribe func())
	// GetEventsSince returns events after the given event ID for replay.
	GetEventsSince(userID string, lastEventID string) ([]Event, error)
}

// EventStore defines the interface for storing and retrieving events.
type EventStore interface {
	// Store saves an event for later replay.
	Store(event Event) error
	// GetSince returns events after the given event ID.
	GetSince(userID string, eventID string, limit int) ([]Event, error)
	// Cleanup removes events older than the given duration.
	Cleanup(olderThan time.Duration) error
}
