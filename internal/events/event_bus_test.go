package events

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func makeEvent(eventType, userID string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}

func TestPublishDeliversToUserSubscriber(t *testing.T) {
	bus := NewEventBus(nil)

	received := make(chan Event, 1)
	unsubscribe := bus.Subscribe("user-1", func(e Event) {
		received <- e
	})
	defer unsubscribe()

	event := makeEvent(EventTypeNotification, "user-1")
	if err := bus.Publish(event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != event.ID {
			t.Errorf("received wrong event: %s", got.ID)
		}
	default:
		t.Fatal("subscriber did not receive the event")
	}
}

func TestPublishDoesNotCrossUsers(t *testing.T) {
	bus := NewEventBus(nil)

	received := make(chan Event, 1)
	unsubscribe := bus.Subscribe("user-2", func(e Event) {
		received <- e
	})
	defer unsubscribe()

	if err := bus.Publish(makeEvent(EventTypeNotification, "user-1")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-received:
		t.Fatal("subscriber received an event addressed to another user")
	default:
	}
}

func TestTypeSubscriberReceivesAllUsers(t *testing.T) {
	bus := NewEventBus(nil)

	var mu sync.Mutex
	var received []Event
	unsubscribe := bus.SubscribeType(EventTypeAccessChanged, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	defer unsubscribe()

	bus.Publish(makeEvent(EventTypeAccessChanged, "user-1"))
	bus.Publish(makeEvent(EventTypeAccessChanged, "user-2"))
	bus.Publish(makeEvent(EventTypeNotification, "user-1"))

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 access-changed events, got %d", len(received))
	}
}

func TestBroadcastEventWithoutUser(t *testing.T) {
	bus := NewEventBus(NewEventStore(10))

	received := make(chan Event, 1)
	unsubscribe := bus.SubscribeType(EventTypeAccessChanged, func(e Event) {
		received <- e
	})
	defer unsubscribe()

	if err := bus.Publish(makeEvent(EventTypeAccessChanged, "")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-received:
	default:
		t.Fatal("type subscriber did not receive broadcast event")
	}
}

func TestPublishRequiresType(t *testing.T) {
	bus := NewEventBus(nil)

	if err := bus.Publish(Event{ID: uuid.New().String(), UserID: "user-1"}); err == nil {
		t.Error("expected publish without a type to fail")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus(nil)

	received := make(chan Event, 2)
	unsubscribe := bus.Subscribe("user-1", func(e Event) {
		received <- e
	})

	bus.Publish(makeEvent(EventTypeNotification, "user-1"))
	unsubscribe()
	bus.Publish(makeEvent(EventTypeNotification, "user-1"))

	if len(received) != 1 {
		t.Fatalf("expected exactly 1 delivered event, got %d", len(received))
	}
	if bus.SubscriberCount("user-1") != 0 {
		t.Error("expected subscriber count to drop to zero")
	}
}

func TestGetEventsSinceUsesStore(t *testing.T) {
	store := NewEventStore(10)
	bus := NewEventBus(store)

	first := makeEvent(EventTypeNotification, "user-1")
	second := makeEvent(EventTypeNotification, "user-1")
	bus.Publish(first)
	bus.Publish(second)

	replay, err := bus.GetEventsSince("user-1", first.ID)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(replay) != 1 || replay[0].ID != second.ID {
		t.Fatalf("expected only the second event, got %d events", len(replay))
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewEventBus(NewEventStore(100))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsubscribe := bus.Subscribe("user-1", func(Event) {})
			unsubscribe()
		}()
		go func() {
			defer wg.Done()
			bus.Publish(makeEvent(EventTypeNotification, "user-1"))
		}()
	}
	wg.Wait()
}
