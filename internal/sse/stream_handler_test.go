package sse

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/auth"
	"github.com/andersonlima/membergate/backend/internal/events"
)

func newTestTokenService() *auth.TokenService {
	return auth.NewTokenService(auth.TokenServiceConfig{
		AccessSecret:       "test-access-secret-32-chars-long!!",
		RefreshSecret:      "test-refresh-secret-32-chars-long!",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
	})
}

type streamFixture struct {
	handler *StreamHandler
	tokens  *auth.TokenService
	bus     *events.InMemoryEventBus
	userID  string
	token   string
}

func newStreamFixture(t *testing.T, cfg Config) *streamFixture {
	t.Helper()

	tokens := newTestTokenService()
	bus := events.NewEventBus(events.NewEventStore(100))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	userID := uuid.New().String()
	token, err := tokens.GenerateAccessToken(userID, "member@example.com", uuid.New().String(), false)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	return &streamFixture{
		handler: NewStreamHandler(tokens, bus, cfg, logger),
		tokens:  tokens,
		bus:     bus,
		userID:  userID,
		token:   token,
	}
}

// syncRecorder guards a ResponseRecorder so the test can inspect the
// body while the handler goroutine is still streaming into it.
type syncRecorder struct {
	mu  sync.Mutex
	rec *httptest.ResponseRecorder
}

func newSyncRecorder() *syncRecorder {
	return &syncRecorder{rec: httptest.NewRecorder()}
}

func (r *syncRecorder) Header() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Header()
}

func (r *syncRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Write(b)
}

func (r *syncRecorder) WriteHeader(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec.WriteHeader(code)
}

func (r *syncRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec.Flush()
}

func (r *syncRecorder) Code() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Code
}

func (r *syncRecorder) BodyString() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Body.String()
}

func (r *syncRecorder) ContentType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Header().Get("Content-Type")
}

// openStream runs the handler on its own goroutine and returns the
// recorder plus a stop function that cancels the request and waits
// for the handler to return.
func (f *streamFixture) openStream(t *testing.T, req *http.Request) (*syncRecorder, func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)

	rec := newSyncRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.handler.HandleStream(rec, req)
	}()

	// wait for the subscription before letting the test publish
	waitUntil(t, 2*time.Second, func() bool {
		return f.bus.SubscriberCount(f.userID) > 0 || rec.Code() >= 400
	})

	return rec, func() {
		cancel()
		<-done
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHandleStreamRejectsMissingToken(t *testing.T) {
	f := newStreamFixture(t, DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()
	f.handler.HandleStream(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleStreamRejectsRefreshToken(t *testing.T) {
	f := newStreamFixture(t, DefaultConfig())

	refresh, err := f.tokens.GenerateRefreshToken(f.userID, uuid.New().String())
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/stream?token="+refresh, nil)
	rec := httptest.NewRecorder()
	f.handler.HandleStream(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleStreamDeliversPublishedEvents(t *testing.T) {
	f := newStreamFixture(t, DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/stream?token="+f.token, nil)
	rec, stop := f.openStream(t, req)

	payload, _ := json.Marshal(events.NotificationEvent{Title: "Content unlocked"})
	err := f.bus.Publish(events.Event{
		ID:        "evt-1",
		Type:      events.EventTypeNotification,
		UserID:    f.userID,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return strings.Contains(rec.BodyString(), "id: evt-1")
	})
	stop()

	body := rec.BodyString()
	if rec.ContentType() != "text/event-stream" {
		t.Errorf("Content-Type = %q", rec.ContentType())
	}
	if !strings.Contains(body, "event: connected") {
		t.Error("missing connected event")
	}
	if !strings.Contains(body, "event: notification") {
		t.Error("missing notification event")
	}
	if !strings.Contains(body, "Content unlocked") {
		t.Error("missing event payload")
	}
}

func TestHandleStreamIgnoresOtherUsersEvents(t *testing.T) {
	f := newStreamFixture(t, DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/stream?token="+f.token, nil)
	rec, stop := f.openStream(t, req)

	f.bus.Publish(events.Event{
		ID:     "evt-other",
		Type:   events.EventTypeNotification,
		UserID: uuid.New().String(),
		Data:   json.RawMessage(`{"title":"not yours"}`),
	})
	f.bus.Publish(events.Event{
		ID:     "evt-mine",
		Type:   events.EventTypeNotification,
		UserID: f.userID,
		Data:   json.RawMessage(`{"title":"yours"}`),
	})

	waitUntil(t, 2*time.Second, func() bool {
		return strings.Contains(rec.BodyString(), "id: evt-mine")
	})
	stop()

	if strings.Contains(rec.BodyString(), "evt-other") {
		t.Error("received another user's event")
	}
}

func TestHandleStreamReplaysFromLastEventID(t *testing.T) {
	f := newStreamFixture(t, DefaultConfig())

	// events stored before the client reconnects
	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		f.bus.Publish(events.Event{
			ID:        id,
			Type:      events.EventTypeNotification,
			UserID:    f.userID,
			Data:      json.RawMessage(`{"title":"` + id + `"}`),
			Timestamp: time.Now().UTC(),
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/stream?token="+f.token, nil)
	req.Header.Set("Last-Event-ID", "evt-1")
	rec, stop := f.openStream(t, req)

	waitUntil(t, 2*time.Second, func() bool {
		return strings.Contains(rec.BodyString(), "id: evt-3")
	})
	stop()

	body := rec.BodyString()
	if !strings.Contains(body, "id: evt-2") || !strings.Contains(body, "id: evt-3") {
		t.Error("missed events not replayed")
	}
	if strings.Contains(body, "data: {\"title\":\"evt-1\"}") {
		t.Error("replayed the event the client already saw")
	}
}

func TestHandleStreamEnforcesConnectionCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnectionsPerUser = 1
	f := newStreamFixture(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/stream?token="+f.token, nil)
	_, stop := f.openStream(t, req)
	defer stop()

	second := httptest.NewRequest(http.MethodGet, "/stream?token="+f.token, nil)
	rec := httptest.NewRecorder()
	f.handler.HandleStream(rec, second)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestHandleStreamReleasesSlotOnDisconnect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnectionsPerUser = 1
	f := newStreamFixture(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/stream?token="+f.token, nil)
	_, stop := f.openStream(t, req)
	stop()

	if got := f.handler.ConnectionCount(f.userID); got != 0 {
		t.Fatalf("ConnectionCount = %d, want 0", got)
	}

	// slot is free again
	again := httptest.NewRequest(http.MethodGet, "/stream?token="+f.token, nil)
	rec, stop2 := f.openStream(t, again)
	stop2()

	if rec.Code() == http.StatusTooManyRequests {
		t.Error("slot not released after disconnect")
	}
}

func TestHandleStreamTimesOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectionTimeout = 50 * time.Millisecond
	f := newStreamFixture(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/stream?token="+f.token, nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.handler.HandleStream(rec, req)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after connection timeout")
	}
}

func TestHandleStreamAcceptsBearerHeader(t *testing.T) {
	f := newStreamFixture(t, DefaultConfig())
	cfg := DefaultConfig()
	cfg.ConnectionTimeout = 50 * time.Millisecond
	f.handler.cfg = cfg

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.handler.HandleStream(rec, req)
	}()
	<-done

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
