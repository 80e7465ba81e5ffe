// Package sse streams live events to authenticated clients over
// Server-Sent Events. Each connection subscribes to the event bus for
// the user's events and replays anything missed across a reconnect
// via the Last-Event-ID header.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/api"
	"github.com/andersonlima/membergate/backend/internal/auth"
	"github.com/andersonlima/membergate/backend/internal/events"
)

// Config holds SSE connection tuning.
type Config struct {
	HeartbeatInterval     time.Duration
	ConnectionTimeout     time.Duration
	MaxConnectionsPerUser int
	EventBufferSize       int
}

// DefaultConfig returns the default SSE configuration.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:     30 * time.Second,
		ConnectionTimeout:     time.Hour,
		MaxConnectionsPerUser: 5,
		EventBufferSize:       64,
	}
}

// StreamHandler serves the /stream endpoint.
type StreamHandler struct {
	tokens *auth.TokenService
	bus    events.EventBus
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]int
}

// NewStreamHandler creates a new StreamHandler instance
func NewStreamHandler(tokens *auth.TokenService, bus events.EventBus, cfg Config, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = time.Hour
	}
	if cfg.MaxConnectionsPerUser <= 0 {
		cfg.MaxConnectionsPerUser = 5
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 64
	}
	return &StreamHandler{
		tokens: tokens,
		bus:    bus,
		cfg:    cfg,
		logger: logger,
		conns:  make(map[string]int),
	}
}

// RegisterRoutes mounts the stream endpoint. Authentication happens
// inside the handler because EventSource clients cannot set headers
// and pass the token as a query parameter instead.
func (h *StreamHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stream", h.HandleStream)
}

// HandleStream upgrades the request to an SSE stream and forwards the
// user's events until the client disconnects or the connection ages out.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authenticate(r)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid or missing token", nil)
		return
	}
	userID := claims.UserID()

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Streaming not supported", nil)
		return
	}

	if !h.acquire(userID) {
		api.WriteError(w, http.StatusTooManyRequests, api.CodeRateLimited, "Too many open streams", nil)
		return
	}
	defer h.release(userID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	connID := uuid.New().String()
	h.logger.Info("SSE stream opened", "user_id", userID, "connection_id", connID)

	h.writeEvent(w, flusher, h.connectedEvent())

	// replay only when the client presents a cursor; a fresh client
	// starts from live traffic
	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		h.replay(w, flusher, userID, lastID)
	}

	eventCh := make(chan events.Event, h.cfg.EventBufferSize)
	unsubscribe := h.bus.Subscribe(userID, func(e events.Event) {
		select {
		case eventCh <- e:
		default:
			h.logger.Warn("SSE buffer full, dropping event",
				"user_id", userID, "event_type", e.Type)
		}
	})
	defer unsubscribe()

	heartbeat := time.NewTicker(h.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	deadline := time.NewTimer(h.cfg.ConnectionTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE stream closed by client", "user_id", userID, "connection_id", connID)
			return
		case <-deadline.C:
			h.logger.Info("SSE stream timed out", "user_id", userID, "connection_id", connID)
			return
		case <-heartbeat.C:
			h.writeEvent(w, flusher, h.heartbeatEvent())
		case e := <-eventCh:
			h.writeEvent(w, flusher, e)
		}
	}
}

func (h *StreamHandler) authenticate(r *http.Request) (*auth.Claims, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if after, found := strings.CutPrefix(header, "Bearer "); found {
			token = after
		}
	}
	if token == "" {
		return nil, fmt.Errorf("no token provided")
	}
	return h.tokens.ValidateAccessToken(token)
}

func (h *StreamHandler) acquire(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] >= h.cfg.MaxConnectionsPerUser {
		return false
	}
	h.conns[userID]++
	return true
}

func (h *StreamHandler) release(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[userID]--
	if h.conns[userID] <= 0 {
		delete(h.conns, userID)
	}
}

func (h *StreamHandler) replay(w http.ResponseWriter, flusher http.Flusher, userID, lastEventID string) {
	missed, err := h.bus.GetEventsSince(userID, lastEventID)
	if err != nil {
		h.logger.Error("Failed to replay events", "error", err, "user_id", userID)
		return
	}
	for _, e := range missed {
		h.writeEvent(w, flusher, e)
	}
}

// writeEvent emits one event in the wire format: id, event name, then
// the JSON payload on a data line.
func (h *StreamHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, e events.Event) {
	if len(e.Data) == 0 {
		e.Data = json.RawMessage("{}")
	}
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, e.Data)
	flusher.Flush()
}

func (h *StreamHandler) connectedEvent() events.Event {
	payload, _ := json.Marshal(events.ConnectedEvent{
		Timestamp: time.Now().UTC(),
		Message:   "stream established",
	})
	return events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeConnected,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}
}

func (h *StreamHandler) heartbeatEvent() events.Event {
	payload, _ := json.Marshal(events.HeartbeatEvent{Timestamp: time.Now().UTC()})
	return events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeHeartbeat,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}
}

// ConnectionCount reports open streams for a user, for diagnostics.
func (h *StreamHandler) ConnectionCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[userID]
}
