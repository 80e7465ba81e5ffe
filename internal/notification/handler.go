package notification

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/api"
	appctx "github.com/andersonlima/membergate/backend/internal/context"
	"github.com/andersonlima/membergate/backend/internal/repository"
)

// Handler handles HTTP requests for the notification endpoints
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new notification Handler instance
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// NotificationResponse is the wire shape of one notification
type NotificationResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

// List handles GET /api/v1/notifications
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	notifications, err := h.service.List(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list notifications", "error", err, "user_id", userID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to list notifications", nil)
		return
	}

	responses := make([]NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, NotificationResponse{
			ID:        n.ID.String(),
			Title:     n.Title,
			Message:   n.Message,
			Type:      n.Type,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"notifications": responses})
}

// MarkRead handles POST /api/v1/notifications/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	notificationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid notification ID", nil)
		return
	}

	if err := h.service.MarkRead(r.Context(), notificationID, userID); err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Notification not found", nil)
			return
		}
		h.logger.Error("Failed to mark notification read", "error", err, "notification_id", notificationID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to mark notification read", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"marked_read": true})
}

// CountUnread handles GET /api/v1/notifications/unread-count
func (h *Handler) CountUnread(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	count, err := h.service.CountUnread(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to count unread notifications", "error", err, "user_id", userID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to count unread notifications", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"unread_count": count})
}

// RegisterRoutes registers the notification routes. The caller mounts
// these behind the auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/unread-count", h.CountUnread)
		r.Post("/{id}/read", h.MarkRead)
	})
}

func requireUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid user ID", nil)
		return uuid.Nil, false
	}

	return userID, true
}
