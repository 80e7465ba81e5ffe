package content

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/api"
	appctx "github.com/andersonlima/membergate/backend/internal/context"
	"github.com/andersonlima/membergate/backend/internal/repository"
)

var validate = validator.New()

// Handler handles HTTP requests for the catalog endpoints
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new content Handler instance
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// ItemRequest is the body for creating or updating a content item
type ItemRequest struct {
	Kind             string  `json:"kind" validate:"required,oneof=course product"`
	Title            string  `json:"title" validate:"required,min=1,max=200"`
	Description      *string `json:"description,omitempty"`
	IsBlocked        bool    `json:"is_blocked"`
	UnlockAfterDays  *int    `json:"unlock_after_days,omitempty" validate:"omitempty,min=0"`
	ManualUnlockOnly bool    `json:"manual_unlock_only"`
	UnblockLink      *string `json:"unblock_link,omitempty" validate:"omitempty,url"`
}

// ScheduleRequest is the body for scheduling an unlock
type ScheduleRequest struct {
	UnlockAt time.Time `json:"unlock_at" validate:"required"`
}

// AccessInfo is the wire shape of an access decision
type AccessInfo struct {
	Accessible    bool    `json:"accessible"`
	Reason        *string `json:"reason,omitempty"`
	DaysRemaining *int    `json:"days_remaining,omitempty"`
	UnblockLink   *string `json:"unblock_link,omitempty"`
}

// ItemResponse is the wire shape of one catalog item
type ItemResponse struct {
	ID                  string      `json:"id"`
	Kind                string      `json:"kind"`
	Title               string      `json:"title"`
	Description         *string     `json:"description,omitempty"`
	IsBlocked           bool        `json:"is_blocked"`
	UnlockAfterDays     *int        `json:"unlock_after_days,omitempty"`
	ManualUnlockOnly    bool        `json:"manual_unlock_only"`
	ScheduledUnlockDate *string     `json:"scheduled_unlock_date,omitempty"`
	UnblockLink         *string     `json:"unblock_link,omitempty"`
	Access              *AccessInfo `json:"access,omitempty"`
}

// TopicResponse is the wire shape of one topic
type TopicResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

// LessonResponse is the wire shape of one lesson
type LessonResponse struct {
	ID       string  `json:"id"`
	TopicID  *string `json:"topic_id,omitempty"`
	Title    string  `json:"title"`
	MediaRef string  `json:"media_ref"`
	Notes    *string `json:"notes,omitempty"`
	Position int     `json:"position"`
}

// Catalog handles GET /api/v1/content
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.Catalog(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to load catalog", "error", err, "user_id", userID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to load catalog", nil)
		return
	}

	responses := make([]ItemResponse, 0, len(entries))
	for _, entry := range entries {
		resp := toItemResponse(entry.Item)
		info := &AccessInfo{
			Accessible:    entry.Decision.Accessible,
			DaysRemaining: entry.Decision.DaysRemaining,
			UnblockLink:   entry.Decision.UnblockLink,
		}
		if entry.Decision.Reason != "" {
			reason := string(entry.Decision.Reason)
			info.Reason = &reason
		}
		resp.Access = info
		responses = append(responses, resp)
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"items": responses})
}

// GetDetail handles GET /api/v1/content/{contentID}
func (h *Handler) GetDetail(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	contentID, ok := parseID(w, r, "contentID", "Invalid content ID")
	if !ok {
		return
	}

	detail, err := h.service.GetDetail(r.Context(), userID, contentID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrContentNotFound):
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Content not found", nil)
		case errors.Is(err, ErrContentLocked):
			api.WriteError(w, http.StatusForbidden, api.CodeContentLocked, "This content is locked", nil)
		default:
			h.logger.Error("Failed to load content detail", "error", err, "content_id", contentID)
			api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to load content", nil)
		}
		return
	}

	topics := make([]TopicResponse, 0, len(detail.Topics))
	for _, topic := range detail.Topics {
		topics = append(topics, TopicResponse{
			ID:       topic.ID.String(),
			Title:    topic.Title,
			Position: topic.Position,
		})
	}
	lessons := make([]LessonResponse, 0, len(detail.Lessons))
	for _, lesson := range detail.Lessons {
		lr := LessonResponse{
			ID:       lesson.ID.String(),
			Title:    lesson.Title,
			MediaRef: lesson.MediaRef,
			Notes:    lesson.Notes,
			Position: lesson.Position,
		}
		if lesson.TopicID != nil {
			id := lesson.TopicID.String()
			lr.TopicID = &id
		}
		lessons = append(lessons, lr)
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"item":    toItemResponse(detail.Item),
		"topics":  topics,
		"lessons": lessons,
	})
}

// CreateItem handles POST /api/v1/admin/content
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeItemRequest(w, r)
	if !ok {
		return
	}

	item, err := h.service.CreateItem(r.Context(), input)
	if err != nil {
		h.logger.Error("Failed to create content item", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to create content", nil)
		return
	}

	api.WriteSuccess(w, http.StatusCreated, map[string]interface{}{"item": toItemResponse(item)})
}

// UpdateItem handles PUT /api/v1/admin/content/{contentID}
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	contentID, ok := parseID(w, r, "contentID", "Invalid content ID")
	if !ok {
		return
	}
	input, ok := decodeItemRequest(w, r)
	if !ok {
		return
	}

	item, err := h.service.UpdateItem(r.Context(), contentID, input)
	if err != nil {
		if errors.Is(err, repository.ErrContentNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Content not found", nil)
			return
		}
		h.logger.Error("Failed to update content item", "error", err, "content_id", contentID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to update content", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"item": toItemResponse(item)})
}

// ScheduleUnlock handles POST /api/v1/admin/content/{contentID}/schedule
func (h *Handler) ScheduleUnlock(w http.ResponseWriter, r *http.Request) {
	contentID, ok := parseID(w, r, "contentID", "Invalid content ID")
	if !ok {
		return
	}

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "unlock_at is required", nil)
		return
	}

	item, err := h.service.ScheduleUnlock(r.Context(), contentID, req.UnlockAt)
	if err != nil {
		if errors.Is(err, repository.ErrContentNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Content not found", nil)
			return
		}
		h.logger.Error("Failed to schedule unlock", "error", err, "content_id", contentID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to schedule unlock", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"item": toItemResponse(item)})
}

// ClearScheduledUnlock handles DELETE /api/v1/admin/content/{contentID}/schedule
func (h *Handler) ClearScheduledUnlock(w http.ResponseWriter, r *http.Request) {
	contentID, ok := parseID(w, r, "contentID", "Invalid content ID")
	if !ok {
		return
	}

	item, err := h.service.ClearScheduledUnlock(r.Context(), contentID)
	if err != nil {
		if errors.Is(err, repository.ErrContentNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Content not found", nil)
			return
		}
		h.logger.Error("Failed to clear scheduled unlock", "error", err, "content_id", contentID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to clear scheduled unlock", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"item": toItemResponse(item)})
}

// GrantAccess handles PUT /api/v1/admin/users/{userID}/unlocks/{contentID}
func (h *Handler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "userID", "Invalid user ID")
	if !ok {
		return
	}
	contentID, ok := parseID(w, r, "contentID", "Invalid content ID")
	if !ok {
		return
	}

	if err := h.service.GrantAccess(r.Context(), userID, contentID); err != nil {
		writeGrantError(w, h.logger, err, userID, contentID)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"granted": true})
}

// RevokeAccess handles DELETE /api/v1/admin/users/{userID}/unlocks/{contentID}
func (h *Handler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "userID", "Invalid user ID")
	if !ok {
		return
	}
	contentID, ok := parseID(w, r, "contentID", "Invalid content ID")
	if !ok {
		return
	}

	if err := h.service.RevokeAccess(r.Context(), userID, contentID); err != nil {
		writeGrantError(w, h.logger, err, userID, contentID)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"granted": false})
}

// RegisterRoutes registers the member-facing catalog routes. The
// caller mounts these behind the auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/content", func(r chi.Router) {
		r.Get("/", h.Catalog)
		r.Get("/{contentID}", h.GetDetail)
	})
}

// RegisterAdminRoutes registers the rule-editing routes. The caller
// mounts these behind the admin middleware.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/content", func(r chi.Router) {
		r.Post("/", h.CreateItem)
		r.Put("/{contentID}", h.UpdateItem)
		r.Post("/{contentID}/schedule", h.ScheduleUnlock)
		r.Delete("/{contentID}/schedule", h.ClearScheduledUnlock)
	})
	r.Put("/users/{userID}/unlocks/{contentID}", h.GrantAccess)
	r.Delete("/users/{userID}/unlocks/{contentID}", h.RevokeAccess)
}

func decodeItemRequest(w http.ResponseWriter, r *http.Request) (ItemInput, bool) {
	var req ItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid request body", nil)
		return ItemInput{}, false
	}
	if err := validate.Struct(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid content payload", nil)
		return ItemInput{}, false
	}

	return ItemInput{
		Kind:             repository.ContentKind(req.Kind),
		Title:            req.Title,
		Description:      req.Description,
		IsBlocked:        req.IsBlocked,
		UnlockAfterDays:  req.UnlockAfterDays,
		ManualUnlockOnly: req.ManualUnlockOnly,
		UnblockLink:      req.UnblockLink,
	}, true
}

func writeGrantError(w http.ResponseWriter, logger *slog.Logger, err error, userID, contentID uuid.UUID) {
	switch {
	case errors.Is(err, repository.ErrContentNotFound):
		api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Content not found", nil)
	case errors.Is(err, repository.ErrUserNotFound):
		api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "User not found", nil)
	default:
		logger.Error("Failed to change user access", "error", err,
			"user_id", userID, "content_id", contentID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to change access", nil)
	}
}

func toItemResponse(item *repository.ContentItem) ItemResponse {
	resp := ItemResponse{
		ID:               item.ID.String(),
		Kind:             string(item.Kind),
		Title:            item.Title,
		Description:      item.Description,
		IsBlocked:        item.IsBlocked,
		UnlockAfterDays:  item.UnlockAfterDays,
		ManualUnlockOnly: item.ManualUnlockOnly,
		UnblockLink:      item.UnblockLink,
	}
	if item.ScheduledUnlockDate != nil {
		date := item.ScheduledUnlockDate.UTC().Format("2006-01-02T15:04:05Z07:00")
		resp.ScheduledUnlockDate = &date
	}
	return resp
}

func parseID(w http.ResponseWriter, r *http.Request, param, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, message, nil)
		return uuid.Nil, false
	}
	return id, true
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
