package engagement

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/api"
	appctx "github.com/andersonlima/membergate/backend/internal/context"
	"github.com/andersonlima/membergate/backend/internal/repository"
)

var validate = validator.New()

// Handler handles HTTP requests for favorites and watch history
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new engagement Handler instance
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// ProgressRequest is the body for recording lesson progress
type ProgressRequest struct {
	LessonID       string `json:"lesson_id" validate:"required,uuid"`
	WatchedMinutes int    `json:"watched_minutes" validate:"min=0"`
}

// FavoriteResponse is the wire shape of one favorite
type FavoriteResponse struct {
	ContentID string `json:"content_id"`
	CreatedAt string `json:"created_at"`
}

// AddFavorite handles PUT /api/v1/favorites/{contentID}
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	contentID, ok := parseContentID(w, r)
	if !ok {
		return
	}

	if err := h.service.AddFavorite(r.Context(), userID, contentID); err != nil {
		if errors.Is(err, repository.ErrContentNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Content not found", nil)
			return
		}
		h.logger.Error("Failed to add favorite", "error", err, "user_id", userID, "content_id", contentID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to add favorite", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"favorited": true})
}

// RemoveFavorite handles DELETE /api/v1/favorites/{contentID}
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	contentID, ok := parseContentID(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveFavorite(r.Context(), userID, contentID); err != nil {
		if errors.Is(err, repository.ErrFavoriteNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Favorite not found", nil)
			return
		}
		h.logger.Error("Failed to remove favorite", "error", err, "user_id", userID, "content_id", contentID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to remove favorite", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"favorited": false})
}

// ListFavorites handles GET /api/v1/favorites
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	favorites, err := h.service.ListFavorites(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list favorites", "error", err, "user_id", userID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to list favorites", nil)
		return
	}

	responses := make([]FavoriteResponse, 0, len(favorites))
	for _, f := range favorites {
		responses = append(responses, FavoriteResponse{
			ContentID: f.ContentID.String(),
			CreatedAt: f.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"favorites": responses})
}

// RecordProgress handles POST /api/v1/content/{contentID}/progress
func (h *Handler) RecordProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	contentID, ok := parseContentID(w, r)
	if !ok {
		return
	}

	var req ProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid progress payload", nil)
		return
	}
	lessonID, err := uuid.Parse(req.LessonID)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid lesson ID", nil)
		return
	}

	progress, err := h.service.RecordProgress(r.Context(), userID, contentID, lessonID, req.WatchedMinutes)
	if err != nil {
		if errors.Is(err, repository.ErrContentNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Content not found", nil)
			return
		}
		h.logger.Error("Failed to record progress", "error", err,
			"user_id", userID, "content_id", contentID, "lesson_id", lessonID)
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Failed to record progress", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"progress": progress})
}

// GetProgress handles GET /api/v1/content/{contentID}/progress
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	contentID, ok := parseContentID(w, r)
	if !ok {
		return
	}

	progress, err := h.service.GetProgress(r.Context(), userID, contentID)
	if err != nil {
		if errors.Is(err, repository.ErrContentNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Content not found", nil)
			return
		}
		h.logger.Error("Failed to get progress", "error", err, "user_id", userID, "content_id", contentID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to get progress", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"progress": progress})
}

// ContinueWatching handles GET /api/v1/continue-watching
func (h *Handler) ContinueWatching(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	items, err := h.service.ContinueWatching(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to build continue-watching list", "error", err, "user_id", userID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to load watch history", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"items": items})
}

// RegisterRoutes registers the engagement routes. The caller mounts
// these behind the auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/favorites", func(r chi.Router) {
		r.Get("/", h.ListFavorites)
		r.Put("/{contentID}", h.AddFavorite)
		r.Delete("/{contentID}", h.RemoveFavorite)
	})
	r.Get("/continue-watching", h.ContinueWatching)
	r.Route("/content/{contentID}/progress", func(r chi.Router) {
		r.Get("/", h.GetProgress)
		r.Post("/", h.RecordProgress)
	})
}

func parseContentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	contentID, err := uuid.Parse(chi.URLParam(r, "contentID"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid content ID", nil)
		return uuid.Nil, false
	}
	return contentID, true
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
