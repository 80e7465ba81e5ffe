package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/access"
	"github.com/andersonlima/membergate/backend/internal/api"
	appctx "github.com/andersonlima/membergate/backend/internal/context"
	"github.com/andersonlima/membergate/backend/internal/repository"
)

var validate = validator.New()

// ObjectStore combines the storage operations the handlers need
type ObjectStore interface {
	Presigner
	DeleteObject(ctx context.Context, key string) error
}

// MaterialHandler serves presigned download links for lesson
// materials. Access to the owning content item is checked first; a
// locked item never leaks its material URLs.
type MaterialHandler struct {
	content repository.ContentRepository
	users   repository.UserRepository
	store   ObjectStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewMaterialHandler creates a new MaterialHandler instance
func NewMaterialHandler(
	content repository.ContentRepository,
	users repository.UserRepository,
	store ObjectStore,
	logger *slog.Logger,
) *MaterialHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MaterialHandler{
		content: content,
		users:   users,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// MaterialResponse is the wire shape of one downloadable material
type MaterialResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	SizeBytes   int64  `json:"size_bytes"`
	DownloadURL string `json:"download_url"`
	ExpiresIn   int    `json:"expires_in"`
}

// ListMaterials handles GET /api/v1/content/{contentID}/lessons/{lessonID}/materials
func (h *MaterialHandler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	userIDStr, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid user ID", nil)
		return
	}

	contentID, err := uuid.Parse(chi.URLParam(r, "contentID"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid content ID", nil)
		return
	}
	lessonID, err := uuid.Parse(chi.URLParam(r, "lessonID"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid lesson ID", nil)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return
	}

	item, err := h.content.GetByID(r.Context(), contentID)
	if err != nil {
		if errors.Is(err, repository.ErrContentNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Content not found", nil)
			return
		}
		h.logger.Error("Failed to load content item", "error", err, "content_id", contentID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to load content", nil)
		return
	}

	if decision := access.Evaluate(item, user, h.now().UTC()); !decision.Accessible {
		api.WriteError(w, http.StatusForbidden, api.CodeContentLocked, "This content is locked", nil)
		return
	}

	// the lesson must belong to the checked content item
	lessons, err := h.content.ListLessons(r.Context(), contentID)
	if err != nil {
		h.logger.Error("Failed to list lessons", "error", err, "content_id", contentID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to load lesson", nil)
		return
	}
	found := false
	for _, lesson := range lessons {
		if lesson.ID == lessonID {
			found = true
			break
		}
	}
	if !found {
		api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Lesson not found", nil)
		return
	}

	materials, err := h.content.ListLessonMaterials(r.Context(), lessonID)
	if err != nil {
		h.logger.Error("Failed to list lesson materials", "error", err, "lesson_id", lessonID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to load materials", nil)
		return
	}

	responses := make([]MaterialResponse, 0, len(materials))
	for _, material := range materials {
		url, expiry, err := h.store.PresignDownload(r.Context(), material.StorageKey)
		if err != nil {
			h.logger.Error("Failed to presign material download", "error", err,
				"material_id", material.ID, "lesson_id", lessonID)
			continue
		}
		responses = append(responses, MaterialResponse{
			ID:          material.ID.String(),
			Title:       material.Title,
			SizeBytes:   material.SizeBytes,
			DownloadURL: url,
			ExpiresIn:   int(expiry.Seconds()),
		})
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"materials": responses})
}

// MaterialRequest is the body for registering an uploaded material
type MaterialRequest struct {
	Title      string `json:"title" validate:"required,min=1,max=200"`
	StorageKey string `json:"storage_key" validate:"required"`
	SizeBytes  int64  `json:"size_bytes" validate:"min=0"`
}

// AddMaterial handles POST /api/v1/admin/content/{contentID}/lessons/{lessonID}/materials
func (h *MaterialHandler) AddMaterial(w http.ResponseWriter, r *http.Request) {
	lessonID, ok := h.requireLesson(w, r)
	if !ok {
		return
	}

	var req MaterialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Validation failed", nil)
		return
	}

	material := &repository.LessonMaterial{
		LessonID:   lessonID,
		Title:      req.Title,
		StorageKey: req.StorageKey,
		SizeBytes:  req.SizeBytes,
	}
	if err := h.content.AddLessonMaterial(r.Context(), material); err != nil {
		h.logger.Error("Failed to add lesson material", "error", err, "lesson_id", lessonID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to add material", nil)
		return
	}

	api.WriteSuccess(w, http.StatusCreated, map[string]interface{}{
		"id":          material.ID.String(),
		"title":       material.Title,
		"storage_key": material.StorageKey,
		"size_bytes":  material.SizeBytes,
	})
}

// DeleteMaterial handles DELETE /api/v1/admin/content/{contentID}/lessons/{lessonID}/materials/{materialID}.
// The database row is removed first; a failure deleting the stored
// object is logged and swallowed, the row is already gone.
func (h *MaterialHandler) DeleteMaterial(w http.ResponseWriter, r *http.Request) {
	lessonID, ok := h.requireLesson(w, r)
	if !ok {
		return
	}
	materialID, err := uuid.Parse(chi.URLParam(r, "materialID"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid material ID", nil)
		return
	}

	storageKey, err := h.content.DeleteLessonMaterial(r.Context(), lessonID, materialID)
	if err != nil {
		if errors.Is(err, repository.ErrMaterialNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Material not found", nil)
			return
		}
		h.logger.Error("Failed to delete lesson material", "error", err, "material_id", materialID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to delete material", nil)
		return
	}

	if err := h.store.DeleteObject(r.Context(), storageKey); err != nil {
		h.logger.Warn("Failed to delete stored object for removed material",
			"error", err, "storage_key", storageKey, "material_id", materialID)
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"deleted": true})
}

func (h *MaterialHandler) requireLesson(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	lessonID, err := uuid.Parse(chi.URLParam(r, "lessonID"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid lesson ID", nil)
		return uuid.Nil, false
	}
	return lessonID, true
}

// RegisterRoutes registers the material routes. The caller mounts
// these behind the auth middleware.
func (h *MaterialHandler) RegisterRoutes(r chi.Router) {
	r.Get("/content/{contentID}/lessons/{lessonID}/materials", h.ListMaterials)
}

// RegisterAdminRoutes registers the material management routes,
// mounted behind the admin middleware
func (h *MaterialHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/content/{contentID}/lessons/{lessonID}/materials", h.AddMaterial)
	r.Delete("/content/{contentID}/lessons/{lessonID}/materials/{materialID}", h.DeleteMaterial)
}
