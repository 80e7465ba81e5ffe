package security

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/api"
	"github.com/andersonlima/membergate/backend/internal/repository"
)

// Handler handles HTTP requests for the admin security endpoints
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new security Handler instance
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// SecurityLogEntryResponse is the wire shape of one audit entry
type SecurityLogEntryResponse struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Action    string  `json:"action"`
	IPAddress string  `json:"ip_address"`
	UserAgent string  `json:"user_agent"`
	Timestamp string  `json:"timestamp"`
	Details   string  `json:"details,omitempty"`
	Severity  string  `json:"severity"`
	AdminID   *string `json:"admin_id,omitempty"`
}

// ListLogsResponse wraps a page of audit entries
type ListLogsResponse struct {
	Entries    []SecurityLogEntryResponse `json:"entries"`
	Pagination api.PaginationInfo         `json:"pagination"`
}

// ListLogs handles GET /api/v1/admin/security/logs
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	filter := repository.SecurityLogFilter{Page: 1, Limit: 50}

	q := r.URL.Query()
	if userIDStr := q.Get("user_id"); userIDStr != "" {
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid user_id filter", nil)
			return
		}
		filter.UserID = &userID
	}
	if actionStr := q.Get("action"); actionStr != "" {
		action := repository.SecurityAction(actionStr)
		filter.Action = &action
	}
	if severityStr := q.Get("severity"); severityStr != "" {
		severity := repository.Severity(severityStr)
		filter.Severity = &severity
	}
	if pageStr := q.Get("page"); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil && page > 0 {
			filter.Page = page
		}
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	entries, totalCount, err := h.service.ListLogs(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list security log", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to list security log", nil)
		return
	}

	entryResponses := make([]SecurityLogEntryResponse, 0, len(entries))
	for _, e := range entries {
		entryResponses = append(entryResponses, toLogEntryResponse(e))
	}

	api.WriteSuccess(w, http.StatusOK, ListLogsResponse{
		Entries: entryResponses,
		Pagination: api.PaginationInfo{
			CurrentPage: filter.Page,
			PerPage:     filter.Limit,
			TotalPages:  api.CalculateTotalPages(totalCount, filter.Limit),
			TotalCount:  totalCount,
		},
	})
}

// AssessUser handles GET /api/v1/admin/security/risk/{userID}
func (h *Handler) AssessUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid user ID", nil)
		return
	}

	assessment, err := h.service.AssessUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "User not found", nil)
			return
		}
		h.logger.Error("Failed to assess user risk", "error", err, "user_id", userID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to assess user risk", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, assessment)
}

// AssessAll handles GET /api/v1/admin/security/risk
func (h *Handler) AssessAll(w http.ResponseWriter, r *http.Request) {
	assessments, err := h.service.AssessAll(r.Context())
	if err != nil {
		h.logger.Error("Failed to assess user risks", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to assess user risks", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"assessments": assessments})
}

// RegisterRoutes registers the admin security routes. The caller is
// expected to mount these behind the admin-only middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/security", func(r chi.Router) {
		r.Get("/logs", h.ListLogs)
		r.Get("/risk", h.AssessAll)
		r.Get("/risk/{userID}", h.AssessUser)
	})
}

func toLogEntryResponse(e repository.SecurityLogEntry) SecurityLogEntryResponse {
	resp := SecurityLogEntryResponse{
		ID:        e.ID.String(),
		UserID:    e.UserID.String(),
		Action:    string(e.Action),
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		Timestamp: e.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Details:   e.Details,
		Severity:  string(e.Severity),
	}
	if e.AdminID != nil {
		adminID := e.AdminID.String()
		resp.AdminID = &adminID
	}
	return resp
}
