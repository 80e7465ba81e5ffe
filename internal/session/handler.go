package session

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

// Handler handles HTTP requests for authentication and sessions
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a new session Handler instance
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{manager: manager, logger: logger}
}

// LoginRequest is the login request body
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the token refresh request body
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenResponse carries issued tokens
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SessionResponse is the wire shape of one session
type SessionResponse struct {
	ID              string  `json:"id"`
	IPAddress       string  `json:"ip_address"`
	Device          string  `json:"device"`
	Browser         string  `json:"browser"`
	Location        string  `json:"location"`
	LoginTime       string  `json:"login_time"`
	LastActivity    string  `json:"last_activity"`
	IsActive        bool    `json:"is_active"`
	LogoutTime      *string `json:"logout_time,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
}

// LoginResponse is the login success body
type LoginResponse struct {
	UserID  string          `json:"user_id"`
	Email   string          `json:"email"`
	IsAdmin bool            `json:"is_admin"`
	Session SessionResponse `json:"session"`
	Tokens  TokenResponse   `json:"tokens"`
}

// Login handles POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "email and password are required", nil)
		return
	}

	result, err := h.manager.Login(r.Context(), LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			api.WriteError(w, http.StatusUnauthorized, api.CodeInvalidCredentials, "Invalid email or password", nil)
		case errors.Is(err, ErrAccountBlocked):
			api.WriteError(w, http.StatusForbidden, api.CodeAccountBlocked, "Account is blocked", nil)
		default:
			h.logger.Error("Login failed", "error", err)
			api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Login failed", nil)
		}
		return
	}

	api.WriteSuccess(w, http.StatusOK, LoginResponse{
		UserID:  result.User.ID.String(),
		Email:   result.User.Email,
		IsAdmin: result.User.IsAdmin,
		Session: toSessionResponse(result.Session),
		Tokens: TokenResponse{
			AccessToken:  result.Tokens.AccessToken,
			RefreshToken: result.Tokens.RefreshToken,
			ExpiresIn:    result.Tokens.ExpiresIn,
		},
	})
}

// Refresh handles POST /api/v1/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "refresh_token is required", nil)
		return
	}

	tokens, err := h.manager.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountBlocked):
			api.WriteError(w, http.StatusForbidden, api.CodeAccountBlocked, "Account is blocked", nil)
		case errors.Is(err, ErrInvalidCredentials),
			errors.Is(err, repository.ErrSessionNotFound),
			errors.Is(err, repository.ErrSessionInactive),
			errors.Is(err, repository.ErrUserNotFound):
			api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid or expired refresh token", nil)
		default:
			h.logger.Error("Token refresh failed", "error", err)
			api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Token refresh failed", nil)
		}
		return
	}

	api.WriteSuccess(w, http.StatusOK, TokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	session, err := h.manager.Logout(r.Context(), sessionID, userID, r.RemoteAddr, r.UserAgent())
	if err != nil {
		if errors.Is(err, repository.ErrSessionInactive) || errors.Is(err, repository.ErrSessionNotFound) {
			api.WriteError(w, http.StatusConflict, api.CodeConflict, "Session already terminated", nil)
			return
		}
		h.logger.Error("Logout failed", "error", err, "session_id", sessionID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Logout failed", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, toSessionResponse(session))
}

// Heartbeat handles POST /api/v1/sessions/heartbeat
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	if err := h.manager.Heartbeat(r.Context(), sessionID); err != nil {
		if errors.Is(err, repository.ErrSessionInactive) {
			api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Session is no longer active", nil)
			return
		}
		h.logger.Error("Heartbeat failed", "error", err, "session_id", sessionID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Heartbeat failed", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"alive": true})
}

// ListMine handles GET /api/v1/sessions
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	sessions, err := h.manager.ListUserSessions(r.Context(), userID, activeOnly)
	if err != nil {
		h.logger.Error("Failed to list sessions", "error", err, "user_id", userID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to list sessions", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"sessions": toSessionResponses(sessions)})
}

// ListUserSessions handles GET /api/v1/admin/users/{userID}/sessions
func (h *Handler) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid user ID", nil)
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	sessions, err := h.manager.ListUserSessions(r.Context(), userID, activeOnly)
	if err != nil {
		h.logger.Error("Failed to list sessions", "error", err, "user_id", userID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to list sessions", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"sessions": toSessionResponses(sessions)})
}

// TerminateSession handles DELETE /api/v1/admin/sessions/{sessionID}
func (h *Handler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.requireAdminID(w, r)
	if !ok {
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid session ID", nil)
		return
	}

	session, err := h.manager.Terminate(r.Context(), sessionID, adminID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionInactive) || errors.Is(err, repository.ErrSessionNotFound) {
			api.WriteError(w, http.StatusConflict, api.CodeConflict, "Session already terminated", nil)
			return
		}
		h.logger.Error("Failed to terminate session", "error", err, "session_id", sessionID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to terminate session", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, toSessionResponse(session))
}

// TerminateUserSessions handles DELETE /api/v1/admin/users/{userID}/sessions
func (h *Handler) TerminateUserSessions(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.requireAdminID(w, r)
	if !ok {
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid user ID", nil)
		return
	}

	count, err := h.manager.TerminateAll(r.Context(), userID, adminID)
	if err != nil {
		h.logger.Error("Failed to terminate sessions", "error", err, "user_id", userID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to terminate sessions", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"terminated": count})
}

// BlockUserRequest is the account block request body
type BlockUserRequest struct {
	Reason string `json:"reason"`
}

// BlockUser handles POST /api/v1/admin/users/{userID}/block
func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.requireAdminID(w, r)
	if !ok {
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid user ID", nil)
		return
	}

	var req BlockUserRequest
	if r.Body != nil {
		// body is optional; a bare block carries no reason
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.manager.BlockUser(r.Context(), userID, adminID, req.Reason); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "User not found", nil)
			return
		}
		h.logger.Error("Failed to block user", "error", err, "user_id", userID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to block user", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"blocked": true})
}

// UnblockUser handles POST /api/v1/admin/users/{userID}/unblock
func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.requireAdminID(w, r)
	if !ok {
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid user ID", nil)
		return
	}

	if err := h.manager.UnblockUser(r.Context(), userID, adminID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "User not found", nil)
			return
		}
		h.logger.Error("Failed to unblock user", "error", err, "user_id", userID)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "Failed to unblock user", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"blocked": false})
}

// RegisterAuthRoutes registers the unauthenticated auth endpoints
func (h *Handler) RegisterAuthRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
	})
}

// RegisterSessionRoutes registers the authenticated session endpoints
func (h *Handler) RegisterSessionRoutes(r chi.Router) {
	r.Post("/auth/logout", h.Logout)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.ListMine)
		r.Post("/heartbeat", h.Heartbeat)
	})
}

// RegisterAdminRoutes registers the admin session-management endpoints
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Delete("/sessions/{sessionID}", h.TerminateSession)
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/sessions", h.ListUserSessions)
		r.Delete("/sessions", h.TerminateUserSessions)
		r.Post("/block", h.BlockUser)
		r.Post("/unblock", h.UnblockUser)
	})
}

func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (userID, sessionID uuid.UUID, ok bool) {
	userIDStr, found := appctx.ExtractUserID(r.Context())
	if !found {
		api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return uuid.Nil, uuid.Nil, false
	}
	sessionIDStr, found := appctx.ExtractSessionID(r.Context())
	if !found {
		api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return uuid.Nil, uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid user ID", nil)
		return uuid.Nil, uuid.Nil, false
	}
	sessionID, err = uuid.Parse(sessionIDStr)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid session ID", nil)
		return uuid.Nil, uuid.Nil, false
	}

	return userID, sessionID, true
}

func (h *Handler) requireAdminID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, found := appctx.ExtractUserID(r.Context())
	if !found {
		api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return uuid.Nil, false
	}
	adminID, err := uuid.Parse(userIDStr)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid user ID", nil)
		return uuid.Nil, false
	}
	return adminID, true
}

func toSessionResponse(s *repository.UserSession) SessionResponse {
	resp := SessionResponse{
		ID:           s.ID.String(),
		IPAddress:    s.IPAddress,
		Device:       s.Device,
		Browser:      s.Browser,
		Location:     s.Location,
		LoginTime:    s.LoginTime.UTC().Format("2006-01-02T15:04:05Z07:00"),
		LastActivity: s.LastActivity.UTC().Format("2006-01-02T15:04:05Z07:00"),
		IsActive:     s.IsActive,
	}
	if s.LogoutTime != nil {
		logout := s.LogoutTime.UTC().Format("2006-01-02T15:04:05Z07:00")
		resp.LogoutTime = &logout
	}
	resp.DurationMinutes = s.DurationMinutes
	return resp
}

func toSessionResponses(sessions []*repository.UserSession) []SessionResponse {
	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}
	return out
}
