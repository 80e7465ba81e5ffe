package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/andersonlima/membergate/backend/internal/api"
	"github.com/andersonlima/membergate/backend/internal/auth"
	appctx "github.com/andersonlima/membergate/backend/internal/context"
)

// AuthMiddleware handles JWT authentication for protected routes
type AuthMiddleware struct {
	tokenService *auth.TokenService
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(tokenService *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokenService: tokenService}
}

// Authenticate validates the bearer token and injects the caller's
// identity (user id, email, session id, admin flag) into the context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Authorization header is required", nil)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid authorization header format", nil)
			return
		}

		claims, err := m.tokenService.ValidateAccessToken(parts[1])
		if err != nil {
			api.WriteError(w, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), appctx.UserIDKey, claims.UserID())
		ctx = context.WithValue(ctx, appctx.EmailKey, claims.Email)
		ctx = context.WithValue(ctx, appctx.SessionIDKey, claims.SessionID)
		ctx = context.WithValue(ctx, appctx.IsAdminKey, claims.IsAdmin)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects callers whose token does not carry the admin
// flag. It must be mounted inside Authenticate.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !appctx.IsAdmin(r.Context()) {
			api.WriteError(w, http.StatusForbidden, api.CodeAccessDenied, "Administrator access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
