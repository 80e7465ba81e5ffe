package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/auth"
	appctx "github.com/andersonlima/membergate/backend/internal/context"
)

func newTestTokenService() *auth.TokenService {
	return auth.NewTokenService(auth.TokenServiceConfig{
		AccessSecret:       "test-access-secret-key-32-chars!",
		RefreshSecret:      "test-refresh-secret-key-32-char!",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	})
}

func TestAuthenticateInjectsIdentity(t *testing.T) {
	tokens := newTestTokenService()
	userID := uuid.New().String()
	sessionID := uuid.New().String()
	token, err := tokens.GenerateAccessToken(userID, "member@example.com", sessionID, true)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	var gotUserID, gotEmail, gotSessionID string
	var gotAdmin bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = appctx.ExtractUserID(r.Context())
		gotEmail, _ = appctx.ExtractEmail(r.Context())
		gotSessionID, _ = appctx.ExtractSessionID(r.Context())
		gotAdmin = appctx.IsAdmin(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	m := NewAuthMiddleware(tokens)
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.Authenticate(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotUserID != userID || gotEmail != "member@example.com" || gotSessionID != sessionID {
		t.Errorf("context identity = (%q, %q, %q)", gotUserID, gotEmail, gotSessionID)
	}
	if !gotAdmin {
		t.Error("admin flag lost")
	}
}

func TestAuthenticateRejections(t *testing.T) {
	tokens := newTestTokenService()
	refresh, err := tokens.GenerateRefreshToken(uuid.New().String(), uuid.New().String())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
		{"refresh token on access endpoint", "Bearer " + refresh},
	}

	m := NewAuthMiddleware(tokens)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached despite invalid auth")
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			m.Authenticate(inner).ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tokens := newTestTokenService()
	m := NewAuthMiddleware(tokens)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	chain := m.Authenticate(m.RequireAdmin(inner))

	memberToken, _ := tokens.GenerateAccessToken(uuid.New().String(), "m@example.com", uuid.New().String(), false)
	req := httptest.NewRequest(http.MethodGet, "/admin/content", nil)
	req.Header.Set("Authorization", "Bearer "+memberToken)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("member status = %d, want 403", rec.Code)
	}

	adminToken, _ := tokens.GenerateAccessToken(uuid.New().String(), "a@example.com", uuid.New().String(), true)
	req = httptest.NewRequest(http.MethodGet, "/admin/content", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("admin status = %d, want 200", rec.Code)
	}
}

func TestLoginRateLimiter(t *testing.T) {
	rl := NewLoginRateLimiter(3)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := rl.Limit(inner)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.10:54321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("burst overflow status = %d, want 429", rec.Code)
	}

	// a different IP has its own bucket
	req = httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "198.51.100.7:1000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other ip status = %d, want 200", rec.Code)
	}
}
