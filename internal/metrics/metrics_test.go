package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	HTTPRequestsTotal.Reset()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/v1/content/{contentID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/content/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	// labeled by route pattern, not the raw path
	count := testutil.ToFloat64(
		HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/content/{contentID}", "200"))
	if count != 1 {
		t.Errorf("requests_total = %v, want 1", count)
	}
}

func TestMiddlewareCapturesErrorStatus(t *testing.T) {
	HTTPRequestsTotal.Reset()

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	req := httptest.NewRequest(http.MethodGet, "/locked", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	count := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/locked", "403"))
	if count != 1 {
		t.Errorf("requests_total = %v, want 1", count)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	LoginsTotal.WithLabelValues("success").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
