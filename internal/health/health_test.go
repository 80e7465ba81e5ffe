package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	running bool
}

func (s *stubChecker) IsRunning() bool { return s.running }

func TestHealthDegradedWithoutDatabase(t *testing.T) {
	h := NewHandler(Config{Scheduler: &stubChecker{running: true}, Version: "test"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Services["database"].Status != "down" {
		t.Errorf("database status = %q, want down", resp.Services["database"].Status)
	}
	if resp.Services["scheduler"].Status != "up" {
		t.Errorf("scheduler status = %q, want up", resp.Services["scheduler"].Status)
	}
}

func TestHealthReportsStoppedScheduler(t *testing.T) {
	h := NewHandler(Config{Scheduler: &stubChecker{running: false}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Services["scheduler"].Status != "down" {
		t.Errorf("scheduler status = %q, want down", resp.Services["scheduler"].Status)
	}
}

func TestReadinessHonorsSetReady(t *testing.T) {
	h := NewHandler(Config{})
	h.SetReady(false)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	h.Readiness(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready {
		t.Error("ready = true, want false")
	}
}

func TestLivenessAlwaysOK(t *testing.T) {
	h := NewHandler(Config{})

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	rec := httptest.NewRecorder()
	h.Liveness(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var resp LivenessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Alive {
		t.Error("alive = false, want true")
	}
}
