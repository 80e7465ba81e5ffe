// Package metrics provides Prometheus metrics for the backend API
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membergate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "membergate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks current in-flight requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "membergate",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

var (
	// LoginsTotal counts login attempts by result
	// (success, invalid_credentials, blocked)
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membergate",
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Total number of login attempts by result",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks the number of currently active sessions
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "membergate",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of currently active sessions",
		},
	)

	// SessionsTerminated counts terminated sessions by initiator
	// (logout, admin)
	SessionsTerminated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membergate",
			Subsystem: "session",
			Name:      "terminated_total",
			Help:      "Total number of terminated sessions by initiator",
		},
		[]string{"initiator"},
	)
)

var (
	// SecurityEventsTotal counts security log entries by action and severity
	SecurityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membergate",
			Subsystem: "security",
			Name:      "events_total",
			Help:      "Total number of security log entries by action and severity",
		},
		[]string{"action", "severity"},
	)
)

var (
	// SchedulerSweepsTotal counts reconciliation sweeps by kind
	// (per_user, scheduled)
	SchedulerSweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membergate",
			Subsystem: "scheduler",
			Name:      "sweeps_total",
			Help:      "Total number of reconciliation sweeps by kind",
		},
		[]string{"kind"},
	)

	// AccessTransitionsTotal counts unlock/lock transitions applied by
	// the scheduler
	AccessTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membergate",
			Subsystem: "scheduler",
			Name:      "access_transitions_total",
			Help:      "Total number of unlock and lock transitions applied",
		},
		[]string{"transition"},
	)

	// NotificationsPublished counts notifications published by type
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "membergate",
			Subsystem: "notification",
			Name:      "published_total",
			Help:      "Total number of notifications published by type",
		},
		[]string{"type"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Middleware returns a chi middleware that records HTTP metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		path := getRoutePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// getRoutePattern returns the route pattern from chi context,
// falling back to the raw path
func getRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
