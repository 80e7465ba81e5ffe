package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"golang.org/x/time/rate"
)

// UnknownLocation is recorded when the origin cannot be resolved.
const UnknownLocation = "Unknown"

// GeoClient resolves a client IP to a coarse display location.
type GeoClient interface {
	// Locate returns a "City, Country" label for the IP. It never
	// fails the caller: resolution problems yield UnknownLocation.
	Locate(ctx context.Context, ip string) string
}

// HTTPGeoClient queries an external geolocation endpoint. The HTTP
// client is SSRF-hardened and calls are throttled with a token bucket
// so a login burst cannot exhaust the provider quota.
type HTTPGeoClient struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// HTTPGeoClientConfig holds configuration for HTTPGeoClient
type HTTPGeoClientConfig struct {
	Endpoint       string
	Timeout        time.Duration
	RequestsPerMin int
}

// NewHTTPGeoClient creates a new HTTPGeoClient instance
func NewHTTPGeoClient(cfg HTTPGeoClientConfig, logger *slog.Logger) *HTTPGeoClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 45
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(cfg.Timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return &HTTPGeoClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   safeurl.Client(config).Client,
		limiter:  rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMin)/60.0), cfg.RequestsPerMin),
		logger:   logger,
	}
}

type geoResponse struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Locate resolves the IP via the configured endpoint. Private and
// loopback origins, limiter exhaustion, and provider errors all
// resolve to UnknownLocation.
func (c *HTTPGeoClient) Locate(ctx context.Context, ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return UnknownLocation
	}

	if c.endpoint == "" {
		return UnknownLocation
	}

	if !c.limiter.Allow() {
		c.logger.Warn("Geolocation lookup throttled", "ip", ip)
		return UnknownLocation
	}

	url := fmt.Sprintf("%s/%s", c.endpoint, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Warn("Failed to build geolocation request", "error", err)
		return UnknownLocation
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Geolocation lookup failed", "error", err, "ip", ip)
		return UnknownLocation
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Geolocation provider returned non-OK status", "status", resp.StatusCode, "ip", ip)
		return UnknownLocation
	}

	var geo geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&geo); err != nil {
		c.logger.Warn("Failed to decode geolocation response", "error", err, "ip", ip)
		return UnknownLocation
	}

	switch {
	case geo.City != "" && geo.Country != "":
		return geo.City + ", " + geo.Country
	case geo.Country != "":
		return geo.Country
	default:
		return UnknownLocation
	}
}

// StaticGeoClient always returns the same location. Used in tests and
// when no geolocation endpoint is configured.
type StaticGeoClient struct {
	Location string
}

// Locate returns the configured location
func (c *StaticGeoClient) Locate(ctx context.Context, ip string) string {
	if c.Location == "" {
		return UnknownLocation
	}
	return c.Location
}
