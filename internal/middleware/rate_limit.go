package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/andersonlima/membergate/backend/internal/api"
)

// LoginRateLimiter throttles login attempts per client IP. Brute-force
// protection only; authenticated traffic is not limited here.
type LoginRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rps      rate.Limit
	burst    int
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginRateLimiter creates a limiter allowing attemptsPerMinute
// sustained logins per IP, with a burst of the same size
func NewLoginRateLimiter(attemptsPerMinute int) *LoginRateLimiter {
	if attemptsPerMinute <= 0 {
		attemptsPerMinute = 10
	}
	rl := &LoginRateLimiter{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(float64(attemptsPerMinute) / 60.0),
		burst:    attemptsPerMinute,
	}
	go rl.cleanup()
	return rl
}

// Limit is the middleware entry point
func (rl *LoginRateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			w.Header().Set("Retry-After", "60")
			api.WriteError(w, http.StatusTooManyRequests, api.CodeRateLimited,
				"Too many login attempts. Please try again later.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *LoginRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// cleanup drops limiters idle for over an hour
func (rl *LoginRateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-time.Hour)
		rl.mu.Lock()
		for ip, entry := range rl.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(rl.limiters, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
