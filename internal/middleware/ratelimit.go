package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/stellar-payment-gateway/internal/httputil"
)

// RateLimiter implements fixed-window rate limiting per client. Authenticated
// callers are keyed by API key and anonymous callers by remote address.
type RateLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	counters    map[string]*window
	lastCleanup time.Time
	now         func() time.Time
}

type window struct {
	count    int
	resetAt  time.Time
	lastSeen time.Time
}

const (
	cleanupInterval    = 5 * time.Minute
	expiredWindowGrace = 10 * time.Minute
	staleEntryTTL      = 24 * time.Hour
)

// NewRateLimiter creates an in-memory limiter allowing limit requests per
// window for each client.
func NewRateLimiter(limit int, windowDuration time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 120
	}
	if windowDuration <= 0 {
		windowDuration = time.Minute
	}
	return &RateLimiter{
		limit:       limit,
		window:      windowDuration,
		counters:    make(map[string]*window),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow counts one request for key.
// Returns (allowed, remaining, resetAt).
func (rl *RateLimiter) Allow(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	defer rl.cleanupLocked(now)

	w, exists := rl.counters[key]
	if !exists || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(rl.window), lastSeen: now}
		rl.counters[key] = w
		return true, rl.limit - 1, w.resetAt
	}

	w.lastSeen = now
	if w.count >= rl.limit {
		return false, 0, w.resetAt
	}
	w.count++
	return true, rl.limit - w.count, w.resetAt
}

// Exhausted reports whether key has used up its current window, without
// counting a request, and when that window resets.
func (rl *RateLimiter) Exhausted(key string) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, exists := rl.counters[key]
	if !exists || !rl.now().Before(w.resetAt) {
		return false, time.Time{}
	}
	return w.count >= rl.limit, w.resetAt
}

// Forget drops the window of key.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.counters, key)
}

// RateLimitMiddleware returns middleware that enforces per-client limits.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := GetClient(r.Context())
			if key == "" {
				key = clientIPKey(r, "ip")
			}

			allowed, remaining, resetAt := rl.Allow(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				w.Header().Set("Retry-After", retryAfter(resetAt))
				httputil.RespondError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) cleanupLocked(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}

	for key, w := range rl.counters {
		if now.Sub(w.lastSeen) > staleEntryTTL || now.After(w.resetAt.Add(expiredWindowGrace)) {
			delete(rl.counters, key)
		}
	}

	rl.lastCleanup = now
}

func retryAfter(resetAt time.Time) string {
	return strconv.Itoa(int(time.Until(resetAt).Seconds()) + 1)
}

func clientIPKey(r *http.Request, prefix string) string {
	host := r.RemoteAddr
	if parsedHost, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = parsedHost
	}
	if host == "" {
		host = "unknown"
	}
	return prefix + ":" + host
}
