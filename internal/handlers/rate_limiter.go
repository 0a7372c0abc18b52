package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/doug-pr/API-Pizzaria/internal/platform/httpx"
)

type rateLimiter interface {
	Allow(key string) bool
}

// windowLimiter allows limit hits per key inside a fixed window.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	buckets map[string]windowState
}

type windowState struct {
	hits  int
	reset time.Time
}

// newWindowLimiter returns nil when limit or window is not positive, which disables limiting.
func newWindowLimiter(limit int, d time.Duration, clock func() time.Time) *windowLimiter {
	if limit <= 0 || d <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  d,
		clock:   clock,
		buckets: make(map[string]windowState),
	}
}

func (l *windowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok || !now.Before(bucket.reset) {
		l.buckets[key] = windowState{hits: 1, reset: now.Add(l.window)}
		l.evictLocked(now)
		return true
	}
	if bucket.hits >= l.limit {
		return false
	}
	bucket.hits++
	l.buckets[key] = bucket
	return true
}

func (l *windowLimiter) evictLocked(now time.Time) {
	for key, bucket := range l.buckets {
		if !now.Before(bucket.reset) {
			delete(l.buckets, key)
		}
	}
}

// limitByClientIP rejects requests once the client address exhausts its window.
// RemoteAddr is expected to be normalised by middleware.RealIP.
func limitByClientIP(limiter rateLimiter, retryAfter time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				}
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many login attempts; try again later", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
