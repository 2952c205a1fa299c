package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/ticketauth/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimit describes a token bucket: Requests per Window, with up to Burst
// requests allowed back to back.
type RateLimit struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	Burst    int           `mapstructure:"burst"`
}

// Enabled reports whether the limit should be enforced.
func (c RateLimit) Enabled() bool {
	return c.Requests > 0 && c.Window > 0
}

var (
	// LoginLimit guards credential exchange endpoints.
	LoginLimit = RateLimit{Requests: 10, Window: time.Minute, Burst: 5}

	// PublicLimit guards read-only discovery endpoints.
	PublicLimit = RateLimit{Requests: 600, Window: time.Minute, Burst: 100}
)

// KeyExtractor returns the bucket key for a request. An empty key bypasses
// limiting.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor keys on the client IP. Forwarding headers are honoured
// only when trustProxy is set.
func IPKeyExtractor(trustProxy bool) KeyExtractor {
	return func(r *http.Request) string {
		if trustProxy {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
			if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
				return xri
			}
		}

		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return ip
	}
}

// CompositeKeyExtractor joins the non-empty keys of extractors with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, extract := range extractors {
			if key := extract(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// Limiter holds one token bucket per key.
type Limiter struct {
	cfg   RateLimit
	limit rate.Limit

	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	lastSeen map[string]time.Time
}

// NewLimiter returns a Limiter enforcing cfg.
func NewLimiter(cfg RateLimit) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Requests
	}
	return &Limiter{
		cfg:      cfg,
		limit:    rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		buckets:  make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
}

// Allow consumes a token for key. When the bucket is empty it returns false
// and the wait until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.cfg.Burst)
		l.buckets[key] = b
	}
	now := time.Now()
	l.lastSeen[key] = now
	l.mu.Unlock()

	if b.AllowN(now, 1) {
		return true, 0
	}

	r := b.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay
}

// Sweep drops buckets idle for longer than idle and returns how many were
// removed.
func (l *Limiter) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, seen := range l.lastSeen {
		if seen.Before(cutoff) {
			delete(l.lastSeen, key)
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimitMiddleware rejects requests with 429 once the bucket for their
// key is empty.
func RateLimitMiddleware(l *Limiter, keyFn KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		if l == nil || !l.cfg.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, delay := l.Allow(key)
			if !ok {
				retryAfter := max(int(delay.Round(time.Second).Seconds()), 1)

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Requests))
				w.Header().Set("X-RateLimit-Window", l.cfg.Window.String())

				slogx.FromContext(r.Context()).Warn("rate limit exceeded",
					"key", key,
					"path", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
