// Package ratelimit provides keyed token-bucket limiters built on
// golang.org/x/time/rate. The signing service client takes one bucket per
// remote account; the API router takes one per caller.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"esign-sync/internal/common/errors"
)

type Config struct {
	// PerSecond is the sustained rate per key. Zero or less disables limiting.
	PerSecond float64 `json:"per_second"`
	// Burst is the bucket size. It defaults to PerSecond rounded up.
	Burst int `json:"burst"`
	// IdleTTL drops buckets unused for this long.
	IdleTTL time.Duration `json:"idle_ttl"`
}

// RateLimit describes the state of one key after a check.
type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Limiter struct {
	config  Config
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewLimiter(config Config) *Limiter {
	if config.Burst <= 0 {
		config.Burst = int(math.Ceil(config.PerSecond))
		if config.Burst < 1 {
			config.Burst = 1
		}
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	return &Limiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Enabled reports whether any limit applies.
func (l *Limiter) Enabled() bool {
	return l != nil && l.config.PerSecond > 0
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.config.PerSecond), l.config.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	for k, other := range l.buckets {
		if now.Sub(other.lastSeen) > l.config.IdleTTL {
			delete(l.buckets, k)
		}
	}
	return b.limiter
}

// Wait blocks until key may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if !l.Enabled() {
		return nil
	}
	if err := l.get(key).Wait(ctx); err != nil {
		return errors.TimeoutError(fmt.Sprintf("waiting for rate limit on %s", key))
	}
	return nil
}

// CheckLimit takes a token for key without waiting.
func (l *Limiter) CheckLimit(key string) (*RateLimit, bool) {
	if !l.Enabled() {
		return &RateLimit{Limit: math.MaxInt32, Remaining: math.MaxInt32, ResetTime: l.now()}, true
	}
	lim := l.get(key)
	allowed := lim.Allow()

	remaining := int(lim.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	missing := float64(l.config.Burst) - lim.Tokens()
	reset := l.now().Add(time.Duration(missing / l.config.PerSecond * float64(time.Second)))

	return &RateLimit{Limit: l.config.Burst, Remaining: remaining, ResetTime: reset}, allowed
}

// HTTPMiddleware rejects requests over the limit with 429. Requests for
// which keyFunc returns "" pass through.
func (l *Limiter) HTTPMiddleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			rateLimit, allowed := l.CheckLimit(key)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rateLimit.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", rateLimit.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", rateLimit.ResetTime.Unix()))

			if !allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(1/l.config.PerSecond))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPBasedKey keys on the first forwarded address, falling back to the peer.
func IPBasedKey(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if i := strings.IndexByte(ip, ','); i >= 0 {
		ip = ip[:i]
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = r.Header.Get("X-Real-IP")
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	return fmt.Sprintf("ip:%s", ip)
}
