package handlers

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/skillsim/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// Per-learner token bucket. Buckets idle for longer than IdleTTL are
// dropped on the next sweep.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig configures the limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained refill rate per key.
	RequestsPerMinute int

	// BurstSize is the bucket capacity. Defaults to RequestsPerMinute/6.
	BurstSize int

	// IdleTTL is how long an untouched bucket is kept.
	IdleTTL time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// RateLimiter throttles requests per key.
type RateLimiter struct {
	config    RateLimitConfig
	rate      float64 // tokens per second
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	lastSweep time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a limiter.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.BurstSize <= 0 {
		config.BurstSize = max(1, config.RequestsPerMinute/6)
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RateLimiter{
		config:    config,
		rate:      float64(config.RequestsPerMinute) / 60,
		buckets:   make(map[string]*tokenBucket),
		lastSweep: config.Now(),
	}
}

// Allow takes a token for key. When none is left it reports how long until
// the next one.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := rl.config.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > rl.config.IdleTTL {
		rl.sweep(now)
	}

	burst := float64(rl.config.BurstSize)
	b, ok := rl.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: burst, lastRefill: now}
		rl.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(burst, b.tokens+elapsed*rl.rate)
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / rl.rate * float64(time.Second))
	return false, wait
}

func (rl *RateLimiter) sweep(now time.Time) {
	for key, b := range rl.buckets {
		if now.Sub(b.lastRefill) > rl.config.IdleTTL {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}

// Middleware rejects throttled requests with 429 and a Retry-After header.
// The key is the authenticated learner, or the remote address before auth.
func (rl *RateLimiter) Middleware(onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := LearnerIDFrom(r.Context())
			if !ok {
				key = r.RemoteAddr
			}
			allowed, wait := rl.Allow(key)
			if !allowed {
				seconds := int(math.Ceil(wait.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(1, seconds)))
				onError(w, r, shared.ErrTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
