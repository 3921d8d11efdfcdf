package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsim/progress-hub/internal/domain/shared"
)

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "No health checks registered", status.Message)

	c.AddCheck("db", func(context.Context) error { return nil })
	c.AddCheck("cache", func(context.Context) error { return errors.New("down") })
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c.SetTimeout(20 * time.Millisecond)

	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.True(t, status.Checks["db"].Healthy)
	assert.Equal(t, "down", status.Checks["cache"].Message)
	assert.Equal(t, "Some checks failed: cache, slow", status.Message)
}

func TestBearerAuth(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = LearnerIDFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	var authErr error
	auth := NewBearerAuth(StaticTokens{"tok": "learner-1"}, func(w http.ResponseWriter, _ *http.Request, err error) {
		authErr = err
		w.WriteHeader(http.StatusUnauthorized)
	})
	h := auth.Middleware(next)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer tok", http.StatusNoContent},
		{"case insensitive scheme", "bearer tok", http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"unknown", "Bearer other", http.StatusUnauthorized},
		{"wrong scheme", "Basic tok", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, authErr = "", nil
			req := httptest.NewRequest(http.MethodGet, "/progress/summary", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, "learner-1", got)
			} else {
				assert.True(t, shared.IsUnauthorized(authErr))
			}
		})
	}
}

func TestRequestSizeLimit(t *testing.T) {
	h := RequestSizeLimitMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.ContentLength = 10
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         2,
		IdleTTL:           time.Minute,
		Now:               func() time.Time { return now },
	})

	ok, _ := rl.Allow("a")
	assert.True(t, ok)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)
	ok, wait := rl.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = rl.Allow("b")
	assert.True(t, ok, "keys have separate buckets")

	now = now.Add(1500 * time.Millisecond)
	ok, _ = rl.Allow("a")
	assert.True(t, ok, "one token refilled")
	ok, _ = rl.Allow("a")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = rl.Allow("c")
	assert.True(t, ok)
	rl.mu.Lock()
	_, kept := rl.buckets["a"]
	rl.mu.Unlock()
	assert.False(t, kept, "idle buckets are swept")
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 60, BurstSize: 1})
	var gotErr error
	h := rl.Middleware(func(w http.ResponseWriter, _ *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithLearnerID(req.Context(), "learner-1"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.ErrorIs(t, gotErr, shared.ErrRateLimited)
}
