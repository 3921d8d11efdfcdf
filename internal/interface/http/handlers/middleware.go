package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/skillsim/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// LearnerResolver maps a session credential to a learner ID. The real
// deployment plugs in its auth collaborator here.
type LearnerResolver interface {
	ResolveLearner(ctx context.Context, token string) (string, error)
}

// StaticTokens is a fixed token to learner table.
type StaticTokens map[string]string

// ResolveLearner implements LearnerResolver.
func (t StaticTokens) ResolveLearner(_ context.Context, token string) (string, error) {
	if id, ok := t[token]; ok && id != "" {
		return id, nil
	}
	return "", shared.ErrMissingCredential
}

// ErrorWriter renders a middleware failure in the API's envelope.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// BearerAuth authenticates requests by their bearer token.
type BearerAuth struct {
	mu       sync.RWMutex
	resolver LearnerResolver
	onError  ErrorWriter
}

// NewBearerAuth creates an authenticator.
func NewBearerAuth(resolver LearnerResolver, onError ErrorWriter) *BearerAuth {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}
	return &BearerAuth{resolver: resolver, onError: onError}
}

// SetResolver swaps the resolver at runtime.
func (a *BearerAuth) SetResolver(resolver LearnerResolver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resolver = resolver
}

// Middleware rejects requests without a resolvable bearer token.
func (a *BearerAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			a.onError(w, r, shared.ErrMissingCredential)
			return
		}

		a.mu.RLock()
		resolver := a.resolver
		a.mu.RUnlock()

		learnerID, err := resolver.ResolveLearner(r.Context(), token)
		if err != nil {
			a.onError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithLearnerID(r.Context(), learnerID)))
	})
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyLearnerID contextKey = "learner_id"

// WithLearnerID stores the authenticated learner in ctx.
func WithLearnerID(ctx context.Context, learnerID string) context.Context {
	return context.WithValue(ctx, contextKeyLearnerID, learnerID)
}

// LearnerIDFrom returns the authenticated learner of the request.
func LearnerIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKeyLearnerID).(string)
	return id, ok && id != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HYGIENE
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// NoCacheMiddleware prevents caching of learner data.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
