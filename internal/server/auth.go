// Package server provides the HTTP API server, middleware, and handlers for
// the reply qualification service.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/shamanic-technologies/reply-qualification-service/internal/requestctx"
)

// AuthMiddleware validates the X-API-Key header against the configured
// service keys and requires x-org-id and x-user-id identity headers.
// apiKeys maps key -> default source-service name; the x-source-service
// header overrides the mapped name when present.
func AuthMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Missing X-API-Key header")
				return
			}
			var sourceService string
			var matched bool
			for k, svc := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					sourceService = svc
					matched = true
					break
				}
			}
			if !matched {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid API key")
				return
			}

			orgID := r.Header.Get("x-org-id")
			if orgID == "" {
				writeError(w, http.StatusBadRequest, "invalid_request", "Missing x-org-id header")
				return
			}
			userID := r.Header.Get("x-user-id")
			if userID == "" {
				writeError(w, http.StatusBadRequest, "invalid_request", "Missing x-user-id header")
				return
			}
			if hdr := r.Header.Get("x-source-service"); hdr != "" {
				sourceService = hdr
			}

			r = r.WithContext(requestctx.SetIdentity(r.Context(), orgID, userID, sourceService))
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter enforces per-org request rates using token buckets.
type RateLimiter struct {
	mu     sync.Mutex
	orgs   map[string]*rate.Limiter
	perOrg rate.Limit
	burst  int
}

// NewRateLimiter creates a limiter allowing perOrgRPM requests per minute
// per organization.
func NewRateLimiter(perOrgRPM int) *RateLimiter {
	burst := perOrgRPM
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		orgs:   make(map[string]*rate.Limiter),
		perOrg: rate.Limit(float64(perOrgRPM) / 60.0),
		burst:  burst,
	}
}

// Allow reports whether a request for the given org may proceed.
func (rl *RateLimiter) Allow(orgID string) bool {
	rl.mu.Lock()
	limiter, ok := rl.orgs[orgID]
	if !ok {
		limiter = rate.NewLimiter(rl.perOrg, rl.burst)
		rl.orgs[orgID] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}

// RateLimitMiddleware returns 429 when the caller's org exceeds its rate.
// A nil limiter disables limiting.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID := requestctx.OrgID(r.Context())
			if orgID != "" && !rl.Allow(orgID) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests for organization")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware sets CORS headers. allowedOrigins can be ["*"] for any.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" {
				for _, o := range allowedOrigins {
					if o == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						break
					}
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-API-Key, x-org-id, x-user-id, x-source-service")
			w.Header().Set("Access-Control-Max-Age", "300")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
