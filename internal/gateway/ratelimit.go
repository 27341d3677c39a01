package gateway

import (
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimitMiddleware guards an expensive endpoint (registration, which
// triggers a Docker image build) with a single shared token bucket rather
// than trusting callers to self-limit. one limiter for the whole process,
// not per-client, since a single build pipeline can only run so many builds
// concurrently regardless of who is asking.
func rateLimitMiddleware(limiter *rate.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.Warn("registration rate limit exceeded", "remote_addr", r.RemoteAddr)
				writeError(w, http.StatusTooManyRequests, "too many registration requests, slow down", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
