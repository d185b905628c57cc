package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"roomgate/internal/models"
)

// KeyFunc derives the flood shield bucket key of a request.
type KeyFunc func(r *http.Request) string

// RemoteAddrKey keys requests by the TCP peer address without its port.
func RemoteAddrKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// HeaderKey keys requests by a trusted header set by the fronting proxy,
// falling back to the peer address when the header is missing.
func HeaderKey(header string) KeyFunc {
	return func(r *http.Request) string {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v
		}
		return RemoteAddrKey(r)
	}
}

// Middleware returns HTTP middleware that rejects callers whose bucket is
// empty with 429. Health checks are never limited.
func Middleware(limiter Limiter, keyFunc KeyFunc) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = RemoteAddrKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			allowed, info := limiter.Allow(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))

			if !allowed {
				retryAfter := int(math.Ceil(info.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(models.NewErrorResponse("Too many requests", models.ErrorCodeRateLimited))

				slog.Warn("Flood shield rejected request",
					"key", key,
					"path", r.URL.Path,
					"retry_after", retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
