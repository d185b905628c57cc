package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"roomgate/internal/models"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const requestIDHeader = "X-Request-ID"

type contextKey string

const apiKeyContextKey contextKey = "api_key"

// statusRecorder captures the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware assigns a request ID, echoing the caller's when present,
// and logs every request once it has been served.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if r.URL.Path == "/health" {
			level = slog.LevelDebug
		}
		slog.Log(r.Context(), level, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"request_id", requestID)
	})
}

// recoveryMiddleware handles panics
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("Panic recovered", "error", err, "path", r.URL.Path)
				writeJSONError(w, http.StatusInternalServerError, "Internal server error", models.ErrorCodeInternalError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireAdmin authenticates the Bearer token against the configured keys
// and requires the admin permission.
func requireAdmin(keys []models.APIKey) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, http.StatusUnauthorized, "Authorization required", models.ErrorCodeUnauthorized)
				return
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				writeJSONError(w, http.StatusUnauthorized, "Invalid authorization format", models.ErrorCodeUnauthorized)
				return
			}

			apiKey, ok := models.FindAPIKey(keys, authHeader[len(prefix):])
			if !ok || !apiKey.Enabled {
				slog.Warn("Rejected API key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				writeJSONError(w, http.StatusUnauthorized, "Invalid API key", models.ErrorCodeUnauthorized)
				return
			}

			if !apiKey.HasPermission(models.PermissionAdmin) {
				slog.Warn("Insufficient permissions", "api_key", apiKey.Name, "path", r.URL.Path)
				writeJSONError(w, http.StatusForbidden, "Insufficient permissions for this operation", models.ErrorCodeForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// apiKeyName returns the name of the authenticated key, for audit logging.
func apiKeyName(r *http.Request) string {
	if apiKey, ok := r.Context().Value(apiKeyContextKey).(*models.APIKey); ok && apiKey != nil {
		return apiKey.Name
	}
	return "anonymous"
}

func writeJSONError(w http.ResponseWriter, statusCode int, message, code string) {
	errorResp := models.NewErrorResponse(message, code)
	errorResp.RequestID = w.Header().Get(requestIDHeader)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResp)
}
