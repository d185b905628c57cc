package api

import (
	"net/http"
	"roomgate/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" && r.URL.Path != "/metrics"
			}),
		))
	}
}

// WithRateLimiter adds flood shield middleware to the router.
func WithRateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(r *mux.Router) {
		r.Use(middleware)
	}
}

// SetupRoutes configures the HTTP routes for the coordinator API
func SetupRoutes(handlers *Handlers, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	for _, opt := range opts {
		opt(router)
	}

	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1/limiter").Subrouter()

	admin := requireAdmin(handlers.apiKeys)
	v1.Handle("/domains", admin(http.HandlerFunc(handlers.ListDomains))).Methods(http.MethodGet)
	v1.Handle("/{domain}/"+ActionResetRateLimit, admin(http.HandlerFunc(handlers.ResetRateLimit))).Methods(http.MethodPost)

	// Every method reaches the dispatcher; write intent is checked per action.
	v1.HandleFunc("/{domain}/{action}", handlers.Dispatch)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Not found", models.ErrorCodeNotFound)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed", models.ErrorCodeMethodNotAllowed)
	})

	return router
}
