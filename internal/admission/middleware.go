package admission

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"roomgate/internal/models"
	"strconv"
)

// RetryAfterSeconds is the fixed Retry-After value sent with every denial.
const RetryAfterSeconds = 60

// DecisionRecorder receives the outcome of every admission check.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, check string, outcome string)
}

// Decision outcomes passed to a DecisionRecorder.
const (
	OutcomeAllowed    = "allowed"
	OutcomeDenied     = "denied"
	OutcomeRejected   = "rejected"
	OutcomeError      = "error"
	OutcomeFailedOpen = "failed_open"
)

type guardConfig struct {
	failOpen bool
	recorder DecisionRecorder
	logger   *slog.Logger
}

// GuardOption configures admission middleware.
type GuardOption func(*guardConfig)

// WithFailOpen admits requests when the limiter cannot answer. The default
// is to fail closed with 503.
func WithFailOpen(failOpen bool) GuardOption {
	return func(c *guardConfig) {
		c.failOpen = failOpen
	}
}

// WithDecisionRecorder reports every decision to recorder.
func WithDecisionRecorder(recorder DecisionRecorder) GuardOption {
	return func(c *guardConfig) {
		c.recorder = recorder
	}
}

// WithGuardLogger sets the logger used for denials and failures.
func WithGuardLogger(logger *slog.Logger) GuardOption {
	return func(c *guardConfig) {
		c.logger = logger
	}
}

// Guard returns middleware that runs check for the caller before the wrapped
// handler. A denied caller gets 429 with Retry-After and the handler is not
// invoked; an admitted caller reaches the handler unchanged.
func Guard(name string, check CheckFunc, resolver *IdentityResolver, opts ...GuardOption) func(http.Handler) http.Handler {
	cfg := &guardConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	record := func(ctx context.Context, outcome string) {
		if cfg.recorder != nil {
			cfg.recorder.RecordDecision(ctx, name, outcome)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			identity, err := resolver.Resolve(r)
			if err != nil {
				record(ctx, OutcomeRejected)
				writeError(w, http.StatusBadRequest, "Caller identity required", models.ErrorCodeBadRequest)
				return
			}

			result, err := check(ctx, identity)
			if err != nil {
				if cfg.failOpen && errors.Is(err, ErrUnavailable) {
					record(ctx, OutcomeFailedOpen)
					cfg.logger.Warn("Admission check failed, admitting request",
						"check", name,
						"identity", identity,
						"error", err)
					next.ServeHTTP(w, r)
					return
				}

				record(ctx, OutcomeError)
				cfg.logger.Error("Admission check failed",
					"check", name,
					"identity", identity,
					"error", err)
				writeError(w, http.StatusServiceUnavailable, "Admission check unavailable", models.ErrorCodeServiceUnavailable)
				return
			}

			if !result.Allowed {
				record(ctx, OutcomeDenied)
				cfg.logger.Warn("Rate limit exceeded",
					"check", name,
					"identity", identity,
					"path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", models.ErrorCodeRateLimited)
				return
			}

			record(ctx, OutcomeAllowed)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

// WithRateLimit guards a handler with the generic API rate check.
func WithRateLimit(checker Checker, resolver *IdentityResolver, opts ...GuardOption) func(http.Handler) http.Handler {
	return Guard("api", checker.CheckAPIRate, resolver, opts...)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.NewErrorResponse(message, code))
}
