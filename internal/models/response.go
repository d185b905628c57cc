// Package models - API response types and error handling.
//
// Response Design Principles:
// - Limiter answers (RateLimitResult etc.) are the success bodies of the dispatch endpoint
// - Every failure is an ErrorResponse with a machine-readable code
// - RFC3339 timestamps
package models

import (
	"time"
)

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// Error codes.
const (
	ErrorCodeNotFound           = "NOT_FOUND"           // 404
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400: malformed body or parameters
	ErrorCodeUnknownAction      = "UNKNOWN_ACTION"      // 400: dispatch target does not exist
	ErrorCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"  // 405: write operation without write intent
	ErrorCodeRateLimited        = "RATE_LIMIT_EXCEEDED" // 429
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500
	ErrorCodeUnauthorized       = "UNAUTHORIZED"        // 401
	ErrorCodeForbidden          = "FORBIDDEN"           // 403
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: limiter storage failed
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}
