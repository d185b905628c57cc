package limiter

import (
	"errors"
	"fmt"
	"net/http"
	"roomgate/internal/models"
)

// ErrInvalidArgument is returned for empty room ids, malformed keys and
// non-positive policy parameters.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrUnknownDomain is returned for domains outside the registry's allow-list.
var ErrUnknownDomain = errors.New("unknown domain")

// ServiceError represents errors from the limiter store with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error constructors for common store errors

func NewInvalidArgumentError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidArgument,
	}
}

func NewUnknownDomainError(name string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeNotFound,
		Message:    fmt.Sprintf("domain %q is not served", name),
		StatusCode: http.StatusNotFound,
		Err:        ErrUnknownDomain,
	}
}

func NewStorageError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeServiceUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// IsStorageError reports whether err came from the storage backend.
func IsStorageError(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.StatusCode == http.StatusServiceUnavailable
}
