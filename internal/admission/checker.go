// Package admission is the caller-facing facade over the limiter store.
//
// Request-handling code gates room creation, room joins and generic API calls
// through a Checker; the room/session layer reports join, leave and call-end
// events through the same interface. A Checker is either in-process
// (LocalClient) or talks to a coordinator over HTTP (RemoteClient).
package admission

import (
	"context"
	"errors"
	"roomgate/internal/models"
)

var (
	// ErrUnavailable is returned when the limiter store cannot answer.
	ErrUnavailable = errors.New("limiter unavailable")

	// ErrIdentityRequired is returned when the caller identity is missing and
	// the unknown-identity policy rejects such callers.
	ErrIdentityRequired = errors.New("caller identity required")
)

// Checker defines the facade operations. Every check reserves quota when it
// allows, whether or not the caller goes on to act on the result.
type Checker interface {
	CheckRoomCreation(ctx context.Context, identity string) (models.RateLimitResult, error)
	CheckConnection(ctx context.Context, identity string) (models.RateLimitResult, error)
	CheckAPIRate(ctx context.Context, identity string) (models.RateLimitResult, error)
	CheckCallDuration(ctx context.Context, roomID string) (models.CallDurationResult, error)

	MarkRoomEmpty(ctx context.Context, roomID string) error
	MarkRoomActive(ctx context.Context, roomID string) error
	EndCall(ctx context.Context, roomID string) error

	CleanupOldRooms(ctx context.Context) (models.CleanupResult, error)
}

// CheckFunc is one of the rate-limit checks of a Checker.
type CheckFunc func(ctx context.Context, identity string) (models.RateLimitResult, error)

// Ensure both clients implement Checker
var (
	_ Checker = (*LocalClient)(nil)
	_ Checker = (*RemoteClient)(nil)
)
