package limiter

import (
	"context"
	"roomgate/internal/models"
	"time"
)

// Limiter defines the operations of a limiter store
type Limiter interface {
	// CheckRateLimit records an event under key if fewer than limit events
	// fall inside the trailing window. A denied check records nothing.
	CheckRateLimit(ctx context.Context, key models.LimiterKey, limit int, window time.Duration) (bool, error)

	// Count returns the number of unexpired events under key.
	Count(ctx context.Context, key models.LimiterKey, window time.Duration) (int, error)

	// CheckPolicy applies one of the fixed rate-limit policies to subject.
	CheckPolicy(ctx context.Context, kind models.KeyKind, subject string) (models.RateLimitResult, error)

	// CheckCallDuration reports how much of the call-duration budget is left.
	CheckCallDuration(ctx context.Context, roomID string) (models.CallDurationResult, error)

	// CleanupOldRooms deletes the state of force-ended and long-empty rooms.
	CleanupOldRooms(ctx context.Context) (models.CleanupResult, error)

	MarkRoomEmpty(ctx context.Context, roomID string) error
	MarkRoomActive(ctx context.Context, roomID string) error
	EndCall(ctx context.Context, roomID string) error

	// ResetRateLimit deletes key unconditionally.
	ResetRateLimit(ctx context.Context, key models.LimiterKey) error
}

// Ensure Store implements Limiter
var _ Limiter = (*Store)(nil)
