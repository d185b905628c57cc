package admission

import (
	"context"
	"fmt"
	"roomgate/internal/limiter"
	"roomgate/internal/models"
)

// LocalClient runs the facade against an in-process store.
type LocalClient struct {
	store *limiter.Store
}

// NewLocalClient returns a client bound to the default domain of registry.
func NewLocalClient(registry *limiter.Registry) *LocalClient {
	return &LocalClient{store: registry.Global()}
}

// unavailable marks storage failures so callers can apply their failure policy.
func unavailable(err error) error {
	if err != nil && limiter.IsStorageError(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (c *LocalClient) CheckRoomCreation(ctx context.Context, identity string) (models.RateLimitResult, error) {
	result, err := c.store.CheckPolicy(ctx, models.KindRoomCreation, identity)
	return result, unavailable(err)
}

func (c *LocalClient) CheckConnection(ctx context.Context, identity string) (models.RateLimitResult, error) {
	result, err := c.store.CheckPolicy(ctx, models.KindConnections, identity)
	return result, unavailable(err)
}

func (c *LocalClient) CheckAPIRate(ctx context.Context, identity string) (models.RateLimitResult, error) {
	result, err := c.store.CheckPolicy(ctx, models.KindAPI, identity)
	return result, unavailable(err)
}

func (c *LocalClient) CheckCallDuration(ctx context.Context, roomID string) (models.CallDurationResult, error) {
	result, err := c.store.CheckCallDuration(ctx, roomID)
	return result, unavailable(err)
}

func (c *LocalClient) MarkRoomEmpty(ctx context.Context, roomID string) error {
	return unavailable(c.store.MarkRoomEmpty(ctx, roomID))
}

func (c *LocalClient) MarkRoomActive(ctx context.Context, roomID string) error {
	return unavailable(c.store.MarkRoomActive(ctx, roomID))
}

func (c *LocalClient) EndCall(ctx context.Context, roomID string) error {
	return unavailable(c.store.EndCall(ctx, roomID))
}

func (c *LocalClient) CleanupOldRooms(ctx context.Context) (models.CleanupResult, error) {
	result, err := c.store.CleanupOldRooms(ctx)
	return result, unavailable(err)
}
