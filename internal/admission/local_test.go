package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"roomgate/internal/limiter"
	"roomgate/internal/models"
	"roomgate/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStorage struct{ storage.Storage }

var errBroken = errors.New("disk on fire")

func (brokenStorage) Get(context.Context, string) ([]int64, error) { return nil, errBroken }
func (brokenStorage) List(context.Context, string) ([]storage.Entry, error) {
	return nil, errBroken
}
func (brokenStorage) Delete(context.Context, string) error { return errBroken }

func TestLocalClient_Policies(t *testing.T) {
	client, _ := newLocalClient(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		check CheckFunc
		limit int
	}{
		{"room creation", client.CheckRoomCreation, 5},
		{"connections", client.CheckConnection, 20},
		{"api", client.CheckAPIRate, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 1; i <= tt.limit; i++ {
				result, err := tt.check(ctx, "1.2.3.4")
				require.NoError(t, err)
				require.True(t, result.Allowed)
				assert.Equal(t, tt.limit-i, result.Remaining)
			}
			result, err := tt.check(ctx, "1.2.3.4")
			require.NoError(t, err)
			assert.False(t, result.Allowed)
			assert.Equal(t, 0, result.Remaining)
		})
	}
}

func TestLocalClient_RoomLifecycle(t *testing.T) {
	client, clk := newLocalClient(t)
	ctx := context.Background()

	first, err := client.CheckCallDuration(ctx, "room-1")
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	require.NoError(t, client.MarkRoomActive(ctx, "room-1"))
	require.NoError(t, client.EndCall(ctx, "room-1"))

	clk.Advance(31 * time.Minute)
	result, err := client.CleanupOldRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"room-1"}, result.Rooms)
	assert.Empty(t, result.RoomsToNotify)
}

func TestLocalClient_InvalidArgumentPassesThrough(t *testing.T) {
	client, _ := newLocalClient(t)

	err := client.MarkRoomEmpty(context.Background(), "")
	assert.ErrorIs(t, err, limiter.ErrInvalidArgument)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestLocalClient_StorageFailureIsUnavailable(t *testing.T) {
	client := NewLocalClient(limiter.NewRegistry(brokenStorage{}))
	ctx := context.Background()

	_, err := client.CheckAPIRate(ctx, "1.2.3.4")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, errBroken)

	_, err = client.CleanupOldRooms(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.ErrorIs(t, client.MarkRoomActive(ctx, "r"), ErrUnavailable)
}

func TestLocalClient_UsesGlobalDomain(t *testing.T) {
	backend := storage.NewMemoryStorage()
	client := NewLocalClient(limiter.NewRegistry(backend))

	_, err := client.CheckRoomCreation(context.Background(), "9.9.9.9")
	require.NoError(t, err)

	_, err = backend.Get(context.Background(), models.RoomKey(models.KindRoomCreation, "9.9.9.9").String())
	assert.NoError(t, err)
}
