package limiter

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"roomgate/internal/models"
	"roomgate/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SameStorePerName(t *testing.T) {
	registry := NewRegistry(storage.NewMemoryStorage())

	a, err := registry.Store("global")
	require.NoError(t, err)
	b, err := registry.Store("global")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Same(t, a, registry.Global())
	assert.Equal(t, []string{"global"}, registry.Domains())
}

func TestRegistry_InvalidNames(t *testing.T) {
	registry := NewRegistry(storage.NewMemoryStorage())

	for _, name := range []string{"", "a/b", "a:b"} {
		_, err := registry.Store(name)
		assert.ErrorIs(t, err, ErrInvalidArgument, "name %q", name)
	}
}

func TestRegistry_AllowDomains(t *testing.T) {
	registry := NewRegistry(storage.NewMemoryStorage())
	require.NoError(t, registry.AllowDomains("tenant"))

	_, err := registry.Store("tenant")
	require.NoError(t, err)
	assert.NotNil(t, registry.Global())

	for i := 0; i < 100; i++ {
		_, err := registry.Store(fmt.Sprintf("junk%d", i))
		require.ErrorIs(t, err, ErrUnknownDomain)

		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, http.StatusNotFound, svcErr.StatusCode)
	}
	assert.Equal(t, []string{"global", "tenant"}, registry.Domains())

	// Malformed names fail as before, ahead of the allow-list.
	_, err = registry.Store("a:b")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.ErrorIs(t, registry.AllowDomains("ok", "bad/name"), ErrInvalidArgument)
}

func TestRegistry_DomainsAreIsolated(t *testing.T) {
	backend := storage.NewMemoryStorage()
	clock := newFakeClock()
	registry := NewRegistry(backend, WithClock(clock.Now))
	ctx := context.Background()

	global := registry.Global()
	tenant, err := registry.Store("tenant")
	require.NoError(t, err)

	for i := 0; i < models.RoomCreationLimit; i++ {
		_, err := global.CheckPolicy(ctx, models.KindRoomCreation, "1.2.3.4")
		require.NoError(t, err)
	}

	result, err := tenant.CheckPolicy(ctx, models.KindRoomCreation, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, models.RoomCreationLimit-1, result.Remaining)

	// The default domain keeps the bare key names
	_, err = backend.Get(ctx, "room-creation:1.2.3.4")
	assert.NoError(t, err)
	_, err = backend.Get(ctx, "tenant/room-creation:1.2.3.4")
	assert.NoError(t, err)

	// Cleanup of one domain never touches another
	require.NoError(t, tenant.MarkRoomEmpty(ctx, "shared-room"))
	require.NoError(t, global.MarkRoomEmpty(ctx, "shared-room"))
	clock.Advance(models.EmptyRoomThreshold + time.Millisecond)
	require.NoError(t, tenant.MarkRoomActive(ctx, "shared-room"))

	cleaned, err := global.CleanupOldRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared-room"}, cleaned.Rooms)

	_, err = backend.Get(ctx, "tenant/room-activity:shared-room")
	assert.NoError(t, err)

	cleaned, err = tenant.CleanupOldRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, cleaned.Cleaned)
}

// slowStorage delays reads like a network round trip.
type slowStorage struct {
	*storage.MemoryStorage
	delay time.Duration
}

func (s slowStorage) Get(ctx context.Context, key string) ([]int64, error) {
	time.Sleep(s.delay)
	return s.MemoryStorage.Get(ctx, key)
}

func TestRegistry_SharedBackendEnforcesLimitAcrossRegistries(t *testing.T) {
	backend := slowStorage{MemoryStorage: storage.NewMemoryStorage(), delay: 5 * time.Millisecond}
	clock := newFakeClock()
	stores := []*Store{
		NewRegistry(backend, WithClock(clock.Now)).Global(),
		NewRegistry(backend, WithClock(clock.Now)).Global(),
	}
	key := mustKey(t, models.KindRoomCreation, "1.2.3.4")
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(store *Store) {
			defer wg.Done()
			ok, err := store.CheckRateLimit(ctx, key, 5, time.Hour)
			assert.NoError(t, err)
			if ok {
				allowed.Add(1)
			}
		}(stores[i%2])
	}
	wg.Wait()

	assert.Equal(t, int32(5), allowed.Load())
	window, err := backend.Get(ctx, key.String())
	require.NoError(t, err)
	assert.Len(t, window, 5)
}

func TestStore_LockFailureIsStorageError(t *testing.T) {
	store := NewStore(models.DefaultDomain, failingStorage{})

	_, err := store.CheckRateLimit(context.Background(), mustKey(t, models.KindAPI, "1.2.3.4"), 1, time.Minute)
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
	assert.Contains(t, err.Error(), "failed to lock domain global")
}
