package observability

import (
	"context"
	"errors"
	"roomgate/internal/models"
	"roomgate/internal/storage"
	"roomgate/internal/version"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestProvider(t *testing.T) *Provider {
	t.Helper()
	metrics := models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 9090}
	obs := models.ObservabilityConfig{
		ServiceName: "test",
		Tracing: models.TracingConfig{
			Enabled:    true,
			Exporter:   "stdout",
			SampleRate: 1.0,
		},
	}
	provider, err := Setup(metrics, obs, version.Info{Version: "1.0.0"})
	require.NoError(t, err)
	t.Cleanup(func() { provider.Shutdown(context.Background()) })
	return provider
}

func newInstrumented(t *testing.T, inner storage.Storage) *InstrumentedStorage {
	t.Helper()
	_ = setupTestProvider(t)
	instrumented, err := NewInstrumentedStorage(inner)
	require.NoError(t, err)
	return instrumented
}

// errStorage fails every operation.
type errStorage struct{ err error }

func (s errStorage) Get(context.Context, string) ([]int64, error)          { return nil, s.err }
func (s errStorage) Put(context.Context, string, []int64) error            { return s.err }
func (s errStorage) Delete(context.Context, string) error                  { return s.err }
func (s errStorage) List(context.Context, string) ([]storage.Entry, error) { return nil, s.err }
func (s errStorage) Lock(context.Context, string) (func(), error)          { return nil, s.err }
func (s errStorage) Ping(context.Context) error                            { return s.err }
func (s errStorage) Close() error                                          { return nil }

func TestNewInstrumentedStorage(t *testing.T) {
	instrumented := newInstrumented(t, storage.NewMemoryStorage())
	assert.NotNil(t, instrumented)
}

func TestInstrumentedStorage_Ping(t *testing.T) {
	instrumented := newInstrumented(t, storage.NewMemoryStorage())
	assert.NoError(t, instrumented.Ping(context.Background()))
}

func TestInstrumentedStorage_PassesThrough(t *testing.T) {
	inner := storage.NewMemoryStorage()
	instrumented := newInstrumented(t, inner)
	ctx := context.Background()

	require.NoError(t, instrumented.Put(ctx, "api:1.2.3.4", []int64{1, 2, 3}))
	require.NoError(t, instrumented.Put(ctx, "room-empty-since:r1", []int64{4}))

	value, err := inner.Get(ctx, "api:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, value)

	value, err = instrumented.Get(ctx, "room-empty-since:r1")
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, value)

	entries, err := instrumented.List(ctx, "room-")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "room-empty-since:r1", entries[0].Key)

	require.NoError(t, instrumented.Delete(ctx, "api:1.2.3.4"))
	_, err = instrumented.Get(ctx, "api:1.2.3.4")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting an absent key is not an error.
	assert.NoError(t, instrumented.Delete(ctx, "api:1.2.3.4"))
}

func TestInstrumentedStorage_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	instrumented := newInstrumented(t, errStorage{err: boom})
	ctx := context.Background()

	_, err := instrumented.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, instrumented.Put(ctx, "k", []int64{1}), boom)
	assert.ErrorIs(t, instrumented.Delete(ctx, "k"), boom)
	_, err = instrumented.List(ctx, "")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, instrumented.Ping(ctx), boom)
	_, err = instrumented.Lock(ctx, "domain:global")
	assert.ErrorIs(t, err, boom)
}

func TestInstrumentedStorage_LockReachesInner(t *testing.T) {
	inner := storage.NewMemoryStorage()
	instrumented := newInstrumented(t, inner)
	ctx := context.Background()

	unlock, err := instrumented.Lock(ctx, "domain:global")
	require.NoError(t, err)

	// The inner backend sees the lock as held.
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = inner.Lock(waitCtx, "domain:global")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	release, err := inner.Lock(ctx, "domain:global")
	require.NoError(t, err)
	release()
}

func TestInstrumentedStorage_WithoutProvider(t *testing.T) {
	// The global no-op providers must be enough to run.
	instrumented, err := NewInstrumentedStorage(storage.NewMemoryStorage())
	require.NoError(t, err)
	require.NoError(t, instrumented.Put(context.Background(), "api:x", []int64{1}))
	assert.NoError(t, instrumented.Close())
}
