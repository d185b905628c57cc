package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStorageSuite exercises the behaviour every backend must share.
func runStorageSuite(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	t.Run("Get missing key", func(t *testing.T) {
		_, err := s.Get(ctx, "api:missing")
		assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
	})

	t.Run("Put then Get", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "api:1.2.3.4", []int64{1000, 2000, 3000}))

		value, err := s.Get(ctx, "api:1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, []int64{1000, 2000, 3000}, value)
	})

	t.Run("Put replaces", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "call-duration:room-a", []int64{5}))
		require.NoError(t, s.Put(ctx, "call-duration:room-a", []int64{7}))

		value, err := s.Get(ctx, "call-duration:room-a")
		require.NoError(t, err)
		assert.Equal(t, []int64{7}, value)
	})

	t.Run("Empty value round-trips", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "connections:empty", nil))

		value, err := s.Get(ctx, "connections:empty")
		require.NoError(t, err)
		assert.Empty(t, value)
	})

	t.Run("IPv6 subject", func(t *testing.T) {
		key := "connections:2001:db8::1"
		require.NoError(t, s.Put(ctx, key, []int64{42}))

		value, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []int64{42}, value)
	})

	t.Run("Returned values are copies", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "api:copy", []int64{1, 2}))

		value, err := s.Get(ctx, "api:copy")
		require.NoError(t, err)
		value[0] = 99

		again, err := s.Get(ctx, "api:copy")
		require.NoError(t, err)
		assert.Equal(t, int64(1), again[0])
	})

	t.Run("List by prefix", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "room-activity:b", []int64{2}))
		require.NoError(t, s.Put(ctx, "room-activity:a", []int64{1}))
		require.NoError(t, s.Put(ctx, "room-empty-since:a", []int64{3}))

		entries, err := s.List(ctx, "room-activity:")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "room-activity:a", entries[0].Key)
		assert.Equal(t, []int64{1}, entries[0].Value)
		assert.Equal(t, "room-activity:b", entries[1].Key)
	})

	t.Run("List all is sorted", func(t *testing.T) {
		entries, err := s.List(ctx, "")
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		for i := 1; i < len(entries); i++ {
			assert.Less(t, entries[i-1].Key, entries[i].Key)
		}
	})

	t.Run("List prefix with glob characters", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "api:50%_off", []int64{1}))
		require.NoError(t, s.Put(ctx, "api:50xyoff", []int64{1}))

		entries, err := s.List(ctx, "api:50%_")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "api:50%_off", entries[0].Key)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "room-creation:gone", []int64{1}))
		require.NoError(t, s.Delete(ctx, "room-creation:gone"))

		_, err := s.Get(ctx, "room-creation:gone")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Delete missing key", func(t *testing.T) {
		assert.NoError(t, s.Delete(ctx, "room-creation:never-existed"))
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("Lock excludes a second holder", func(t *testing.T) {
		unlock, err := s.Lock(ctx, "global")
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = s.Lock(waitCtx, "global")
		assert.Error(t, err)

		other, err := s.Lock(ctx, "tenant-a")
		require.NoError(t, err, "different names must not contend")
		other()

		entries, err := s.List(ctx, "")
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Key, "lock")
		}

		unlock()
		again, err := s.Lock(ctx, "global")
		require.NoError(t, err)
		again()
	})
}
