package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"roomgate/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestStorage(t *testing.T) *RedisStorage {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping Redis tests")
	}

	// Unique prefix per test so runs never see each other's keys
	prefix := "roomgate-test-" + uuid.NewString()
	s, err := NewRedisStorage(Config{Redis: models.RedisConfig{Addr: addr, KeyPrefix: prefix}})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		entries, _ := s.List(ctx, "")
		for _, e := range entries {
			_ = s.Delete(ctx, e.Key)
		}
		s.Close()
	})
	return s
}

func TestRedisStorage(t *testing.T) {
	s := newRedisTestStorage(t)
	runStorageSuite(t, s)
}

func TestRedisStorage_RequiresAddr(t *testing.T) {
	_, err := NewRedisStorage(Config{})
	assert.Error(t, err)
}

func TestRedisStorage_PrefixNormalised(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	assert.Equal(t, "roomgate:", newRedisStorage(client, "roomgate").prefix)
	assert.Equal(t, "roomgate:", newRedisStorage(client, "roomgate:").prefix)
	assert.Equal(t, "", newRedisStorage(client, "").prefix)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
	assert.Equal(t, "plain:", escapeGlob("plain:"))
}

func TestRedisStorage_LockAcrossClients(t *testing.T) {
	s := newRedisTestStorage(t)
	peer := newRedisStorage(redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_TEST_ADDR")}), s.prefix)
	defer peer.Close()
	ctx := context.Background()

	unlock, err := s.Lock(ctx, "global")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = peer.Lock(waitCtx, "global")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	release, err := peer.Lock(ctx, "global")
	require.NoError(t, err)
	release()

	// Released leases leave nothing behind.
	keys, err := s.client.Keys(ctx, s.prefix+"*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
}
