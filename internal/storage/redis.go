package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// redisLockTag marks lease keys inside the namespace. Limiter keys never
	// start with it.
	redisLockTag = "_lock:"

	// redisLockTTL bounds how long a crashed holder can block a section.
	redisLockTTL   = 15 * time.Second
	redisLockRetry = 5 * time.Millisecond
)

var redisUnlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisStorage implements the Storage interface on a Redis server. Each entry
// is a string key "<prefix>:<key>" holding the JSON-encoded timestamp list.
// Any number of processes may share one server; Lock is a SET NX PX lease.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(config Config) (*RedisStorage, error) {
	if config.Redis.Addr == "" {
		return nil, fmt.Errorf("address is required for Redis storage")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return newRedisStorage(client, config.Redis.KeyPrefix), nil
}

func newRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisStorage{client: client, prefix: prefix}
}

// Get returns the value stored under key
func (rs *RedisStorage) Get(ctx context.Context, key string) ([]int64, error) {
	raw, err := rs.client.Get(ctx, rs.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return decodeValue(raw)
}

// Put stores value under key with no expiry
func (rs *RedisStorage) Put(ctx context.Context, key string, value []int64) error {
	raw, err := encodeValue(value)
	if err != nil {
		return err
	}
	if err := rs.client.Set(ctx, rs.prefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (rs *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := rs.client.Del(ctx, rs.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List enumerates entries under prefix. SCAN patterns treat '*', '?' and '['
// specially, so the match is only used to scope to this store's namespace and
// the caller's prefix is checked in Go.
func (rs *RedisStorage) List(ctx context.Context, prefix string) ([]Entry, error) {
	var keys []string
	iter := rs.client.Scan(ctx, 0, escapeGlob(rs.prefix)+"*", 500).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), rs.prefix)
		if strings.HasPrefix(key, redisLockTag) {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		value, err := rs.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			// Deleted between SCAN and GET
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	sortEntries(entries)

	return entries, nil
}

// Lock polls for a lease on name. The lease carries a random token, so a
// holder whose lease expired cannot release its successor's.
func (rs *RedisStorage) Lock(ctx context.Context, name string) (func(), error) {
	key := rs.prefix + redisLockTag + name
	token := uuid.NewString()

	ticker := time.NewTicker(redisLockRetry)
	defer ticker.Stop()

	for {
		acquired, err := rs.client.SetNX(ctx, key, token, redisLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to lock %s: %w", name, err)
		}
		if acquired {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisUnlockScript.Run(ctx, rs.client, []string{key}, token).Err(); err != nil {
			slog.Warn("Failed to release redis lock", "lock", name, "error", err)
		}
	}, nil
}

// Ping checks the server connection
func (rs *RedisStorage) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close closes the client
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
