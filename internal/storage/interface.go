package storage

import (
	"context"
	"roomgate/internal/models"
	"time"
)

// Storage is the durable key-value primitive the limiter store runs on. Keys are
// opaque strings; every value is a list of millisecond timestamps (a single
// mark is a one-element list). Implementations must be safe for concurrent use
// and each call must be atomic for its key.
//
// Lock gives the limiter store exclusive use of a named section across every
// holder of the backend: all processes for postgres and redis, the opening
// process for memory, json and sqlite.
type Storage interface {
	// Lock blocks until name is held or ctx is done. The returned function
	// releases it and must be called exactly once.
	Lock(ctx context.Context, name string) (unlock func(), err error)

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]int64, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []int64) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List enumerates every entry whose key starts with prefix, sorted by key.
	// An empty prefix enumerates the whole store.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// Entry is one enumerated key-value pair.
type Entry struct {
	Key   string
	Value []int64
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (memory, json, sqlite, postgres, redis)
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`

	// Redis is used by the redis backend
	Redis models.RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}
