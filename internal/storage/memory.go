package storage

import (
	"context"
	"strings"
	"sync"
)

// MemoryStorage implements the Storage interface with an in-process map.
// This provider is ideal for development, testing, and single-instance
// deployments where losing limiter state on restart is acceptable.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string][]int64
	locks   keyLocks
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string][]int64),
	}
}

// Get returns a copy of the value stored under key
func (m *MemoryStorage) Get(ctx context.Context, key string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.entries[key]
	if !exists {
		return nil, ErrNotFound
	}

	// Return a copy to prevent external modification
	return cloneValue(value), nil
}

// Put stores a copy of value under key
func (m *MemoryStorage) Put(ctx context.Context, key string, value []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = cloneValue(value)
	return nil
}

// Delete removes key
func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// List enumerates entries under prefix
func (m *MemoryStorage) List(ctx context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.entries))
	for key, value := range m.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entries = append(entries, Entry{Key: key, Value: cloneValue(value)})
	}
	sortEntries(entries)

	return entries, nil
}

// Lock holds name within this process
func (m *MemoryStorage) Lock(ctx context.Context, name string) (func(), error) {
	return m.locks.lock(ctx, name)
}

// Ping always succeeds for memory storage
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close drops all entries
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string][]int64)
	return nil
}
