package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// JSONStorage implements the Storage interface using a JSON file for persistence.
// The whole map is held in memory and written through to disk on every mutation,
// so the file always reflects the last acknowledged write.
type JSONStorage struct {
	filePath string
	mu       sync.RWMutex
	data     *JSONData
	locks    keyLocks
}

// JSONData represents the structure of data stored in JSON format
type JSONData struct {
	Entries     map[string][]int64 `json:"entries"`
	LastUpdated time.Time          `json:"last_updated"`
}

// NewJSONStorage creates a new JSON-based storage instance
func NewJSONStorage(config Config) (*JSONStorage, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("path is required for JSON storage")
	}

	storage := &JSONStorage{
		filePath: config.Path,
	}

	// Initialize with empty data if file doesn't exist
	if err := storage.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}

	if err := storage.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}

	return storage, nil
}

// ensureFileExists creates the JSON file with empty data if it doesn't exist
func (j *JSONStorage) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}

		return j.saveData(&JSONData{Entries: map[string][]int64{}})
	}
	return nil
}

// loadData reads the file into memory
func (j *JSONStorage) loadData() error {
	fileData, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data JSONData
	if err := json.Unmarshal(fileData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if data.Entries == nil {
		data.Entries = map[string][]int64{}
	}

	j.mu.Lock()
	j.data = &data
	j.mu.Unlock()
	return nil
}

// saveData writes data to a temp file and renames it over the target, so a
// crash mid-write never leaves a truncated file behind.
func (j *JSONStorage) saveData(data *JSONData) error {
	data.LastUpdated = time.Now()

	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmp := j.filePath + ".tmp"
	if err := os.WriteFile(tmp, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, j.filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}

	return nil
}

// Get returns the value stored under key
func (j *JSONStorage) Get(ctx context.Context, key string) ([]int64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	value, exists := j.data.Entries[key]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneValue(value), nil
}

// Put stores value under key and persists the file
func (j *JSONStorage) Put(ctx context.Context, key string, value []int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	previous, existed := j.data.Entries[key]
	j.data.Entries[key] = cloneValue(value)

	if err := j.saveData(j.data); err != nil {
		// Roll back so memory never runs ahead of disk
		if existed {
			j.data.Entries[key] = previous
		} else {
			delete(j.data.Entries, key)
		}
		return err
	}
	return nil
}

// Delete removes key and persists the file
func (j *JSONStorage) Delete(ctx context.Context, key string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	previous, existed := j.data.Entries[key]
	if !existed {
		return nil
	}
	delete(j.data.Entries, key)

	if err := j.saveData(j.data); err != nil {
		j.data.Entries[key] = previous
		return err
	}
	return nil
}

// List enumerates entries under prefix
func (j *JSONStorage) List(ctx context.Context, prefix string) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	entries := make([]Entry, 0, len(j.data.Entries))
	for key, value := range j.data.Entries {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, Entry{Key: key, Value: cloneValue(value)})
		}
	}
	sortEntries(entries)

	return entries, nil
}

// Lock holds name within this process. The file must not be opened by more
// than one process.
func (j *JSONStorage) Lock(ctx context.Context, name string) (func(), error) {
	return j.locks.lock(ctx, name)
}

// Ping checks the backing file is still accessible
func (j *JSONStorage) Ping(ctx context.Context) error {
	if _, err := os.Stat(j.filePath); err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	return nil
}

// Close is a no-op; every write is already on disk
func (j *JSONStorage) Close() error {
	return nil
}
