package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONStorage(t *testing.T) {
	storage, err := NewJSONStorage(Config{Path: filepath.Join(t.TempDir(), "limiter.json")})
	require.NoError(t, err)
	defer storage.Close()

	runStorageSuite(t, storage)
}

func TestJSONStorage_RequiresPath(t *testing.T) {
	_, err := NewJSONStorage(Config{})
	assert.Error(t, err)
}

func TestJSONStorage_CreatesDirectoryAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "limiter.json")

	_, err := NewJSONStorage(Config{Path: path})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestJSONStorage_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limiter.json")
	ctx := context.Background()

	first, err := NewJSONStorage(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "room-creation:10.0.0.1", []int64{100, 200}))
	require.NoError(t, first.Put(ctx, "call-duration:room-1", []int64{300}))
	require.NoError(t, first.Delete(ctx, "call-duration:room-1"))

	second, err := NewJSONStorage(Config{Path: path})
	require.NoError(t, err)

	value, err := second.Get(ctx, "room-creation:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200}, value)

	_, err = second.Get(ctx, "call-duration:room-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJSONStorage_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limiter.json")
	storage, err := NewJSONStorage(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, storage.Put(context.Background(), "api:a", []int64{1, 2}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var data JSONData
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, []int64{1, 2}, data.Entries["api:a"])
	assert.False(t, data.LastUpdated.IsZero())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestJSONStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limiter.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewJSONStorage(Config{Path: path})
	assert.Error(t, err)
}

func TestJSONStorage_PingMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limiter.json")
	storage, err := NewJSONStorage(Config{Path: path})
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	assert.Error(t, storage.Ping(context.Background()))
}
