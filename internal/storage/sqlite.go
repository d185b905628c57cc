package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS limiter_entries (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStorage implements the Storage interface on a single SQLite table.
type SQLiteStorage struct {
	db    *sql.DB
	locks keyLocks
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serialises writers; a single connection avoids SQLITE_BUSY
	// and keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{
		db: db,
	}, nil
}

// Get returns the value stored under key
func (ss *SQLiteStorage) Get(ctx context.Context, key string) ([]int64, error) {
	var raw string
	err := ss.db.QueryRowContext(ctx, `SELECT value FROM limiter_entries WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return decodeValue(raw)
}

// Put upserts value under key
func (ss *SQLiteStorage) Put(ctx context.Context, key string, value []int64) error {
	raw, err := encodeValue(value)
	if err != nil {
		return err
	}

	_, err = ss.db.ExecContext(ctx,
		`INSERT INTO limiter_entries (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, raw, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (ss *SQLiteStorage) Delete(ctx context.Context, key string) error {
	if _, err := ss.db.ExecContext(ctx, `DELETE FROM limiter_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List enumerates entries under prefix. The prefix is matched in Go rather
// than with LIKE, since keys may contain '%' and '_'.
func (ss *SQLiteStorage) List(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := ss.db.QueryContext(ctx, `SELECT key, value FROM limiter_entries ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		value, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	return entries, nil
}

// Lock holds name within this process. Replicas that need a shared database
// use postgres or redis.
func (ss *SQLiteStorage) Lock(ctx context.Context, name string) (func(), error) {
	return ss.locks.lock(ctx, name)
}

// Ping checks the database connection
func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}
