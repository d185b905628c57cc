package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS limiter_entries (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const postgresLockNamespace = "roomgate/limiter:"

// PostgresStorage implements the Storage interface using PostgreSQL. Any
// number of processes may share one database.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a new PostgreSQL storage instance.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		// A held lock pins one connection while the locked section queries on
		// another.
		poolConfig.MaxConns = int32(max(2, config.MaxOpenConns))
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(context.Background(), postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStorage{
		pool: pool,
	}, nil
}

// Get returns the value stored under key.
func (ps *PostgresStorage) Get(ctx context.Context, key string) ([]int64, error) {
	var raw string
	err := ps.pool.QueryRow(ctx, `SELECT value::text FROM limiter_entries WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return decodeValue(raw)
}

// Put upserts value under key.
func (ps *PostgresStorage) Put(ctx context.Context, key string, value []int64) error {
	raw, err := encodeValue(value)
	if err != nil {
		return err
	}

	_, err = ps.pool.Exec(ctx,
		`INSERT INTO limiter_entries (key, value, updated_at) VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, raw)
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (ps *PostgresStorage) Delete(ctx context.Context, key string) error {
	if _, err := ps.pool.Exec(ctx, `DELETE FROM limiter_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List enumerates entries under prefix.
func (ps *PostgresStorage) List(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := ps.pool.Query(ctx,
		`SELECT key, value::text FROM limiter_entries WHERE starts_with(key, $1) ORDER BY key`, prefix)
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
		value, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	// ORDER BY uses the database collation; normalise to byte order.
	sortEntries(entries)
	return entries, nil
}

// Lock takes a session-level advisory lock on a dedicated pool connection, so
// every process sharing the database is excluded.
func (ps *PostgresStorage) Lock(ctx context.Context, name string) (func(), error) {
	conn, err := ps.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock connection: %w", err)
	}

	lockName := postgresLockNamespace + name
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, lockName); err != nil {
		// The lock may have been granted as the wait was cancelled; closing
		// the session releases it.
		conn.Conn().Close(context.Background())
		conn.Release()
		return nil, fmt.Errorf("failed to lock %s: %w", name, err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, lockName); err != nil {
			conn.Conn().Close(ctx)
		}
		conn.Release()
	}, nil
}

// Ping checks the database connection.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}
