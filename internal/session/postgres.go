package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a single web_sessions table. Used when
// Redis is not configured; expiry is enforced on read via expires_at.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresStore connects, verifies the connection, and ensures the
// sessions table exists.
func NewPostgresStore(ctx context.Context, databaseURL string, ttl time.Duration) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	store := &PostgresStore{pool: pool, ttl: ttl}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS web_sessions (
			sid        TEXT        NOT NULL,
			key        TEXT        NOT NULL,
			value      TEXT        NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (sid, key)
		)`)
	if err != nil {
		return fmt.Errorf("ensure web_sessions table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sid, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM web_sessions WHERE sid = $1 AND key = $2 AND expires_at > now()`,
		sid, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read session key %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, sid, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO web_sessions (sid, key, value, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sid, key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		sid, key, value, time.Now().Add(s.ttl),
	)
	if err != nil {
		return fmt.Errorf("write session key %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sid string, keys ...string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM web_sessions WHERE sid = $1 AND key = ANY($2)`,
		sid, keys,
	)
	if err != nil {
		return fmt.Errorf("delete session keys: %w", err)
	}
	return nil
}

// PurgeExpired removes rows whose TTL has passed. Called at startup; reads
// already filter on expires_at, so this is housekeeping only.
func (s *PostgresStore) PurgeExpired(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM web_sessions WHERE expires_at <= now()`)
	if err != nil {
		return fmt.Errorf("purge expired sessions: %w", err)
	}
	return nil
}

// Ping checks if PostgreSQL is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
