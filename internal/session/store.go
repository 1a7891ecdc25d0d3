// Package session holds the browser session's upstream credentials —
// the bearer token and the user identity blob — in a server-side
// key-value store, and bootstraps an authenticated state from them
// without any network round trip.
package session

import (
	"context"
	"errors"
)

// Keys of the persisted credential pair. Both are read together and
// written together; either one missing invalidates the pair.
const (
	KeyToken = "auth_token"
	KeyUser  = "user_data"
)

var ErrNotFound = errors.New("session key not found")

// Store persists string values per browser session. Implementations are
// Redis-backed, with a PostgreSQL fallback when Redis is not configured.
type Store interface {
	Get(ctx context.Context, sid, key string) (string, error)
	Set(ctx context.Context, sid, key, value string) error
	Delete(ctx context.Context, sid string, keys ...string) error
}
