package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.Set(ctx, "sid-1", KeyToken, "tok"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, err := store.Get(ctx, "sid-1", KeyToken)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "tok" {
		t.Fatalf("expected tok, got %q", value)
	}
}

func TestRedisStoreMissingKey(t *testing.T) {
	store, _ := setupTestRedis(t)

	_, err := store.Get(context.Background(), "sid-1", KeyToken)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.Set(ctx, "sid-1", KeyToken, "tok"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.FastForward(2 * time.Millisecond)

	if _, err := store.Get(ctx, "sid-1", KeyToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestRedisStoreDeleteIsolatesSessions(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	for _, sid := range []string{"sid-1", "sid-2"} {
		if err := store.Set(ctx, sid, KeyToken, "tok-"+sid); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := store.Delete(ctx, "sid-1", KeyToken, KeyUser); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Get(ctx, "sid-1", KeyToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected sid-1 erased, got %v", err)
	}
	value, err := store.Get(ctx, "sid-2", KeyToken)
	if err != nil || value != "tok-sid-2" {
		t.Fatalf("expected sid-2 untouched, got %q err=%v", value, err)
	}
}
