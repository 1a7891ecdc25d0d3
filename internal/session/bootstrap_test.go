package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

func testBootstrapper(t *testing.T) (*Bootstrapper, *RedisStore) {
	t.Helper()
	store, _ := setupTestRedis(t)
	return NewBootstrapper(store, "sid-test"), store
}

func TestLoadWithFullPair(t *testing.T) {
	b, store := testBootstrapper(t)
	ctx := context.Background()

	if err := store.Set(ctx, "sid-test", KeyToken, "tok"); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	if err := store.Set(ctx, "sid-test", KeyUser, `{"id":"u1","email":"a@b.com","name":"A"}`); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	sess, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !sess.Authenticated() {
		t.Fatalf("expected authenticated session, got %+v", sess)
	}
	if sess.Token != "tok" || sess.User.ID != "u1" {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestLoadWithPartialPairErasesBoth(t *testing.T) {
	cases := map[string]func(ctx context.Context, store *RedisStore){
		"token only": func(ctx context.Context, store *RedisStore) {
			_ = store.Set(ctx, "sid-test", KeyToken, "tok")
		},
		"identity only": func(ctx context.Context, store *RedisStore) {
			_ = store.Set(ctx, "sid-test", KeyUser, `{"id":"u1","email":"a@b.com"}`)
		},
		"corrupt identity": func(ctx context.Context, store *RedisStore) {
			_ = store.Set(ctx, "sid-test", KeyToken, "tok")
			_ = store.Set(ctx, "sid-test", KeyUser, "{corrupt")
		},
	}

	for name, seed := range cases {
		t.Run(name, func(t *testing.T) {
			b, store := testBootstrapper(t)
			ctx := context.Background()
			seed(ctx, store)

			sess, err := b.Load(ctx)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if sess.Authenticated() {
				t.Fatalf("expected unauthenticated session, got %+v", sess)
			}
			if _, err := store.Get(ctx, "sid-test", KeyToken); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected token erased, got %v", err)
			}
			if _, err := store.Get(ctx, "sid-test", KeyUser); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected identity erased, got %v", err)
			}
		})
	}
}

func TestEstablishShapeVariants(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{"sub": "u9", "email": "tess@dairy.example", "name": "Tess"})
	jwtToken := "hdr." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"

	cases := []struct {
		name      string
		result    any
		wantToken string
		wantID    string
		wantEmail string
	}{
		{
			name:      "direct token and user",
			result:    map[string]any{"token": "t1", "user": map[string]any{"id": "u1", "email": "a@b.com"}},
			wantToken: "t1",
			wantID:    "u1",
			wantEmail: "a@b.com",
		},
		{
			name: "nested under data",
			result: map[string]any{"data": map[string]any{
				"token": "t2",
				"user":  map[string]any{"id": "u2", "email": "b@c.com"},
			}},
			wantToken: "t2",
			wantID:    "u2",
			wantEmail: "b@c.com",
		},
		{
			name:      "result is the user record",
			result:    map[string]any{"id": float64(1), "email": "a@b.com", "accessToken": "t3"},
			wantToken: "t3",
			wantID:    "1",
			wantEmail: "a@b.com",
		},
		{
			name:      "token only with decodable payload",
			result:    map[string]any{"token": jwtToken},
			wantToken: jwtToken,
			wantID:    "u9",
			wantEmail: "tess@dairy.example",
		},
		{
			name:      "token only with opaque token",
			result:    map[string]any{"token": "opaque"},
			wantToken: "opaque",
			wantID:    "rosa@orchard.example",
			wantEmail: "rosa@orchard.example",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, store := testBootstrapper(t)
			ctx := context.Background()

			sess, err := b.Establish(ctx, tc.result, "rosa@orchard.example")
			if err != nil {
				t.Fatalf("Establish() error = %v", err)
			}
			if sess.Token != tc.wantToken {
				t.Fatalf("token = %q, want %q", sess.Token, tc.wantToken)
			}
			if sess.User.ID != tc.wantID || sess.User.Email != tc.wantEmail {
				t.Fatalf("identity = %+v", sess.User)
			}
			if !sess.Authenticated() {
				t.Fatalf("expected authenticated session")
			}

			persisted, err := store.Get(ctx, "sid-test", KeyToken)
			if err != nil || persisted != tc.wantToken {
				t.Fatalf("persisted token = %q err=%v", persisted, err)
			}
			if _, err := store.Get(ctx, "sid-test", KeyUser); err != nil {
				t.Fatalf("expected identity persisted: %v", err)
			}
		})
	}
}

func TestEstablishWithoutTokenPersistsNothing(t *testing.T) {
	b, store := testBootstrapper(t)
	ctx := context.Background()

	_, err := b.Establish(ctx, map[string]any{}, "a@b.com")
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}

	_, err = b.Establish(ctx, map[string]any{"id": "u1", "email": "a@b.com"}, "a@b.com")
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken for tokenless user record, got %v", err)
	}

	if _, err := store.Get(ctx, "sid-test", KeyToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected nothing persisted, got %v", err)
	}
}

func TestEstablishRejectsNonObjectResult(t *testing.T) {
	b, _ := testBootstrapper(t)

	for _, result := range []any{nil, "a token string", []any{"x"}} {
		if _, err := b.Establish(context.Background(), result, "a@b.com"); !errors.Is(err, ErrUnrecognizedResponse) {
			t.Fatalf("expected ErrUnrecognizedResponse for %T, got %v", result, err)
		}
	}
}

func TestClearErasesPair(t *testing.T) {
	b, store := testBootstrapper(t)
	ctx := context.Background()

	if _, err := b.Establish(ctx, map[string]any{"token": "t", "user": map[string]any{"id": "u1", "email": "a@b.com"}}, ""); err != nil {
		t.Fatalf("Establish() error = %v", err)
	}

	sess, err := b.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if sess.Authenticated() {
		t.Fatalf("expected empty session")
	}
	if _, err := store.Get(ctx, "sid-test", KeyToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected token erased, got %v", err)
	}
}
