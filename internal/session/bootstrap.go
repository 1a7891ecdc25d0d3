package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"terroir/web/internal/auth"
)

var (
	// ErrMissingToken means the login or register response yielded no
	// bearer token anywhere; nothing was persisted.
	ErrMissingToken = errors.New("login response carried no token")
	// ErrUnrecognizedResponse means the response was not even an object.
	ErrUnrecognizedResponse = errors.New("unrecognized login response shape")
)

// tokenAliases are the field names upstream endpoints have used for the
// bearer token across versions.
var tokenAliases = []string{"token", "accessToken", "access_token", "authToken", "jwt"}

// Session is the in-memory authentication state for one browser session.
type Session struct {
	Token string
	User  auth.Identity
}

// Authenticated reports whether both token and identity are present. A
// token without an identity is a transient state Establish resolves before
// anything is persisted.
func (s Session) Authenticated() bool {
	return s.Token != "" && !s.User.IsZero()
}

// Bootstrapper reads and writes one browser session's credential pair. It
// is the only code that touches the persisted auth_token/user_data keys;
// route guards and the upstream client depend on it, never on the store
// directly.
type Bootstrapper struct {
	store Store
	sid   string
}

func NewBootstrapper(store Store, sid string) *Bootstrapper {
	return &Bootstrapper{store: store, sid: sid}
}

// Load reconstructs the session from persisted state, with no network
// call. A partial or corrupted pair is erased and treated as signed out.
func (b *Bootstrapper) Load(ctx context.Context) (Session, error) {
	token, err := b.store.Get(ctx, b.sid, KeyToken)
	if errors.Is(err, ErrNotFound) {
		return b.Clear(ctx)
	}
	if err != nil {
		return Session{}, err
	}

	blob, err := b.store.Get(ctx, b.sid, KeyUser)
	if errors.Is(err, ErrNotFound) {
		return b.Clear(ctx)
	}
	if err != nil {
		return Session{}, err
	}

	var identity auth.Identity
	if err := json.Unmarshal([]byte(blob), &identity); err != nil || identity.IsZero() {
		return b.Clear(ctx)
	}

	return Session{Token: token, User: identity}, nil
}

// Establish turns the raw result of a login or register call into an
// authenticated session and persists the credential pair. The response
// shape is not guaranteed by contract; resolution tries, in order:
//
//  1. token and user fields directly on the result;
//  2. nested under data;
//  3. the result itself is the user record, token from an alias field;
//  4. token only — identity recovered from the token payload, or derived
//     from fallbackEmail when the payload cannot be decoded.
//
// A malformed token is never fatal once it exists; only the complete
// absence of a token is. Nothing is persisted on failure.
func (b *Bootstrapper) Establish(ctx context.Context, result any, fallbackEmail string) (Session, error) {
	m, ok := result.(map[string]any)
	if !ok {
		return Session{}, ErrUnrecognizedResponse
	}

	token, identity := resolve(m, fallbackEmail)
	if token == "" {
		return Session{}, ErrMissingToken
	}

	blob, err := json.Marshal(identity)
	if err != nil {
		return Session{}, fmt.Errorf("encode identity: %w", err)
	}
	if err := b.store.Set(ctx, b.sid, KeyToken, token); err != nil {
		return Session{}, err
	}
	if err := b.store.Set(ctx, b.sid, KeyUser, string(blob)); err != nil {
		return Session{}, err
	}

	return Session{Token: token, User: identity}, nil
}

func resolve(m map[string]any, fallbackEmail string) (string, auth.Identity) {
	if user, ok := m["user"].(map[string]any); ok {
		if token := tokenField(m); token != "" {
			return token, auth.FromRecord(user)
		}
	}

	if data, ok := m["data"].(map[string]any); ok {
		if user, ok := data["user"].(map[string]any); ok {
			if token := tokenField(data); token != "" {
				return token, auth.FromRecord(user)
			}
		}
	}

	if _, hasID := m["id"]; hasID {
		if _, hasEmail := m["email"]; hasEmail {
			return tokenField(m), auth.FromRecord(m)
		}
	}

	if token := tokenField(m); token != "" {
		identity, err := auth.DecodeIdentity(token)
		if err != nil {
			identity = auth.FallbackIdentity(fallbackEmail)
		}
		return token, identity
	}

	return "", auth.Identity{}
}

// Clear erases the persisted pair and returns the signed-out session. The
// route guard treats this as requiring a redirect to the entry point.
func (b *Bootstrapper) Clear(ctx context.Context) (Session, error) {
	if err := b.store.Delete(ctx, b.sid, KeyToken, KeyUser); err != nil {
		return Session{}, err
	}
	return Session{}, nil
}

func tokenField(m map[string]any) string {
	for _, alias := range tokenAliases {
		if token, ok := m[alias].(string); ok && token != "" {
			return token
		}
	}
	return ""
}
