// Package auth recovers a display identity from a bearer token issued by
// the upstream backend. The front end never verifies tokens — validity is
// the backend's concern on every subsequent request — it only reads the
// payload segment to hydrate the signed-in user's name and email when the
// login response carried no explicit user record.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the persisted user record. Mirrors the user_data blob the
// browser front end keeps alongside the bearer token.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Name      string `json:"name,omitempty"`
}

// IsZero reports whether no identity was resolved at all.
func (i Identity) IsZero() bool {
	return i.ID == "" && i.Email == ""
}

// DecodeIdentity reads the middle segment of a JWT-shaped token and maps the
// conventional claim names onto an Identity. The decode is deliberately
// permissive about base64 variants and must never be used for authorization
// decisions, only display hydration. Any malformed token returns
// ErrInvalidToken; callers fall back to an email-derived identity.
func DecodeIdentity(token string) (Identity, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return Identity{}, ErrInvalidToken
	}

	payload := strings.ReplaceAll(parts[1], "-", "+")
	payload = strings.ReplaceAll(payload, "_", "/")
	decoded, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	var claims map[string]any
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{
		ID:        firstClaim(claims, "sub", "userId", "id"),
		Email:     firstClaim(claims, "email"),
		FirstName: firstClaim(claims, "given_name", "firstName"),
		LastName:  firstClaim(claims, "family_name", "lastName"),
		Name:      firstClaim(claims, "name"),
	}
	if identity.Name == "" && (identity.FirstName != "" || identity.LastName != "") {
		identity.Name = strings.TrimSpace(identity.FirstName + " " + identity.LastName)
	}
	if identity.IsZero() {
		return Identity{}, ErrInvalidToken
	}
	return identity, nil
}

// FallbackIdentity builds a minimal identity from the email the user just
// typed, for tokens whose payload cannot be decoded.
func FallbackIdentity(email string) Identity {
	name := email
	if at := strings.Index(email, "@"); at > 0 {
		name = email[:at]
	}
	return Identity{ID: email, Email: email, Name: name}
}

// FromRecord maps an untyped user record from a login or register response
// onto an Identity, tolerating the field aliases seen across upstream
// endpoint versions.
func FromRecord(record map[string]any) Identity {
	identity := Identity{
		ID:        firstClaim(record, "id", "userId", "sub"),
		Email:     firstClaim(record, "email"),
		FirstName: firstClaim(record, "firstName", "given_name"),
		LastName:  firstClaim(record, "lastName", "family_name"),
		Name:      firstClaim(record, "name", "displayName"),
	}
	if identity.Name == "" && (identity.FirstName != "" || identity.LastName != "") {
		identity.Name = strings.TrimSpace(identity.FirstName + " " + identity.LastName)
	}
	return identity
}

func firstClaim(claims map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			// Some endpoints return numeric ids.
			data, _ := json.Marshal(v)
			return string(data)
		}
	}
	return ""
}
