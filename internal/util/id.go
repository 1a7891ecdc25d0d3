package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns 128 bits of hex, optionally prefixed ("sid_…"). Used for
// session cookie values, so it must come from crypto/rand.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
