// Package content parses, patches, and re-serializes story and profile
// body documents. A body arrives from the upstream API as a native JSON
// value, a JSON string, a double-encoded JSON string, or a string whose
// internal quotes were backslash-escaped in transport; Normalize folds
// all of those into one in-memory document.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned (wrapped in *NormalizeError) when a body fails
// to parse. Callers must surface a blocking error and abort the edit flow;
// guessing a partial document here has resaved corrupted content before.
var ErrMalformed = errors.New("malformed content document")

// NormalizeError carries the raw transport value that failed to decode.
type NormalizeError struct {
	Raw any
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("malformed content document (raw %T)", e.Raw)
}

func (e *NormalizeError) Unwrap() error { return ErrMalformed }

// Normalize converts a raw transport value into a content document.
//
// Non-string objects and arrays are returned unchanged. Strings get at most
// two decode passes: one after undoing the transport's quote escaping, and a
// second only if the first pass itself yields a string (double encoding).
// Anything else (nil, bool, number) normalizes to an empty object. A string
// "null" parses to JSON null; callers replace that with an empty object
// before editing.
func Normalize(raw any) (any, error) {
	switch v := raw.(type) {
	case map[string]any, []any:
		return v, nil
	case string:
		return normalizeString(v)
	default:
		return map[string]any{}, nil
	}
}

func normalizeString(raw string) (any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return map[string]any{}, nil
	}

	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		// String-in-string transport artifact: internal quotes arrive
		// backslash-escaped. Backslashes themselves are left alone here.
		text = strings.ReplaceAll(text, `\"`, `"`)
	} else {
		if strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) && len(text) >= 2 {
			text = text[1 : len(text)-1]
		}
		// Order matters: quotes first, then collapse doubled backslashes.
		text = strings.ReplaceAll(text, `\"`, `"`)
		text = strings.ReplaceAll(text, `\\`, `\`)
	}

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, &NormalizeError{Raw: raw}
	}

	// Double-encoding artifact: the first pass produced another JSON string.
	// Two passes is the ceiling.
	if inner, ok := doc.(string); ok {
		doc = nil
		if err := json.Unmarshal([]byte(inner), &doc); err != nil {
			return nil, &NormalizeError{Raw: raw}
		}
	}

	return doc, nil
}

// Encode serializes a document for the upstream body field with exactly one
// JSON-encode pass. The transport escaping Normalize undoes is never
// reapplied by hand.
func Encode(doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode content document: %w", err)
	}
	return string(data), nil
}
