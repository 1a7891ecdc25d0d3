package content

import "strings"

// Apply sets one scalar field inside a document and returns the new root.
//
// The path is dot-separated; a segment of decimal digits addresses an array
// index, anything else an object key. Containers missing along the path, or
// of the wrong kind for their segment, are created fresh — template drafts
// often omit optional nested arrays, and the caller must be able to patch
// "steps.2.title" into a document that has no steps at all. Arrays grow with
// nil holes up to the addressed index.
//
// Apply never mutates its input: every container the path touches is
// shallow-copied and untouched siblings are shared by reference, so callers
// can detect change by reference inequality. Paths come from the fixed
// template vocabulary, never from user input, so there is no failure mode.
func Apply(doc any, path string, value any) any {
	return assign(doc, strings.Split(path, "."), value)
}

func assign(node any, segments []string, value any) any {
	if len(segments) == 0 {
		return value
	}
	segment := segments[0]

	if index, ok := arrayIndex(segment); ok {
		existing, _ := node.([]any)
		length := len(existing)
		if index+1 > length {
			length = index + 1
		}
		next := make([]any, length)
		copy(next, existing)
		next[index] = assign(next[index], segments[1:], value)
		return next
	}

	existing, _ := node.(map[string]any)
	next := make(map[string]any, len(existing)+1)
	for key, child := range existing {
		next[key] = child
	}
	next[segment] = assign(existing[segment], segments[1:], value)
	return next
}

// arrayIndex reports whether a path segment looks like a base-10
// non-negative integer. The check is purely syntactic, matching how the
// template field names are authored (array access is always ".<digits>.").
// Digit runs too long to be a real index would overflow int and grow the
// array by their parsed value; those are treated as object keys instead.
func arrayIndex(segment string) (int, bool) {
	if segment == "" || len(segment) > 9 {
		return 0, false
	}
	index := 0
	for _, r := range segment {
		if r < '0' || r > '9' {
			return 0, false
		}
		index = index*10 + int(r-'0')
	}
	return index, true
}
