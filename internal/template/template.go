// Package template defines the story templates producers build from. The
// editable field vocabulary is closed and compiled in: the editor UI and
// the field patch flow must agree on it exactly, and a path outside the
// vocabulary is rejected before any patch is attempted.
package template

import "strings"

type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	// Fields are dot-paths into the content document; "*" stands for an
	// array index segment (authored as ".<digits>." in concrete paths).
	Fields   []string       `json:"fields"`
	defaults map[string]any
}

var registry = []Template{
	{
		ID:          "farm-story",
		Name:        "Farm Story",
		Description: "A hero banner, the journey from field to market in steps, a photo gallery, and customer words.",
		Fields: []string{
			"heroTitle",
			"heroImage",
			"introText",
			"steps.*.title",
			"steps.*.text",
			"steps.*.image",
			"galleryImages.*",
			"testimonials.*.quote",
			"testimonials.*.author",
		},
		defaults: map[string]any{
			"heroTitle": "Our story starts in the soil",
			"heroImage": "",
			"introText": "Tell visitors who you are and what you grow.",
			"steps": []any{
				map[string]any{"title": "Planting", "text": "", "image": ""},
			},
		},
	},
	{
		ID:          "producer-profile",
		Name:        "Producer Profile",
		Description: "The marketplace card: who you are, where to find you, and what you sell.",
		Fields: []string{
			"displayName",
			"tagline",
			"about",
			"region",
			"heroImage",
			"products.*.name",
			"products.*.description",
			"products.*.price",
			"contact.email",
			"contact.phone",
		},
		defaults: map[string]any{
			"displayName": "",
			"tagline":     "",
			"about":       "",
			"region":      "",
		},
	},
}

// All lists the available templates.
func All() []Template {
	out := make([]Template, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a template by ID.
func Lookup(id string) (Template, bool) {
	for _, t := range registry {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Allows reports whether a concrete field path belongs to this template's
// vocabulary. A "*" pattern segment matches a digits-only path segment.
func (t Template) Allows(path string) bool {
	segments := strings.Split(path, ".")
	for _, field := range t.Fields {
		if matches(strings.Split(field, "."), segments) {
			return true
		}
	}
	return false
}

// DefaultDocument returns a fresh copy of the template's starting
// document, safe for the caller to patch.
func (t Template) DefaultDocument() map[string]any {
	doc, _ := deepCopy(t.defaults).(map[string]any)
	if doc == nil {
		doc = map[string]any{}
	}
	return doc
}

// MaxIndex caps the array index a wildcard segment may address. No story
// section needs more entries than this, and the patch applier grows arrays
// to the addressed index, so the gate must bound it.
const MaxIndex = 100

func matches(pattern, segments []string) bool {
	if len(pattern) != len(segments) {
		return false
	}
	for i, p := range pattern {
		if p == "*" {
			if !indexInRange(segments[i]) {
				return false
			}
			continue
		}
		if p != segments[i] {
			return false
		}
	}
	return true
}

func indexInRange(s string) bool {
	if s == "" || len(s) > 3 {
		return false
	}
	index := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
		index = index*10 + int(r-'0')
	}
	return index <= MaxIndex
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}
