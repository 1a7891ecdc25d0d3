package suggest

import (
	"context"
	"log"
)

// Fallback answers a suggestion query when Meilisearch is unavailable,
// normally by passing the text through to the upstream marketplace search.
type Fallback func(ctx context.Context, text string, limit int) ([]Producer, error)

// Service is the facade that tries the local index first and falls back
// to the upstream passthrough.
type Service struct {
	meili    *Meili
	fallback Fallback
}

// NewService creates a suggestion service. meili may be nil if Meilisearch
// is not configured.
func NewService(meili *Meili, fallback Fallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Suggest never fails the request: on any error the result is simply empty.
func (s *Service) Suggest(ctx context.Context, text string, limit int) []Producer {
	if s.meili != nil && s.meili.Healthy() {
		producers, err := s.meili.Suggest(text, limit)
		if err == nil {
			return nonNil(producers)
		}
		log.Printf("suggest: meilisearch error, falling back to upstream: %v", err)
	}

	if s.fallback == nil {
		return []Producer{}
	}
	producers, err := s.fallback(ctx, text, limit)
	if err != nil {
		log.Printf("suggest: fallback error: %v", err)
		return []Producer{}
	}
	return nonNil(producers)
}

// IndexProducers feeds the cache (fire-and-forget to Meilisearch).
func (s *Service) IndexProducers(producers []Producer) {
	if s.meili == nil || !s.meili.Healthy() || len(producers) == 0 {
		return
	}
	go func() {
		if err := s.meili.IndexProducers(producers); err != nil {
			log.Printf("suggest: index producers: %v", err)
		}
	}()
}

// ExtractProducers pulls producer entries out of an untyped marketplace
// response. The walk is defensive: the upstream shape varies, and anything
// unrecognized is skipped rather than erroring.
func ExtractProducers(payload any) []Producer {
	root, ok := payload.(map[string]any)
	if !ok {
		return nil
	}

	var items []any
	for _, key := range []string{"results", "items", "producers"} {
		if list, ok := root[key].([]any); ok {
			items = list
			break
		}
	}

	producers := make([]Producer, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		p := Producer{
			ID:     stringField(entry, "id", "producerId"),
			Name:   stringField(entry, "name", "displayName"),
			Region: stringField(entry, "region"),
		}
		if p.ID == "" || p.Name == "" {
			continue
		}
		if list, ok := entry["products"].([]any); ok {
			for _, product := range list {
				if name, ok := product.(string); ok {
					p.Products = append(p.Products, name)
					continue
				}
				if record, ok := product.(map[string]any); ok {
					if name := stringField(record, "name"); name != "" {
						p.Products = append(p.Products, name)
					}
				}
			}
		}
		producers = append(producers, p)
	}
	return producers
}

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := m[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func nonNil(p []Producer) []Producer {
	if p == nil {
		return []Producer{}
	}
	return p
}
