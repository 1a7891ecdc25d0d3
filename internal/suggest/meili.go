// Package suggest answers marketplace search-box typeahead from a local
// Meilisearch index of producer names. The index is a cache fed from
// marketplace responses passing through this server; ranking and geo
// filtering stay upstream.
package suggest

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxProducers = "terroir_producers"

// Producer is one typeahead candidate.
type Producer struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Region   string   `json:"region,omitempty"`
	Products []string `json:"products,omitempty"`
}

// Meili wraps the Meilisearch client with background health monitoring.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the producer index.
// The caller should proceed without suggestions if the service stays down.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("suggest: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxProducers,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("suggest: create index %s (may already exist): %v", idxProducers, err)
	}

	index := m.client.Index(idxProducers)
	filterable := []interface{}{"region"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("suggest: update filterable attrs: %v", err)
	}
	searchable := []string{"name", "region", "products"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("suggest: update searchable attrs: %v", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("suggest: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Suggest queries the producer index.
func (m *Meili) Suggest(text string, limit int) ([]Producer, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = 8
	}

	resp, err := m.client.Index(idxProducers).Search(text, &meili.SearchRequest{
		Limit: int64(limit),
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	producers := make([]Producer, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		producers = append(producers, hitToProducer(hit))
	}
	return producers, nil
}

// IndexProducers adds or updates producers in the index.
func (m *Meili) IndexProducers(producers []Producer) error {
	if len(producers) == 0 {
		return nil
	}
	_, err := m.client.Index(idxProducers).AddDocuments(producers, nil)
	return err
}

func hitToProducer(hit meili.Hit) Producer {
	p := Producer{
		ID:     decodeString(hit, "id"),
		Name:   decodeString(hit, "name"),
		Region: decodeString(hit, "region"),
	}
	if raw, ok := hit["products"]; ok {
		var products []string
		if err := json.Unmarshal(raw, &products); err == nil {
			p.Products = products
		}
	}
	return p
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}
