package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoginReturnsRawShape(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["email"] != "a@b.com" {
			t.Fatalf("unexpected email: %v", body["email"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"token": "t", "user": map[string]any{"id": "u1", "email": "a@b.com"}},
		})
	}))
	defer backend.Close()

	client := New(backend.URL, time.Second)
	result, err := client.Login(context.Background(), "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("expected raw object, got %T", result)
	}
	if _, ok := m["data"]; !ok {
		t.Fatalf("response shape not preserved: %#v", m)
	}
}

func TestUnauthorizedMapsToErrAuthRejected(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	client := New(backend.URL, time.Second)
	_, err := client.GetDraft(context.Background(), "stale-token", "story-1")
	if !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
}

func TestSaveDraftSendsSingleEncodedBody(t *testing.T) {
	var received map[string]any
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Story{ID: "story-1", Status: "draft"})
	}))
	defer backend.Close()

	client := New(backend.URL, time.Second)
	body := `{"heroTitle":"Old"}`
	story, err := client.SaveDraft(context.Background(), "tok", "story-1", body)
	if err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}
	if story.ID != "story-1" {
		t.Fatalf("unexpected story: %+v", story)
	}
	if received["body"] != body {
		t.Fatalf("body field altered in transit: %v", received["body"])
	}
}

func TestMarketplacePassthroughParams(t *testing.T) {
	var query map[string][]string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer backend.Close()

	client := New(backend.URL, time.Second)
	_, err := client.Marketplace(context.Background(), MarketplaceQuery{
		Text:   "cheese",
		Lat:    "45.1",
		Lng:    "-122.8",
		Radius: "40",
		Page:   2,
	})
	if err != nil {
		t.Fatalf("Marketplace() error = %v", err)
	}
	for key, want := range map[string]string{"q": "cheese", "lat": "45.1", "lng": "-122.8", "radius": "40", "page": "2"} {
		if len(query[key]) != 1 || query[key][0] != want {
			t.Fatalf("param %s = %v, want %s", key, query[key], want)
		}
	}
}

func TestUpstreamErrorIncludesStatus(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "backend down"})
	}))
	defer backend.Close()

	client := New(backend.URL, time.Second)
	_, err := client.ListStories(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrAuthRejected) {
		t.Fatalf("502 must not map to auth rejection: %v", err)
	}
}
