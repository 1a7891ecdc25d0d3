// Package api is the thin HTTP client for the Terroir backend. It owns no
// business logic: search ranking, geo filtering, persistence, and token
// issuance all happen upstream. The client's one policy decision is
// translating 401/403 responses into ErrAuthRejected so the app layer can
// force-clear the browser session in a single place.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrAuthRejected is returned for any 401 or 403 upstream response.
var ErrAuthRejected = errors.New("upstream rejected credentials")

// Client calls the external REST backend.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Story is an editable draft or published story as the backend returns it.
// Body is left untyped: depending on the endpoint version it arrives as a
// native JSON value or as an escaped string needing normalization.
type Story struct {
	ID         string `json:"id"`
	TemplateID string `json:"templateId"`
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	Status     string `json:"status"`
	Body       any    `json:"body"`
	UpdatedAt  string `json:"updatedAt"`
}

// MarketplaceQuery is passed through to the backend untouched.
type MarketplaceQuery struct {
	Text   string
	Lat    string
	Lng    string
	Radius string
	Page   int
}

// Register creates a producer account. The response shape varies across
// backend versions, so the raw decoded value is returned for the session
// bootstrapper to resolve.
func (c *Client) Register(ctx context.Context, email, password, displayName string) (any, error) {
	var result any
	err := c.do(ctx, http.MethodPost, "/auth/register", "", map[string]any{
		"email":       email,
		"password":    password,
		"displayName": displayName,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return result, nil
}

// Login authenticates a producer. Like Register, the raw decoded response
// is returned for shape resolution.
func (c *Client) Login(ctx context.Context, email, password string) (any, error) {
	var result any
	err := c.do(ctx, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return result, nil
}

func (c *Client) ListStories(ctx context.Context, token string) ([]Story, error) {
	var payload struct {
		Stories []Story `json:"stories"`
	}
	if err := c.do(ctx, http.MethodGet, "/stories", token, nil, &payload); err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	return payload.Stories, nil
}

func (c *Client) CreateDraft(ctx context.Context, token, templateID, title, body string) (Story, error) {
	var story Story
	err := c.do(ctx, http.MethodPost, "/stories", token, map[string]any{
		"templateId": templateID,
		"title":      title,
		"body":       body,
	}, &story)
	if err != nil {
		return Story{}, fmt.Errorf("create draft: %w", err)
	}
	return story, nil
}

func (c *Client) GetDraft(ctx context.Context, token, storyID string) (Story, error) {
	var story Story
	if err := c.do(ctx, http.MethodGet, "/stories/"+url.PathEscape(storyID)+"/draft", token, nil, &story); err != nil {
		return Story{}, fmt.Errorf("get draft: %w", err)
	}
	return story, nil
}

// SaveDraft writes the draft body back. The body string is the document
// serialized with exactly one JSON-encode pass; the transport escaping the
// normalizer undoes is never reapplied here.
func (c *Client) SaveDraft(ctx context.Context, token, storyID, body string) (Story, error) {
	var story Story
	err := c.do(ctx, http.MethodPut, "/stories/"+url.PathEscape(storyID)+"/draft", token, map[string]any{
		"body": body,
	}, &story)
	if err != nil {
		return Story{}, fmt.Errorf("save draft: %w", err)
	}
	return story, nil
}

func (c *Client) Publish(ctx context.Context, token, storyID string) (Story, error) {
	var story Story
	if err := c.do(ctx, http.MethodPost, "/stories/"+url.PathEscape(storyID)+"/publish", token, nil, &story); err != nil {
		return Story{}, fmt.Errorf("publish story: %w", err)
	}
	return story, nil
}

// PublicStory fetches a published story by slug, no credentials required.
func (c *Client) PublicStory(ctx context.Context, slug string) (Story, error) {
	var story Story
	if err := c.do(ctx, http.MethodGet, "/public/stories/"+url.PathEscape(slug), "", nil, &story); err != nil {
		return Story{}, fmt.Errorf("public story: %w", err)
	}
	return story, nil
}

func (c *Client) GetProfile(ctx context.Context, token string) (map[string]any, error) {
	var payload map[string]any
	if err := c.do(ctx, http.MethodGet, "/profiles/me", token, nil, &payload); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return payload, nil
}

func (c *Client) SaveProfile(ctx context.Context, token string, profile map[string]any) (map[string]any, error) {
	var payload map[string]any
	if err := c.do(ctx, http.MethodPut, "/profiles/me", token, profile, &payload); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return payload, nil
}

// Marketplace forwards a browse/search query. Ranking and radius filtering
// are upstream concerns; parameters pass through verbatim.
func (c *Client) Marketplace(ctx context.Context, q MarketplaceQuery) (map[string]any, error) {
	values := url.Values{}
	if q.Text != "" {
		values.Set("q", q.Text)
	}
	if q.Lat != "" && q.Lng != "" {
		values.Set("lat", q.Lat)
		values.Set("lng", q.Lng)
	}
	if q.Radius != "" {
		values.Set("radius", q.Radius)
	}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	path := "/marketplace"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var payload map[string]any
	if err := c.do(ctx, http.MethodGet, path, "", nil, &payload); err != nil {
		return nil, fmt.Errorf("marketplace: %w", err)
	}
	return payload, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, target any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s %s: %w", method, path, ErrAuthRejected)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: upstream status %d: %s", method, path, resp.StatusCode, upstreamMessage(resp.Body))
	}

	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// upstreamMessage pulls a short error string out of a failure body, for
// log context only.
func upstreamMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil || len(data) == 0 {
		return "no body"
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(data))
}
