// Package app wires browser sessions, the upstream Terroir API, and the
// content pipeline into the operations the HTTP layer exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"terroir/web/internal/api"
	"terroir/web/internal/content"
	"terroir/web/internal/export"
	"terroir/web/internal/media"
	"terroir/web/internal/session"
	"terroir/web/internal/share"
	"terroir/web/internal/suggest"
	"terroir/web/internal/template"
)

type Service struct {
	store      session.Store
	api        *api.Client
	suggest    *suggest.Service
	media      *media.Uploader
	publicBase string
}

func NewService(store session.Store, client *api.Client, sugg *suggest.Service, uploader *media.Uploader, publicBase string) *Service {
	return &Service{
		store:      store,
		api:        client,
		suggest:    sugg,
		media:      uploader,
		publicBase: publicBase,
	}
}

// Ping reports session-store connectivity for readiness checks.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Service) bootstrapper(sid string) *session.Bootstrapper {
	return session.NewBootstrapper(s.store, sid)
}

// CurrentSession loads the browser session. An unauthenticated session is
// not an error; callers check Authenticated().
func (s *Service) CurrentSession(ctx context.Context, sid string) (session.Session, error) {
	sess, err := s.bootstrapper(sid).Load(ctx)
	if err != nil {
		return session.Session{}, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// Register creates an account upstream and establishes the session from
// whatever shape the response takes.
func (s *Service) Register(ctx context.Context, sid, email, password, name string) (session.Session, error) {
	result, err := s.api.Register(ctx, email, password, name)
	if err != nil {
		if errors.Is(err, api.ErrAuthRejected) {
			return session.Session{}, domainError(http.StatusUnauthorized, "REGISTRATION_REJECTED", "Registration rejected", nil)
		}
		return session.Session{}, fmt.Errorf("upstream register: %w", err)
	}
	return s.establish(ctx, sid, result, email)
}

// SignIn authenticates upstream and establishes the session.
func (s *Service) SignIn(ctx context.Context, sid, email, password string) (session.Session, error) {
	result, err := s.api.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, api.ErrAuthRejected) {
			return session.Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		}
		return session.Session{}, fmt.Errorf("upstream login: %w", err)
	}
	return s.establish(ctx, sid, result, email)
}

func (s *Service) establish(ctx context.Context, sid string, result any, email string) (session.Session, error) {
	sess, err := s.bootstrapper(sid).Establish(ctx, result, email)
	if err != nil {
		if errors.Is(err, session.ErrMissingToken) || errors.Is(err, session.ErrUnrecognizedResponse) {
			return session.Session{}, domainError(http.StatusBadGateway, "UPSTREAM_RESPONSE_INVALID", "Authentication service returned an unusable response", nil)
		}
		return session.Session{}, fmt.Errorf("establish session: %w", err)
	}
	return sess, nil
}

// SignOut clears the server-side session. Clearing an absent session is fine.
func (s *Service) SignOut(ctx context.Context, sid string) error {
	_, err := s.bootstrapper(sid).Clear(ctx)
	return err
}

// authed resolves the bearer token for sid or fails with 401.
func (s *Service) authed(ctx context.Context, sid string) (session.Session, error) {
	sess, err := s.CurrentSession(ctx, sid)
	if err != nil {
		return session.Session{}, err
	}
	if !sess.Authenticated() {
		return session.Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Sign in required", nil)
	}
	return sess, nil
}

// authRejected is the single place an upstream 401/403 turns into a cleared
// session, so a revoked token cannot keep serving stale pages.
func (s *Service) authRejected(ctx context.Context, sid string, err error) error {
	if !errors.Is(err, api.ErrAuthRejected) {
		return err
	}
	if _, clearErr := s.bootstrapper(sid).Clear(ctx); clearErr != nil {
		log.Printf("app: clear rejected session: %v", clearErr)
	}
	return domainError(http.StatusUnauthorized, "SESSION_EXPIRED", "Session expired, sign in again", nil)
}

// Templates lists the story templates authors can start from.
func (s *Service) Templates() []template.Template {
	return template.All()
}

func (s *Service) ListStories(ctx context.Context, sid string) ([]api.Story, error) {
	sess, err := s.authed(ctx, sid)
	if err != nil {
		return nil, err
	}
	stories, err := s.api.ListStories(ctx, sess.Token)
	if err != nil {
		return nil, s.authRejected(ctx, sid, err)
	}
	return stories, nil
}

// CreateDraft starts a story from a template, seeding the draft with the
// template's default document.
func (s *Service) CreateDraft(ctx context.Context, sid, templateID, title string) (api.Story, error) {
	sess, err := s.authed(ctx, sid)
	if err != nil {
		return api.Story{}, err
	}
	tpl, ok := template.Lookup(templateID)
	if !ok {
		return api.Story{}, domainError(http.StatusUnprocessableEntity, "UNKNOWN_TEMPLATE", "Unknown story template", map[string]any{"templateId": templateID})
	}
	body, err := content.Encode(tpl.DefaultDocument())
	if err != nil {
		return api.Story{}, fmt.Errorf("encode default document: %w", err)
	}
	story, err := s.api.CreateDraft(ctx, sess.Token, templateID, title, body)
	if err != nil {
		return api.Story{}, s.authRejected(ctx, sid, err)
	}
	return story, nil
}

// Draft carries a story with its body already normalized to a document tree.
type Draft struct {
	Story    api.Story      `json:"story"`
	Document map[string]any `json:"document"`
}

func (s *Service) GetDraft(ctx context.Context, sid, storyID string) (Draft, error) {
	sess, err := s.authed(ctx, sid)
	if err != nil {
		return Draft{}, err
	}
	story, err := s.api.GetDraft(ctx, sess.Token, storyID)
	if err != nil {
		return Draft{}, s.authRejected(ctx, sid, err)
	}
	doc, err := normalizeBody(story.Body)
	if err != nil {
		return Draft{}, err
	}
	return Draft{Story: story, Document: doc}, nil
}

// UpdateDraftField patches one field path in a draft and saves the result
// upstream in a single store round trip.
func (s *Service) UpdateDraftField(ctx context.Context, sid, storyID, path string, value any) (Draft, error) {
	sess, err := s.authed(ctx, sid)
	if err != nil {
		return Draft{}, err
	}
	story, err := s.api.GetDraft(ctx, sess.Token, storyID)
	if err != nil {
		return Draft{}, s.authRejected(ctx, sid, err)
	}

	// No registered template means no vocabulary to check against, so no
	// patch is admitted at all.
	tpl, ok := template.Lookup(story.TemplateID)
	if !ok {
		return Draft{}, domainError(http.StatusUnprocessableEntity, "UNKNOWN_TEMPLATE", "Story uses a template this editor does not know", map[string]any{"templateId": story.TemplateID})
	}
	if !tpl.Allows(path) {
		return Draft{}, domainError(http.StatusUnprocessableEntity, "FIELD_NOT_ALLOWED", "Field path not part of the story template", map[string]any{"path": path})
	}

	doc, err := normalizeBody(story.Body)
	if err != nil {
		return Draft{}, err
	}

	patched := content.Apply(doc, path, value)
	encoded, err := content.Encode(patched)
	if err != nil {
		return Draft{}, fmt.Errorf("encode document: %w", err)
	}
	saved, err := s.api.SaveDraft(ctx, sess.Token, storyID, encoded)
	if err != nil {
		return Draft{}, s.authRejected(ctx, sid, err)
	}

	result, ok := patched.(map[string]any)
	if !ok {
		result = map[string]any{}
	}
	return Draft{Story: saved, Document: result}, nil
}

// normalizeBody decodes a stored body into a document tree. A body that
// cannot be decoded is surfaced as corrupt rather than silently emptied;
// an absent body becomes an empty document.
func normalizeBody(body any) (map[string]any, error) {
	doc, err := content.Normalize(body)
	if err != nil {
		var nerr *content.NormalizeError
		if errors.As(err, &nerr) {
			return nil, domainError(http.StatusUnprocessableEntity, "CONTENT_CORRUPTED", "Stored story content is corrupted", nil)
		}
		return nil, err
	}
	if doc == nil {
		return map[string]any{}, nil
	}
	tree, ok := doc.(map[string]any)
	if !ok {
		// Arrays and scalars are legal JSON but not story documents.
		return map[string]any{}, nil
	}
	return tree, nil
}

func (s *Service) Publish(ctx context.Context, sid, storyID string) (api.Story, error) {
	sess, err := s.authed(ctx, sid)
	if err != nil {
		return api.Story{}, err
	}
	story, err := s.api.Publish(ctx, sess.Token, storyID)
	if err != nil {
		return api.Story{}, s.authRejected(ctx, sid, err)
	}
	return story, nil
}

// PublicStory fetches a published story by slug. No session required.
func (s *Service) PublicStory(ctx context.Context, slug string) (Draft, error) {
	story, err := s.api.PublicStory(ctx, slug)
	if err != nil {
		return Draft{}, err
	}
	doc, err := normalizeBody(story.Body)
	if err != nil {
		return Draft{}, err
	}
	return Draft{Story: story, Document: doc}, nil
}

func (s *Service) GetProfile(ctx context.Context, sid string) (any, error) {
	sess, err := s.authed(ctx, sid)
	if err != nil {
		return nil, err
	}
	profile, err := s.api.GetProfile(ctx, sess.Token)
	if err != nil {
		return nil, s.authRejected(ctx, sid, err)
	}
	return profile, nil
}

func (s *Service) SaveProfile(ctx context.Context, sid string, profile map[string]any) (any, error) {
	sess, err := s.authed(ctx, sid)
	if err != nil {
		return nil, err
	}
	saved, err := s.api.SaveProfile(ctx, sess.Token, profile)
	if err != nil {
		return nil, s.authRejected(ctx, sid, err)
	}
	return saved, nil
}

// Marketplace proxies the search upstream and opportunistically feeds the
// typeahead index from whatever producers ride along in the response.
func (s *Service) Marketplace(ctx context.Context, query api.MarketplaceQuery) (any, error) {
	result, err := s.api.Marketplace(ctx, query)
	if err != nil {
		return nil, err
	}
	if s.suggest != nil {
		s.suggest.IndexProducers(suggest.ExtractProducers(result))
	}
	return result, nil
}

// SuggestProducers answers typeahead queries. Always succeeds; a cold cache
// or a down index just means fewer suggestions.
func (s *Service) SuggestProducers(ctx context.Context, text string, limit int) []suggest.Producer {
	if s.suggest == nil {
		return []suggest.Producer{}
	}
	return s.suggest.Suggest(ctx, text, limit)
}

// UploadMedia stores an image and returns its public URL for use in a
// story document.
func (s *Service) UploadMedia(ctx context.Context, sid, contentType string, size int64, reader io.Reader) (string, error) {
	sess, err := s.authed(ctx, sid)
	if err != nil {
		return "", err
	}
	if s.media == nil {
		return "", domainError(http.StatusServiceUnavailable, "MEDIA_DISABLED", "Media uploads are not configured", nil)
	}
	url, err := s.media.Upload(ctx, sess.User.ID, contentType, size, reader)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) || errors.Is(err, media.ErrTooLarge) {
			return "", domainError(http.StatusUnprocessableEntity, "MEDIA_REJECTED", err.Error(), nil)
		}
		return "", fmt.Errorf("upload media: %w", err)
	}
	return url, nil
}

// ShareQR renders the QR code pointing at a published story.
func (s *Service) ShareQR(ctx context.Context, slug string) ([]byte, error) {
	// Only published stories get share codes.
	if _, err := s.api.PublicStory(ctx, slug); err != nil {
		return nil, err
	}
	return share.QRPNG(share.StoryURL(s.publicBase, slug), 512)
}

// Poster renders the printable market-stall poster for a published story.
func (s *Service) Poster(ctx context.Context, slug string) (*export.Result, error) {
	draft, err := s.PublicStory(ctx, slug)
	if err != nil {
		return nil, err
	}

	url := share.StoryURL(s.publicBase, draft.Story.Slug)
	qr, err := share.QRPNG(url, 512)
	if err != nil {
		return nil, err
	}

	poster := export.Poster{
		Title:    draft.Story.Title,
		Tagline:  docString(draft.Document, "tagline", "heroTitle"),
		Region:   docString(draft.Document, "region"),
		Producer: docString(draft.Document, "displayName"),
		HeroURL:  docString(draft.Document, "heroImage"),
		ShareURL: url,
		QRPNG:    qr,
	}
	if products, ok := draft.Document["products"].([]any); ok {
		for _, product := range products {
			if record, ok := product.(map[string]any); ok {
				if name, ok := record["name"].(string); ok && name != "" {
					poster.Products = append(poster.Products, name)
				}
			}
		}
	}

	result, err := export.GeneratePoster(poster)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "POSTER_UNAVAILABLE", "Poster rendering is not available", nil)
		}
		return nil, err
	}
	return result, nil
}

func docString(doc map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := doc[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// SuggestFallback builds the upstream passthrough used when the local
// index cannot answer.
func SuggestFallback(client *api.Client) suggest.Fallback {
	return func(ctx context.Context, text string, limit int) ([]suggest.Producer, error) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		result, err := client.Marketplace(ctx, api.MarketplaceQuery{Text: text})
		if err != nil {
			return nil, err
		}
		producers := suggest.ExtractProducers(result)
		if limit > 0 && len(producers) > limit {
			producers = producers[:limit]
		}
		return producers, nil
	}
}
