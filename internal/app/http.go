package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"terroir/web/internal/api"
	"terroir/web/internal/media"
	"terroir/web/internal/util"
)

const sidCookieName = "terroir_sid"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	sessionTTL time.Duration
}

func NewHTTPServer(service *Service, corsOrigin string, sessionTTL time.Duration) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, sessionTTL: sessionTTL}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"sessions": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["sessions"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Public routes, no session cookie required.
	parts := splitPath(r.URL.Path)
	if r.Method == http.MethodGet && len(parts) == 4 && parts[0] == "api" && parts[1] == "public" && parts[2] == "stories" {
		s.handlePublicStory(w, r, parts[3])
		return
	}
	if r.Method == http.MethodGet && len(parts) == 4 && parts[0] == "api" && parts[1] == "share" {
		switch parts[3] {
		case "qr.png":
			s.handleShareQR(w, r, parts[2])
			return
		case "poster.pdf":
			s.handlePoster(w, r, parts[2])
			return
		}
	}

	sid := s.ensureSID(w, r)

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/register":
		s.handleRegister(w, r, sid)
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/login":
		s.handleLogin(w, r, sid)
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout":
		s.handleLogout(w, r, sid)
	case r.Method == http.MethodGet && r.URL.Path == "/api/session":
		s.handleSession(w, r, sid)
	case r.Method == http.MethodGet && r.URL.Path == "/api/templates":
		writeJSON(w, http.StatusOK, map[string]any{"templates": s.service.Templates()})
	case r.URL.Path == "/api/stories" && r.Method == http.MethodGet:
		s.handleListStories(w, r, sid)
	case r.URL.Path == "/api/stories" && r.Method == http.MethodPost:
		s.handleCreateDraft(w, r, sid)
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "stories" && parts[3] == "draft":
		s.handleDraft(w, r, sid, parts[2])
	case r.Method == http.MethodPost && len(parts) == 4 && parts[0] == "api" && parts[1] == "stories" && parts[3] == "publish":
		s.handlePublish(w, r, sid, parts[2])
	case r.URL.Path == "/api/profile" && r.Method == http.MethodGet:
		s.handleGetProfile(w, r, sid)
	case r.URL.Path == "/api/profile" && r.Method == http.MethodPut:
		s.handleSaveProfile(w, r, sid)
	case r.Method == http.MethodGet && r.URL.Path == "/api/marketplace":
		s.handleMarketplace(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/suggest":
		s.handleSuggest(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/media":
		s.handleUploadMedia(w, r, sid)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// ensureSID returns the browser session id, minting the cookie on first
// contact. The id is opaque; all session state lives server-side.
func (s *HTTPServer) ensureSID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sidCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	sid := util.NewID("sid")
	http.SetCookie(w, &http.Cookie{
		Name:     sidCookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request, sid string) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.Email) == "" || body.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email and password are required", nil)
		return
	}
	sess, err := s.service.Register(r.Context(), sid, body.Email, body.Password, body.Name)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": sess.User})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request, sid string) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, err := s.service.SignIn(r.Context(), sid, body.Email, body.Password)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": sess.User})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request, sid string) {
	if err := s.service.SignOut(r.Context(), sid); err != nil {
		log.Printf("app: sign out: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request, sid string) {
	sess, err := s.service.CurrentSession(r.Context(), sid)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if !sess.Authenticated() {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": sess.User})
}

func (s *HTTPServer) handleListStories(w http.ResponseWriter, r *http.Request, sid string) {
	stories, err := s.service.ListStories(r.Context(), sid)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if stories == nil {
		stories = []api.Story{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stories": stories})
}

func (s *HTTPServer) handleCreateDraft(w http.ResponseWriter, r *http.Request, sid string) {
	var body struct {
		TemplateID string `json:"templateId"`
		Title      string `json:"title"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
		return
	}
	story, err := s.service.CreateDraft(r.Context(), sid, body.TemplateID, body.Title)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, story)
}

func (s *HTTPServer) handleDraft(w http.ResponseWriter, r *http.Request, sid, storyID string) {
	switch r.Method {
	case http.MethodGet:
		draft, err := s.service.GetDraft(r.Context(), sid, storyID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, draft)
	case http.MethodPatch:
		var body struct {
			Path  string `json:"path"`
			Value any    `json:"value"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Path) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "path is required", nil)
			return
		}
		draft, err := s.service.UpdateDraftField(r.Context(), sid, storyID, body.Path, body.Value)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, draft)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handlePublish(w http.ResponseWriter, r *http.Request, sid, storyID string) {
	story, err := s.service.Publish(r.Context(), sid, storyID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, story)
}

func (s *HTTPServer) handleGetProfile(w http.ResponseWriter, r *http.Request, sid string) {
	profile, err := s.service.GetProfile(r.Context(), sid)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleSaveProfile(w http.ResponseWriter, r *http.Request, sid string) {
	var profile map[string]any
	if err := decodeBody(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	saved, err := s.service.SaveProfile(r.Context(), sid, profile)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *HTTPServer) handleMarketplace(w http.ResponseWriter, r *http.Request) {
	query := api.MarketplaceQuery{
		Text:   strings.TrimSpace(r.URL.Query().Get("q")),
		Lat:    strings.TrimSpace(r.URL.Query().Get("lat")),
		Lng:    strings.TrimSpace(r.URL.Query().Get("lng")),
		Radius: strings.TrimSpace(r.URL.Query().Get("radius")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "page must be an integer", nil)
			return
		}
		query.Page = page
	}
	result, err := s.service.Marketplace(r.Context(), query)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleSuggest(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := 8
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	producers := s.service.SuggestProducers(r.Context(), text, limit)
	writeJSON(w, http.StatusOK, map[string]any{"producers": producers})
}

func (s *HTTPServer) handleUploadMedia(w http.ResponseWriter, r *http.Request, sid string) {
	if err := r.ParseMultipartForm(media.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form expected", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file field is required", nil)
		return
	}
	defer file.Close()

	url, err := s.service.UploadMedia(r.Context(), sid, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"url": url})
}

func (s *HTTPServer) handlePublicStory(w http.ResponseWriter, r *http.Request, slug string) {
	draft, err := s.service.PublicStory(r.Context(), slug)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleShareQR(w http.ResponseWriter, r *http.Request, slug string) {
	png, err := s.service.ShareQR(r.Context(), slug)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *HTTPServer) handlePoster(w http.ResponseWriter, r *http.Request, slug string) {
	result, err := s.service.Poster(r.Context(), slug)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("app: %v", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, api.ErrAuthRejected) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
