// ABOUTME: Handlers for the management API endpoints
// ABOUTME: Server CRUD, tool listing, OAuth flow, login, and readiness

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/toolgate/internal/admin"
	"github.com/2389/toolgate/internal/auth"
)

// serverRequestBody is the wire form of a server add/test request. Timeout is
// float seconds on the wire.
type serverRequestBody struct {
	Name      string             `json:"name"`
	URL       string             `json:"url"`
	Transport string             `json:"transport"`
	Timeout   float64            `json:"timeout"`
	Headers   map[string]string  `json:"headers"`
	AuthToken string             `json:"auth_token"`
	OAuth     *admin.OAuthConfig `json:"oauth"`
}

func (b serverRequestBody) toRequest() admin.ServerRequest {
	return admin.ServerRequest{
		Name:      b.Name,
		URL:       b.URL,
		Transport: b.Transport,
		Timeout:   time.Duration(b.Timeout * float64(time.Second)),
		Headers:   b.Headers,
		AuthToken: b.AuthToken,
		OAuth:     b.OAuth,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if s.tokens == nil || s.passwordHash == "" {
		writeError(w, http.StatusNotFound, "authentication is not configured")
		return
	}
	if !auth.CheckPassword(s.passwordHash, body.Password) {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token, err := s.tokens.Issue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(s.tokens.TTL().Seconds()),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"servers": s.manager.Snapshot(),
	})
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	servers := s.manager.ListServers(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"total":            len(servers),
		"servers":          servers,
		"startup_status":   s.manager.Snapshot(),
		"response_time_ms": elapsedMS(start),
	})
}

func (s *Server) handleAddServer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var body serverRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.manager.AddServer(r.Context(), body.toRequest())
	if err != nil {
		writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"message":          result.Message,
		"server":           result.Server,
		"response_time_ms": elapsedMS(start),
	})
}

func (s *Server) handleTestServer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var body serverRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := s.manager.TestServer(r.Context(), body.toRequest())
	writeJSON(w, http.StatusOK, struct {
		admin.TestResult
		ResponseTimeMS float64 `json:"response_time_ms"`
	}{result, elapsedMS(start)})
}

func (s *Server) handleRemoveServer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "name")

	result, err := s.manager.RemoveServer(r.Context(), name)
	if err != nil {
		writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"message":          result.Message,
		"tools_removed":    result.ToolsRemoved,
		"response_time_ms": elapsedMS(start),
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	server := r.URL.Query().Get("server")
	listing := s.manager.ListTools(server)

	var filter any
	if server != "" {
		filter = map[string]string{"server": server}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"total":            listing.Total,
		"tools":            listing.Tools,
		"by_server":        listing.ByServer,
		"filter":           filter,
		"response_time_ms": elapsedMS(start),
	})
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	var body admin.OAuthStartRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name == "" || body.URL == "" || body.RedirectURI == "" || body.OAuth.ClientID == "" || body.OAuth.AuthURL == "" || body.OAuth.TokenURL == "" {
		writeError(w, http.StatusBadRequest, "name, url, redirect_uri, and oauth config are required")
		return
	}

	writeJSON(w, http.StatusOK, s.manager.StartOAuth(body))
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.manager.CompleteOAuth(r.Context(), body.Code, body.State)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOAuthStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	writeJSON(w, http.StatusOK, s.manager.OAuthStatus(name))
}
