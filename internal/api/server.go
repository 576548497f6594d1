// ABOUTME: HTTP server wiring the management API routes over chi
// ABOUTME: Maps admin package errors to HTTP statuses

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/toolgate/internal/admin"
	"github.com/2389/toolgate/internal/auth"
)

// Server holds the API dependencies. tokens may be nil, which disables
// authentication entirely (local development).
type Server struct {
	manager *admin.Manager
	tokens  *auth.APITokens

	passwordHash string
	logger       *slog.Logger
}

// NewServer creates the API server. passwordHash is the bcrypt hash accepted
// by the login endpoint.
func NewServer(manager *admin.Manager, tokens *auth.APITokens, passwordHash string) *Server {
	return &Server{
		manager:      manager,
		tokens:       tokens,
		passwordHash: passwordHash,
		logger:       slog.Default().With("component", "api"),
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Post("/auth/login", s.handleLogin)

	r.Route("/api/v1/mcp", func(r chi.Router) {
		if s.tokens != nil {
			r.Use(s.requireAuth)
		}
		r.Get("/servers", s.handleListServers)
		r.Post("/servers", s.handleAddServer)
		r.Post("/servers/test", s.handleTestServer)
		r.Delete("/servers/{name}", s.handleRemoveServer)
		r.Get("/tools", s.handleListTools)
		r.Post("/oauth/start", s.handleOAuthStart)
		r.Post("/oauth/callback", s.handleOAuthCallback)
		r.Get("/oauth/status/{name}", s.handleOAuthStatus)
	})

	return r
}

// requireAuth checks the Authorization bearer token on every request.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if err := s.tokens.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeManagerError maps admin package errors to HTTP statuses, preserving
// upstream statuses from OAuth token exchanges where meaningful.
func writeManagerError(w http.ResponseWriter, err error) {
	var remote *admin.RemoteError
	if errors.As(err, &remote) {
		status := http.StatusBadRequest
		switch remote.Status {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusMethodNotAllowed:
			status = remote.Status
		}
		writeError(w, status, remote.Error())
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, admin.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, admin.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, admin.ErrInvalidInput),
		errors.Is(err, admin.ErrStateInvalid),
		errors.Is(err, admin.ErrStateExpired):
		status = http.StatusBadRequest
	case errors.Is(err, admin.ErrUnreachable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, admin.ErrRegistration):
		status = http.StatusInternalServerError
	case strings.Contains(err.Error(), "failed to contact token endpoint"):
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}

// elapsedMS returns milliseconds since start, rounded to two decimals.
func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
