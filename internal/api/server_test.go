// ABOUTME: End-to-end tests for the management API
// ABOUTME: Drives the chi router against an httptest MCP backend

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/toolgate/internal/admin"
	"github.com/2389/toolgate/internal/auth"
	"github.com/2389/toolgate/internal/registry"
)

// newBackend starts a fake MCP server with the given tools.
func newBackend(t *testing.T, tools []map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
	mux.HandleFunc("/tools/list", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"tools": tools})
	})
	mux.HandleFunc("/tools/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"result": "ok"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testAPI struct {
	*httptest.Server
	registry *registry.Registry
	token    string
}

// newTestAPI builds a full API server. With withAuth, a token authority and
// password hash are configured and a valid token is pre-issued.
func newTestAPI(t *testing.T, withAuth bool) *testAPI {
	t.Helper()
	reg := registry.New()
	manager := admin.NewManager(reg, nil, nil, nil)
	t.Cleanup(manager.Close)

	var tokens *auth.APITokens
	var passwordHash string
	var token string
	if withAuth {
		tokens = auth.NewAPITokens([]byte("test-secret"), time.Hour)
		hash, err := auth.HashPassword("hunter2")
		require.NoError(t, err)
		passwordHash = hash
		token, err = tokens.Issue()
		require.NoError(t, err)
	}

	s := NewServer(manager, tokens, passwordHash)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testAPI{Server: srv, registry: reg, token: token}
}

// do sends a JSON request with the API token attached.
func (a *testAPI) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.URL+path, reader)
	require.NoError(t, err)
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t, true)
	api.token = ""

	resp, body := api.do(t, http.MethodPost, "/auth/login", map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = api.do(t, http.MethodPost, "/auth/login", map[string]string{"password": "hunter2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, float64(3600), body["expires_in"])

	// The issued token opens the protected routes
	api.token = body["token"].(string)
	resp, _ = api.do(t, http.MethodGet, "/api/v1/mcp/servers", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t, true)

	// Without a token
	api.token = ""
	resp, _ := api.do(t, http.MethodGet, "/api/v1/mcp/servers", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// With a garbage token
	api.token = "garbage"
	resp, _ = api.do(t, http.MethodGet, "/api/v1/mcp/servers", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// healthz stays open
	resp, body := api.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAddServer_EndToEnd(t *testing.T) {
	backend := newBackend(t, []map[string]any{
		{"name": "search", "description": "Search the knowledge base"},
	})
	api := newTestAPI(t, false)

	resp, body := api.do(t, http.MethodPost, "/api/v1/mcp/servers", map[string]any{
		"name": "knowledge",
		"url":  backend.URL,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "MCP server 'knowledge' added successfully", body["message"])
	assert.Contains(t, body, "response_time_ms")

	server := body["server"].(map[string]any)
	assert.Equal(t, "healthy", server["status"])
	assert.Equal(t, "runtime", server["source"])
	assert.Equal(t, []any{"knowledge_search"}, server["tool_names"])

	// The tool is registered and routable
	assert.True(t, api.registry.IsMCPTool("knowledge_search"))

	// Tool listing groups it under the server prefix
	resp, body = api.do(t, http.MethodGet, "/api/v1/mcp/tools", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])
	byServer := body["by_server"].(map[string]any)
	assert.Equal(t, []any{"knowledge_search"}, byServer["knowledge"])

	// Filter passthrough
	resp, body = api.do(t, http.MethodGet, "/api/v1/mcp/tools?server=knowledge", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"server": "knowledge"}, body["filter"])
}

func TestAddServer_Conflict(t *testing.T) {
	backend := newBackend(t, nil)
	api := newTestAPI(t, false)

	resp, _ := api.do(t, http.MethodPost, "/api/v1/mcp/servers", map[string]any{"name": "srv", "url": backend.URL})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := api.do(t, http.MethodPost, "/api/v1/mcp/servers", map[string]any{"name": "srv", "url": backend.URL})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["detail"], "already exists")
}

func TestAddServer_Unreachable(t *testing.T) {
	api := newTestAPI(t, false)

	resp, body := api.do(t, http.MethodPost, "/api/v1/mcp/servers", map[string]any{
		"name":    "badhost",
		"url":     "http://127.0.0.1:1",
		"timeout": 1,
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["detail"], "Cannot connect to MCP server")
}

func TestAddServer_InvalidInput(t *testing.T) {
	api := newTestAPI(t, false)

	resp, body := api.do(t, http.MethodPost, "/api/v1/mcp/servers", map[string]any{
		"name": "srv",
		"url":  "not-a-url",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["detail"], "http://")
}

func TestTestServer(t *testing.T) {
	backend := newBackend(t, []map[string]any{{"name": "search"}})
	api := newTestAPI(t, false)

	resp, body := api.do(t, http.MethodPost, "/api/v1/mcp/servers/test", map[string]any{
		"name": "probe",
		"url":  backend.URL,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, float64(1), body["tools_count"])
	assert.Contains(t, body, "response_time_ms")

	// Read-only: nothing registered
	assert.False(t, api.registry.IsMCPTool("probe_search"))
}

func TestTestServer_Unreachable(t *testing.T) {
	api := newTestAPI(t, false)

	resp, body := api.do(t, http.MethodPost, "/api/v1/mcp/servers/test", map[string]any{
		"name":    "badhost",
		"url":     "http://127.0.0.1:1",
		"timeout": 1,
	})
	// Test failures are results, not HTTP errors
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, false, body["connected"])
	assert.Contains(t, body["error"], "Connection failed")
}

func TestRemoveServer(t *testing.T) {
	backend := newBackend(t, []map[string]any{{"name": "search"}})
	api := newTestAPI(t, false)

	resp, _ := api.do(t, http.MethodPost, "/api/v1/mcp/servers", map[string]any{"name": "srv", "url": backend.URL})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := api.do(t, http.MethodDelete, "/api/v1/mcp/servers/srv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["tools_removed"])
	assert.False(t, api.registry.IsMCPTool("srv_search"))

	resp, _ = api.do(t, http.MethodDelete, "/api/v1/mcp/servers/srv", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListServers(t *testing.T) {
	backend := newBackend(t, []map[string]any{{"name": "search"}})
	api := newTestAPI(t, false)

	resp, _ := api.do(t, http.MethodPost, "/api/v1/mcp/servers", map[string]any{"name": "srv", "url": backend.URL})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := api.do(t, http.MethodGet, "/api/v1/mcp/servers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, float64(1), body["total"])

	servers := body["servers"].([]any)
	require.Len(t, servers, 1)
	first := servers[0].(map[string]any)
	assert.Equal(t, "srv", first["name"])
	assert.Equal(t, "healthy", first["status"])

	startup := body["startup_status"].(map[string]any)
	assert.Contains(t, startup, "srv")
}

func TestOAuthEndpoints(t *testing.T) {
	api := newTestAPI(t, false)

	// Start returns an auth URL and state
	resp, body := api.do(t, http.MethodPost, "/api/v1/mcp/oauth/start", map[string]any{
		"name":         "secured",
		"url":          "http://secured:8080",
		"redirect_uri": "http://localhost/cb",
		"oauth": map[string]any{
			"client_id": "c",
			"auth_url":  "https://login/auth",
			"token_url": "https://login/token",
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["auth_url"])
	assert.NotEmpty(t, body["state"])

	// Missing fields are rejected
	resp, _ = api.do(t, http.MethodPost, "/api/v1/mcp/oauth/start", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Callback with an unknown state
	resp, body = api.do(t, http.MethodPost, "/api/v1/mcp/oauth/callback", map[string]any{
		"code":  "code",
		"state": "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["detail"], "restart the authentication flow")

	// Status for a server with no tokens
	resp, body = api.do(t, http.MethodGet, "/api/v1/mcp/oauth/status/secured", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["authenticated"])
}
