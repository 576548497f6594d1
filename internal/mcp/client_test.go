// ABOUTME: Tests for the MCP client session lifecycle
// ABOUTME: Uses httptest fake servers to cover connect, discovery, invocation, and reconnect

package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeToolServer is a minimal MCP-style HTTP server for tests.
type fakeToolServer struct {
	*httptest.Server
	healthStatus int
	tools        []map[string]any
	callHandler  http.HandlerFunc

	healthCalls atomic.Int64
	listCalls   atomic.Int64
}

func newFakeToolServer(t *testing.T) *fakeToolServer {
	t.Helper()
	fs := &fakeToolServer{healthStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fs.healthCalls.Add(1)
		w.WriteHeader(fs.healthStatus)
		if fs.healthStatus == http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{"status": "ok", "tools_count": len(fs.tools)})
		}
	})
	mux.HandleFunc("/tools/list", func(w http.ResponseWriter, r *http.Request) {
		fs.listCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"tools": fs.tools})
	})
	mux.HandleFunc("/tools/", func(w http.ResponseWriter, r *http.Request) {
		if fs.callHandler != nil {
			fs.callHandler(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": "ok"})
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://host:8080", "http://host:8080"},
		{"http://host:8080/", "http://host:8080"},
		{"http://host:8080/mcp", "http://host:8080"},
		{"http://host:8080/mcp/", "http://host:8080"},
		{"http://host:8080/api/mcp", "http://host:8080/api"},
	}
	for _, tt := range tests {
		if got := BaseURL(tt.in); got != tt.want {
			t.Errorf("BaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConnect_DiscoversTools(t *testing.T) {
	fs := newFakeToolServer(t)
	fs.tools = []map[string]any{
		{"name": "search", "description": "Search things", "input_schema": map[string]any{"type": "object"}},
		{"name": "lookup"},
	}

	session := NewClientSession(ServerConfig{Name: "knowledge", URL: fs.URL})
	require.True(t, session.Connect(context.Background()))
	assert.True(t, session.Connected())

	tools := session.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "search", tools[0].Name)
	assert.Equal(t, "knowledge", tools[0].ServerName)
	assert.Equal(t, "knowledge_search", tools[0].PrefixedName())
	// Discovery fills defaults for missing fields
	assert.Equal(t, "Tool: lookup", tools[1].Description)
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, tools[1].InputSchema)
}

func TestConnect_StripsMCPSuffix(t *testing.T) {
	fs := newFakeToolServer(t)
	session := NewClientSession(ServerConfig{Name: "srv", URL: fs.URL + "/mcp"})
	require.True(t, session.Connect(context.Background()))
	assert.Equal(t, int64(1), fs.healthCalls.Load())
}

func TestConnect_UnhealthyServer(t *testing.T) {
	fs := newFakeToolServer(t)
	fs.healthStatus = http.StatusServiceUnavailable

	session := NewClientSession(ServerConfig{Name: "srv", URL: fs.URL})
	assert.False(t, session.Connect(context.Background()))
	assert.False(t, session.Connected())
}

func TestConnect_Unreachable(t *testing.T) {
	session := NewClientSession(ServerConfig{
		Name:    "badhost",
		URL:     "http://127.0.0.1:1",
		Timeout: 500 * time.Millisecond,
	})
	assert.False(t, session.Connect(context.Background()))
}

func TestConnect_DiscoveryFailureStaysConnected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/tools/list", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := NewClientSession(ServerConfig{Name: "srv", URL: srv.URL})
	require.True(t, session.Connect(context.Background()))
	assert.True(t, session.Connected())
	assert.Empty(t, session.Tools())
}

func TestListTools_RetriesDiscoveryWhenEmpty(t *testing.T) {
	fs := newFakeToolServer(t)

	session := NewClientSession(ServerConfig{Name: "srv", URL: fs.URL})
	require.True(t, session.Connect(context.Background()))
	assert.Empty(t, session.Tools())

	// Server becomes ready after connect
	fs.tools = []map[string]any{{"name": "late"}}
	tools := session.ListTools(context.Background())
	require.Len(t, tools, 1)
	assert.Equal(t, "late", tools[0].Name)
}

func TestCallTool_NotConnected(t *testing.T) {
	session := NewClientSession(ServerConfig{Name: "srv", URL: "http://127.0.0.1:1"})

	result := session.CallTool(context.Background(), "anything", nil)
	assert.Equal(t, false, result["success"])
	assert.Contains(t, result["error"], "Not connected to MCP server srv")
}

func TestCallTool_PostConvention(t *testing.T) {
	fs := newFakeToolServer(t)
	var gotMethod, gotPath, gotAuth string
	var gotBody map[string]any
	fs.callHandler = func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"rows": 3}})
	}

	session := NewClientSession(ServerConfig{
		Name:    "knowledge",
		URL:     fs.URL + "/mcp",
		Headers: map[string]string{"Authorization": "Bearer tok"},
	})
	require.True(t, session.Connect(context.Background()))

	result := session.CallTool(context.Background(), "search", map[string]any{"q": "x"})
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/tools/search", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, map[string]any{"q": "x"}, gotBody)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, map[string]any{"rows": float64(3)}, result["result"])
}

func TestCallTool_BareBodyBecomesResult(t *testing.T) {
	fs := newFakeToolServer(t)
	fs.callHandler = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"rows": float64(2)})
	}

	session := NewClientSession(ServerConfig{Name: "srv", URL: fs.URL})
	require.True(t, session.Connect(context.Background()))

	result := session.CallTool(context.Background(), "search", nil)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, map[string]any{"rows": float64(2)}, result["result"])
}

func TestCallTool_LegacyGetConvention(t *testing.T) {
	fs := newFakeToolServer(t)
	var gotMethod, gotQuery string
	fs.callHandler = func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]any{"success": true, "result": "code found"})
	}

	session := NewClientSession(ServerConfig{Name: "cardapi", URL: fs.URL})
	require.True(t, session.Connect(context.Background()))

	result := session.CallTool(context.Background(), "lookup_decline_code", map[string]any{"code": "51"})
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "code=51", gotQuery)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "code found", result["result"])
}

func TestCallTool_ErrorStatuses(t *testing.T) {
	tests := []struct {
		status  int
		wantErr string
	}{
		{http.StatusUnauthorized, "Authentication failed (401). Token may have expired."},
		{http.StatusForbidden, "Access denied (403). Insufficient permissions."},
		{http.StatusInternalServerError, "Tool search returned error: HTTP 500"},
		{http.StatusNotFound, "Tool search returned error: HTTP 404"},
	}

	for _, tt := range tests {
		fs := newFakeToolServer(t)
		fs.callHandler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}

		session := NewClientSession(ServerConfig{Name: "srv", URL: fs.URL})
		require.True(t, session.Connect(context.Background()))

		result := session.CallTool(context.Background(), "search", nil)
		assert.Equal(t, false, result["success"])
		assert.Equal(t, tt.wantErr, result["error"])
	}
}

func TestCallTool_TransportError(t *testing.T) {
	fs := newFakeToolServer(t)
	session := NewClientSession(ServerConfig{Name: "srv", URL: fs.URL, Timeout: 500 * time.Millisecond})
	require.True(t, session.Connect(context.Background()))
	fs.Close()

	result := session.CallTool(context.Background(), "search", nil)
	assert.Equal(t, false, result["success"])
	assert.Contains(t, result["error"], "Failed to call tool search")
}

func TestDisconnect_Idempotent(t *testing.T) {
	fs := newFakeToolServer(t)
	fs.tools = []map[string]any{{"name": "search"}}

	session := NewClientSession(ServerConfig{Name: "srv", URL: fs.URL})
	require.True(t, session.Connect(context.Background()))
	require.NotEmpty(t, session.Tools())

	session.Disconnect()
	assert.False(t, session.Connected())
	assert.Empty(t, session.Tools())

	// Safe to call again
	session.Disconnect()
	assert.False(t, session.Connected())
}

func TestReconnect_RetriesUntilSuccess(t *testing.T) {
	fs := newFakeToolServer(t)
	fs.healthStatus = http.StatusServiceUnavailable

	session := NewClientSession(ServerConfig{
		Name:          "srv",
		URL:           fs.URL,
		RetryAttempts: 5,
		RetryDelay:    10 * time.Millisecond,
	})

	// Flip the server healthy shortly after the first failed attempt
	go func() {
		time.Sleep(25 * time.Millisecond)
		fs.healthStatus = http.StatusOK
	}()

	assert.True(t, session.Reconnect(context.Background()))
	assert.True(t, session.Connected())
}

func TestReconnect_ExhaustsAttempts(t *testing.T) {
	fs := newFakeToolServer(t)
	fs.healthStatus = http.StatusServiceUnavailable

	session := NewClientSession(ServerConfig{
		Name:          "srv",
		URL:           fs.URL,
		RetryAttempts: 2,
		RetryDelay:    5 * time.Millisecond,
	})

	assert.False(t, session.Reconnect(context.Background()))
	assert.False(t, session.Connected())
	// One health check per attempt
	assert.Equal(t, int64(2), fs.healthCalls.Load())
}
