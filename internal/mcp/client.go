// ABOUTME: Client session for one MCP server connection
// ABOUTME: Handles health-checked connect, tool discovery, invocation, and linear-backoff reconnect

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ServerConfig holds the connection details for one MCP server.
// Immutable once a session is built from it.
type ServerConfig struct {
	Name          string
	URL           string
	Transport     Transport
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	Headers       map[string]string
}

// withDefaults fills in the optional fields.
func (c ServerConfig) withDefaults() ServerConfig {
	if c.Transport == "" {
		c.Transport = TransportStreamableHTTP
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// ToolInfo describes a tool discovered from an MCP server.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]any
	ServerName  string
}

// PrefixedName returns the tool name with the server prefix. This is the
// identity used everywhere outside the owning session.
func (t ToolInfo) PrefixedName() string {
	return t.ServerName + "_" + t.Name
}

// BaseURL strips a trailing slash and any trailing /mcp suffix from a server
// URL. Health and tool endpoints live at the root, not under /mcp.
func BaseURL(rawURL string) string {
	base := strings.TrimRight(rawURL, "/")
	return strings.TrimSuffix(base, "/mcp")
}

// ClientSession is a client for one MCP server. It tracks connection state,
// caches discovered tools, and routes invocations. Safe for concurrent use.
type ClientSession struct {
	cfg    ServerConfig
	base   string
	client *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
	tools     []ToolInfo
}

// NewClientSession creates a session for the given server. The session starts
// disconnected; call Connect before invoking tools.
func NewClientSession(cfg ServerConfig) *ClientSession {
	cfg = cfg.withDefaults()
	return &ClientSession{
		cfg:    cfg,
		base:   BaseURL(cfg.URL),
		client: &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default().With("component", "mcp-client", "server", cfg.Name),
	}
}

// Config returns the configuration this session was built from.
func (s *ClientSession) Config() ServerConfig {
	return s.cfg
}

// ServerName returns the server name for this session.
func (s *ClientSession) ServerName() string {
	return s.cfg.Name
}

// Connected reports whether the session is connected.
func (s *ClientSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Tools returns a copy of the cached tool list.
func (s *ClientSession) Tools() []ToolInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	tools := make([]ToolInfo, len(s.tools))
	copy(tools, s.tools)
	return tools
}

// Connect verifies the server with a health check and, on success, discovers
// its tools. Returns false (never an error) when the server is unreachable or
// unhealthy. Discovery failure does not roll back the connected state; it
// just leaves the tool cache empty.
func (s *ClientSession) Connect(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return true
	}

	status, _, err := s.getJSON(ctx, s.base+"/health", nil)
	if err != nil {
		s.logger.Error("failed to connect to MCP server", "url", s.cfg.URL, "error", err)
		return false
	}
	if status != http.StatusOK {
		s.logger.Warn("MCP server health check failed", "status", status)
		return false
	}

	s.connected = true
	s.logger.Info("connected to MCP server", "url", s.cfg.URL)

	s.discoverLocked(ctx)
	return true
}

// discoverLocked fetches the tool list from /tools/list. Any failure leaves
// an empty tool cache and is logged, never fatal. Caller must hold s.mu.
func (s *ClientSession) discoverLocked(ctx context.Context) {
	status, body, err := s.getJSON(ctx, s.base+"/tools/list", nil)
	if err != nil || status != http.StatusOK {
		s.logger.Warn("tool discovery failed", "status", status, "error", err)
		s.tools = nil
		return
	}

	var payload struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"input_schema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		s.logger.Warn("tool discovery returned malformed response", "error", err)
		s.tools = nil
		return
	}

	tools := make([]ToolInfo, 0, len(payload.Tools))
	for _, t := range payload.Tools {
		info := ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			ServerName:  s.cfg.Name,
		}
		if info.Description == "" {
			info.Description = "Tool: " + t.Name
		}
		if info.InputSchema == nil {
			info.InputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, info)
	}
	s.tools = tools
	s.logger.Info("discovered tools from MCP server", "count", len(tools))
}

// ListTools returns the cached tools, re-running discovery if the cache is
// empty. Covers the case where discovery ran before the server was ready.
func (s *ClientSession) ListTools(ctx context.Context) []ToolInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tools) == 0 {
		s.discoverLocked(ctx)
	}
	tools := make([]ToolInfo, len(s.tools))
	copy(tools, s.tools)
	return tools
}

// Disconnect resets the session to disconnected and clears the tool cache.
// Idempotent; it does not cancel an in-flight call.
func (s *ClientSession) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		s.logger.Info("disconnected from MCP server")
	}
	s.connected = false
	s.tools = nil
	s.client.CloseIdleConnections()
}

// Reconnect disconnects, then retries Connect up to RetryAttempts times with
// linear backoff (RetryDelay * attempt number). Returns true as soon as one
// attempt succeeds.
func (s *ClientSession) Reconnect(ctx context.Context) bool {
	s.Disconnect()
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		if s.Connect(ctx) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.cfg.RetryDelay * time.Duration(attempt)):
		}
	}
	return false
}

// CallTool invokes a tool by its bare (unprefixed) name. Returns a structured
// result map; failures never surface as errors.
func (s *ClientSession) CallTool(ctx context.Context, name string, args map[string]any) map[string]any {
	if !s.Connected() {
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("Not connected to MCP server %s", s.cfg.Name),
		}
	}
	return InvokeTool(ctx, s.client, s.cfg.URL, s.cfg.Headers, name, args)
}

// getJSON performs a GET with the session headers and returns status and body.
func (s *ClientSession) getJSON(ctx context.Context, rawURL string, query url.Values) (int, []byte, error) {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// legacyGetTools maps well-known tool names to fixed GET endpoints. Everything
// else is invoked with POST and a JSON body.
var legacyGetTools = map[string]bool{
	"lookup_decline_code":  true,
	"search_decline_codes": true,
}

// InvokeTool performs one tool invocation against a server URL. It is shared
// by ClientSession and by the executors the management layer registers, so
// both paths speak the same convention. The result is always a structured map.
func InvokeTool(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, name string, args map[string]any) map[string]any {
	base := BaseURL(rawURL)
	endpoint := base + "/tools/" + name

	var req *http.Request
	var err error
	if legacyGetTools[name] {
		query := url.Values{}
		for k, v := range args {
			query.Set(k, fmt.Sprint(v))
		}
		if len(query) > 0 {
			endpoint += "?" + query.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	} else {
		if args == nil {
			args = map[string]any{}
		}
		var payload []byte
		payload, err = json.Marshal(args)
		if err == nil {
			req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if req != nil {
				req.Header.Set("Content-Type", "application/json")
			}
		}
	}
	if err != nil {
		return callFailure(name, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return callFailure(name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return callFailure(name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return map[string]any{"success": false, "error": statusMessage(name, resp.StatusCode)}
	}

	if legacyGetTools[name] {
		var data map[string]any
		if err := json.Unmarshal(body, &data); err != nil {
			return callFailure(name, err)
		}
		success := any(true)
		if v, ok := data["success"]; ok {
			success = v
		}
		result := any(data)
		if v, ok := data["result"]; ok {
			result = v
		}
		return map[string]any{"success": success, "result": result}
	}

	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		return callFailure(name, err)
	}
	if m, ok := result.(map[string]any); ok {
		if v, present := m["result"]; present {
			return map[string]any{"success": true, "result": v}
		}
	}
	return map[string]any{"success": true, "result": result}
}

func callFailure(name string, err error) map[string]any {
	return map[string]any{
		"success": false,
		"error":   fmt.Sprintf("Failed to call tool %s: %v", name, err),
	}
}

// statusMessage renders an HTTP error status as a message an LLM caller can
// react to sensibly.
func statusMessage(name string, status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "Authentication failed (401). Token may have expired."
	case http.StatusForbidden:
		return "Access denied (403). Insufficient permissions."
	default:
		return fmt.Sprintf("Tool %s returned error: HTTP %d", name, status)
	}
}
