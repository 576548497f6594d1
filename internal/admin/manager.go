// ABOUTME: Runtime MCP server management: list, test, add, remove
// ABOUTME: Owns the runtime server map and the readiness snapshot

package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/2389/toolgate/internal/config"
	"github.com/2389/toolgate/internal/expiry"
	"github.com/2389/toolgate/internal/mcp"
	"github.com/2389/toolgate/internal/registry"
	"github.com/2389/toolgate/internal/store"
)

// namePattern validates server names: lowercase alphanumeric, underscore and
// hyphen, 1-64 chars.
var namePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Timeout bounds for add/test requests, in seconds.
const (
	minTimeout = 1 * time.Second
	maxTimeout = 120 * time.Second

	// probeTimeout caps health checks during listing and readiness sync so a
	// slow server cannot stall the whole response.
	probeTimeout = 5 * time.Second
)

// TokenSource provides auth headers for an application id. Satisfied by
// auth.Cache. A nil TokenSource means no Azure auth.
type TokenSource interface {
	Headers(ctx context.Context, appID string) map[string]string
}

// runtimeServer is one runtime-registered server and its auth state.
type runtimeServer struct {
	Name        string
	URL         string
	Transport   string
	Timeout     time.Duration
	Headers     map[string]string
	OAuthConfig *OAuthConfig
	OAuthTokens map[string]any
	CreatedAt   time.Time
}

// Manager owns runtime server state. One instance per process; safe for
// concurrent use. The store and token source are optional.
type Manager struct {
	registry *registry.Registry
	store    store.Store
	tokens   TokenSource
	env      []config.MCPServerEntry
	logger   *slog.Logger
	now      func() time.Time

	pending *expiry.Cache[*pendingOAuth]

	mu       sync.Mutex
	runtime  map[string]*runtimeServer
	reserved map[string]struct{} // names with an add in flight
	snapshot map[string]ServerStatus
	sink     StatusSink
}

// StatusSink receives a copy of the readiness snapshot each time it is
// rebuilt. Pushes are one way: the manager never reads a sink.
type StatusSink interface {
	PublishServerStatus(snapshot map[string]ServerStatus)
}

// NewManager creates a manager over the given registry. Static config servers
// are listed but cannot be removed at runtime. st and tokens may be nil.
func NewManager(reg *registry.Registry, st store.Store, tokens TokenSource, env []config.MCPServerEntry) *Manager {
	return &Manager{
		registry: reg,
		store:    st,
		tokens:   tokens,
		env:      env,
		logger:   slog.Default().With("component", "server-manager"),
		now:      time.Now,
		pending:  expiry.New[*pendingOAuth](stateRetention, maxPendingStates),
		runtime:  make(map[string]*runtimeServer),
		reserved: make(map[string]struct{}),
		snapshot: make(map[string]ServerStatus),
	}
}

// Close releases the manager's background resources. The registry and store
// are owned by the caller and are not closed.
func (m *Manager) Close() {
	m.pending.Close()
}

// SetStatusSink installs the sink notified on snapshot rebuilds. A nil sink
// disables pushes. Call before the manager is shared across goroutines.
func (m *Manager) SetStatusSink(sink StatusSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// serverEntry is the merged view of an environment or runtime server.
type serverEntry struct {
	Name      string
	URL       string
	Transport string
	Timeout   time.Duration
	Headers   map[string]string
	Source    string
	AppID     string
}

// allServers merges environment and runtime servers. Runtime entries shadow
// environment entries with the same name.
func (m *Manager) allServers() map[string]serverEntry {
	servers := make(map[string]serverEntry)
	for _, e := range m.env {
		servers[e.Name] = serverEntry{
			Name:      e.Name,
			URL:       e.URL,
			Transport: e.Transport,
			Timeout:   e.Timeout,
			Headers:   map[string]string{},
			Source:    "environment",
			AppID:     e.AppID,
		}
	}
	m.mu.Lock()
	for name, rt := range m.runtime {
		servers[name] = serverEntry{
			Name:      rt.Name,
			URL:       rt.URL,
			Transport: rt.Transport,
			Timeout:   rt.Timeout,
			Headers:   rt.Headers,
			Source:    "runtime",
		}
	}
	m.mu.Unlock()
	return servers
}

// probeHeaders resolves the headers to use when contacting a server: the
// entry's own headers, plus Azure auth for environment servers with an app id.
func (m *Manager) probeHeaders(ctx context.Context, e serverEntry) map[string]string {
	if e.AppID == "" || m.tokens == nil {
		return e.Headers
	}
	headers := map[string]string{}
	for k, v := range e.Headers {
		headers[k] = v
	}
	for k, v := range m.tokens.Headers(ctx, e.AppID) {
		if _, ok := headers[k]; !ok {
			headers[k] = v
		}
	}
	return headers
}

// checkHealth probes a server's /health endpoint. Returns whether the server
// answered 200, the decoded health body (may be empty), and an error detail.
func checkHealth(ctx context.Context, rawURL string, timeout time.Duration, headers map[string]string) (bool, map[string]any, string) {
	healthURL := strings.TrimRight(rawURL, "/") + "/health"
	client := &http.Client{Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return false, nil, err.Error()
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, nil, fmt.Sprintf("Connection failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	var data map[string]any
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || json.Unmarshal(body, &data) != nil {
		// A healthy server with an undecodable body still counts as healthy
		return true, map[string]any{}, ""
	}
	return true, data, ""
}

// mergeAuthHeaders merges explicit headers with the auth_token convenience
// field. An existing Authorization header wins.
func mergeAuthHeaders(headers map[string]string, authToken string) map[string]string {
	merged := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		merged[k] = v
	}
	if authToken != "" {
		if _, ok := merged["Authorization"]; !ok {
			if _, ok := merged["authorization"]; !ok {
				merged["Authorization"] = "Bearer " + authToken
			}
		}
	}
	return merged
}

func hasAuthHeader(headers map[string]string) bool {
	return headers["Authorization"] != "" || headers["authorization"] != ""
}

// toolExecutor builds the executor registered for a discovered tool. Each
// invocation goes over HTTP to the owning server with that server's auth
// headers.
func toolExecutor(rawURL string, timeout time.Duration, headers map[string]string, tool string) registry.ExecutorFunc {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context, args map[string]any) (any, error) {
		return mcp.InvokeTool(ctx, client, rawURL, headers, tool, args), nil
	}
}

// discoverAndRegister connects to a server, discovers its tools, and
// registers each one under its prefixed name. Returns the prefixed names.
func (m *Manager) discoverAndRegister(ctx context.Context, name, rawURL, transport string, timeout time.Duration, headers map[string]string) ([]string, error) {
	session := mcp.NewClientSession(mcp.ServerConfig{
		Name:      name,
		URL:       rawURL,
		Transport: mcp.ParseTransport(transport),
		Timeout:   timeout,
		Headers:   headers,
	})
	if !session.Connect(ctx) {
		return nil, fmt.Errorf("MCP client connection failed")
	}
	defer session.Disconnect()

	var toolNames []string
	for _, tool := range session.ListTools(ctx) {
		prefixed := name + "_" + tool.Name

		description := tool.Description
		if description == "" {
			description = "MCP tool from " + name
		}
		parameters := tool.InputSchema
		if parameters == nil {
			parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		schema := map[string]any{
			"name":        prefixed,
			"description": description,
			"parameters":  parameters,
		}

		exec := toolExecutor(rawURL, timeout, headers, tool.Name)
		m.registry.RegisterMCP(prefixed, schema, name, transport, exec, nil, true)
		toolNames = append(toolNames, prefixed)
	}
	return toolNames, nil
}

// ListServers returns every configured server with a live health probe and
// its registered tools. Probes are capped at five seconds each.
func (m *Manager) ListServers(ctx context.Context) []ServerInfo {
	all := m.allServers()

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]ServerInfo, 0, len(names))
	for _, name := range names {
		e := all[name]
		headers := m.probeHeaders(ctx, e)
		healthy, healthData, errDetail := checkHealth(ctx, e.URL, min(e.Timeout, probeTimeout), headers)

		registered := m.registry.ListMCP(name)
		toolsCount := len(registered)
		toolNames := registered
		if healthy {
			if v, ok := healthData["tools_count"].(float64); ok {
				toolsCount = int(v)
			}
			if v, ok := healthData["tool_names"].([]any); ok && len(v) > 0 {
				toolNames = make([]string, 0, len(v))
				for _, n := range v {
					if s, ok := n.(string); ok {
						toolNames = append(toolNames, s)
					}
				}
			}
		}

		status := "healthy"
		if !healthy {
			status = "unhealthy"
		}

		infos = append(infos, ServerInfo{
			Name:       name,
			URL:        e.URL,
			Transport:  e.Transport,
			Timeout:    e.Timeout.Seconds(),
			Status:     status,
			ToolsCount: toolsCount,
			ToolNames:  toolNames,
			Error:      errDetail,
			Source:     e.Source,
			HasAuth:    hasAuthHeader(headers),
		})
	}
	return infos
}

// TestServer health checks a server and discovers its tools without
// registering anything. Failures come back in the result, never as errors.
func (m *Manager) TestServer(ctx context.Context, req ServerRequest) TestResult {
	req = req.withDefaults()
	headers := mergeAuthHeaders(req.Headers, req.AuthToken)

	if !validURL(req.URL) {
		return TestResult{
			Status: "error",
			URL:    req.URL,
			Tools:  []ToolDetail{},
			Error:  "URL must start with http:// or https://",
		}
	}

	healthy, _, errDetail := checkHealth(ctx, req.URL, req.Timeout, headers)
	if !healthy {
		return TestResult{
			Status: "unhealthy",
			URL:    req.URL,
			Tools:  []ToolDetail{},
			Error:  errDetail,
		}
	}

	var tools []ToolDetail
	session := mcp.NewClientSession(mcp.ServerConfig{
		Name:      req.Name,
		URL:       req.URL,
		Transport: mcp.ParseTransport(req.Transport),
		Timeout:   req.Timeout,
		Headers:   headers,
	})
	if session.Connect(ctx) {
		for _, tool := range session.ListTools(ctx) {
			description := tool.Description
			if description == "" {
				description = "Tool from " + req.Name
			}
			schema := tool.InputSchema
			if schema == nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			tools = append(tools, ToolDetail{
				Name:         tool.Name,
				PrefixedName: req.Name + "_" + tool.Name,
				Description:  description,
				ServerName:   req.Name,
				InputSchema:  schema,
			})
		}
		session.Disconnect()
	} else {
		errDetail = "Failed to establish MCP client connection"
	}

	status := "unhealthy"
	if len(tools) > 0 {
		status = "healthy"
	} else if healthy {
		status = "connected"
	}

	result := TestResult{
		Status:     status,
		URL:        req.URL,
		Connected:  healthy,
		ToolsCount: len(tools),
		Tools:      tools,
	}
	if result.Tools == nil {
		result.Tools = []ToolDetail{}
	}
	if len(tools) == 0 && errDetail != "" {
		result.Error = errDetail
	}
	return result
}

// reserveName atomically checks for an existing server and reserves the name
// for an in-flight add, so two concurrent adds for the same name cannot both
// pass the exists check while the first is still probing.
func (m *Manager) reserveName(name string) error {
	conflict := fmt.Errorf("%w: MCP server '%s' already exists. Use DELETE to remove it first.", ErrConflict, name)
	for _, e := range m.env {
		if e.Name == name {
			return conflict
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runtime[name]; exists {
		return conflict
	}
	if _, exists := m.reserved[name]; exists {
		return conflict
	}
	m.reserved[name] = struct{}{}
	return nil
}

func (m *Manager) releaseName(name string) {
	m.mu.Lock()
	delete(m.reserved, name)
	m.mu.Unlock()
}

// AddServer connects to a new server, registers its tools, and records it as
// a runtime server. The runtime map and store are only written after
// registration succeeds.
func (m *Manager) AddServer(ctx context.Context, req ServerRequest) (AddResult, error) {
	req = req.withDefaults()
	if err := req.validate(); err != nil {
		return AddResult{}, err
	}

	if err := m.reserveName(req.Name); err != nil {
		return AddResult{}, err
	}
	defer m.releaseName(req.Name)

	headers := mergeAuthHeaders(req.Headers, req.AuthToken)

	healthy, _, errDetail := checkHealth(ctx, req.URL, req.Timeout, headers)
	if !healthy {
		return AddResult{}, fmt.Errorf("%w: Cannot connect to MCP server at %s: %s", ErrUnreachable, req.URL, errDetail)
	}

	toolNames, err := m.discoverAndRegister(ctx, req.Name, req.URL, req.Transport, req.Timeout, headers)
	if err != nil {
		return AddResult{}, fmt.Errorf("%w: Connected to server but failed to register tools: %v", ErrRegistration, err)
	}

	rt := &runtimeServer{
		Name:      req.Name,
		URL:       req.URL,
		Transport: req.Transport,
		Timeout:   req.Timeout,
		Headers:   headers,
		CreatedAt: m.now(),
	}
	if req.OAuth != nil {
		cfg := *req.OAuth
		rt.OAuthConfig = &cfg
	}
	m.mu.Lock()
	m.runtime[req.Name] = rt
	m.mu.Unlock()

	m.persist(ctx, rt)
	m.logger.Info("MCP server added", "name", req.Name, "url", req.URL, "tools", len(toolNames))
	m.SyncStatus(ctx)

	return AddResult{
		Message: fmt.Sprintf("MCP server '%s' added successfully", req.Name),
		Server: ServerInfo{
			Name:       req.Name,
			URL:        req.URL,
			Transport:  req.Transport,
			Timeout:    req.Timeout.Seconds(),
			Status:     "healthy",
			ToolsCount: len(toolNames),
			ToolNames:  toolNames,
			Source:     "runtime",
			HasAuth:    hasAuthHeader(headers),
		},
	}, nil
}

// RemoveServer unregisters a runtime server's tools and deletes it.
// Environment servers cannot be removed at runtime.
func (m *Manager) RemoveServer(ctx context.Context, name string) (RemoveResult, error) {
	if _, exists := m.allServers()[name]; !exists {
		return RemoveResult{}, fmt.Errorf("%w: MCP server '%s' not found", ErrNotFound, name)
	}

	m.mu.Lock()
	_, isRuntime := m.runtime[name]
	m.mu.Unlock()
	if !isRuntime {
		return RemoveResult{}, fmt.Errorf("%w: MCP server '%s' is configured via the config file. To remove it, update the configuration and restart.", ErrInvalidInput, name)
	}

	removed := m.registry.UnregisterMCP(name)

	m.mu.Lock()
	delete(m.runtime, name)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.DeleteRuntimeServer(ctx, name); err != nil && err != store.ErrNotFound {
			m.logger.Warn("failed to delete persisted server", "name", name, "error", err)
		}
	}

	m.logger.Info("MCP server removed", "name", name, "tools_removed", removed)
	m.SyncStatus(ctx)

	return RemoveResult{
		Message:      fmt.Sprintf("MCP server '%s' removed successfully", name),
		ToolsRemoved: removed,
	}, nil
}

// ListTools returns all registered MCP tools, optionally filtered by server,
// grouped by the prefix of each tool name.
func (m *Manager) ListTools(server string) ToolListing {
	toolNames := m.registry.ListMCP(server)

	byServer := make(map[string][]string)
	for _, toolName := range toolNames {
		srv, _, ok := mcp.SplitPrefixedName(toolName)
		if !ok {
			srv = "unknown"
		}
		byServer[srv] = append(byServer[srv], toolName)
	}

	return ToolListing{
		Total:    len(toolNames),
		Tools:    toolNames,
		ByServer: byServer,
	}
}

// SyncStatus rebuilds the readiness snapshot by probing every server. Probes
// are capped at five seconds each.
func (m *Manager) SyncStatus(ctx context.Context) {
	all := m.allServers()
	snapshot := make(map[string]ServerStatus, len(all))

	for name, e := range all {
		headers := m.probeHeaders(ctx, e)
		healthy, healthData, errDetail := checkHealth(ctx, e.URL, min(e.Timeout, probeTimeout), headers)

		var toolNames []string
		toolsCount := 0
		if v, ok := healthData["tools_count"].(float64); ok {
			toolsCount = int(v)
		}
		if v, ok := healthData["tool_names"].([]any); ok {
			for _, n := range v {
				if s, ok := n.(string); ok {
					toolNames = append(toolNames, s)
				}
			}
		}
		if len(toolNames) == 0 {
			toolNames = m.registry.ListMCP(name)
			toolsCount = len(toolNames)
		}

		status := "healthy"
		if !healthy {
			status = "unhealthy"
		}
		snapshot[name] = ServerStatus{
			Status:     status,
			URL:        e.URL,
			Transport:  e.Transport,
			ToolsCount: toolsCount,
			ToolNames:  toolNames,
			Error:      errDetail,
		}
	}

	m.mu.Lock()
	m.snapshot = snapshot
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		out := make(map[string]ServerStatus, len(snapshot))
		for k, v := range snapshot {
			out[k] = v
		}
		sink.PublishServerStatus(out)
	}
}

// Snapshot returns the last readiness snapshot without probing.
func (m *Manager) Snapshot() map[string]ServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ServerStatus, len(m.snapshot))
	for k, v := range m.snapshot {
		out[k] = v
	}
	return out
}

// BootstrapEnvServers probes and registers every static config server. A
// server that is down at startup is logged and skipped; it still shows up in
// listings and can recover on its own.
func (m *Manager) BootstrapEnvServers(ctx context.Context) {
	for _, e := range m.env {
		entry := serverEntry{Name: e.Name, URL: e.URL, Transport: e.Transport, Timeout: e.Timeout, Headers: map[string]string{}, AppID: e.AppID}
		headers := m.probeHeaders(ctx, entry)

		healthy, _, errDetail := checkHealth(ctx, e.URL, e.Timeout, headers)
		if !healthy {
			m.logger.Warn("static server unreachable at startup", "name", e.Name, "url", e.URL, "error", errDetail)
			continue
		}

		toolNames, err := m.discoverAndRegister(ctx, e.Name, e.URL, e.Transport, e.Timeout, headers)
		if err != nil {
			m.logger.Warn("static server tool registration failed", "name", e.Name, "error", err)
			continue
		}
		m.logger.Info("static server registered", "name", e.Name, "tools", len(toolNames))
	}
	m.SyncStatus(ctx)
}

// LoadRuntimeServers restores persisted runtime servers from the store and
// re-registers their tools. Servers that are down come back into the runtime
// map anyway so their auth state is not lost.
func (m *Manager) LoadRuntimeServers(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	records, err := m.store.ListRuntimeServers(ctx)
	if err != nil {
		return fmt.Errorf("loading runtime servers: %w", err)
	}

	for _, rec := range records {
		rt := &runtimeServer{
			Name:        rec.Name,
			URL:         rec.URL,
			Transport:   rec.Transport,
			Timeout:     rec.Timeout,
			Headers:     rec.Headers,
			OAuthTokens: rec.OAuthTokens,
			CreatedAt:   rec.CreatedAt,
		}
		if rt.Headers == nil {
			rt.Headers = map[string]string{}
		}
		m.mu.Lock()
		m.runtime[rec.Name] = rt
		m.mu.Unlock()

		toolNames, err := m.discoverAndRegister(ctx, rec.Name, rec.URL, rec.Transport, rec.Timeout, rt.Headers)
		if err != nil {
			m.logger.Warn("persisted server tool registration failed", "name", rec.Name, "error", err)
			continue
		}
		m.logger.Info("persisted server restored", "name", rec.Name, "tools", len(toolNames))
	}
	m.SyncStatus(ctx)
	return nil
}

// persist writes a runtime server to the store, if one is configured.
func (m *Manager) persist(ctx context.Context, rt *runtimeServer) {
	if m.store == nil {
		return
	}
	rec := &store.RuntimeServer{
		Name:        rt.Name,
		URL:         rt.URL,
		Transport:   rt.Transport,
		Timeout:     rt.Timeout,
		Headers:     rt.Headers,
		OAuthTokens: rt.OAuthTokens,
		CreatedAt:   rt.CreatedAt,
	}
	if err := m.store.SaveRuntimeServer(ctx, rec); err != nil {
		m.logger.Warn("failed to persist runtime server", "name", rt.Name, "error", err)
	}
}

func (r ServerRequest) withDefaults() ServerRequest {
	if r.Transport == "" {
		r.Transport = "streamable-http"
	}
	if r.Timeout == 0 {
		r.Timeout = 30 * time.Second
	}
	return r
}

func (r ServerRequest) validate() error {
	if !namePattern.MatchString(r.Name) {
		return fmt.Errorf("%w: name must match [a-z0-9_-], 1-64 chars", ErrInvalidInput)
	}
	if !validURL(r.URL) {
		return fmt.Errorf("%w: URL must start with http:// or https://", ErrInvalidInput)
	}
	if r.Timeout < minTimeout || r.Timeout > maxTimeout {
		return fmt.Errorf("%w: timeout must be between 1 and 120 seconds", ErrInvalidInput)
	}
	return nil
}

func validURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}
