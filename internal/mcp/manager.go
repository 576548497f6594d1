// ABOUTME: Session-scoped manager multiplexing several MCP server connections
// ABOUTME: Merges discovered tools into one prefixed namespace and routes invocations

package mcp

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// SessionManager coordinates the MCP server connections for one conversation.
// It discovers tools across servers, caches them under their prefixed names,
// and routes execution requests to the owning session.
//
// Prefixed names are not collision-checked: server "a_b" tool "c" and server
// "a" tool "b_c" both produce "a_b_c", and the last one cached wins.
type SessionManager struct {
	sessionID string
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*ClientSession
	tools    map[string]ToolInfo // prefixed name -> tool
}

// NewSessionManager creates a manager for one conversation. A random session
// id is generated when none is supplied.
func NewSessionManager(sessionID string) *SessionManager {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	return &SessionManager{
		sessionID: sessionID,
		logger:    slog.Default().With("component", "mcp-session", "session_id", sessionID),
		sessions:  make(map[string]*ClientSession),
		tools:     make(map[string]ToolInfo),
	}
}

// SessionID returns the conversation id this manager belongs to.
func (m *SessionManager) SessionID() string {
	return m.sessionID
}

// ConnectedServers returns the names of currently-connected servers, sorted.
func (m *SessionManager) ConnectedServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, session := range m.sessions {
		if session.Connected() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AvailableTools returns all cached prefixed tool names, sorted.
func (m *SessionManager) AvailableTools() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tools))
	for name := range m.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConnectServer connects to a single server and merges its discovered tools
// into the cache. If a session for this name already exists and is connected,
// it short-circuits to true. The lock guards only the map updates, never the
// connect round-trip, so one slow server cannot stall tool execution on
// another.
func (m *SessionManager) ConnectServer(ctx context.Context, cfg ServerConfig) bool {
	m.mu.RLock()
	existing, ok := m.sessions[cfg.Name]
	m.mu.RUnlock()
	if ok && existing.Connected() {
		m.logger.Debug("MCP server already connected", "server", cfg.Name)
		return true
	}

	session := NewClientSession(cfg)
	if !session.Connect(ctx) {
		m.logger.Warn("failed to connect to MCP server", "server", cfg.Name)
		return false
	}
	tools := session.Tools()

	m.mu.Lock()
	if existing, ok := m.sessions[cfg.Name]; ok && existing.Connected() {
		// A concurrent connect for the same name won the race; keep it.
		m.mu.Unlock()
		session.Disconnect()
		m.logger.Debug("MCP server already connected", "server", cfg.Name)
		return true
	}
	m.sessions[cfg.Name] = session
	for _, tool := range tools {
		m.tools[tool.PrefixedName()] = tool
		m.logger.Debug("cached MCP tool", "tool", tool.PrefixedName())
	}
	m.mu.Unlock()

	m.logger.Info("connected to MCP server", "server", cfg.Name, "tools", len(tools))
	return true
}

// ConnectServers connects to multiple servers sequentially, in the order
// supplied. One server's failure does not abort the rest. Returns per-server
// connection success.
func (m *SessionManager) ConnectServers(ctx context.Context, cfgs []ServerConfig) map[string]bool {
	results := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		results[cfg.Name] = m.ConnectServer(ctx, cfg)
	}
	return results
}

// DisconnectServer disconnects one server and purges only its tool-cache
// entries.
func (m *SessionManager) DisconnectServer(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[name]
	if !ok {
		return
	}
	delete(m.sessions, name)
	session.Disconnect()
	m.purgeToolsLocked(name)
	m.logger.Info("disconnected from MCP server", "server", name)
}

// DisconnectAll disconnects every server and clears the tool cache. Called
// when the conversation ends.
func (m *SessionManager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, session := range m.sessions {
		session.Disconnect()
	}
	m.sessions = make(map[string]*ClientSession)
	m.tools = make(map[string]ToolInfo)
	m.logger.Info("disconnected from all MCP servers")
}

// purgeToolsLocked removes cache entries owned by a server. Caller holds m.mu.
func (m *SessionManager) purgeToolsLocked(server string) {
	for name, tool := range m.tools {
		if tool.ServerName == server {
			delete(m.tools, name)
		}
	}
}

// ToolSchemas returns OpenAI-compatible tool schemas for all cached tools,
// sorted by prefixed name.
func (m *SessionManager) ToolSchemas() []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return openAITools(m.tools, "")
}

// ToolsForServer returns OpenAI-compatible schemas for one server's tools.
func (m *SessionManager) ToolsForServer(server string) []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return openAITools(m.tools, server)
}

// IsMCPTool reports whether a prefixed name resolves to a cached MCP tool.
func (m *SessionManager) IsMCPTool(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tools[name]
	return ok
}

// ToolServer returns the owning server for a prefixed tool name.
func (m *SessionManager) ToolServer(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tool, ok := m.tools[name]
	if !ok {
		return "", false
	}
	return tool.ServerName, true
}

// ExecuteTool resolves a prefixed tool name and delegates to the owning
// session with the bare name; the session never sees prefixed names. Failures
// are structured results, never errors.
func (m *SessionManager) ExecuteTool(ctx context.Context, name string, args map[string]any) map[string]any {
	m.mu.RLock()
	tool, ok := m.tools[name]
	var session *ClientSession
	if ok {
		session = m.sessions[tool.ServerName]
	}
	m.mu.RUnlock()

	if !ok {
		return map[string]any{
			"success": false,
			"error":   "MCP tool not found: " + name,
		}
	}
	if session == nil || !session.Connected() {
		return map[string]any{
			"success": false,
			"error":   "MCP server not connected: " + tool.ServerName,
		}
	}

	m.logger.Info("executing MCP tool", "tool", name, "server", tool.ServerName)
	return session.CallTool(ctx, tool.Name, args)
}

// RefreshTools re-runs discovery for one server (or all connected servers
// when server is empty), replacing that server's slice of the cache. Returns
// the number of tools discovered.
func (m *SessionManager) RefreshTools(ctx context.Context, server string) int {
	m.mu.RLock()
	var names []string
	if server != "" {
		names = []string{server}
	} else {
		for name := range m.sessions {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	targets := make(map[string]*ClientSession, len(names))
	for _, name := range names {
		if session, ok := m.sessions[name]; ok && session.Connected() {
			targets[name] = session
		}
	}
	m.mu.RUnlock()

	// Discovery runs unlocked; the cache swap below is the only part that
	// needs the write lock.
	discovered := make(map[string][]ToolInfo, len(targets))
	total := 0
	for _, name := range names {
		session, ok := targets[name]
		if !ok {
			continue
		}
		tools := session.ListTools(ctx)
		discovered[name] = tools
		total += len(tools)
	}

	m.mu.Lock()
	for name, tools := range discovered {
		m.purgeToolsLocked(name)
		for _, tool := range tools {
			m.tools[tool.PrefixedName()] = tool
		}
	}
	m.mu.Unlock()

	m.logger.Info("refreshed MCP tools", "total", total)
	return total
}

// Len returns the number of connected servers.
func (m *SessionManager) Len() int {
	return len(m.ConnectedServers())
}

// openAITools projects cached tools to the OpenAI tool shape, optionally
// filtered by server, sorted by prefixed name.
func openAITools(tools map[string]ToolInfo, server string) []map[string]any {
	names := make([]string, 0, len(tools))
	for name, tool := range tools {
		if server != "" && tool.ServerName != server {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		out = append(out, OpenAITool(tools[name]))
	}
	return out
}
