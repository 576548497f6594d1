// ABOUTME: Central tool registry mapping tool names to schemas and executors
// ABOUTME: Unifies local and MCP-sourced tools under one invocation contract

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Source identifies where a tool registration came from.
type Source string

const (
	// SourceLocal marks tools registered in-process.
	SourceLocal Source = "local"
	// SourceMCP marks tools discovered from an MCP server.
	SourceMCP Source = "mcp"
)

// Definition is a complete tool definition with schema and executor.
type Definition struct {
	Name         string
	Schema       map[string]any
	Executor     Executor
	IsHandoff    bool
	Description  string
	Tags         map[string]bool
	Source       Source
	MCPServer    string // server name if Source is SourceMCP
	MCPTransport string // transport if Source is SourceMCP
}

// Registry holds all registered tool definitions. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]Definition
	logger *slog.Logger
}

// New creates an empty tool registry.
func New() *Registry {
	return &Registry{
		defs:   make(map[string]Definition),
		logger: slog.Default().With("component", "registry"),
	}
}

// Register adds a tool definition. If the name is already registered and
// override is false, the call is a no-op: the first writer wins.
func (r *Registry) Register(def Definition, override bool) {
	if def.Source == "" {
		def.Source = SourceLocal
	}
	if def.Description == "" {
		if d, ok := def.Schema["description"].(string); ok {
			def.Description = d
		}
	}
	if def.Tags == nil {
		def.Tags = map[string]bool{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists && !override {
		r.logger.Debug("tool already registered, skipping", "tool", def.Name)
		return
	}

	r.defs[def.Name] = def
	r.logger.Debug("registered tool", "tool", def.Name, "handoff", def.IsHandoff, "source", def.Source)
}

// RegisterMCP registers a tool discovered from an MCP server. The name should
// already carry the "{server}_{tool}" prefix. Tags default to {"mcp", server}.
func (r *Registry) RegisterMCP(name string, schema map[string]any, server, transport string, exec Executor, tags map[string]bool, override bool) {
	if tags == nil {
		tags = map[string]bool{"mcp": true, server: true}
	}
	r.Register(Definition{
		Name:         name,
		Schema:       schema,
		Executor:     exec,
		Tags:         tags,
		Source:       SourceMCP,
		MCPServer:    server,
		MCPTransport: transport,
	}, override)
}

// UnregisterMCP removes MCP-sourced tools from the registry. An empty server
// removes every MCP tool; otherwise only that server's tools are removed.
// Local tools are never touched. Returns the number of tools removed.
func (r *Registry) UnregisterMCP(server string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for name, def := range r.defs {
		if def.Source != SourceMCP {
			continue
		}
		if server == "" || def.MCPServer == server {
			removed = append(removed, name)
		}
	}
	for _, name := range removed {
		delete(r.defs, name)
		r.logger.Debug("unregistered MCP tool", "tool", name)
	}

	if len(removed) > 0 {
		scope := server
		if scope == "" {
			scope = "all"
		}
		r.logger.Info("unregistered MCP tools", "count", len(removed), "server", scope)
	}
	return len(removed)
}

// Filter selects tools for List. A non-empty Tags slice requires ALL given
// tags to be present on the definition.
type Filter struct {
	Tags         []string
	HandoffsOnly bool
}

// List returns registered tool names matching the filter, sorted.
func (r *Registry) List(f Filter) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []string
outer:
	for name, def := range r.defs {
		if f.HandoffsOnly && !def.IsHandoff {
			continue
		}
		for _, tag := range f.Tags {
			if !def.Tags[tag] {
				continue outer
			}
		}
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// ListMCP returns MCP tool names, optionally filtered by server, sorted.
func (r *Registry) ListMCP(server string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []string
	for name, def := range r.defs {
		if def.Source != SourceMCP {
			continue
		}
		if server == "" || def.MCPServer == server {
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return result
}

// Definition returns the complete definition for a tool.
func (r *Registry) Definition(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Schema returns the schema for a registered tool.
func (r *Registry) Schema(name string) (map[string]any, bool) {
	def, ok := r.Definition(name)
	if !ok {
		return nil, false
	}
	return def.Schema, true
}

// Source returns the source of a registered tool.
func (r *Registry) Source(name string) (Source, bool) {
	def, ok := r.Definition(name)
	if !ok {
		return "", false
	}
	return def.Source, true
}

// IsHandoff reports whether a tool triggers agent handoff.
func (r *Registry) IsHandoff(name string) bool {
	def, ok := r.Definition(name)
	return ok && def.IsHandoff
}

// IsMCPTool reports whether a tool came from an MCP server.
func (r *Registry) IsMCPTool(name string) bool {
	def, ok := r.Definition(name)
	return ok && def.Source == SourceMCP
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// ToolsForAgent builds the OpenAI-compatible tool list for the given names.
// A missing name is logged and skipped; it never fails the whole call.
func (r *Registry) ToolsForAgent(names []string) []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]map[string]any, 0, len(names))
	for _, name := range names {
		def, ok := r.defs[name]
		if !ok {
			r.logger.Warn("tool not found in registry", "tool", name)
			continue
		}
		tools = append(tools, map[string]any{
			"type":     "function",
			"function": def.Schema,
		})
	}
	return tools
}

// Execute runs a registered tool with the given arguments. It never returns
// an error: unknown tools, executor errors, and executor panics are all
// converted into a structured failure result.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) map[string]any {
	def, ok := r.Definition(name)
	if !ok {
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("Tool '%s' not found", name),
			"message": fmt.Sprintf("Tool '%s' is not registered.", name),
		}
	}

	result, err := r.call(ctx, def, args)
	if err != nil {
		r.logger.Error("tool execution failed", "tool", name, "error", err)
		return map[string]any{
			"success": false,
			"error":   err.Error(),
			"message": fmt.Sprintf("Tool execution failed: %v", err),
		}
	}

	// Map results pass through untouched so executors can report their own
	// success/error shape; everything else is wrapped.
	if m, ok := result.(map[string]any); ok {
		return m
	}
	return map[string]any{"success": true, "result": result}
}

// call invokes the executor, converting a panic into an error.
func (r *Registry) call(ctx context.Context, def Definition, args map[string]any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("executor panic: %v", rec)
		}
	}()
	return def.Executor.Execute(ctx, args)
}
