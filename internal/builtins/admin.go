// ABOUTME: Admin pack of local tools for inspecting the gateway itself.
// ABOUTME: Reports connected tool servers and the registered tool set.

package builtins

import (
	"context"
	"sort"

	"github.com/2389/toolgate/internal/admin"
	"github.com/2389/toolgate/internal/registry"
)

// StatusSource yields the readiness snapshot of managed tool servers.
// *admin.Manager satisfies it.
type StatusSource interface {
	Snapshot() map[string]admin.ServerStatus
}

// AdminPack returns introspection tools over the registry and server manager.
func AdminPack(reg *registry.Registry, status StatusSource) []registry.Definition {
	a := &adminHandlers{registry: reg, status: status}
	return []registry.Definition{
		{
			Name:        "list_tool_servers",
			Description: "List connected MCP tool servers and their health",
			Schema: map[string]any{
				"name":        "list_tool_servers",
				"description": "List connected MCP tool servers and their health",
				"parameters":  map[string]any{"type": "object", "properties": map[string]any{}},
			},
			Executor: registry.ExecutorFunc(a.listServers),
			Tags:     map[string]bool{"admin": true},
		},
		{
			Name:        "list_registered_tools",
			Description: "List every tool currently registered, local and MCP-sourced",
			Schema: map[string]any{
				"name":        "list_registered_tools",
				"description": "List every tool currently registered, local and MCP-sourced",
				"parameters":  map[string]any{"type": "object", "properties": map[string]any{}},
			},
			Executor: registry.ExecutorFunc(a.listTools),
			Tags:     map[string]bool{"admin": true},
		},
	}
}

type adminHandlers struct {
	registry *registry.Registry
	status   StatusSource
}

func (a *adminHandlers) listServers(_ context.Context, _ map[string]any) (any, error) {
	snapshot := a.status.Snapshot()

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	servers := make([]map[string]any, 0, len(names))
	for _, name := range names {
		st := snapshot[name]
		servers = append(servers, map[string]any{
			"name":        name,
			"status":      st.Status,
			"url":         st.URL,
			"tools_count": st.ToolsCount,
		})
	}
	return map[string]any{"count": len(servers), "servers": servers}, nil
}

func (a *adminHandlers) listTools(_ context.Context, _ map[string]any) (any, error) {
	names := a.registry.List(registry.Filter{})

	tools := make([]map[string]any, 0, len(names))
	for _, name := range names {
		def, ok := a.registry.Definition(name)
		if !ok {
			continue
		}
		entry := map[string]any{
			"name":        name,
			"description": def.Description,
			"source":      string(def.Source),
		}
		if def.Source == registry.SourceMCP {
			entry["server"] = def.MCPServer
		}
		tools = append(tools, entry)
	}
	return map[string]any{"count": len(tools), "tools": tools}, nil
}
