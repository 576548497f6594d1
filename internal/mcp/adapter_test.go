// ABOUTME: Tests for the OpenAI schema projection and prefixed-name parsing

package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenAISchema(t *testing.T) {
	tool := ToolInfo{
		Name:        "search",
		Description: "Search the knowledge base",
		ServerName:  "knowledge",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"q": map[string]any{"type": "string"}},
			"required":   []any{"q"},
		},
	}

	schema := OpenAISchema(tool, true)
	assert.Equal(t, "knowledge_search", schema["name"])
	assert.Equal(t, "Search the knowledge base", schema["description"])
	params := schema["parameters"].(map[string]any)
	assert.Equal(t, "object", params["type"])
	assert.Equal(t, []any{"q"}, params["required"])

	bare := OpenAISchema(tool, false)
	assert.Equal(t, "search", bare["name"])
}

func TestOpenAISchema_FillsMissingShape(t *testing.T) {
	tool := ToolInfo{Name: "ping", ServerName: "srv", InputSchema: map[string]any{}}

	schema := OpenAISchema(tool, true)
	params := schema["parameters"].(map[string]any)
	assert.Equal(t, "object", params["type"])
	assert.Equal(t, map[string]any{}, params["properties"])
	// The source schema is not mutated
	assert.Empty(t, tool.InputSchema)
}

func TestOpenAITool(t *testing.T) {
	tool := ToolInfo{Name: "search", ServerName: "srv"}
	wrapped := OpenAITool(tool)
	assert.Equal(t, "function", wrapped["type"])
	fn := wrapped["function"].(map[string]any)
	assert.Equal(t, "srv_search", fn["name"])
}

func TestSplitPrefixedName(t *testing.T) {
	tests := []struct {
		in         string
		server     string
		tool       string
		ok         bool
	}{
		{"knowledge_search", "knowledge", "search", true},
		{"srv_lookup_decline_code", "srv", "lookup_decline_code", true},
		{"noprefix", "", "", false},
		{"_tool", "", "", false},
		{"server_", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		server, tool, ok := SplitPrefixedName(tt.in)
		if server != tt.server || tool != tt.tool || ok != tt.ok {
			t.Errorf("SplitPrefixedName(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, server, tool, ok, tt.server, tt.tool, tt.ok)
		}
	}
}
