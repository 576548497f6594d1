// ABOUTME: Projects MCP tool schemas to the OpenAI function-calling format
// ABOUTME: Also resolves prefixed tool names back to (server, tool) pairs

package mcp

import "strings"

// OpenAISchema converts an MCP tool schema to the OpenAI function-calling
// format. When usePrefix is true the function name carries the server prefix.
func OpenAISchema(tool ToolInfo, usePrefix bool) map[string]any {
	name := tool.Name
	if usePrefix {
		name = tool.PrefixedName()
	}

	parameters := map[string]any{}
	for k, v := range tool.InputSchema {
		parameters[k] = v
	}
	if _, ok := parameters["type"]; !ok {
		parameters["type"] = "object"
	}
	if _, ok := parameters["properties"]; !ok {
		parameters["properties"] = map[string]any{}
	}

	return map[string]any{
		"name":        name,
		"description": tool.Description,
		"parameters":  parameters,
	}
}

// OpenAITool wraps OpenAISchema in the full {"type": "function", ...} shape.
func OpenAITool(tool ToolInfo) map[string]any {
	return map[string]any{
		"type":     "function",
		"function": OpenAISchema(tool, true),
	}
}

// SplitPrefixedName splits "{server}_{tool}" on the first underscore.
// The split is lossy when the server name itself contains an underscore:
// "a_b" + "c" and "a" + "b_c" both read back as ("a", "b_c").
func SplitPrefixedName(prefixed string) (server, tool string, ok bool) {
	server, tool, ok = strings.Cut(prefixed, "_")
	if server == "" || tool == "" {
		return "", "", false
	}
	return server, tool, ok
}
