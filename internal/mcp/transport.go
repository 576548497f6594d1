// ABOUTME: MCP transport type enum with lenient alias normalization
// ABOUTME: Unknown transport strings fall back to streamable-http rather than failing

package mcp

import (
	"log/slog"
	"strings"
)

// Transport identifies how an MCP server is reached.
type Transport string

const (
	// TransportStreamableHTTP is the HTTP-based transport recommended for
	// deployed servers (MCP spec 2025-11-25).
	TransportStreamableHTTP Transport = "streamable-http"
	// TransportSSE is the legacy Server-Sent Events transport.
	TransportSSE Transport = "sse"
	// TransportStdio is standard I/O for local CLI usage.
	TransportStdio Transport = "stdio"
	// TransportHTTP is generic HTTP, an alias for streamable-http.
	TransportHTTP Transport = "http"
)

// transportAliases maps normalized strings to canonical transports.
var transportAliases = map[string]Transport{
	"streamable-http": TransportStreamableHTTP,
	"streamablehttp":  TransportStreamableHTTP,
	"http":            TransportHTTP,
	"sse":             TransportSSE,
	"stdio":           TransportStdio,
}

// ParseTransport normalizes a transport string (case, underscore, and hyphen
// insensitive). Unrecognized values fall back to streamable-http; existing
// configuration data depends on this leniency.
func ParseTransport(s string) Transport {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))
	if t, ok := transportAliases[normalized]; ok {
		return t
	}
	if s != "" {
		slog.Default().Warn("unknown MCP transport, defaulting to streamable-http", "transport", s)
	}
	return TransportStreamableHTTP
}
