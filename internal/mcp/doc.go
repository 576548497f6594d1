// Package mcp implements the client side of the simplified MCP-style HTTP
// protocol used to reach remote tool servers.
//
// # Overview
//
// A remote tool server exposes three endpoints:
//
//   - GET /health        - liveness probe, optionally with tool counts
//   - GET /tools/list    - tool discovery: {"tools": [{name, description, input_schema}]}
//   - POST /tools/{name} - tool invocation with the argument map as JSON body
//
// A small allow-list of legacy tool names is invoked with GET and query
// parameters instead. This is a REST rendition of MCP's discovery/invocation
// intent, not the official JSON-RPC protocol.
//
// # Components
//
//   - ClientSession: one connection to one server. Health-checks on connect,
//     discovers tools, invokes them, and reconnects with linear backoff.
//   - SessionManager: owns the sessions for one conversation, merges each
//     server's tools into a "{server}_{tool}" prefixed namespace, and routes
//     invocations back to the owning session by prefix.
//
// # Failure model
//
// Tool invocation never returns a Go error. Connection problems, HTTP error
// statuses, and malformed responses all surface as a structured result:
//
//	{"success": false, "error": "..."}
//
// so one broken server degrades to "that tool is unavailable" without
// interrupting the conversation.
package mcp
