// Package registry is the central registry for agent tools.
//
// # Overview
//
// Every tool an agent can invoke, whether implemented in-process or proxied
// to a remote MCP server, is registered here under a unique name with an
// OpenAI-compatible function schema and an executor. The registry is the
// single source of truth the MCP subsystem and the management API mutate.
//
// # Registration
//
// Local tools register once at startup:
//
//	reg.Register(registry.Definition{
//	    Name:     "lookup_account",
//	    Schema:   schema,
//	    Executor: registry.ExecutorFunc(lookupAccount),
//	    Tags:     map[string]bool{"banking": true},
//	}, false)
//
// MCP tools are registered by the server-management layer with the
// "{server}_{tool}" prefixed name and Source = SourceMCP. Registration with
// override=false is idempotent: the first writer wins.
//
// # Execution
//
// Execute never returns an error. Failures (unknown tool, executor error,
// executor panic) are recovered and reported as a structured result:
//
//	{"success": false, "error": "...", "message": "..."}
//
// so the calling agent can keep the conversation going after a tool failure.
package registry
