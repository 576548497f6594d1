// Package builtins provides the locally-implemented tools that ship with the
// gateway: utility tools every agent gets, plus introspection tools that
// report on the gateway's own tool servers. They register through the same
// registry contract as MCP-discovered tools.
package builtins
