// ABOUTME: Package doc for the admin package

// Package admin implements runtime MCP server management: listing, testing,
// adding and removing servers while the gateway runs, plus the OAuth
// authorization-code flow (with PKCE) for servers that require it.
//
// The Manager is the single owner of runtime server state. Servers come from
// two sources: the static config file ("environment" servers, which cannot be
// removed at runtime) and the management API ("runtime" servers, which are
// persisted to the store so they survive restarts). Adding a server health
// checks it, discovers its tools, and registers each one in the tool registry
// under its prefixed name with an executor bound to the server's URL and auth
// headers.
//
// OAuth state is held in memory and is single use: a pending state is popped
// on first read and expires after ten minutes.
package admin
