// ABOUTME: Package doc for the api package

// Package api exposes the management REST API over chi.
//
// Routes:
//
//	POST   /auth/login               - exchange the admin password for a JWT
//	GET    /healthz                  - readiness snapshot, no auth
//	GET    /api/v1/mcp/servers       - list servers with live status
//	POST   /api/v1/mcp/servers       - add a runtime server
//	POST   /api/v1/mcp/servers/test  - test a server without registering
//	DELETE /api/v1/mcp/servers/{name}- remove a runtime server
//	GET    /api/v1/mcp/tools         - list registered tools, grouped by server
//	POST   /api/v1/mcp/oauth/start   - begin an OAuth flow
//	POST   /api/v1/mcp/oauth/callback- complete an OAuth flow
//	GET    /api/v1/mcp/oauth/status/{name} - OAuth status for a server
//
// All /api/v1 routes require a bearer JWT when auth is configured. Errors are
// returned as {"detail": "..."} with a status derived from the admin
// package's sentinel errors.
package api
