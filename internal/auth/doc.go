// ABOUTME: Package doc for the auth package
// ABOUTME: Token caching for upstream servers plus management-API credentials

// Package auth provides the credential machinery for both directions of the
// gateway: acquiring Azure AD tokens for outbound calls to protected MCP
// servers, and verifying JWT bearer tokens on the inbound management API.
//
// # Outbound: token cache
//
// Cache wraps a Credential (normally Azure managed identity or the default
// credential chain) and hands out bearer tokens per application id. Tokens
// are cached until five minutes before expiry and re-acquired on demand.
// Acquisition failures degrade to an empty token so tool calls proceed
// unauthenticated and surface the 401 from the server instead of failing
// locally.
//
// # Inbound: bearer tokens
//
// APITokens issues and verifies the HS256 tokens the management API hands
// out on login. Every token carries the single AdminSubject; lifetime is
// fixed at construction. Password verification for the login endpoint uses
// bcrypt hashes; see HashPassword and CheckPassword.
package auth
