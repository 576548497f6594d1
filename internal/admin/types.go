// ABOUTME: Request and result types for the runtime server management API

package admin

import "time"

// OAuthConfig is the OAuth configuration for a server that requires it.
type OAuthConfig struct {
	ClientID     string `json:"client_id"`
	AuthURL      string `json:"auth_url"`
	TokenURL     string `json:"token_url"`
	Scope        string `json:"scope,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// ServerRequest describes a server to add or test.
type ServerRequest struct {
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Transport string            `json:"transport,omitempty"`
	Timeout   time.Duration     `json:"-"`
	Headers   map[string]string `json:"headers,omitempty"`
	AuthToken string            `json:"auth_token,omitempty"`
	OAuth     *OAuthConfig      `json:"oauth,omitempty"`
}

// ServerInfo is one entry in the server listing.
type ServerInfo struct {
	Name       string   `json:"name"`
	URL        string   `json:"url"`
	Transport  string   `json:"transport"`
	Timeout    float64  `json:"timeout"`
	Status     string   `json:"status"`
	ToolsCount int      `json:"tools_count"`
	ToolNames  []string `json:"tool_names"`
	Error      string   `json:"error,omitempty"`
	Source     string   `json:"source"`
	HasAuth    bool     `json:"has_auth"`
}

// ToolDetail describes one tool discovered during a connection test.
type ToolDetail struct {
	Name         string         `json:"name"`
	PrefixedName string         `json:"prefixed_name"`
	Description  string         `json:"description"`
	ServerName   string         `json:"server_name"`
	InputSchema  map[string]any `json:"input_schema"`
}

// TestResult is the outcome of a read-only connection test. Nothing is
// registered.
type TestResult struct {
	Status     string       `json:"status"`
	URL        string       `json:"url"`
	Connected  bool         `json:"connected"`
	ToolsCount int          `json:"tools_count"`
	Tools      []ToolDetail `json:"tools"`
	Error      string       `json:"error,omitempty"`
}

// AddResult is the outcome of adding a server.
type AddResult struct {
	Message string     `json:"message"`
	Server  ServerInfo `json:"server"`
}

// RemoveResult is the outcome of removing a server.
type RemoveResult struct {
	Message      string `json:"message"`
	ToolsRemoved int    `json:"tools_removed"`
}

// OAuthStartRequest starts an OAuth flow for a server.
type OAuthStartRequest struct {
	Name        string      `json:"name"`
	URL         string      `json:"url"`
	OAuth       OAuthConfig `json:"oauth"`
	RedirectURI string      `json:"redirect_uri"`
}

// OAuthStartResult carries the authorization URL for the user to visit.
type OAuthStartResult struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

// OAuthCallbackResult is the outcome of completing an OAuth flow.
type OAuthCallbackResult struct {
	Success    bool   `json:"success"`
	ServerName string `json:"server_name"`
	Message    string `json:"message"`
	HasToken   bool   `json:"has_token"`
}

// OAuthStatus reports whether a server currently holds OAuth tokens.
type OAuthStatus struct {
	Server          string `json:"server"`
	Authenticated   bool   `json:"authenticated"`
	OAuthConfigured bool   `json:"oauth_configured"`
	HasRefreshToken bool   `json:"has_refresh_token"`
}

// ServerStatus is one entry in the readiness snapshot.
type ServerStatus struct {
	Status     string   `json:"status"`
	URL        string   `json:"url"`
	Transport  string   `json:"transport"`
	ToolsCount int      `json:"tools_count"`
	ToolNames  []string `json:"tool_names"`
	Error      string   `json:"error,omitempty"`
}

// ToolListing is the grouped view of registered MCP tools.
type ToolListing struct {
	Total    int                 `json:"total"`
	Tools    []string            `json:"tools"`
	ByServer map[string][]string `json:"by_server"`
}
