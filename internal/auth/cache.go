// ABOUTME: Azure AD token acquisition and caching for outbound MCP calls
// ABOUTME: Caches per app id with a five-minute early-refresh margin

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// refreshMargin is how long before expiry a cached token is considered stale.
const refreshMargin = 5 * time.Minute

// Token is an acquired access token with its expiry.
type Token struct {
	Value     string
	ExpiresOn time.Time
}

// Credential acquires tokens for a scope. Satisfied by azureCredential in
// production and by fakes in tests.
type Credential interface {
	GetToken(ctx context.Context, scope string) (Token, error)
}

// azureCredential adapts an azcore.TokenCredential to the Credential
// interface used by the cache.
type azureCredential struct {
	inner azcore.TokenCredential
}

func (c azureCredential) GetToken(ctx context.Context, scope string) (Token, error) {
	tok, err := c.inner.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{scope}})
	if err != nil {
		return Token{}, err
	}
	return Token{Value: tok.Token, ExpiresOn: tok.ExpiresOn}, nil
}

// NewAzureCredential builds a Credential from the ambient Azure environment.
// When clientID is set, a user-assigned managed identity is used; otherwise
// the default credential chain (env vars, workload identity, CLI, managed
// identity) applies.
func NewAzureCredential(clientID string) (Credential, error) {
	if clientID != "" {
		cred, err := azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(clientID),
		})
		if err != nil {
			return nil, fmt.Errorf("managed identity credential: %w", err)
		}
		return azureCredential{inner: cred}, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	return azureCredential{inner: cred}, nil
}

// Cache caches bearer tokens per application id. Safe for concurrent use.
//
// The lock covers the cache map only, not acquisition: two goroutines that
// miss on the same app id both hit the credential and the second write wins.
// That trades a duplicate network round trip for never blocking unrelated
// lookups behind a slow token endpoint.
type Cache struct {
	cred   Credential
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	tokens map[string]Token
}

// NewCache creates a token cache over the given credential.
func NewCache(cred Credential) *Cache {
	return &Cache{
		cred:   cred,
		logger: slog.Default().With("component", "token-cache"),
		now:    time.Now,
		tokens: make(map[string]Token),
	}
}

// scopeFor converts an application id to a token scope. Plain ids get the
// /.default suffix; ids that already carry a scope suffix pass through.
func scopeFor(appID string) string {
	if strings.Contains(appID, "/") {
		return appID
	}
	return appID + "/.default"
}

// Token returns a bearer token for the application id, acquiring one if the
// cache is empty or the cached token expires within the refresh margin.
// Returns the empty string on acquisition failure so callers can proceed
// unauthenticated.
func (c *Cache) Token(ctx context.Context, appID string) string {
	if appID == "" {
		return ""
	}

	c.mu.Lock()
	cached, ok := c.tokens[appID]
	c.mu.Unlock()
	if ok && c.now().Before(cached.ExpiresOn.Add(-refreshMargin)) {
		return cached.Value
	}

	tok, err := c.cred.GetToken(ctx, scopeFor(appID))
	if err != nil {
		c.logger.Warn("token acquisition failed", "app_id", appID, "error", err)
		return ""
	}

	c.mu.Lock()
	c.tokens[appID] = tok
	c.mu.Unlock()

	c.logger.Debug("token acquired", "app_id", appID, "expires_on", tok.ExpiresOn)
	return tok.Value
}

// Headers returns the authorization headers for an application id, or an
// empty map when no token could be acquired.
func (c *Cache) Headers(ctx context.Context, appID string) map[string]string {
	token := c.Token(ctx, appID)
	if token == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// Clear drops the cached token for one application id, or all tokens when
// appID is empty.
func (c *Cache) Clear(appID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if appID == "" {
		c.tokens = make(map[string]Token)
		return
	}
	delete(c.tokens, appID)
}

// Validate checks that a server's auth configuration is usable: a token for
// its app id can actually be acquired. Servers without an app id are always
// valid. Returns ok and a human-readable detail.
func (c *Cache) Validate(ctx context.Context, name, appID string) (bool, string) {
	if appID == "" {
		return true, fmt.Sprintf("server %s requires no authentication", name)
	}
	if c.Token(ctx, appID) == "" {
		return false, fmt.Sprintf("server %s: could not acquire token for app id %s", name, appID)
	}
	return true, fmt.Sprintf("server %s: token acquired for app id %s", name, appID)
}
