// ABOUTME: OAuth authorization-code flow with PKCE for secured MCP servers
// ABOUTME: Pending states are in-memory, single use, and expire after ten minutes

package admin

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// stateTTL is how long a pending OAuth state stays redeemable.
const stateTTL = 10 * time.Minute

// stateRetention keeps consumed-but-stale states around long enough that a
// late redeem is reported as expired rather than unknown. maxPendingStates
// bounds memory if callers start flows they never finish.
const (
	stateRetention   = time.Hour
	maxPendingStates = 1000
)

// tokenExchangeTimeout bounds the POST to the token endpoint.
const tokenExchangeTimeout = 30 * time.Second

// pendingOAuth is one in-flight OAuth flow keyed by its state parameter.
type pendingOAuth struct {
	Name         string
	URL          string
	OAuth        OAuthConfig
	RedirectURI  string
	CodeVerifier string
	CreatedAt    time.Time
}

// randomToken returns 32 random bytes as unpadded base64url.
func randomToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// pkceChallenge derives the S256 code challenge from a verifier.
func pkceChallenge(verifier string) string {
	digest := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

// StartOAuth begins an OAuth flow for a server: generates state and PKCE
// values, records the pending flow, and returns the authorization URL for
// the user to visit.
func (m *Manager) StartOAuth(req OAuthStartRequest) OAuthStartResult {
	state := randomToken()
	verifier := randomToken()
	challenge := pkceChallenge(verifier)

	m.pending.Put(state, &pendingOAuth{
		Name:         req.Name,
		URL:          req.URL,
		OAuth:        req.OAuth,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: verifier,
		CreatedAt:    m.now(),
	})

	params := url.Values{}
	params.Set("client_id", req.OAuth.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", req.RedirectURI)
	params.Set("state", state)
	params.Set("code_challenge", challenge)
	params.Set("code_challenge_method", "S256")
	if req.OAuth.Scope != "" {
		params.Set("scope", req.OAuth.Scope)
	}

	m.logger.Info("OAuth flow started", "server", req.Name, "state", state[:8])
	return OAuthStartResult{
		AuthURL: req.OAuth.AuthURL + "?" + params.Encode(),
		State:   state,
	}
}

// CompleteOAuth exchanges an authorization code for tokens and attaches the
// access token to the server's runtime entry, creating one if the server has
// not been added yet. The state is consumed whether or not the exchange
// succeeds.
func (m *Manager) CompleteOAuth(ctx context.Context, code, state string) (OAuthCallbackResult, error) {
	pending, ok := m.pending.Pop(state)
	if !ok {
		return OAuthCallbackResult{}, fmt.Errorf("%w: please restart the authentication flow", ErrStateInvalid)
	}

	if m.now().Sub(pending.CreatedAt) > stateTTL {
		return OAuthCallbackResult{}, fmt.Errorf("%w: please restart the authentication flow", ErrStateExpired)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", pending.OAuth.ClientID)
	form.Set("code", code)
	form.Set("redirect_uri", pending.RedirectURI)
	form.Set("code_verifier", pending.CodeVerifier)
	if pending.OAuth.ClientSecret != "" {
		form.Set("client_secret", pending.OAuth.ClientSecret)
	}

	m.logger.Info("exchanging OAuth code", "server", pending.Name, "token_url", pending.OAuth.TokenURL)

	tokens, err := m.exchangeCode(ctx, pending.OAuth.TokenURL, form)
	if err != nil {
		return OAuthCallbackResult{}, err
	}

	accessToken, _ := tokens["access_token"].(string)
	if accessToken == "" {
		return OAuthCallbackResult{}, fmt.Errorf("%w: no access_token in token response", ErrInvalidInput)
	}

	m.mu.Lock()
	if rt, exists := m.runtime[pending.Name]; exists {
		rt.Headers["Authorization"] = "Bearer " + accessToken
		rt.OAuthTokens = tokens
		m.mu.Unlock()
		m.persist(ctx, rt)
		m.logger.Info("OAuth token updated", "server", pending.Name)
	} else {
		cfg := pending.OAuth
		rt := &runtimeServer{
			Name:        pending.Name,
			URL:         pending.URL,
			Transport:   "streamable-http",
			Timeout:     30 * time.Second,
			Headers:     map[string]string{"Authorization": "Bearer " + accessToken},
			OAuthConfig: &cfg,
			OAuthTokens: tokens,
			CreatedAt:   m.now(),
		}
		m.runtime[pending.Name] = rt
		m.mu.Unlock()
		m.persist(ctx, rt)
		m.logger.Info("OAuth config stored for new server", "server", pending.Name)
	}

	return OAuthCallbackResult{
		Success:    true,
		ServerName: pending.Name,
		Message:    fmt.Sprintf("Successfully authenticated with MCP server '%s'", pending.Name),
		HasToken:   true,
	}, nil
}

// exchangeCode POSTs the authorization-code grant to the token endpoint.
// Upstream error statuses come back as RemoteError; transport failures as
// wrapped errors the API layer maps to 502.
func (m *Manager) exchangeCode(ctx context.Context, tokenURL string, form url.Values) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, tokenExchangeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to contact token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to contact token endpoint: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := "Unknown error"
		if len(body) > 0 {
			detail = string(body)
			if len(detail) > 500 {
				detail = detail[:500]
			}
		}
		m.logger.Warn("OAuth token exchange failed", "status", resp.StatusCode, "token_url", tokenURL)
		return nil, &RemoteError{Status: resp.StatusCode, Detail: detail}
	}

	var tokens map[string]any
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("%w: malformed token response", ErrInvalidInput)
	}
	return tokens, nil
}

// OAuthStatus reports whether a server currently holds an OAuth token.
func (m *Manager) OAuthStatus(name string) OAuthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	rt, ok := m.runtime[name]
	if !ok {
		return OAuthStatus{Server: name}
	}

	refreshToken, _ := rt.OAuthTokens["refresh_token"].(string)
	return OAuthStatus{
		Server:          name,
		Authenticated:   rt.Headers["Authorization"] != "",
		OAuthConfigured: rt.OAuthTokens != nil,
		HasRefreshToken: refreshToken != "",
	}
}
