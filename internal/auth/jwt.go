// ABOUTME: Bearer tokens for the management API, issued on login
// ABOUTME: HS256 JWTs carrying a fixed admin subject with a configured lifetime

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminSubject is the only subject management tokens carry. The API has a
// single operator identity; there are no per-user accounts.
const AdminSubject = "admin"

// DefaultTokenTTL applies when no token lifetime is configured.
const DefaultTokenTTL = 24 * time.Hour

const tokenIssuer = "toolgate"

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// APITokens issues and verifies the management API's bearer tokens.
type APITokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAPITokens creates a token authority over the given signing secret.
// A non-positive ttl falls back to DefaultTokenTTL.
func NewAPITokens(secret []byte, ttl time.Duration) *APITokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &APITokens{secret: secret, ttl: ttl, now: time.Now}
}

// TTL returns the configured token lifetime.
func (t *APITokens) TTL() time.Duration {
	return t.ttl
}

// Issue signs a fresh admin token expiring after the configured lifetime.
func (t *APITokens) Issue() (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   AdminSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks the signature, expiry, issuer, and subject of a bearer token.
func (t *APITokens) Verify(raw string) error {
	_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithSubject(AdminSubject),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
