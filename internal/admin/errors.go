// ABOUTME: Error types for runtime server management
// ABOUTME: Sentinels map to HTTP statuses at the API layer

package admin

import (
	"errors"
	"fmt"
)

// Management errors. The API layer maps these to HTTP statuses.
var (
	// ErrNotFound: the named server does not exist (404)
	ErrNotFound = errors.New("server not found")

	// ErrConflict: a server with that name already exists (409)
	ErrConflict = errors.New("server already exists")

	// ErrInvalidInput: the request is malformed (400)
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnreachable: the server failed its health check (503)
	ErrUnreachable = errors.New("server unreachable")

	// ErrRegistration: connected but tool registration failed (500)
	ErrRegistration = errors.New("tool registration failed")

	// ErrStateInvalid: unknown or already-used OAuth state (400)
	ErrStateInvalid = errors.New("invalid or expired OAuth state")

	// ErrStateExpired: the OAuth state outlived its ten-minute window (400)
	ErrStateExpired = errors.New("OAuth state expired")
)

// RemoteError carries a status from an upstream token endpoint through to the
// caller. Statuses 400, 401, 403 and 405 pass through; everything else is
// reported as 400 by the API layer.
type RemoteError struct {
	Status int
	Detail string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("token exchange failed (HTTP %d): %s", e.Status, e.Detail)
}
