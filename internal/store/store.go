// ABOUTME: Store interface and data types for toolgate persistence
// ABOUTME: Defines the runtime server record and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// RuntimeServer is a persisted runtime-registered MCP server. Servers added
// through the management API survive restarts via this record; servers from
// the static config file are never written here.
type RuntimeServer struct {
	Name        string
	URL         string
	Transport   string
	Timeout     time.Duration
	Headers     map[string]string
	OAuthTokens map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store defines the interface for runtime server persistence
type Store interface {
	// SaveRuntimeServer inserts or replaces a runtime server record
	SaveRuntimeServer(ctx context.Context, server *RuntimeServer) error

	// GetRuntimeServer fetches one record by name, ErrNotFound if absent
	GetRuntimeServer(ctx context.Context, name string) (*RuntimeServer, error)

	// DeleteRuntimeServer removes a record by name, ErrNotFound if absent
	DeleteRuntimeServer(ctx context.Context, name string) error

	// ListRuntimeServers returns all records ordered by name
	ListRuntimeServers(ctx context.Context) ([]*RuntimeServer, error)

	// Close releases the underlying database
	Close() error
}
