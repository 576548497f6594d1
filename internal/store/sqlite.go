// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides runtime server persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runtime_servers (
			name             TEXT PRIMARY KEY,
			url              TEXT NOT NULL,
			transport        TEXT NOT NULL,
			timeout_seconds  INTEGER NOT NULL,
			headers_json     TEXT NOT NULL DEFAULT '{}',
			oauth_tokens_json TEXT,
			created_at       DATETIME NOT NULL,
			updated_at       DATETIME NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRuntimeServer inserts or replaces a runtime server record
func (s *SQLiteStore) SaveRuntimeServer(ctx context.Context, server *RuntimeServer) error {
	headers, err := json.Marshal(server.Headers)
	if err != nil {
		return fmt.Errorf("marshaling headers: %w", err)
	}

	var tokens any
	if server.OAuthTokens != nil {
		b, err := json.Marshal(server.OAuthTokens)
		if err != nil {
			return fmt.Errorf("marshaling oauth tokens: %w", err)
		}
		tokens = string(b)
	}

	now := time.Now().UTC()
	createdAt := server.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runtime_servers (name, url, transport, timeout_seconds, headers_json, oauth_tokens_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			url = excluded.url,
			transport = excluded.transport,
			timeout_seconds = excluded.timeout_seconds,
			headers_json = excluded.headers_json,
			oauth_tokens_json = excluded.oauth_tokens_json,
			updated_at = excluded.updated_at
	`, server.Name, server.URL, server.Transport, int64(server.Timeout.Seconds()), string(headers), tokens, createdAt, now)
	if err != nil {
		return fmt.Errorf("saving runtime server: %w", err)
	}

	s.logger.Debug("runtime server saved", "name", server.Name)
	return nil
}

// GetRuntimeServer fetches one record by name
func (s *SQLiteStore) GetRuntimeServer(ctx context.Context, name string) (*RuntimeServer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, url, transport, timeout_seconds, headers_json, oauth_tokens_json, created_at, updated_at
		FROM runtime_servers WHERE name = ?
	`, name)

	server, err := scanRuntimeServer(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting runtime server: %w", err)
	}
	return server, nil
}

// DeleteRuntimeServer removes a record by name
func (s *SQLiteStore) DeleteRuntimeServer(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runtime_servers WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting runtime server: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("runtime server deleted", "name", name)
	return nil
}

// ListRuntimeServers returns all records ordered by name
func (s *SQLiteStore) ListRuntimeServers(ctx context.Context) ([]*RuntimeServer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, url, transport, timeout_seconds, headers_json, oauth_tokens_json, created_at, updated_at
		FROM runtime_servers ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("listing runtime servers: %w", err)
	}
	defer rows.Close()

	var servers []*RuntimeServer
	for rows.Next() {
		server, err := scanRuntimeServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning runtime server: %w", err)
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRuntimeServer(row scannable) (*RuntimeServer, error) {
	var server RuntimeServer
	var timeoutSeconds int64
	var headersJSON string
	var tokensJSON sql.NullString

	err := row.Scan(&server.Name, &server.URL, &server.Transport, &timeoutSeconds,
		&headersJSON, &tokensJSON, &server.CreatedAt, &server.UpdatedAt)
	if err != nil {
		return nil, err
	}

	server.Timeout = time.Duration(timeoutSeconds) * time.Second
	if err := json.Unmarshal([]byte(headersJSON), &server.Headers); err != nil {
		return nil, fmt.Errorf("unmarshaling headers: %w", err)
	}
	if tokensJSON.Valid {
		if err := json.Unmarshal([]byte(tokensJSON.String), &server.OAuthTokens); err != nil {
			return nil, fmt.Errorf("unmarshaling oauth tokens: %w", err)
		}
	}
	return &server, nil
}
