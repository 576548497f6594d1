// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML/TOML loading, env var expansion, duration parsing, and defaults

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configContent := `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"
  admin_password_hash: "$2a$10$abcdefghijklmnopqrstuv"
  token_ttl: "12h"

azure:
  client_id: "client-123"

logging:
  level: "debug"
  format: "json"

mcp_servers:
  - name: "cardapi"
    url: "http://localhost:8081/mcp"
    transport: "streamable-http"
    timeout: "45s"
    retry_attempts: 5
    retry_delay: "2s"
    app_id: "api://cardapi-mcp-easyauth"
  - name: "knowledge"
    url: "http://localhost:8082"
`
	path := writeConfig(t, "config.yaml", configContent)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Errorf("TokenTTL = %v, want 12h", cfg.Auth.TokenTTL)
	}
	if len(cfg.Servers) != 2 {
		t.Fatalf("len(Servers) = %d, want 2", len(cfg.Servers))
	}

	cardapi := cfg.Servers[0]
	if cardapi.Timeout != 45*time.Second {
		t.Errorf("cardapi.Timeout = %v, want 45s", cardapi.Timeout)
	}
	if cardapi.RetryAttempts != 5 {
		t.Errorf("cardapi.RetryAttempts = %d, want 5", cardapi.RetryAttempts)
	}
	if cardapi.RetryDelay != 2*time.Second {
		t.Errorf("cardapi.RetryDelay = %v, want 2s", cardapi.RetryDelay)
	}
	if cardapi.AppID != "api://cardapi-mcp-easyauth" {
		t.Errorf("cardapi.AppID = %q", cardapi.AppID)
	}

	// Second server gets defaults
	knowledge := cfg.Servers[1]
	if knowledge.Timeout != DefaultServerTimeout {
		t.Errorf("knowledge.Timeout = %v, want default %v", knowledge.Timeout, DefaultServerTimeout)
	}
	if knowledge.RetryAttempts != DefaultRetryAttempts {
		t.Errorf("knowledge.RetryAttempts = %d, want default %d", knowledge.RetryAttempts, DefaultRetryAttempts)
	}
	if knowledge.RetryDelay != DefaultRetryDelay {
		t.Errorf("knowledge.RetryDelay = %v, want default %v", knowledge.RetryDelay, DefaultRetryDelay)
	}
}

func TestLoad_TOMLConfig(t *testing.T) {
	configContent := `
[server]
http_addr = "127.0.0.1:9090"

[database]
path = "./toolgate.db"

[[mcp_servers]]
name = "cardapi"
url = "http://localhost:8081"
timeout = "10s"
`
	path := writeConfig(t, "config.toml", configContent)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].Timeout != 10*time.Second {
		t.Errorf("Servers = %+v", cfg.Servers)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TOOLGATE_TEST_SECRET", "expanded-secret")
	t.Setenv("TOOLGATE_TEST_HASH", "$2a$10$abcdefghijklmnopqrstuv")

	configContent := `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "${TOOLGATE_TEST_SECRET}"
  admin_password_hash: "${TOOLGATE_TEST_HASH}"
`
	path := writeConfig(t, "config.yaml", configContent)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "expanded-secret" {
		t.Errorf("JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "expanded-secret")
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	configContent := `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
logging:
  level: "${TOOLGATE_DEFINITELY_NOT_SET}"
`
	path := writeConfig(t, "config.yaml", configContent)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "" {
		t.Errorf("Level = %q, want empty", cfg.Logging.Level)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing http_addr",
			content: `
database:
  path: "./test.db"
`,
			wantErr: "server.http_addr is required",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: "0.0.0.0:8080"
`,
			wantErr: "database.path is required",
		},
		{
			name: "jwt secret without password hash",
			content: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "secret"
`,
			wantErr: "admin_password_hash is required",
		},
		{
			name: "server without name",
			content: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
mcp_servers:
  - url: "http://localhost:8081"
`,
			wantErr: "name is required",
		},
		{
			name: "duplicate server names",
			content: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
mcp_servers:
  - name: "cardapi"
    url: "http://localhost:8081"
  - name: "cardapi"
    url: "http://localhost:8082"
`,
			wantErr: "duplicate server name",
		},
		{
			name: "invalid duration",
			content: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
mcp_servers:
  - name: "cardapi"
    url: "http://localhost:8081"
    timeout: "not-a-duration"
`,
			wantErr: "parsing durations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() should have returned an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() should have returned an error for missing file")
	}
}
