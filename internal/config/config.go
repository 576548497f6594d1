// ABOUTME: Configuration loading and parsing for toolgate
// ABOUTME: Supports YAML and TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied to MCP server entries that omit the optional fields.
const (
	DefaultServerTimeout = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
)

// Config represents the complete toolgate configuration
type Config struct {
	Server   ServerConfig     `yaml:"server" toml:"server"`
	Database DatabaseConfig   `yaml:"database" toml:"database"`
	Auth     AuthConfig       `yaml:"auth" toml:"auth"`
	Azure    AzureConfig      `yaml:"azure" toml:"azure"`
	Logging  LoggingConfig    `yaml:"logging" toml:"logging"`
	Servers  []MCPServerEntry `yaml:"mcp_servers" toml:"mcp_servers"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds management API authentication configuration.
// When JWTSecret is empty the API runs unauthenticated (local development).
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret" toml:"jwt_secret"`
	AdminPasswordHash string        `yaml:"admin_password_hash" toml:"admin_password_hash"`
	TokenTTL          time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// AzureConfig holds Azure credential configuration for protected MCP servers
type AzureConfig struct {
	// ClientID selects the managed identity when deployed. Falls back to the
	// AZURE_CLIENT_ID environment variable, then to the default credential chain.
	ClientID string `yaml:"client_id" toml:"client_id"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MCPServerEntry declares a statically-configured MCP server.
// Entries from config are read-only at runtime; removing one requires a restart.
type MCPServerEntry struct {
	Name          string            `yaml:"name" toml:"name"`
	URL           string            `yaml:"url" toml:"url"`
	Transport     string            `yaml:"transport" toml:"transport"`
	Timeout       time.Duration     `yaml:"-" toml:"-"`
	RetryAttempts int               `yaml:"retry_attempts" toml:"retry_attempts"`
	RetryDelay    time.Duration     `yaml:"-" toml:"-"`
	Headers       map[string]string `yaml:"headers" toml:"headers"`
	// AppID is the Entra ID application ID URI for servers behind EasyAuth.
	// When set, a bearer token is acquired and attached to all requests.
	AppID string `yaml:"app_id" toml:"app_id"`

	// Raw string values for unmarshaling
	TimeoutRaw    string `yaml:"timeout" toml:"timeout"`
	RetryDelayRaw string `yaml:"retry_delay" toml:"retry_delay"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw file content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Parse duration fields and apply defaults
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret != "" && c.Auth.AdminPasswordHash == "" {
		return fmt.Errorf("auth.admin_password_hash is required when auth.jwt_secret is set")
	}

	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("mcp_servers[%d].name is required", i)
		}
		if s.URL == "" {
			return fmt.Errorf("mcp_servers[%d].url is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("mcp_servers: duplicate server name %q", s.Name)
		}
		seen[s.Name] = true
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
// and fills in per-server defaults.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing auth.token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}

	for i := range cfg.Servers {
		s := &cfg.Servers[i]

		if s.TimeoutRaw != "" {
			s.Timeout, err = time.ParseDuration(s.TimeoutRaw)
			if err != nil {
				return fmt.Errorf("parsing mcp_servers[%d].timeout %q: %w", i, s.TimeoutRaw, err)
			}
		}
		if s.Timeout == 0 {
			s.Timeout = DefaultServerTimeout
		}

		if s.RetryDelayRaw != "" {
			s.RetryDelay, err = time.ParseDuration(s.RetryDelayRaw)
			if err != nil {
				return fmt.Errorf("parsing mcp_servers[%d].retry_delay %q: %w", i, s.RetryDelayRaw, err)
			}
		}
		if s.RetryDelay == 0 {
			s.RetryDelay = DefaultRetryDelay
		}

		if s.RetryAttempts == 0 {
			s.RetryAttempts = DefaultRetryAttempts
		}
	}

	return nil
}
