// Package config handles configuration loading for toolgate.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${TOOLGATE_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	mcp_servers:
//	  - name: "cardapi"
//	    url: "http://localhost:8081/mcp"
//	    timeout: "30s"
//	    retry_delay: "1s"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # Management API
//
// Database:
//
//	database:
//	  path: "/var/lib/toolgate/toolgate.db"
//
// Management API authentication (optional; unauthenticated when omitted):
//
//	auth:
//	  jwt_secret: "${TOOLGATE_JWT_SECRET}"
//	  admin_password_hash: "$2a$10$..."   # bcrypt
//	  token_ttl: "24h"
//
// Azure credentials for EasyAuth-protected MCP servers:
//
//	azure:
//	  client_id: "${AZURE_CLIENT_ID}"
//
// Statically-declared MCP servers (read-only at runtime):
//
//	mcp_servers:
//	  - name: "cardapi"
//	    url: "http://localhost:8081/mcp"
//	    transport: "streamable-http"
//	    timeout: "30s"
//	    retry_attempts: 3
//	    retry_delay: "1s"
//	    app_id: "api://cardapi-mcp-easyauth"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/toolgate/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
