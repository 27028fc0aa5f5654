// Package config handles configuration loading for chat-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	openai:
//	  api_key: "${OPENAI_API_KEY}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	openai:
//	  poll_interval: "1s"
//	rate_limit:
//	  block_duration: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/chat-gateway/gateway.db"
//
// AI provider:
//
//	openai:
//	  api_key: "${OPENAI_API_KEY}"
//	  model: "gpt-4"
//	  gateway_base_url: ""   # optional AI gateway proxy
//	  poll_interval: "1s"
//	  max_poll_attempts: 30
//
// Analytics engine (primary sink; omit to use the relational fallback only):
//
//	analytics:
//	  engine_endpoint: "https://engine.example.com/ingest"
//	  engine_token: "${ANALYTICS_ENGINE_TOKEN}"
//
// Rate limiting:
//
//	rate_limit:
//	  enabled: true
//	  requests_per_minute: 20
//	  block_duration: "5m"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/chat-gateway/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
