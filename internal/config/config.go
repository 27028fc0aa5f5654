// ABOUTME: Configuration loading and parsing for chat-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chat-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// OpenAIConfig holds AI provider configuration. APIKey may also come from
// the secrets table at runtime; either source is accepted.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	GatewayBaseURL string `yaml:"gateway_base_url"`

	PollInterval    time.Duration `yaml:"-"`
	MaxPollAttempts int           `yaml:"max_poll_attempts"`

	// Raw string value for YAML unmarshaling
	PollIntervalRaw string `yaml:"poll_interval"`
}

// AnalyticsConfig holds the primary analytics engine endpoint. Both fields
// empty means events go straight to the relational fallback.
type AnalyticsConfig struct {
	EngineEndpoint string `yaml:"engine_endpoint"`
	EngineToken    string `yaml:"engine_token"`
}

// RateLimitConfig holds per-IP request limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`

	BlockDuration time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	BlockDurationRaw string `yaml:"block_duration"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills values the config file may omit.
func (c *Config) applyDefaults() {
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4"
	}
	if c.OpenAI.PollInterval == 0 {
		c.OpenAI.PollInterval = time.Second
	}
	if c.OpenAI.MaxPollAttempts == 0 {
		c.OpenAI.MaxPollAttempts = 30
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 20
	}
	if c.RateLimit.BlockDuration == 0 {
		c.RateLimit.BlockDuration = 5 * time.Minute
	}
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
	if c.OpenAI.MaxPollAttempts < 0 {
		return fmt.Errorf("openai.max_poll_attempts must not be negative")
	}
	if c.Analytics.EngineToken != "" && c.Analytics.EngineEndpoint == "" {
		return fmt.Errorf("analytics.engine_endpoint is required when engine_token is set")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.OpenAI.PollIntervalRaw != "" {
		cfg.OpenAI.PollInterval, err = time.ParseDuration(cfg.OpenAI.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.OpenAI.PollIntervalRaw, err)
		}
	}

	if cfg.RateLimit.BlockDurationRaw != "" {
		cfg.RateLimit.BlockDuration, err = time.ParseDuration(cfg.RateLimit.BlockDurationRaw)
		if err != nil {
			return fmt.Errorf("parsing block_duration %q: %w", cfg.RateLimit.BlockDurationRaw, err)
		}
	}

	return nil
}
