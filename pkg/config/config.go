// Package config loads and validates the mentionoor configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultProvider is the fallback backend for unroutable models.
	DefaultProvider = "mock"

	// DefaultSQLitePath is the default database file.
	DefaultSQLitePath = "./mentionoor.db"

	// DefaultMaxConcurrent caps simultaneously in-flight provider calls
	// across the whole process.
	DefaultMaxConcurrent = 5

	// DefaultUnitDelay is the pause inserted before each work unit to
	// stay under external rate limits.
	DefaultUnitDelay = 100 * time.Millisecond

	// DefaultRequestTimeout bounds a single provider HTTP call.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultEncryptionKey is a development-only key for API keys at
	// rest. Production deployments must override it.
	DefaultEncryptionKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
)

// Config is the root configuration for mentionoor.
type Config struct {
	LogLevel     string             `yaml:"log_level" mapstructure:"log_level"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Database     DatabaseConfig     `yaml:"database" mapstructure:"database"`
	Providers    ProvidersConfig    `yaml:"providers" mapstructure:"providers"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Encryption   EncryptionConfig   `yaml:"encryption" mapstructure:"encryption"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP request limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute,omitempty" mapstructure:"requests_per_minute"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// ProvidersConfig contains LLM backend settings. API keys set here take
// precedence over keys stored via the settings endpoint.
type ProvidersConfig struct {
	// Default names the backend used for models whose identifier does
	// not match a known prefix. "auto" means no fallback: unroutable
	// models fail with a configuration error.
	Default string `yaml:"default" mapstructure:"default"`

	OpenAIAPIKey    string `yaml:"openai_api_key,omitempty" mapstructure:"openai_api_key"`
	GeminiAPIKey    string `yaml:"gemini_api_key,omitempty" mapstructure:"gemini_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key,omitempty" mapstructure:"anthropic_api_key"`

	RequestTimeout time.Duration `yaml:"request_timeout,omitempty" mapstructure:"request_timeout"`
}

// OrchestratorConfig contains run processing settings.
type OrchestratorConfig struct {
	// MaxConcurrent bounds in-flight provider calls process-wide, not
	// per run.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// UnitDelay paces work units independently of the concurrency cap.
	// Zero disables pacing.
	UnitDelay time.Duration `yaml:"unit_delay,omitempty" mapstructure:"unit_delay"`
}

// EncryptionConfig contains at-rest encryption settings.
type EncryptionConfig struct {
	// Key is a base64-encoded 32-byte key for sealing provider API keys.
	Key string `yaml:"key" mapstructure:"key"`
}

// envKeys lists every configuration key so environment overrides apply
// even when the key is absent from the file. AutomaticEnv alone only
// covers keys viper already knows about.
var envKeys = []string{
	"log_level",
	"server.listen",
	"server.cors_origins",
	"server.rate_limit.enabled",
	"server.rate_limit.requests_per_minute",
	"database.driver",
	"database.sqlite.path",
	"database.postgres.host",
	"database.postgres.port",
	"database.postgres.user",
	"database.postgres.password",
	"database.postgres.database",
	"database.postgres.ssl_mode",
	"providers.default",
	"providers.openai_api_key",
	"providers.gemini_api_key",
	"providers.anthropic_api_key",
	"providers.request_timeout",
	"orchestrator.max_concurrent",
	"orchestrator.unit_delay",
	"encryption.key",
}

// Load reads the configuration file at path and applies MENTIONOOR_*
// environment variable overrides (e.g. MENTIONOOR_ENCRYPTION_KEY).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("MENTIONOOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerMinute == 0 {
		c.Server.RateLimit.RequestsPerMinute = 120
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Providers.Default == "" {
		c.Providers.Default = DefaultProvider
	}

	if c.Providers.RequestTimeout == 0 {
		c.Providers.RequestTimeout = DefaultRequestTimeout
	}

	if c.Orchestrator.MaxConcurrent == 0 {
		c.Orchestrator.MaxConcurrent = DefaultMaxConcurrent
	}

	if c.Orchestrator.UnitDelay == 0 {
		c.Orchestrator.UnitDelay = DefaultUnitDelay
	}

	if c.Encryption.Key == "" {
		c.Encryption.Key = DefaultEncryptionKey
	}
}

// validProviders is the set of backend names accepted as a default.
var validProviders = map[string]struct{}{
	"mock":      {},
	"openai":    {},
	"gemini":    {},
	"anthropic": {},
	"auto":      {},
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if _, ok := validProviders[c.Providers.Default]; !ok {
		return fmt.Errorf("unknown default provider: %s", c.Providers.Default)
	}

	if c.Orchestrator.MaxConcurrent < 1 {
		return fmt.Errorf("orchestrator.max_concurrent must be at least 1")
	}

	if c.Orchestrator.UnitDelay < 0 {
		return fmt.Errorf("orchestrator.unit_delay must not be negative")
	}

	return nil
}
