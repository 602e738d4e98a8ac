package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  listen: \":9000\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Database.SQLite.Path)
	assert.Equal(t, DefaultProvider, cfg.Providers.Default)
	assert.Equal(t, DefaultMaxConcurrent, cfg.Orchestrator.MaxConcurrent)
	assert.Equal(t, DefaultUnitDelay, cfg.Orchestrator.UnitDelay)
	assert.Equal(t, DefaultRequestTimeout, cfg.Providers.RequestTimeout)
	assert.NotEmpty(t, cfg.Encryption.Key)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
server:
  listen: ":8081"
  cors_origins:
    - https://example.com
  rate_limit:
    enabled: true
database:
  driver: postgres
  postgres:
    host: localhost
    port: 5432
    user: mentionoor
    password: secret
    database: mentionoor
providers:
  default: openai
  openai_api_key: sk-test
  request_timeout: 10s
orchestrator:
  max_concurrent: 8
  unit_delay: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"https://example.com"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 120, cfg.Server.RateLimit.RequestsPerMinute)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "openai", cfg.Providers.Default)
	assert.Equal(t, "sk-test", cfg.Providers.OpenAIAPIKey)
	assert.Equal(t, 10*time.Second, cfg.Providers.RequestTimeout)
	assert.Equal(t, 8, cfg.Orchestrator.MaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, cfg.Orchestrator.UnitDelay)
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")

	t.Setenv("MENTIONOOR_LOG_LEVEL", "warning")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warning", cfg.LogLevel)
}

func TestLoad_EnvVarOverridesAbsentKeys(t *testing.T) {
	// Keys not present in the file must still honor env overrides;
	// the encryption key in particular is expected to be deployed via
	// MENTIONOOR_ENCRYPTION_KEY without a config file entry.
	path := writeConfig(t, "log_level: info\n")

	t.Setenv("MENTIONOOR_ENCRYPTION_KEY", "env-key-value")
	t.Setenv("MENTIONOOR_SERVER_LISTEN", ":9999")
	t.Setenv("MENTIONOOR_PROVIDERS_OPENAI_API_KEY", "sk-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key-value", cfg.Encryption.Key,
		"must not fall back to the development key")
	assert.Equal(t, ":9999", cfg.Server.Listen)
	assert.Equal(t, "sk-env", cfg.Providers.OpenAIAPIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(cfg *Config) {},
		},
		{
			name: "unknown driver",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = "oracle"
			},
			wantErr: "unsupported database driver",
		},
		{
			name: "postgres without host",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = "postgres"
			},
			wantErr: "database.postgres.host is required",
		},
		{
			name: "unknown default provider",
			mutate: func(cfg *Config) {
				cfg.Providers.Default = "cohere"
			},
			wantErr: "unknown default provider",
		},
		{
			name: "zero concurrency",
			mutate: func(cfg *Config) {
				cfg.Orchestrator.MaxConcurrent = -1
			},
			wantErr: "max_concurrent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
