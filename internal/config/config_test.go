package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Server.IdempotencyTTL)
	assert.Equal(t, "data/spend_requests.db", cfg.Database.Path)
	assert.Equal(t, time.Hour, cfg.Workers.IdempotencySweepInterval)
	assert.Equal(t, "json", cfg.Logger.Format)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 9090
  read_timeout: 5s
database:
  path: /tmp/spends/test.db
logger:
  format: console
`)
	t.Setenv("SPENDS_LOGGER_LEVEL", "debug")
	t.Setenv("SPENDS_DB_PATH", "/var/lib/spends.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "/var/lib/spends.db", cfg.Database.Path)
}

func TestLoad_EnvFile(t *testing.T) {
	const key = "SPENDS_WORKERS_STORE_REFRESH_INTERVAL"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	envFile := writeFile(t, ".env", key+"=2m\n")

	cfg, err := Load("", envFile, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Workers.StoreRefreshInterval)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := writeFile(t, "config.yaml", "server:\n  port: 0\n")
	_, err = Load(path)
	assert.ErrorContains(t, err, "server.port")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ttl", func(c *Config) { c.Server.IdempotencyTTL = 0 }, "idempotency_ttl"},
		{"db path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"sweep", func(c *Config) { c.Workers.IdempotencySweepInterval = 0 }, "idempotency_sweep_interval"},
		{"refresh", func(c *Config) { c.Workers.StoreRefreshInterval = -time.Second }, "store_refresh_interval"},
		{"format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	cfg := &Config{Database: DatabaseConfig{Path: filepath.Join(dir, "db.sqlite")}}
	require.NoError(t, cfg.EnsureDataDir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	cfg.Database.Path = ":memory:"
	assert.NoError(t, cfg.EnsureDataDir())
}
