// Package container wires the payment request service and owns its lifecycle.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Worker   WorkerConfig

	// Version is reported by the health endpoint
	Version string
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file, or ":memory:"
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// IdempotencyTTL is how long a stored Idempotency-Key response is replayed
	IdempotencyTTL time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	IdempotencySweepInterval time.Duration
	StoreRefreshInterval     time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         "data/spend_requests.db",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdempotencyTTL: 24 * time.Hour,
		},
		Worker: WorkerConfig{
			IdempotencySweepInterval: time.Hour,
			StoreRefreshInterval:     5 * time.Minute,
		},
		Version: "dev",
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port is out of range")
	}
	if c.Worker.IdempotencySweepInterval <= 0 {
		return fmt.Errorf("worker.idempotency_sweep_interval must be positive")
	}
	if c.Worker.StoreRefreshInterval <= 0 {
		return fmt.Errorf("worker.store_refresh_interval must be positive")
	}
	return nil
}
