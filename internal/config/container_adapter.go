package config

import (
	"github.com/garyjia/spend-requests/internal/container"
)

// ToContainerConfig converts the file-based configuration into the container's
// configuration structure.
func (c *Config) ToContainerConfig(version string) *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Server: container.ServerConfig{
			Host:           c.Server.Host,
			Port:           c.Server.Port,
			ReadTimeout:    c.Server.ReadTimeout,
			WriteTimeout:   c.Server.WriteTimeout,
			IdempotencyTTL: c.Server.IdempotencyTTL,
		},
		Worker: container.WorkerConfig{
			IdempotencySweepInterval: c.Workers.IdempotencySweepInterval,
			StoreRefreshInterval:     c.Workers.StoreRefreshInterval,
		},
		Version: version,
	}
}
