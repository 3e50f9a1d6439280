package config

import (
	"time"

	redisclient "github.com/trialworks/benchd/internal/infra/redis"
	"github.com/trialworks/benchd/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Recovery RecoveryConfig     `yaml:"recovery"`
}

// ServerConfig holds health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RecoveryConfig holds recovery sweep settings.
type RecoveryConfig struct {
	// SweepInterval between periodic recovery passes. 0 = one-shot only.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// MigrationsDir is where goose migrations live.
	MigrationsDir string `yaml:"migrations_dir"`
}
