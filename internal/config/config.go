// Package config loads startup configuration from the environment. The
// module reads configuration once at process start and never reloads it.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Engine names accepted by BADGE_DB_ENGINE.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

// Config holds every knob the persistence layer accepts at startup.
type Config struct {
	// Engine selects the storage engine: "sqlite" or "postgres".
	Engine string `env:"BADGE_DB_ENGINE" envDefault:"sqlite"`
	// SQLitePath is the embedded database file path.
	SQLitePath string `env:"BADGE_SQLITE_PATH" envDefault:"badges.db"`
	// PostgresDSN is the networked engine DSN; required when Engine is postgres.
	PostgresDSN string `env:"BADGE_PG_DSN"`

	// MaxConnectAttempts bounds the connect retry loop.
	MaxConnectAttempts int `env:"BADGE_DB_MAX_CONNECT_ATTEMPTS" envDefault:"3"`
	// ConnectBackoff is the base delay; attempt k waits base * 2^(k-1).
	ConnectBackoff time.Duration `env:"BADGE_DB_CONNECT_BACKOFF" envDefault:"200ms"`

	// Pool sizing for the networked engine.
	MaxOpenConns    int           `env:"BADGE_PG_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"BADGE_PG_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"BADGE_PG_CONN_MAX_LIFETIME" envDefault:"15m"`

	// Settings are engine tunables applied after connect, e.g.
	// BADGE_DB_SETTINGS="work_mem:4MB,statement_timeout:30s".
	Settings map[string]string `env:"BADGE_DB_SETTINGS" envSeparator:"," envKeyValSeparator:":"`
}

// Load builds and validates Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite engine requires BADGE_SQLITE_PATH")
		}
	case EnginePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres engine requires BADGE_PG_DSN")
		}
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if c.MaxConnectAttempts < 1 {
		return fmt.Errorf("max connect attempts must be at least 1, got %d", c.MaxConnectAttempts)
	}
	if c.ConnectBackoff <= 0 {
		return fmt.Errorf("connect backoff must be positive, got %s", c.ConnectBackoff)
	}
	return nil
}
