// Package store selects and constructs a storage engine from configuration.
package store

import (
	"fmt"

	"badgehub.org/internal/badge"
	"badgehub.org/internal/config"
	"badgehub.org/internal/store/pg"
	"badgehub.org/internal/store/sqlite"
)

// Open builds the engine named by cfg. The returned database is not yet
// connected; callers run Connect and apply cfg.Settings afterwards.
func Open(cfg config.Config) (badge.Database, error) {
	switch cfg.Engine {
	case config.EngineSQLite:
		return sqlite.Open(cfg.SQLitePath, sqlite.Options{
			MaxConnectAttempts: cfg.MaxConnectAttempts,
			ConnectBackoff:     cfg.ConnectBackoff,
		})
	case config.EnginePostgres:
		return pg.Open(cfg.PostgresDSN, pg.Options{
			MaxConnectAttempts: cfg.MaxConnectAttempts,
			ConnectBackoff:     cfg.ConnectBackoff,
			MaxOpenConns:       cfg.MaxOpenConns,
			MaxIdleConns:       cfg.MaxIdleConns,
			ConnMaxLifetime:    cfg.ConnMaxLifetime,
		})
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}
