package store

import (
	"strings"
	"testing"
	"time"

	"badgehub.org/internal/config"
)

func TestOpenSelectsEngine(t *testing.T) {
	sqlite, err := Open(config.Config{
		Engine:             config.EngineSQLite,
		SQLitePath:         "badges.db",
		MaxConnectAttempts: 3,
		ConnectBackoff:     200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlite.Engine() != "sqlite" {
		t.Fatalf("engine = %q", sqlite.Engine())
	}
	if sqlite.IsConnected() {
		t.Fatal("factory must not connect")
	}

	postgres, err := Open(config.Config{
		Engine:      config.EnginePostgres,
		PostgresDSN: "postgres://localhost/badges",
	})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if postgres.Engine() != "postgres" {
		t.Fatalf("engine = %q", postgres.Engine())
	}
}

func TestOpenRejectsUnknownEngine(t *testing.T) {
	_, err := Open(config.Config{Engine: "oracle"})
	if err == nil || !strings.Contains(err.Error(), "oracle") {
		t.Fatalf("unknown engine: %v", err)
	}
}
