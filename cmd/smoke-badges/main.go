package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"badgehub.org/internal/badge"
	"badgehub.org/internal/config"
	"badgehub.org/internal/obs"
	"badgehub.org/internal/store"
)

func main() {
	log.SetFlags(0)
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Engine == config.EngineSQLite && os.Getenv("BADGE_SQLITE_PATH") == "" {
		// Default to a throwaway file so the smoke run never touches real data.
		dir, err := os.MkdirTemp("", "badge-smoke-*")
		if err != nil {
			log.Fatalf("temp dir: %v", err)
		}
		defer os.RemoveAll(dir)
		cfg.SQLitePath = filepath.Join(dir, "smoke.db")
	}

	db, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Connect(ctx); err != nil {
		log.Fatalf("connect %s: %v", cfg.Engine, err)
	}
	defer db.Disconnect(context.Background())

	if len(cfg.Settings) > 0 {
		if err := db.ApplySettings(ctx, cfg.Settings); err != nil {
			log.Fatalf("apply settings: %v", err)
		}
	}

	svc := badge.NewService(db)

	eco, err := svc.CreateEcosystem(ctx,
		badge.Issuer{Name: "Smoke Issuer", URL: "https://issuer.example.org"},
		badge.BadgeClass{Name: "Smoke Badge", Description: "awarded by the smoke run", Image: "https://issuer.example.org/badge.png"},
		badge.Assertion{Recipient: badge.Recipient{Identity: "smoke@example.org", Type: "email"}},
	)
	if err != nil {
		log.Fatalf("create ecosystem: %v", err)
	}

	batch, err := svc.CreateAssertions(ctx, []badge.Assertion{
		{BadgeClassID: eco.BadgeClass.ID, Recipient: badge.Recipient{Identity: "a@example.org", Type: "email"}},
		{BadgeClassID: eco.BadgeClass.ID, Recipient: badge.Recipient{Identity: "b@example.org", Type: "email"}},
	})
	if err != nil {
		log.Fatalf("batch create: %v", err)
	}
	if batch.Summary.Failed != 0 {
		log.Fatalf("batch create had failures: %+v", batch.Summary)
	}

	result, err := svc.DeleteIssuerCascade(ctx, eco.Issuer.ID)
	if err != nil {
		log.Fatalf("cascade delete: %v", err)
	}
	if !result.IssuerDeleted || result.BadgeClassesDeleted != 1 || result.AssertionsDeleted != 3 {
		log.Fatalf("unexpected cascade result: %+v", result)
	}

	if !db.HealthCheck(ctx) {
		log.Fatal("health check failed after cascade")
	}

	fmt.Printf("✅ %s smoke test passed: issuer=%s cascade=%+v\n", db.Engine(), eco.Issuer.ID, result)
}
