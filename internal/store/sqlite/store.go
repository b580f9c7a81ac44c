// Package sqlite implements the badge persistence contract over an embedded
// single-file SQLite database (modernc.org/sqlite, CGO-free).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"badgehub.org/internal/badge"
	"badgehub.org/internal/obs"
)

const engineName = "sqlite"

// Options tune the connection lifecycle.
type Options struct {
	// MaxConnectAttempts bounds the connect retry loop; minimum 1.
	MaxConnectAttempts int
	// ConnectBackoff is the base retry delay; attempt k waits base * 2^(k-1).
	ConnectBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConnectAttempts < 1 {
		o.MaxConnectAttempts = 3
	}
	if o.ConnectBackoff <= 0 {
		o.ConnectBackoff = 200 * time.Millisecond
	}
	return o
}

// Store owns one SQLite database file and implements badge.Database.
type Store struct {
	mu        sync.Mutex
	db        *sql.DB
	path      string
	opts      Options
	connected bool
}

var _ badge.Database = (*Store)(nil)

// Open prepares a store for the given database file. No connection is made
// until Connect.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, badge.Validationf("sqlite path must not be blank")
	}
	return &Store{path: filepath.Clean(path), opts: opts.withDefaults()}, nil
}

// Engine names the backing engine.
func (s *Store) Engine() string { return engineName }

// DB returns the raw handle, or nil before Connect. Intended for tests and
// migration tooling.
func (s *Store) DB() *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// Connect opens the database file, applies embedded migrations and verifies
// the connection. Already-connected stores return immediately. Failures are
// retried with exponential backoff up to MaxConnectAttempts; exhausting the
// budget returns a fatal ErrConnection naming the attempt count and the last
// underlying error. Connect holds the state lock for the whole retry window,
// so IsConnected and HealthCheck block until it settles.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxConnectAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("connect sqlite: %w: %v", badge.ErrConnection, ctx.Err())
			case <-time.After(badge.BackoffDelay(s.opts.ConnectBackoff, attempt-1)):
			}
		}

		db, err := s.open(ctx)
		obs.CountConnectAttempt(engineName, err)
		if err == nil {
			s.db = db
			s.connected = true
			obs.SetConnected(engineName, true)
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("connect sqlite after %d attempts: %w: %v", s.opts.MaxConnectAttempts, badge.ErrConnection, lastErr)
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	dsn := "file:" + s.path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A file-backed SQLite handle must serialize writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Disconnect checkpoints the write-ahead log and releases the handle. Safe
// to call when already disconnected.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.db == nil {
		return nil
	}

	// Flush the WAL before closing so the main file is complete on disk.
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		obs.LogEvent(map[string]any{
			"ts":     time.Now().UTC().Format(time.RFC3339Nano),
			"type":   "db_operation",
			"engine": engineName,
			"msg":    "wal checkpoint on disconnect failed",
			"error":  err.Error(),
		})
	}

	err := s.db.Close()
	s.db = nil
	s.connected = false
	obs.SetConnected(engineName, false)
	if err != nil {
		return fmt.Errorf("close sqlite db: %w", err)
	}
	return nil
}

// IsConnected reports the current state without side effects.
func (s *Store) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// HealthCheck runs a trivial round trip. It never returns an error.
func (s *Store) HealthCheck(ctx context.Context) bool {
	s.mu.Lock()
	db := s.db
	connected := s.connected
	s.mu.Unlock()
	if !connected || db == nil {
		return false
	}
	var one int
	return db.QueryRowContext(ctx, "select 1").Scan(&one) == nil
}

// Issuers returns the issuer repository.
func (s *Store) Issuers() badge.IssuerRepository { return &issuerRepo{s: s} }

// BadgeClasses returns the badge class repository.
func (s *Store) BadgeClasses() badge.BadgeClassRepository { return &badgeClassRepo{s: s} }

// Assertions returns the assertion repository.
func (s *Store) Assertions() badge.AssertionRepository { return &assertionRepo{s: s} }

// Platforms returns the platform repository.
func (s *Store) Platforms() badge.PlatformRepository { return &platformRepo{s: s} }

// PlatformUsers returns the platform user repository.
func (s *Store) PlatformUsers() badge.PlatformUserRepository { return &platformUserRepo{s: s} }

// UserAssertions returns the user/assertion join repository.
func (s *Store) UserAssertions() badge.UserAssertionRepository { return &userAssertionRepo{s: s} }

// handle returns the live database or an ErrConnection when disconnected.
func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.db == nil {
		return nil, fmt.Errorf("sqlite store is not connected: %w", badge.ErrConnection)
	}
	return s.db, nil
}

// classify maps an engine error into the shared taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return &badge.ConstraintError{Field: uniqueField(msg), Err: err}
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return &badge.ConstraintError{Field: "foreign key", Err: err}
	case strings.Contains(msg, "unable to open database"):
		return fmt.Errorf("%w: %v", badge.ErrConnection, err)
	default:
		return fmt.Errorf("%w: %v", badge.ErrEngine, err)
	}
}

// uniqueField extracts "table.column" from a UNIQUE violation message.
func uniqueField(msg string) string {
	const marker = "UNIQUE constraint failed: "
	idx := strings.Index(msg, marker)
	if idx == -1 {
		return "unique"
	}
	field := msg[idx+len(marker):]
	if cut := strings.IndexAny(field, " ("); cut != -1 {
		field = field[:cut]
	}
	return strings.TrimSpace(field)
}
