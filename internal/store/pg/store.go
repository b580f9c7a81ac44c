// Package pg implements the badge persistence contract over PostgreSQL via
// the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"badgehub.org/internal/badge"
	"badgehub.org/internal/obs"
)

const engineName = "postgres"

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Options tune the connection lifecycle and the pool.
type Options struct {
	// MaxConnectAttempts bounds the connect retry loop; minimum 1.
	MaxConnectAttempts int
	// ConnectBackoff is the base retry delay; attempt k waits base * 2^(k-1).
	ConnectBackoff time.Duration

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConnectAttempts < 1 {
		o.MaxConnectAttempts = 3
	}
	if o.ConnectBackoff <= 0 {
		o.ConnectBackoff = 200 * time.Millisecond
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 25
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = 10
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 15 * time.Minute
	}
	return o
}

// Store owns one PostgreSQL pool and implements badge.Database.
type Store struct {
	mu        sync.Mutex
	db        *sql.DB
	dsn       string
	opts      Options
	connected bool
}

var _ badge.Database = (*Store)(nil)

// Open prepares a store for the given DSN. No connection is made until
// Connect.
func Open(dsn string, opts Options) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, badge.Validationf("postgres dsn must not be blank")
	}
	return &Store{dsn: dsn, opts: opts.withDefaults()}, nil
}

// NewStore wraps an existing handle. Used by tests that inject a mocked
// *sql.DB; the store starts connected and skips migrations.
func NewStore(db *sql.DB, opts Options) *Store {
	return &Store{db: db, opts: opts.withDefaults(), connected: true}
}

// Engine names the backing engine.
func (s *Store) Engine() string { return engineName }

// DB returns the raw handle, or nil before Connect.
func (s *Store) DB() *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// Connect opens the pool and verifies the server is reachable. Failures are
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
				return fmt.Errorf("connect postgres: %w: %v", badge.ErrConnection, ctx.Err())
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
	return fmt.Errorf("connect postgres after %d attempts: %w: %v", s.opts.MaxConnectAttempts, badge.ErrConnection, lastErr)
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("pgx", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	db.SetMaxOpenConns(s.opts.MaxOpenConns)
	db.SetMaxIdleConns(s.opts.MaxIdleConns)
	db.SetConnMaxLifetime(s.opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Disconnect closes the pool. Safe to call when already disconnected.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.connected = false
	obs.SetConnected(engineName, false)
	if err != nil {
		return fmt.Errorf("close postgres pool: %w", err)
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

// handle returns the live pool or an ErrConnection when disconnected.
func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.db == nil {
		return nil, fmt.Errorf("postgres store is not connected: %w", badge.ErrConnection)
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
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			field := pgErr.ConstraintName
			if field == "" {
				field = "unique"
			}
			return &badge.ConstraintError{Field: field, Err: err}
		case pgErrForeignKeyViolation:
			return &badge.ConstraintError{Field: "foreign key", Err: err}
		}
		// Class 08 covers connection exceptions.
		if strings.HasPrefix(pgErr.Code, "08") {
			return fmt.Errorf("%w: %v", badge.ErrConnection, err)
		}
	}
	return fmt.Errorf("%w: %v", badge.ErrEngine, err)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
