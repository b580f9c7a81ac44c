package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"badgehub.org/internal/badge"
	"badgehub.org/internal/obs"
)

// Runtime tunables reachable through ApplySettings. SQLite pragmas do not
// take bound parameters, so on top of the shared grammar check the name must
// be on this list and the value must be a bare number or keyword before it is
// spliced into the PRAGMA statement.
var allowedPragmas = map[string]bool{
	"busy_timeout":       true,
	"cache_size":         true,
	"foreign_keys":       true,
	"journal_size_limit": true,
	"mmap_size":          true,
	"synchronous":        true,
	"temp_store":         true,
	"wal_autocheckpoint": true,
}

// ApplySettings validates every pair, then applies them as pragmas. A single
// bad entry fails the call before anything is written.
func (s *Store) ApplySettings(ctx context.Context, settings map[string]string) error {
	if err := badge.ValidateSettings(settings); err != nil {
		return err
	}
	for name, value := range settings {
		if !allowedPragmas[name] {
			return badge.Validationf("setting %q is not tunable on sqlite", name)
		}
		if err := validatePragmaValue(name, value); err != nil {
			return err
		}
	}
	db, err := s.handle()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)

	op := obs.StartOperation(engineName, "config", "apply_settings", "")
	for _, name := range names {
		// Name and value were both checked above against closed grammars.
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %s", name, settings[name])); err != nil {
			// Failures name the attempted value so the rejected pair is
			// diagnosable without re-running the call.
			wrapped := &badge.OpError{Op: "apply_settings", Entity: "config", ID: name,
				Err: fmt.Errorf("value %q: %w", settings[name], classify(err))}
			op.Finish(0, wrapped)
			return wrapped
		}
	}
	op.Finish(int64(len(names)), nil)
	return nil
}

// validatePragmaValue narrows the shared value grammar to what a pragma can
// carry verbatim: a signed integer or a single keyword.
func validatePragmaValue(name, value string) error {
	if err := badge.ValidateSettingValue(name, value); err != nil {
		return err
	}
	if strings.ContainsAny(value, " \t") {
		return badge.Validationf("invalid value %q for setting %q", value, name)
	}
	return nil
}

// RuntimeConfig reports the engine version and the effective pragma values.
// Individual probe failures are skipped; the call itself never errors.
func (s *Store) RuntimeConfig(ctx context.Context) map[string]any {
	out := map[string]any{"engine": engineName, "path": s.path}
	db, err := s.handle()
	if err != nil {
		return out
	}

	var version string
	if err := db.QueryRowContext(ctx, "select sqlite_version()").Scan(&version); err == nil {
		out["version"] = version
	}
	for _, name := range []string{"journal_mode", "synchronous", "busy_timeout", "cache_size", "page_size", "foreign_keys"} {
		var value any
		if err := db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err == nil {
			out[name] = value
		}
	}
	return out
}

// Stats reports database size figures derived from the page counters.
func (s *Store) Stats(ctx context.Context) map[string]any {
	out := map[string]any{"engine": engineName}
	db, err := s.handle()
	if err != nil {
		return out
	}

	var pageCount, pageSize, freelist int64
	if err := db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		out["page_count"] = pageCount
	}
	if err := db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
		out["page_size"] = pageSize
	}
	if err := db.QueryRowContext(ctx, "PRAGMA freelist_count").Scan(&freelist); err == nil {
		out["freelist_count"] = freelist
	}
	if pageCount > 0 && pageSize > 0 {
		out["size_bytes"] = pageCount * pageSize
	}
	return out
}

// ConnectionInfo reports pool state from database/sql.
func (s *Store) ConnectionInfo(ctx context.Context) map[string]any {
	out := map[string]any{
		"engine":    engineName,
		"path":      s.path,
		"connected": s.IsConnected(),
	}
	db, err := s.handle()
	if err != nil {
		return out
	}
	stats := db.Stats()
	out["open_connections"] = stats.OpenConnections
	out["in_use"] = stats.InUse
	out["idle"] = stats.Idle
	out["wait_count"] = stats.WaitCount
	return out
}
