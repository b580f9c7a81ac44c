package pg

import (
	"context"
	"fmt"
	"sort"

	"badgehub.org/internal/badge"
	"badgehub.org/internal/obs"
)

// ApplySettings validates every pair, then applies them with set_config so
// name and value travel as bound parameters, never as statement text. A
// single bad entry fails the call before anything is written.
func (s *Store) ApplySettings(ctx context.Context, settings map[string]string) error {
	if err := badge.ValidateSettings(settings); err != nil {
		return err
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
		var applied string
		if err := db.QueryRowContext(ctx, `select set_config($1, $2, false)`, name, settings[name]).Scan(&applied); err != nil {
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

// RuntimeConfig reports the server version and a few load-bearing settings.
// Individual probe failures are skipped; the call itself never errors.
func (s *Store) RuntimeConfig(ctx context.Context) map[string]any {
	out := map[string]any{"engine": engineName}
	db, err := s.handle()
	if err != nil {
		return out
	}

	var version string
	if err := db.QueryRowContext(ctx, `select version()`).Scan(&version); err == nil {
		out["version"] = version
	}
	rows, err := db.QueryContext(ctx, `
		select name, setting
		from pg_settings
		where name in ('max_connections', 'shared_buffers', 'work_mem', 'statement_timeout', 'server_version')
	`)
	if err != nil {
		return out
	}
	defer rows.Close()
	for rows.Next() {
		var name, setting string
		if err := rows.Scan(&name, &setting); err != nil {
			return out
		}
		out[name] = setting
	}
	return out
}

// Stats reports database-level counters for the current database.
func (s *Store) Stats(ctx context.Context) map[string]any {
	out := map[string]any{"engine": engineName}
	db, err := s.handle()
	if err != nil {
		return out
	}

	var sizeBytes int64
	if err := db.QueryRowContext(ctx, `select pg_database_size(current_database())`).Scan(&sizeBytes); err == nil {
		out["size_bytes"] = sizeBytes
	}
	var backends int
	var commits, rollbacks int64
	err = db.QueryRowContext(ctx, `
		select numbackends, xact_commit, xact_rollback
		from pg_stat_database
		where datname = current_database()
	`).Scan(&backends, &commits, &rollbacks)
	if err == nil {
		out["backends"] = backends
		out["xact_commit"] = commits
		out["xact_rollback"] = rollbacks
	}
	return out
}

// ConnectionInfo reports pool state from database/sql plus server identity.
func (s *Store) ConnectionInfo(ctx context.Context) map[string]any {
	out := map[string]any{
		"engine":    engineName,
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
	out["max_open_connections"] = stats.MaxOpenConnections

	var database, user string
	if err := db.QueryRowContext(ctx, `select current_database(), current_user`).Scan(&database, &user); err == nil {
		out["database"] = database
		out["user"] = user
	}
	return out
}
