package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"badgehub.org/internal/badge"
	"badgehub.org/internal/ids"
	"badgehub.org/internal/obs"
)

type platformRepo struct{ s *Store }

var _ badge.PlatformRepository = (*platformRepo)(nil)

const platformColumns = `id, name, client_id, public_key, status, description, webhook_url, extensions, created_at, updated_at`

// Create defaults a blank status to active. ClientID uniqueness is enforced
// by the schema and surfaces as a ConstraintError.
func (r *platformRepo) Create(ctx context.Context, p badge.Platform) (badge.Platform, error) {
	if err := badge.ValidateID("client", p.ClientID); err != nil {
		return badge.Platform{}, err
	}
	if p.Status == "" {
		p.Status = badge.PlatformActive
	}
	if !p.Status.Valid() {
		return badge.Platform{}, badge.Validationf("unknown platform status %q", p.Status)
	}
	db, err := r.s.handle()
	if err != nil {
		return badge.Platform{}, err
	}

	if p.ID == "" {
		p.ID = ids.NewURN()
	}
	uid, err := uuidArg("platform", p.ID)
	if err != nil {
		return badge.Platform{}, err
	}
	p.ID = ids.ToURN(uid)
	now := time.Now().UTC().Truncate(time.Millisecond)
	p.CreatedAt, p.UpdatedAt = now, now

	op := obs.StartOperation(engineName, "platform", "create", p.ID)
	ext, err := jsonColumn(p.Extensions)
	if err != nil {
		op.Finish(0, err)
		return badge.Platform{}, err
	}
	_, err = db.ExecContext(ctx, `
		insert into platforms (`+platformColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uid, p.Name, p.ClientID, p.PublicKey, string(p.Status),
		nullString(p.Description), nullString(p.WebhookURL), ext, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		wrapped := &badge.OpError{Op: "create", Entity: "platform", ID: p.ID, Err: classify(err)}
		op.Finish(0, wrapped)
		return badge.Platform{}, wrapped
	}
	op.Finish(1, nil)
	return p, nil
}

func (r *platformRepo) FindByID(ctx context.Context, id string) (*badge.Platform, error) {
	if err := badge.ValidateID("platform", id); err != nil {
		return nil, err
	}
	uid, ok := uuidLookup(id)
	if !ok {
		return nil, nil
	}
	return r.findOne(ctx, "find_by_id", id,
		`select `+platformColumns+` from platforms where id = $1`, uid)
}

func (r *platformRepo) FindByClientID(ctx context.Context, clientID string) (*badge.Platform, error) {
	if err := badge.ValidateID("client", clientID); err != nil {
		return nil, err
	}
	return r.findOne(ctx, "find_by_client_id", clientID,
		`select `+platformColumns+` from platforms where client_id = $1`, clientID)
}

func (r *platformRepo) findOne(ctx context.Context, opName, id, query string, args ...any) (*badge.Platform, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	op := obs.StartOperation(engineName, "platform", opName, id)
	row := db.QueryRowContext(ctx, query, args...)
	p, err := scanPlatform(row)
	if errors.Is(err, sql.ErrNoRows) {
		op.Finish(0, nil)
		return nil, nil
	}
	if err != nil {
		wrapped := &badge.OpError{Op: opName, Entity: "platform", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	op.Finish(1, nil)
	return p, nil
}

func (r *platformRepo) FindAll(ctx context.Context) ([]badge.Platform, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	op := obs.StartOperation(engineName, "platform", "find_all", "")
	rows, err := db.QueryContext(ctx, `select `+platformColumns+` from platforms order by created_at asc`)
	if err != nil {
		wrapped := &badge.OpError{Op: "find_all", Entity: "platform", Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	defer rows.Close()

	var result []badge.Platform
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			wrapped := &badge.OpError{Op: "find_all", Entity: "platform", Err: classify(err)}
			op.Finish(int64(len(result)), wrapped)
			return nil, wrapped
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		wrapped := &badge.OpError{Op: "find_all", Entity: "platform", Err: classify(err)}
		op.Finish(int64(len(result)), wrapped)
		return nil, wrapped
	}
	op.Finish(int64(len(result)), nil)
	return result, nil
}

// Update merges the patch over the stored row. A status change must name a
// known state.
func (r *platformRepo) Update(ctx context.Context, id string, upd badge.PlatformUpdate) (*badge.Platform, error) {
	if err := badge.ValidateID("platform", id); err != nil {
		return nil, err
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, badge.Validationf("unknown platform status %q", *upd.Status)
	}
	existing, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	uid, _ := uuidLookup(existing.ID)

	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	updated := *existing
	var (
		sets []string
		args []any
		idx  = 1
	)
	set := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	if upd.Name != nil {
		updated.Name = *upd.Name
		set("name", updated.Name)
	}
	if upd.PublicKey != nil {
		updated.PublicKey = *upd.PublicKey
		set("public_key", updated.PublicKey)
	}
	if upd.Status != nil {
		updated.Status = *upd.Status
		set("status", string(updated.Status))
	}
	if upd.Description != nil {
		updated.Description = *upd.Description
		set("description", nullString(updated.Description))
	}
	if upd.WebhookURL != nil {
		updated.WebhookURL = *upd.WebhookURL
		set("webhook_url", nullString(updated.WebhookURL))
	}
	if len(upd.Extensions) > 0 {
		updated.Extensions = badge.MergeExtensions(existing.Extensions, upd.Extensions)
		ext, err := jsonColumn(updated.Extensions)
		if err != nil {
			return nil, err
		}
		set("extensions", ext)
	}
	updated.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	set("updated_at", updated.UpdatedAt)

	op := obs.StartOperation(engineName, "platform", "update", id)
	query := fmt.Sprintf(`update platforms set %s where id = $%d`, strings.Join(sets, ", "), idx)
	args = append(args, uid)
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		wrapped := &badge.OpError{Op: "update", Entity: "platform", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	op.Finish(1, nil)
	return &updated, nil
}

func (r *platformRepo) Delete(ctx context.Context, id string) (bool, error) {
	if err := badge.ValidateID("platform", id); err != nil {
		return false, err
	}
	uid, ok := uuidLookup(id)
	if !ok {
		return false, nil
	}
	db, err := r.s.handle()
	if err != nil {
		return false, err
	}

	op := obs.StartOperation(engineName, "platform", "delete", id)
	res, err := db.ExecContext(ctx, `delete from platforms where id = $1`, uid)
	if err != nil {
		wrapped := &badge.OpError{Op: "delete", Entity: "platform", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return false, wrapped
	}
	affected, _ := res.RowsAffected()
	op.Finish(affected, nil)
	return affected > 0, nil
}

// exists backs the write-time referential check for platform users.
func (r *platformRepo) exists(ctx context.Context, db *sql.DB, uid uuid.UUID) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `select 1 from platforms where id = $1`, uid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(err)
	}
	return true, nil
}

func scanPlatform(row rowScanner) (*badge.Platform, error) {
	var (
		uid                  uuid.UUID
		p                    badge.Platform
		status               string
		desc, webhook        sql.NullString
		ext                  []byte
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&uid, &p.Name, &p.ClientID, &p.PublicKey, &status,
		&desc, &webhook, &ext, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.ID = ids.ToURN(uid)
	p.Status = badge.PlatformStatus(status)
	p.Description = stringOrEmpty(desc)
	p.WebhookURL = stringOrEmpty(webhook)
	p.CreatedAt = createdAt.UTC()
	p.UpdatedAt = updatedAt.UTC()
	if err := decodeJSON(ext, &p.Extensions); err != nil {
		return nil, err
	}
	return &p, nil
}
