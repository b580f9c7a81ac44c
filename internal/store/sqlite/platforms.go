package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"badgehub.org/internal/badge"
	"badgehub.org/internal/ids"
	"badgehub.org/internal/obs"
)

type platformRepo struct{ s *Store }

var _ badge.PlatformRepository = (*platformRepo)(nil)

const platformColumns = `id, name, client_id, public_key, status, description, webhook_url, extensions, created_at, updated_at`

func (r *platformRepo) Create(ctx context.Context, p badge.Platform) (badge.Platform, error) {
	if p.Status == "" {
		p.Status = badge.PlatformActive
	}
	if !p.Status.Valid() {
		return badge.Platform{}, badge.Validationf("invalid platform status %q", p.Status)
	}
	db, err := r.s.handle()
	if err != nil {
		return badge.Platform{}, err
	}

	if p.ID == "" {
		p.ID = ids.NewURN()
	}
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
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.ClientID, p.PublicKey, string(p.Status),
		nullString(p.Description), nullString(p.WebhookURL), ext, toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
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
	return r.findOne(ctx, "find_by_id", id, `select `+platformColumns+` from platforms where id = ?`, id)
}

func (r *platformRepo) FindByClientID(ctx context.Context, clientID string) (*badge.Platform, error) {
	if err := badge.ValidateID("platform client", clientID); err != nil {
		return nil, err
	}
	return r.findOne(ctx, "find_by_client_id", clientID, `select `+platformColumns+` from platforms where client_id = ?`, clientID)
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

func (r *platformRepo) Update(ctx context.Context, id string, upd badge.PlatformUpdate) (*badge.Platform, error) {
	if err := badge.ValidateID("platform", id); err != nil {
		return nil, err
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, badge.Validationf("invalid platform status %q", *upd.Status)
	}
	existing, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	updated := *existing
	if upd.Name != nil {
		updated.Name = *upd.Name
	}
	if upd.PublicKey != nil {
		updated.PublicKey = *upd.PublicKey
	}
	if upd.Status != nil {
		updated.Status = *upd.Status
	}
	if upd.Description != nil {
		updated.Description = *upd.Description
	}
	if upd.WebhookURL != nil {
		updated.WebhookURL = *upd.WebhookURL
	}
	updated.Extensions = badge.MergeExtensions(existing.Extensions, upd.Extensions)
	updated.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	op := obs.StartOperation(engineName, "platform", "update", id)
	ext, err := jsonColumn(updated.Extensions)
	if err != nil {
		op.Finish(0, err)
		return nil, err
	}
	_, err = db.ExecContext(ctx, `
		update platforms
		set name = ?, public_key = ?, status = ?, description = ?, webhook_url = ?, extensions = ?, updated_at = ?
		where id = ?
	`, updated.Name, updated.PublicKey, string(updated.Status),
		nullString(updated.Description), nullString(updated.WebhookURL), ext, toMillis(updated.UpdatedAt), id)
	if err != nil {
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
	db, err := r.s.handle()
	if err != nil {
		return false, err
	}

	op := obs.StartOperation(engineName, "platform", "delete", id)
	res, err := db.ExecContext(ctx, `delete from platforms where id = ?`, id)
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
func (r *platformRepo) exists(ctx context.Context, db *sql.DB, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `select 1 from platforms where id = ?`, id).Scan(&one)
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
		p                    badge.Platform
		status               string
		desc, webhook, ext   sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.ClientID, &p.PublicKey, &status,
		&desc, &webhook, &ext, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Status = badge.PlatformStatus(status)
	p.Description = stringOrEmpty(desc)
	p.WebhookURL = stringOrEmpty(webhook)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	if err := decodeJSON(ext, &p.Extensions); err != nil {
		return nil, err
	}
	return &p, nil
}
