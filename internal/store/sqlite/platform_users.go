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

type platformUserRepo struct{ s *Store }

var _ badge.PlatformUserRepository = (*platformUserRepo)(nil)

const platformUserColumns = `id, platform_id, external_id, display_name, email, extensions, created_at, updated_at`

// Create verifies the referenced platform exists before the insert.
func (r *platformUserRepo) Create(ctx context.Context, u badge.PlatformUser) (badge.PlatformUser, error) {
	if err := badge.ValidateID("platform", u.PlatformID); err != nil {
		return badge.PlatformUser{}, err
	}
	if err := badge.ValidateID("external user", u.ExternalID); err != nil {
		return badge.PlatformUser{}, err
	}
	db, err := r.s.handle()
	if err != nil {
		return badge.PlatformUser{}, err
	}

	platforms := platformRepo{s: r.s}
	ok, err := platforms.exists(ctx, db, u.PlatformID)
	if err != nil {
		return badge.PlatformUser{}, &badge.OpError{Op: "create", Entity: "platform_user", Err: err}
	}
	if !ok {
		return badge.PlatformUser{}, badge.NotFoundf("platform", u.PlatformID)
	}

	if u.ID == "" {
		u.ID = ids.NewURN()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	u.CreatedAt, u.UpdatedAt = now, now

	op := obs.StartOperation(engineName, "platform_user", "create", u.ID)
	ext, err := jsonColumn(u.Extensions)
	if err != nil {
		op.Finish(0, err)
		return badge.PlatformUser{}, err
	}
	_, err = db.ExecContext(ctx, `
		insert into platform_users (`+platformUserColumns+`)
		values (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.PlatformID, u.ExternalID, nullString(u.DisplayName), nullString(u.Email),
		ext, toMillis(u.CreatedAt), toMillis(u.UpdatedAt))
	if err != nil {
		wrapped := &badge.OpError{Op: "create", Entity: "platform_user", ID: u.ID, Err: classify(err)}
		op.Finish(0, wrapped)
		return badge.PlatformUser{}, wrapped
	}
	op.Finish(1, nil)
	return u, nil
}

func (r *platformUserRepo) FindByID(ctx context.Context, id string) (*badge.PlatformUser, error) {
	if err := badge.ValidateID("platform user", id); err != nil {
		return nil, err
	}
	return r.findOne(ctx, "find_by_id", id,
		`select `+platformUserColumns+` from platform_users where id = ?`, id)
}

func (r *platformUserRepo) FindByPlatformAndExternalID(ctx context.Context, platformID, externalID string) (*badge.PlatformUser, error) {
	if err := badge.ValidateID("platform", platformID); err != nil {
		return nil, err
	}
	if err := badge.ValidateID("external user", externalID); err != nil {
		return nil, err
	}
	return r.findOne(ctx, "find_by_platform_and_external_id", externalID,
		`select `+platformUserColumns+` from platform_users where platform_id = ? and external_id = ?`, platformID, externalID)
}

func (r *platformUserRepo) findOne(ctx context.Context, opName, id, query string, args ...any) (*badge.PlatformUser, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	op := obs.StartOperation(engineName, "platform_user", opName, id)
	row := db.QueryRowContext(ctx, query, args...)
	u, err := scanPlatformUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		op.Finish(0, nil)
		return nil, nil
	}
	if err != nil {
		wrapped := &badge.OpError{Op: opName, Entity: "platform_user", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	op.Finish(1, nil)
	return u, nil
}

func (r *platformUserRepo) Update(ctx context.Context, id string, upd badge.PlatformUserUpdate) (*badge.PlatformUser, error) {
	if err := badge.ValidateID("platform user", id); err != nil {
		return nil, err
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
	if upd.DisplayName != nil {
		updated.DisplayName = *upd.DisplayName
	}
	if upd.Email != nil {
		updated.Email = *upd.Email
	}
	updated.Extensions = badge.MergeExtensions(existing.Extensions, upd.Extensions)
	updated.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	op := obs.StartOperation(engineName, "platform_user", "update", id)
	ext, err := jsonColumn(updated.Extensions)
	if err != nil {
		op.Finish(0, err)
		return nil, err
	}
	_, err = db.ExecContext(ctx, `
		update platform_users
		set display_name = ?, email = ?, extensions = ?, updated_at = ?
		where id = ?
	`, nullString(updated.DisplayName), nullString(updated.Email), ext, toMillis(updated.UpdatedAt), id)
	if err != nil {
		wrapped := &badge.OpError{Op: "update", Entity: "platform_user", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	op.Finish(1, nil)
	return &updated, nil
}

func (r *platformUserRepo) Delete(ctx context.Context, id string) (bool, error) {
	if err := badge.ValidateID("platform user", id); err != nil {
		return false, err
	}
	db, err := r.s.handle()
	if err != nil {
		return false, err
	}

	op := obs.StartOperation(engineName, "platform_user", "delete", id)
	res, err := db.ExecContext(ctx, `delete from platform_users where id = ?`, id)
	if err != nil {
		wrapped := &badge.OpError{Op: "delete", Entity: "platform_user", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return false, wrapped
	}
	affected, _ := res.RowsAffected()
	op.Finish(affected, nil)
	return affected > 0, nil
}

func scanPlatformUser(row rowScanner) (*badge.PlatformUser, error) {
	var (
		u                    badge.PlatformUser
		name, email, ext     sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.PlatformID, &u.ExternalID, &name, &email, &ext, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.DisplayName = stringOrEmpty(name)
	u.Email = stringOrEmpty(email)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	if err := decodeJSON(ext, &u.Extensions); err != nil {
		return nil, err
	}
	return &u, nil
}
