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
	platformUID, ok := uuidLookup(u.PlatformID)
	if !ok {
		return badge.PlatformUser{}, badge.NotFoundf("platform", u.PlatformID)
	}
	db, err := r.s.handle()
	if err != nil {
		return badge.PlatformUser{}, err
	}

	platforms := platformRepo{s: r.s}
	found, err := platforms.exists(ctx, db, platformUID)
	if err != nil {
		return badge.PlatformUser{}, &badge.OpError{Op: "create", Entity: "platform_user", Err: err}
	}
	if !found {
		return badge.PlatformUser{}, badge.NotFoundf("platform", u.PlatformID)
	}

	if u.ID == "" {
		u.ID = ids.NewURN()
	}
	uid, err := uuidArg("platform user", u.ID)
	if err != nil {
		return badge.PlatformUser{}, err
	}
	u.ID = ids.ToURN(uid)
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
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uid, platformUID, u.ExternalID, nullString(u.DisplayName), nullString(u.Email),
		ext, u.CreatedAt, u.UpdatedAt)
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
	uid, ok := uuidLookup(id)
	if !ok {
		return nil, nil
	}
	return r.findOne(ctx, "find_by_id", id,
		`select `+platformUserColumns+` from platform_users where id = $1`, uid)
}

func (r *platformUserRepo) FindByPlatformAndExternalID(ctx context.Context, platformID, externalID string) (*badge.PlatformUser, error) {
	if err := badge.ValidateID("platform", platformID); err != nil {
		return nil, err
	}
	if err := badge.ValidateID("external user", externalID); err != nil {
		return nil, err
	}
	platformUID, ok := uuidLookup(platformID)
	if !ok {
		return nil, nil
	}
	return r.findOne(ctx, "find_by_platform_and_external_id", externalID,
		`select `+platformUserColumns+` from platform_users where platform_id = $1 and external_id = $2`,
		platformUID, externalID)
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
	if upd.DisplayName != nil {
		updated.DisplayName = *upd.DisplayName
		set("display_name", nullString(updated.DisplayName))
	}
	if upd.Email != nil {
		updated.Email = *upd.Email
		set("email", nullString(updated.Email))
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

	op := obs.StartOperation(engineName, "platform_user", "update", id)
	query := fmt.Sprintf(`update platform_users set %s where id = $%d`, strings.Join(sets, ", "), idx)
	args = append(args, uid)
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
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
	uid, ok := uuidLookup(id)
	if !ok {
		return false, nil
	}
	db, err := r.s.handle()
	if err != nil {
		return false, err
	}

	op := obs.StartOperation(engineName, "platform_user", "delete", id)
	res, err := db.ExecContext(ctx, `delete from platform_users where id = $1`, uid)
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
		uid, platformUID     uuid.UUID
		u                    badge.PlatformUser
		name, email          sql.NullString
		ext                  []byte
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&uid, &platformUID, &u.ExternalID, &name, &email, &ext, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.ID = ids.ToURN(uid)
	u.PlatformID = ids.ToURN(platformUID)
	u.DisplayName = stringOrEmpty(name)
	u.Email = stringOrEmpty(email)
	u.CreatedAt = createdAt.UTC()
	u.UpdatedAt = updatedAt.UTC()
	if err := decodeJSON(ext, &u.Extensions); err != nil {
		return nil, err
	}
	return &u, nil
}
