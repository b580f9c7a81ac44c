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

type badgeClassRepo struct{ s *Store }

var _ badge.BadgeClassRepository = (*badgeClassRepo)(nil)

const badgeClassColumns = `id, issuer_id, name, description, image, criteria, alignments, tags, extensions, created_at, updated_at`

// Create verifies the referenced issuer exists before the insert. The check
// is local and synchronous so both engines reject a dangling issuer the same
// way, regardless of their native constraint enforcement.
func (r *badgeClassRepo) Create(ctx context.Context, bc badge.BadgeClass) (badge.BadgeClass, error) {
	if err := badge.ValidateID("issuer", bc.IssuerID); err != nil {
		return badge.BadgeClass{}, err
	}
	db, err := r.s.handle()
	if err != nil {
		return badge.BadgeClass{}, err
	}

	issuers := issuerRepo{s: r.s}
	ok, err := issuers.exists(ctx, db, bc.IssuerID)
	if err != nil {
		return badge.BadgeClass{}, &badge.OpError{Op: "create", Entity: "badge_class", Err: err}
	}
	if !ok {
		return badge.BadgeClass{}, badge.NotFoundf("issuer", bc.IssuerID)
	}

	if bc.ID == "" {
		bc.ID = ids.NewURN()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	bc.CreatedAt, bc.UpdatedAt = now, now

	op := obs.StartOperation(engineName, "badge_class", "create", bc.ID)
	criteria, alignments, tags, ext, err := badgeClassColumnsJSON(bc)
	if err != nil {
		op.Finish(0, err)
		return badge.BadgeClass{}, err
	}
	_, err = db.ExecContext(ctx, `
		insert into badge_classes (`+badgeClassColumns+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, bc.ID, bc.IssuerID, bc.Name, bc.Description, bc.Image,
		criteria, alignments, tags, ext, toMillis(bc.CreatedAt), toMillis(bc.UpdatedAt))
	if err != nil {
		wrapped := &badge.OpError{Op: "create", Entity: "badge_class", ID: bc.ID, Err: classify(err)}
		op.Finish(0, wrapped)
		return badge.BadgeClass{}, wrapped
	}
	op.Finish(1, nil)
	return bc, nil
}

// badgeClassColumnsJSON serializes the structured sub-fields in one place so
// create and update cannot diverge.
func badgeClassColumnsJSON(bc badge.BadgeClass) (criteria, alignments, tags, ext sql.NullString, err error) {
	if criteria, err = jsonColumn(bc.Criteria); err != nil {
		return
	}
	if alignments, err = jsonColumn(bc.Alignments); err != nil {
		return
	}
	if tags, err = jsonColumn(bc.Tags); err != nil {
		return
	}
	ext, err = jsonColumn(bc.Extensions)
	return
}

func (r *badgeClassRepo) FindByID(ctx context.Context, id string) (*badge.BadgeClass, error) {
	if err := badge.ValidateID("badge class", id); err != nil {
		return nil, err
	}
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	op := obs.StartOperation(engineName, "badge_class", "find_by_id", id)
	row := db.QueryRowContext(ctx, `select `+badgeClassColumns+` from badge_classes where id = ?`, id)
	bc, err := scanBadgeClass(row)
	if errors.Is(err, sql.ErrNoRows) {
		op.Finish(0, nil)
		return nil, nil
	}
	if err != nil {
		wrapped := &badge.OpError{Op: "find_by_id", Entity: "badge_class", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	op.Finish(1, nil)
	return bc, nil
}

func (r *badgeClassRepo) FindAll(ctx context.Context) ([]badge.BadgeClass, error) {
	return r.list(ctx, "find_all", `select `+badgeClassColumns+` from badge_classes order by created_at asc`)
}

func (r *badgeClassRepo) FindByIssuer(ctx context.Context, issuerID string) ([]badge.BadgeClass, error) {
	if err := badge.ValidateID("issuer", issuerID); err != nil {
		return nil, err
	}
	return r.list(ctx, "find_by_issuer",
		`select `+badgeClassColumns+` from badge_classes where issuer_id = ? order by created_at asc`, issuerID)
}

func (r *badgeClassRepo) list(ctx context.Context, opName, query string, args ...any) ([]badge.BadgeClass, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	op := obs.StartOperation(engineName, "badge_class", opName, "")
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		wrapped := &badge.OpError{Op: opName, Entity: "badge_class", Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	defer rows.Close()

	var result []badge.BadgeClass
	for rows.Next() {
		bc, err := scanBadgeClass(rows)
		if err != nil {
			wrapped := &badge.OpError{Op: opName, Entity: "badge_class", Err: classify(err)}
			op.Finish(int64(len(result)), wrapped)
			return nil, wrapped
		}
		result = append(result, *bc)
	}
	if err := rows.Err(); err != nil {
		wrapped := &badge.OpError{Op: opName, Entity: "badge_class", Err: classify(err)}
		op.Finish(int64(len(result)), wrapped)
		return nil, wrapped
	}
	op.Finish(int64(len(result)), nil)
	return result, nil
}

// Update re-reads the stored row for the merge rule; a new issuer reference
// must name an existing issuer at write time.
func (r *badgeClassRepo) Update(ctx context.Context, id string, upd badge.BadgeClassUpdate) (*badge.BadgeClass, error) {
	if err := badge.ValidateID("badge class", id); err != nil {
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
	if upd.IssuerID != nil && *upd.IssuerID != existing.IssuerID {
		issuers := issuerRepo{s: r.s}
		ok, err := issuers.exists(ctx, db, *upd.IssuerID)
		if err != nil {
			return nil, &badge.OpError{Op: "update", Entity: "badge_class", ID: id, Err: err}
		}
		if !ok {
			return nil, badge.NotFoundf("issuer", *upd.IssuerID)
		}
		updated.IssuerID = *upd.IssuerID
	}
	if upd.Name != nil {
		updated.Name = *upd.Name
	}
	if upd.Description != nil {
		updated.Description = *upd.Description
	}
	if upd.Image != nil {
		updated.Image = *upd.Image
	}
	if upd.Criteria != nil {
		updated.Criteria = upd.Criteria
	}
	if upd.Alignments != nil {
		updated.Alignments = upd.Alignments
	}
	if upd.Tags != nil {
		updated.Tags = upd.Tags
	}
	updated.Extensions = badge.MergeExtensions(existing.Extensions, upd.Extensions)
	updated.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	op := obs.StartOperation(engineName, "badge_class", "update", id)
	criteria, alignments, tags, ext, err := badgeClassColumnsJSON(updated)
	if err != nil {
		op.Finish(0, err)
		return nil, err
	}
	_, err = db.ExecContext(ctx, `
		update badge_classes
		set issuer_id = ?, name = ?, description = ?, image = ?, criteria = ?, alignments = ?, tags = ?, extensions = ?, updated_at = ?
		where id = ?
	`, updated.IssuerID, updated.Name, updated.Description, updated.Image,
		criteria, alignments, tags, ext, toMillis(updated.UpdatedAt), id)
	if err != nil {
		wrapped := &badge.OpError{Op: "update", Entity: "badge_class", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	op.Finish(1, nil)
	return &updated, nil
}

func (r *badgeClassRepo) Delete(ctx context.Context, id string) (bool, error) {
	if err := badge.ValidateID("badge class", id); err != nil {
		return false, err
	}
	db, err := r.s.handle()
	if err != nil {
		return false, err
	}

	op := obs.StartOperation(engineName, "badge_class", "delete", id)
	res, err := db.ExecContext(ctx, `delete from badge_classes where id = ?`, id)
	if err != nil {
		wrapped := &badge.OpError{Op: "delete", Entity: "badge_class", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return false, wrapped
	}
	affected, _ := res.RowsAffected()
	op.Finish(affected, nil)
	return affected > 0, nil
}

// exists backs the write-time referential check for assertions.
func (r *badgeClassRepo) exists(ctx context.Context, db *sql.DB, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `select 1 from badge_classes where id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(err)
	}
	return true, nil
}

func scanBadgeClass(row rowScanner) (*badge.BadgeClass, error) {
	var (
		bc                              badge.BadgeClass
		criteria, alignments, tags, ext sql.NullString
		createdAt, updatedAt            int64
	)
	if err := row.Scan(&bc.ID, &bc.IssuerID, &bc.Name, &bc.Description, &bc.Image,
		&criteria, &alignments, &tags, &ext, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	bc.CreatedAt = fromMillis(createdAt)
	bc.UpdatedAt = fromMillis(updatedAt)
	if err := decodeJSON(criteria, &bc.Criteria); err != nil {
		return nil, err
	}
	if err := decodeJSON(alignments, &bc.Alignments); err != nil {
		return nil, err
	}
	if err := decodeJSON(tags, &bc.Tags); err != nil {
		return nil, err
	}
	if err := decodeJSON(ext, &bc.Extensions); err != nil {
		return nil, err
	}
	return &bc, nil
}
