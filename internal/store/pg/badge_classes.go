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

type badgeClassRepo struct{ s *Store }

var _ badge.BadgeClassRepository = (*badgeClassRepo)(nil)

const badgeClassColumns = `id, issuer_id, name, description, image, criteria, alignments, tags, extensions, created_at, updated_at`

// Create verifies the referenced issuer exists before the insert. The check
// is local and synchronous so both engines reject a dangling issuer the same
// way, on top of the schema's own foreign key.
func (r *badgeClassRepo) Create(ctx context.Context, bc badge.BadgeClass) (badge.BadgeClass, error) {
	if err := badge.ValidateID("issuer", bc.IssuerID); err != nil {
		return badge.BadgeClass{}, err
	}
	issuerUID, ok := uuidLookup(bc.IssuerID)
	if !ok {
		return badge.BadgeClass{}, badge.NotFoundf("issuer", bc.IssuerID)
	}
	db, err := r.s.handle()
	if err != nil {
		return badge.BadgeClass{}, err
	}

	issuers := issuerRepo{s: r.s}
	found, err := issuers.exists(ctx, db, issuerUID)
	if err != nil {
		return badge.BadgeClass{}, &badge.OpError{Op: "create", Entity: "badge_class", Err: err}
	}
	if !found {
		return badge.BadgeClass{}, badge.NotFoundf("issuer", bc.IssuerID)
	}

	if bc.ID == "" {
		bc.ID = ids.NewURN()
	}
	uid, err := uuidArg("badge class", bc.ID)
	if err != nil {
		return badge.BadgeClass{}, err
	}
	bc.ID = ids.ToURN(uid)
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
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, uid, issuerUID, bc.Name, bc.Description, bc.Image,
		criteria, alignments, tags, ext, bc.CreatedAt, bc.UpdatedAt)
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
func badgeClassColumnsJSON(bc badge.BadgeClass) (criteria, alignments, tags, ext any, err error) {
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
	uid, ok := uuidLookup(id)
	if !ok {
		return nil, nil
	}
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	op := obs.StartOperation(engineName, "badge_class", "find_by_id", id)
	row := db.QueryRowContext(ctx, `select `+badgeClassColumns+` from badge_classes where id = $1`, uid)
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
	uid, ok := uuidLookup(issuerID)
	if !ok {
		return nil, nil
	}
	return r.list(ctx, "find_by_issuer",
		`select `+badgeClassColumns+` from badge_classes where issuer_id = $1 order by created_at asc`, uid)
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

// Update merges the patch over the stored row; a new issuer reference must
// name an existing issuer at write time.
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
	if upd.IssuerID != nil && *upd.IssuerID != existing.IssuerID {
		issuerUID, ok := uuidLookup(*upd.IssuerID)
		if !ok {
			return nil, badge.NotFoundf("issuer", *upd.IssuerID)
		}
		issuers := issuerRepo{s: r.s}
		found, err := issuers.exists(ctx, db, issuerUID)
		if err != nil {
			return nil, &badge.OpError{Op: "update", Entity: "badge_class", ID: id, Err: err}
		}
		if !found {
			return nil, badge.NotFoundf("issuer", *upd.IssuerID)
		}
		updated.IssuerID = ids.ToURN(issuerUID)
		set("issuer_id", issuerUID)
	}
	if upd.Name != nil {
		updated.Name = *upd.Name
		set("name", updated.Name)
	}
	if upd.Description != nil {
		updated.Description = *upd.Description
		set("description", updated.Description)
	}
	if upd.Image != nil {
		updated.Image = *upd.Image
		set("image", updated.Image)
	}
	if upd.Criteria != nil {
		updated.Criteria = upd.Criteria
		criteria, err := jsonColumn(updated.Criteria)
		if err != nil {
			return nil, err
		}
		set("criteria", criteria)
	}
	if upd.Alignments != nil {
		updated.Alignments = upd.Alignments
		alignments, err := jsonColumn(updated.Alignments)
		if err != nil {
			return nil, err
		}
		set("alignments", alignments)
	}
	if upd.Tags != nil {
		updated.Tags = upd.Tags
		tags, err := jsonColumn(updated.Tags)
		if err != nil {
			return nil, err
		}
		set("tags", tags)
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

	op := obs.StartOperation(engineName, "badge_class", "update", id)
	query := fmt.Sprintf(`update badge_classes set %s where id = $%d`, strings.Join(sets, ", "), idx)
	args = append(args, uid)
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
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
	uid, ok := uuidLookup(id)
	if !ok {
		return false, nil
	}
	db, err := r.s.handle()
	if err != nil {
		return false, err
	}

	op := obs.StartOperation(engineName, "badge_class", "delete", id)
	res, err := db.ExecContext(ctx, `delete from badge_classes where id = $1`, uid)
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
func (r *badgeClassRepo) exists(ctx context.Context, db *sql.DB, uid uuid.UUID) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `select 1 from badge_classes where id = $1`, uid).Scan(&one)
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
		uid, issuerUID                  uuid.UUID
		bc                              badge.BadgeClass
		criteria, alignments, tags, ext []byte
		createdAt, updatedAt            time.Time
	)
	if err := row.Scan(&uid, &issuerUID, &bc.Name, &bc.Description, &bc.Image,
		&criteria, &alignments, &tags, &ext, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	bc.ID = ids.ToURN(uid)
	bc.IssuerID = ids.ToURN(issuerUID)
	bc.CreatedAt = createdAt.UTC()
	bc.UpdatedAt = updatedAt.UTC()
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
