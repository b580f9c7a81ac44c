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

type assertionRepo struct{ s *Store }

var _ badge.AssertionRepository = (*assertionRepo)(nil)

const assertionColumns = `id, badge_class_id, recipient, issued_at, expires_at, evidence, verification, revoked, revocation_reason, extensions, created_at, updated_at`

// Create verifies the referenced badge class exists before the insert.
func (r *assertionRepo) Create(ctx context.Context, a badge.Assertion) (badge.Assertion, error) {
	if err := badge.ValidateID("badge class", a.BadgeClassID); err != nil {
		return badge.Assertion{}, err
	}
	classUID, ok := uuidLookup(a.BadgeClassID)
	if !ok {
		return badge.Assertion{}, badge.NotFoundf("badge class", a.BadgeClassID)
	}
	db, err := r.s.handle()
	if err != nil {
		return badge.Assertion{}, err
	}

	classes := badgeClassRepo{s: r.s}
	found, err := classes.exists(ctx, db, classUID)
	if err != nil {
		return badge.Assertion{}, &badge.OpError{Op: "create", Entity: "assertion", Err: err}
	}
	if !found {
		return badge.Assertion{}, badge.NotFoundf("badge class", a.BadgeClassID)
	}

	if a.ID == "" {
		a.ID = ids.NewURN()
	}
	uid, err := uuidArg("assertion", a.ID)
	if err != nil {
		return badge.Assertion{}, err
	}
	a.ID = ids.ToURN(uid)
	now := time.Now().UTC().Truncate(time.Millisecond)
	a.CreatedAt, a.UpdatedAt = now, now
	if a.IssuedAt.IsZero() {
		a.IssuedAt = now
	}

	op := obs.StartOperation(engineName, "assertion", "create", a.ID)
	recipient, evidence, verification, ext, err := assertionColumnsJSON(a)
	if err != nil {
		op.Finish(0, err)
		return badge.Assertion{}, err
	}
	var expires sql.NullTime
	if a.ExpiresAt != nil {
		expires = sql.NullTime{Time: a.ExpiresAt.UTC(), Valid: true}
	}
	_, err = db.ExecContext(ctx, `
		insert into assertions (`+assertionColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, uid, classUID, recipient, a.IssuedAt, expires,
		evidence, verification, a.Revoked, nullString(a.RevocationReason), ext,
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		wrapped := &badge.OpError{Op: "create", Entity: "assertion", ID: a.ID, Err: classify(err)}
		op.Finish(0, wrapped)
		return badge.Assertion{}, wrapped
	}
	op.Finish(1, nil)
	return a, nil
}

func (r *assertionRepo) FindByID(ctx context.Context, id string) (*badge.Assertion, error) {
	if err := badge.ValidateID("assertion", id); err != nil {
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

	op := obs.StartOperation(engineName, "assertion", "find_by_id", id)
	row := db.QueryRowContext(ctx, `select `+assertionColumns+` from assertions where id = $1`, uid)
	a, err := scanAssertion(row)
	if errors.Is(err, sql.ErrNoRows) {
		op.Finish(0, nil)
		return nil, nil
	}
	if err != nil {
		wrapped := &badge.OpError{Op: "find_by_id", Entity: "assertion", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	op.Finish(1, nil)
	return a, nil
}

func (r *assertionRepo) FindAll(ctx context.Context) ([]badge.Assertion, error) {
	return r.list(ctx, "find_all", `select `+assertionColumns+` from assertions order by created_at asc`)
}

func (r *assertionRepo) FindByBadgeClass(ctx context.Context, badgeClassID string) ([]badge.Assertion, error) {
	if err := badge.ValidateID("badge class", badgeClassID); err != nil {
		return nil, err
	}
	uid, ok := uuidLookup(badgeClassID)
	if !ok {
		return nil, nil
	}
	return r.list(ctx, "find_by_badge_class",
		`select `+assertionColumns+` from assertions where badge_class_id = $1 order by created_at asc`, uid)
}

func (r *assertionRepo) list(ctx context.Context, opName, query string, args ...any) ([]badge.Assertion, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	op := obs.StartOperation(engineName, "assertion", opName, "")
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		wrapped := &badge.OpError{Op: opName, Entity: "assertion", Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	defer rows.Close()

	var result []badge.Assertion
	for rows.Next() {
		a, err := scanAssertion(rows)
		if err != nil {
			wrapped := &badge.OpError{Op: opName, Entity: "assertion", Err: classify(err)}
			op.Finish(int64(len(result)), wrapped)
			return nil, wrapped
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		wrapped := &badge.OpError{Op: opName, Entity: "assertion", Err: classify(err)}
		op.Finish(int64(len(result)), wrapped)
		return nil, wrapped
	}
	op.Finish(int64(len(result)), nil)
	return result, nil
}

// Update merges the patch over the stored row.
func (r *assertionRepo) Update(ctx context.Context, id string, upd badge.AssertionUpdate) (*badge.Assertion, error) {
	if err := badge.ValidateID("assertion", id); err != nil {
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
	if upd.Recipient != nil {
		updated.Recipient = *upd.Recipient
		recipient, err := jsonColumn(updated.Recipient)
		if err != nil {
			return nil, err
		}
		set("recipient", recipient)
	}
	if upd.Evidence != nil {
		updated.Evidence = upd.Evidence
		evidence, err := jsonColumn(updated.Evidence)
		if err != nil {
			return nil, err
		}
		set("evidence", evidence)
	}
	if upd.Verification != nil {
		updated.Verification = upd.Verification
		verification, err := jsonColumn(updated.Verification)
		if err != nil {
			return nil, err
		}
		set("verification", verification)
	}
	if upd.Revoked != nil {
		updated.Revoked = *upd.Revoked
		set("revoked", updated.Revoked)
	}
	if upd.RevocationReason != nil {
		updated.RevocationReason = *upd.RevocationReason
		set("revocation_reason", nullString(updated.RevocationReason))
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

	op := obs.StartOperation(engineName, "assertion", "update", id)
	query := fmt.Sprintf(`update assertions set %s where id = $%d`, strings.Join(sets, ", "), idx)
	args = append(args, uid)
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		wrapped := &badge.OpError{Op: "update", Entity: "assertion", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	op.Finish(1, nil)
	return &updated, nil
}

func (r *assertionRepo) Delete(ctx context.Context, id string) (bool, error) {
	if err := badge.ValidateID("assertion", id); err != nil {
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

	op := obs.StartOperation(engineName, "assertion", "delete", id)
	res, err := db.ExecContext(ctx, `delete from assertions where id = $1`, uid)
	if err != nil {
		wrapped := &badge.OpError{Op: "delete", Entity: "assertion", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return false, wrapped
	}
	affected, _ := res.RowsAffected()
	op.Finish(affected, nil)
	return affected > 0, nil
}

// DeleteByBadgeClass removes every assertion under the badge class, for the
// cascade path. Children first, parents after.
func (r *assertionRepo) DeleteByBadgeClass(ctx context.Context, badgeClassID string) (int, error) {
	if err := badge.ValidateID("badge class", badgeClassID); err != nil {
		return 0, err
	}
	uid, ok := uuidLookup(badgeClassID)
	if !ok {
		return 0, nil
	}
	db, err := r.s.handle()
	if err != nil {
		return 0, err
	}

	op := obs.StartOperation(engineName, "assertion", "delete_by_badge_class", badgeClassID)
	res, err := db.ExecContext(ctx, `delete from assertions where badge_class_id = $1`, uid)
	if err != nil {
		wrapped := &badge.OpError{Op: "delete_by_badge_class", Entity: "assertion", ID: badgeClassID, Err: classify(err)}
		op.Finish(0, wrapped)
		return 0, wrapped
	}
	affected, _ := res.RowsAffected()
	op.Finish(affected, nil)
	return int(affected), nil
}

func assertionColumnsJSON(a badge.Assertion) (recipient, evidence, verification, ext any, err error) {
	if recipient, err = jsonColumn(a.Recipient); err != nil {
		return
	}
	if evidence, err = jsonColumn(a.Evidence); err != nil {
		return
	}
	if verification, err = jsonColumn(a.Verification); err != nil {
		return
	}
	ext, err = jsonColumn(a.Extensions)
	return
}

func scanAssertion(row rowScanner) (*badge.Assertion, error) {
	var (
		uid, classUID               uuid.UUID
		a                           badge.Assertion
		recipient                   []byte
		evidence, verification, ext []byte
		reason                      sql.NullString
		issuedAt                    time.Time
		expiresAt                   sql.NullTime
		createdAt, updatedAt        time.Time
	)
	if err := row.Scan(&uid, &classUID, &recipient, &issuedAt, &expiresAt,
		&evidence, &verification, &a.Revoked, &reason, &ext, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.ID = ids.ToURN(uid)
	a.BadgeClassID = ids.ToURN(classUID)
	if err := decodeJSON(recipient, &a.Recipient); err != nil {
		return nil, err
	}
	a.IssuedAt = issuedAt.UTC()
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		a.ExpiresAt = &t
	}
	a.RevocationReason = stringOrEmpty(reason)
	a.CreatedAt = createdAt.UTC()
	a.UpdatedAt = updatedAt.UTC()
	if err := decodeJSON(evidence, &a.Evidence); err != nil {
		return nil, err
	}
	if err := decodeJSON(verification, &a.Verification); err != nil {
		return nil, err
	}
	if err := decodeJSON(ext, &a.Extensions); err != nil {
		return nil, err
	}
	return &a, nil
}
