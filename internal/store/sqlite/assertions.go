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

type assertionRepo struct{ s *Store }

var _ badge.AssertionRepository = (*assertionRepo)(nil)

const assertionColumns = `id, badge_class_id, recipient, issued_at, expires_at, evidence, verification, revoked, revocation_reason, extensions, created_at, updated_at`

// Create verifies the referenced badge class exists before the insert.
func (r *assertionRepo) Create(ctx context.Context, a badge.Assertion) (badge.Assertion, error) {
	if err := badge.ValidateID("badge class", a.BadgeClassID); err != nil {
		return badge.Assertion{}, err
	}
	db, err := r.s.handle()
	if err != nil {
		return badge.Assertion{}, err
	}

	classes := badgeClassRepo{s: r.s}
	ok, err := classes.exists(ctx, db, a.BadgeClassID)
	if err != nil {
		return badge.Assertion{}, &badge.OpError{Op: "create", Entity: "assertion", Err: err}
	}
	if !ok {
		return badge.Assertion{}, badge.NotFoundf("badge class", a.BadgeClassID)
	}

	if a.ID == "" {
		a.ID = ids.NewURN()
	}
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
	var expires sql.NullInt64
	if a.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: toMillis(*a.ExpiresAt), Valid: true}
	}
	_, err = db.ExecContext(ctx, `
		insert into assertions (`+assertionColumns+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.BadgeClassID, recipient.String, toMillis(a.IssuedAt), expires,
		evidence, verification, a.Revoked, nullString(a.RevocationReason), ext,
		toMillis(a.CreatedAt), toMillis(a.UpdatedAt))
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
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	op := obs.StartOperation(engineName, "assertion", "find_by_id", id)
	row := db.QueryRowContext(ctx, `select `+assertionColumns+` from assertions where id = ?`, id)
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
	return r.list(ctx, "find_by_badge_class",
		`select `+assertionColumns+` from assertions where badge_class_id = ? order by created_at asc`, badgeClassID)
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

// Update re-reads the stored row for the merge rule.
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

	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	updated := *existing
	if upd.Recipient != nil {
		updated.Recipient = *upd.Recipient
	}
	if upd.Evidence != nil {
		updated.Evidence = upd.Evidence
	}
	if upd.Verification != nil {
		updated.Verification = upd.Verification
	}
	if upd.Revoked != nil {
		updated.Revoked = *upd.Revoked
	}
	if upd.RevocationReason != nil {
		updated.RevocationReason = *upd.RevocationReason
	}
	updated.Extensions = badge.MergeExtensions(existing.Extensions, upd.Extensions)
	updated.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	op := obs.StartOperation(engineName, "assertion", "update", id)
	recipient, evidence, verification, ext, err := assertionColumnsJSON(updated)
	if err != nil {
		op.Finish(0, err)
		return nil, err
	}
	_, err = db.ExecContext(ctx, `
		update assertions
		set recipient = ?, evidence = ?, verification = ?, revoked = ?, revocation_reason = ?, extensions = ?, updated_at = ?
		where id = ?
	`, recipient.String, evidence, verification, updated.Revoked,
		nullString(updated.RevocationReason), ext, toMillis(updated.UpdatedAt), id)
	if err != nil {
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
	db, err := r.s.handle()
	if err != nil {
		return false, err
	}

	op := obs.StartOperation(engineName, "assertion", "delete", id)
	res, err := db.ExecContext(ctx, `delete from assertions where id = ?`, id)
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
	db, err := r.s.handle()
	if err != nil {
		return 0, err
	}

	op := obs.StartOperation(engineName, "assertion", "delete_by_badge_class", badgeClassID)
	res, err := db.ExecContext(ctx, `delete from assertions where badge_class_id = ?`, badgeClassID)
	if err != nil {
		wrapped := &badge.OpError{Op: "delete_by_badge_class", Entity: "assertion", ID: badgeClassID, Err: classify(err)}
		op.Finish(0, wrapped)
		return 0, wrapped
	}
	affected, _ := res.RowsAffected()
	op.Finish(affected, nil)
	return int(affected), nil
}

func assertionColumnsJSON(a badge.Assertion) (recipient, evidence, verification, ext sql.NullString, err error) {
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
		a                              badge.Assertion
		recipient                      string
		evidence, verification, ext    sql.NullString
		reason                         sql.NullString
		issuedAt, createdAt, updatedAt int64
		expiresAt                      sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.BadgeClassID, &recipient, &issuedAt, &expiresAt,
		&evidence, &verification, &a.Revoked, &reason, &ext, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(sql.NullString{String: recipient, Valid: true}, &a.Recipient); err != nil {
		return nil, err
	}
	a.IssuedAt = fromMillis(issuedAt)
	if expiresAt.Valid {
		t := fromMillis(expiresAt.Int64)
		a.ExpiresAt = &t
	}
	a.RevocationReason = stringOrEmpty(reason)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
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
