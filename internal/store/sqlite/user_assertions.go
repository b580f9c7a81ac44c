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

type userAssertionRepo struct{ s *Store }

var _ badge.UserAssertionRepository = (*userAssertionRepo)(nil)

const userAssertionColumns = `id, user_id, assertion_id, status, metadata, added_at, updated_at`

// Add links an assertion to a user's backpack. A previously soft-deleted link
// is reactivated in place so the UNIQUE(user_id, assertion_id) row is reused.
func (r *userAssertionRepo) Add(ctx context.Context, userID, assertionID string, metadata map[string]any) (badge.UserAssertion, error) {
	if err := badge.ValidateID("user", userID); err != nil {
		return badge.UserAssertion{}, err
	}
	if err := badge.ValidateID("assertion", assertionID); err != nil {
		return badge.UserAssertion{}, err
	}
	db, err := r.s.handle()
	if err != nil {
		return badge.UserAssertion{}, err
	}

	existing, err := r.find(ctx, db, userID, assertionID)
	if err != nil {
		return badge.UserAssertion{}, &badge.OpError{Op: "add", Entity: "user_assertion", Err: classify(err)}
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	op := obs.StartOperation(engineName, "user_assertion", "add", userID)

	if existing != nil {
		updated := *existing
		updated.Status = badge.UserAssertionActive
		updated.Metadata = badge.MergeExtensions(existing.Metadata, metadata)
		updated.UpdatedAt = now

		meta, err := jsonColumn(updated.Metadata)
		if err != nil {
			op.Finish(0, err)
			return badge.UserAssertion{}, err
		}
		_, err = db.ExecContext(ctx, `
			update user_assertions set status = ?, metadata = ?, updated_at = ? where id = ?
		`, string(updated.Status), meta, toMillis(updated.UpdatedAt), updated.ID)
		if err != nil {
			wrapped := &badge.OpError{Op: "add", Entity: "user_assertion", ID: updated.ID, Err: classify(err)}
			op.Finish(0, wrapped)
			return badge.UserAssertion{}, wrapped
		}
		op.Finish(1, nil)
		return updated, nil
	}

	ua := badge.UserAssertion{
		ID:          ids.NewURN(),
		UserID:      userID,
		AssertionID: assertionID,
		Status:      badge.UserAssertionActive,
		Metadata:    badge.CloneExtensions(metadata),
		AddedAt:     now,
		UpdatedAt:   now,
	}
	meta, err := jsonColumn(ua.Metadata)
	if err != nil {
		op.Finish(0, err)
		return badge.UserAssertion{}, err
	}
	_, err = db.ExecContext(ctx, `
		insert into user_assertions (`+userAssertionColumns+`)
		values (?, ?, ?, ?, ?, ?, ?)
	`, ua.ID, ua.UserID, ua.AssertionID, string(ua.Status), meta, toMillis(ua.AddedAt), toMillis(ua.UpdatedAt))
	if err != nil {
		wrapped := &badge.OpError{Op: "add", Entity: "user_assertion", ID: ua.ID, Err: classify(err)}
		op.Finish(0, wrapped)
		return badge.UserAssertion{}, wrapped
	}
	op.Finish(1, nil)
	return ua, nil
}

func (r *userAssertionRepo) FindByUserAndAssertion(ctx context.Context, userID, assertionID string) (*badge.UserAssertion, error) {
	if err := badge.ValidateID("user", userID); err != nil {
		return nil, err
	}
	if err := badge.ValidateID("assertion", assertionID); err != nil {
		return nil, err
	}
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	op := obs.StartOperation(engineName, "user_assertion", "find_by_user_and_assertion", userID)
	ua, err := r.find(ctx, db, userID, assertionID)
	if err != nil {
		wrapped := &badge.OpError{Op: "find_by_user_and_assertion", Entity: "user_assertion", Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	if ua == nil {
		op.Finish(0, nil)
		return nil, nil
	}
	op.Finish(1, nil)
	return ua, nil
}

// find returns the row regardless of status, or nil when absent.
func (r *userAssertionRepo) find(ctx context.Context, db *sql.DB, userID, assertionID string) (*badge.UserAssertion, error) {
	row := db.QueryRowContext(ctx, `
		select `+userAssertionColumns+` from user_assertions
		where user_id = ? and assertion_id = ?
	`, userID, assertionID)
	ua, err := scanUserAssertion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ua, err
}

// ListByUser returns the user's links ordered by when they were added,
// excluding soft-deleted rows.
func (r *userAssertionRepo) ListByUser(ctx context.Context, userID string) ([]badge.UserAssertion, error) {
	if err := badge.ValidateID("user", userID); err != nil {
		return nil, err
	}
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	op := obs.StartOperation(engineName, "user_assertion", "list_by_user", userID)
	rows, err := db.QueryContext(ctx, `
		select `+userAssertionColumns+` from user_assertions
		where user_id = ? and status != ?
		order by added_at, id
	`, userID, string(badge.UserAssertionDeleted))
	if err != nil {
		wrapped := &badge.OpError{Op: "list_by_user", Entity: "user_assertion", Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	defer rows.Close()

	var out []badge.UserAssertion
	for rows.Next() {
		ua, err := scanUserAssertion(rows)
		if err != nil {
			wrapped := &badge.OpError{Op: "list_by_user", Entity: "user_assertion", Err: classify(err)}
			op.Finish(0, wrapped)
			return nil, wrapped
		}
		out = append(out, *ua)
	}
	if err := rows.Err(); err != nil {
		wrapped := &badge.OpError{Op: "list_by_user", Entity: "user_assertion", Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	op.Finish(int64(len(out)), nil)
	return out, nil
}

func (r *userAssertionRepo) UpdateStatus(ctx context.Context, userID, assertionID string, status badge.UserAssertionStatus) (*badge.UserAssertion, error) {
	if !status.Valid() {
		return nil, badge.Validationf("unknown user assertion status %q", status)
	}
	ua, err := r.FindByUserAndAssertion(ctx, userID, assertionID)
	if err != nil || ua == nil {
		return nil, err
	}
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	updated := *ua
	updated.Status = status
	updated.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	op := obs.StartOperation(engineName, "user_assertion", "update_status", ua.ID)
	_, err = db.ExecContext(ctx, `
		update user_assertions set status = ?, updated_at = ? where id = ?
	`, string(updated.Status), toMillis(updated.UpdatedAt), updated.ID)
	if err != nil {
		wrapped := &badge.OpError{Op: "update_status", Entity: "user_assertion", ID: ua.ID, Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	op.Finish(1, nil)
	return &updated, nil
}

// Has reports whether a non-deleted link exists.
func (r *userAssertionRepo) Has(ctx context.Context, userID, assertionID string) (bool, error) {
	ua, err := r.FindByUserAndAssertion(ctx, userID, assertionID)
	if err != nil {
		return false, err
	}
	return ua != nil && ua.Status != badge.UserAssertionDeleted, nil
}

// Remove soft-deletes the link. The row is kept so a later Add reactivates it.
func (r *userAssertionRepo) Remove(ctx context.Context, userID, assertionID string) (bool, error) {
	ua, err := r.FindByUserAndAssertion(ctx, userID, assertionID)
	if err != nil {
		return false, err
	}
	if ua == nil || ua.Status == badge.UserAssertionDeleted {
		return false, nil
	}
	_, err = r.UpdateStatus(ctx, userID, assertionID, badge.UserAssertionDeleted)
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanUserAssertion(row rowScanner) (*badge.UserAssertion, error) {
	var (
		ua                badge.UserAssertion
		status            string
		meta              sql.NullString
		addedAt, updateAt int64
	)
	if err := row.Scan(&ua.ID, &ua.UserID, &ua.AssertionID, &status, &meta, &addedAt, &updateAt); err != nil {
		return nil, err
	}
	ua.Status = badge.UserAssertionStatus(status)
	ua.AddedAt = fromMillis(addedAt)
	ua.UpdatedAt = fromMillis(updateAt)
	if err := decodeJSON(meta, &ua.Metadata); err != nil {
		return nil, err
	}
	return &ua, nil
}
