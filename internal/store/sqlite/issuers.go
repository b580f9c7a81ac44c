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

type issuerRepo struct{ s *Store }

var _ badge.IssuerRepository = (*issuerRepo)(nil)

const issuerColumns = `id, name, url, email, description, image, public_key, extensions, created_at, updated_at`

func (r *issuerRepo) Create(ctx context.Context, issuer badge.Issuer) (badge.Issuer, error) {
	db, err := r.s.handle()
	if err != nil {
		return badge.Issuer{}, err
	}
	if issuer.ID == "" {
		issuer.ID = ids.NewURN()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	issuer.CreatedAt, issuer.UpdatedAt = now, now

	op := obs.StartOperation(engineName, "issuer", "create", issuer.ID)
	ext, err := jsonColumn(issuer.Extensions)
	if err != nil {
		op.Finish(0, err)
		return badge.Issuer{}, err
	}
	_, err = db.ExecContext(ctx, `
		insert into issuers (`+issuerColumns+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, issuer.ID, issuer.Name, issuer.URL, nullString(issuer.Email), nullString(issuer.Description),
		nullString(issuer.Image), nullString(issuer.PublicKey), ext, toMillis(issuer.CreatedAt), toMillis(issuer.UpdatedAt))
	if err != nil {
		wrapped := &badge.OpError{Op: "create", Entity: "issuer", ID: issuer.ID, Err: classify(err)}
		op.Finish(0, wrapped)
		return badge.Issuer{}, wrapped
	}
	op.Finish(1, nil)
	return issuer, nil
}

func (r *issuerRepo) FindByID(ctx context.Context, id string) (*badge.Issuer, error) {
	if err := badge.ValidateID("issuer", id); err != nil {
		return nil, err
	}
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	op := obs.StartOperation(engineName, "issuer", "find_by_id", id)
	row := db.QueryRowContext(ctx, `select `+issuerColumns+` from issuers where id = ?`, id)
	issuer, err := scanIssuer(row)
	if errors.Is(err, sql.ErrNoRows) {
		op.Finish(0, nil)
		return nil, nil
	}
	if err != nil {
		wrapped := &badge.OpError{Op: "find_by_id", Entity: "issuer", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	op.Finish(1, nil)
	return issuer, nil
}

func (r *issuerRepo) FindAll(ctx context.Context) ([]badge.Issuer, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	op := obs.StartOperation(engineName, "issuer", "find_all", "")
	rows, err := db.QueryContext(ctx, `select `+issuerColumns+` from issuers order by created_at asc`)
	if err != nil {
		wrapped := &badge.OpError{Op: "find_all", Entity: "issuer", Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	defer rows.Close()

	var result []badge.Issuer
	for rows.Next() {
		issuer, err := scanIssuer(rows)
		if err != nil {
			wrapped := &badge.OpError{Op: "find_all", Entity: "issuer", Err: classify(err)}
			op.Finish(int64(len(result)), wrapped)
			return nil, wrapped
		}
		result = append(result, *issuer)
	}
	if err := rows.Err(); err != nil {
		wrapped := &badge.OpError{Op: "find_all", Entity: "issuer", Err: classify(err)}
		op.Finish(int64(len(result)), wrapped)
		return nil, wrapped
	}
	op.Finish(int64(len(result)), nil)
	return result, nil
}

// Update re-reads the stored row so fields absent from the patch, including
// the extension bag, keep their prior values.
func (r *issuerRepo) Update(ctx context.Context, id string, upd badge.IssuerUpdate) (*badge.Issuer, error) {
	if err := badge.ValidateID("issuer", id); err != nil {
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
	if upd.Name != nil {
		updated.Name = *upd.Name
	}
	if upd.URL != nil {
		updated.URL = *upd.URL
	}
	if upd.Email != nil {
		updated.Email = *upd.Email
	}
	if upd.Description != nil {
		updated.Description = *upd.Description
	}
	if upd.Image != nil {
		updated.Image = *upd.Image
	}
	if upd.PublicKey != nil {
		updated.PublicKey = *upd.PublicKey
	}
	updated.Extensions = badge.MergeExtensions(existing.Extensions, upd.Extensions)
	updated.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	op := obs.StartOperation(engineName, "issuer", "update", id)
	ext, err := jsonColumn(updated.Extensions)
	if err != nil {
		op.Finish(0, err)
		return nil, err
	}
	_, err = db.ExecContext(ctx, `
		update issuers
		set name = ?, url = ?, email = ?, description = ?, image = ?, public_key = ?, extensions = ?, updated_at = ?
		where id = ?
	`, updated.Name, updated.URL, nullString(updated.Email), nullString(updated.Description),
		nullString(updated.Image), nullString(updated.PublicKey), ext, toMillis(updated.UpdatedAt), id)
	if err != nil {
		wrapped := &badge.OpError{Op: "update", Entity: "issuer", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return nil, wrapped
	}
	op.Finish(1, nil)
	return &updated, nil
}

func (r *issuerRepo) Delete(ctx context.Context, id string) (bool, error) {
	if err := badge.ValidateID("issuer", id); err != nil {
		return false, err
	}
	db, err := r.s.handle()
	if err != nil {
		return false, err
	}

	op := obs.StartOperation(engineName, "issuer", "delete", id)
	res, err := db.ExecContext(ctx, `delete from issuers where id = ?`, id)
	if err != nil {
		wrapped := &badge.OpError{Op: "delete", Entity: "issuer", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return false, wrapped
	}
	affected, _ := res.RowsAffected()
	op.Finish(affected, nil)
	return affected > 0, nil
}

// issuerExists backs the write-time referential check for badge classes.
func (r *issuerRepo) exists(ctx context.Context, db *sql.DB, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `select 1 from issuers where id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssuer(row rowScanner) (*badge.Issuer, error) {
	var (
		issuer                             badge.Issuer
		email, desc, image, publicKey, ext sql.NullString
		createdAt, updatedAt               int64
	)
	if err := row.Scan(&issuer.ID, &issuer.Name, &issuer.URL, &email, &desc, &image, &publicKey, &ext, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	issuer.Email = stringOrEmpty(email)
	issuer.Description = stringOrEmpty(desc)
	issuer.Image = stringOrEmpty(image)
	issuer.PublicKey = stringOrEmpty(publicKey)
	issuer.CreatedAt = fromMillis(createdAt)
	issuer.UpdatedAt = fromMillis(updatedAt)
	if err := decodeJSON(ext, &issuer.Extensions); err != nil {
		return nil, err
	}
	return &issuer, nil
}
