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
	uid, err := uuidArg("issuer", issuer.ID)
	if err != nil {
		return badge.Issuer{}, err
	}
	issuer.ID = ids.ToURN(uid)
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
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uid, issuer.Name, issuer.URL, nullString(issuer.Email), nullString(issuer.Description),
		nullString(issuer.Image), nullString(issuer.PublicKey), ext, issuer.CreatedAt, issuer.UpdatedAt)
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
	uid, ok := uuidLookup(id)
	if !ok {
		return nil, nil
	}
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}

	op := obs.StartOperation(engineName, "issuer", "find_by_id", id)
	row := db.QueryRowContext(ctx, `select `+issuerColumns+` from issuers where id = $1`, uid)
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

// Update merges the patch over the stored row, then writes only the touched
// columns. Extensions merge key by key rather than replacing the bag.
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
	if upd.URL != nil {
		updated.URL = *upd.URL
		set("url", updated.URL)
	}
	if upd.Email != nil {
		updated.Email = *upd.Email
		set("email", nullString(updated.Email))
	}
	if upd.Description != nil {
		updated.Description = *upd.Description
		set("description", nullString(updated.Description))
	}
	if upd.Image != nil {
		updated.Image = *upd.Image
		set("image", nullString(updated.Image))
	}
	if upd.PublicKey != nil {
		updated.PublicKey = *upd.PublicKey
		set("public_key", nullString(updated.PublicKey))
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

	op := obs.StartOperation(engineName, "issuer", "update", id)
	query := fmt.Sprintf(`update issuers set %s where id = $%d`, strings.Join(sets, ", "), idx)
	args = append(args, uid)
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
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
	uid, ok := uuidLookup(id)
	if !ok {
		return false, nil
	}
	db, err := r.s.handle()
	if err != nil {
		return false, err
	}

	op := obs.StartOperation(engineName, "issuer", "delete", id)
	res, err := db.ExecContext(ctx, `delete from issuers where id = $1`, uid)
	if err != nil {
		wrapped := &badge.OpError{Op: "delete", Entity: "issuer", ID: id, Err: classify(err)}
		op.Finish(0, wrapped)
		return false, wrapped
	}
	affected, _ := res.RowsAffected()
	op.Finish(affected, nil)
	return affected > 0, nil
}

// exists backs the write-time referential check for badge classes.
func (r *issuerRepo) exists(ctx context.Context, db *sql.DB, uid uuid.UUID) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `select 1 from issuers where id = $1`, uid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(err)
	}
	return true, nil
}

func scanIssuer(row rowScanner) (*badge.Issuer, error) {
	var (
		uid                           uuid.UUID
		issuer                        badge.Issuer
		email, desc, image, publicKey sql.NullString
		ext                           []byte
		createdAt, updatedAt          time.Time
	)
	if err := row.Scan(&uid, &issuer.Name, &issuer.URL, &email, &desc, &image, &publicKey, &ext, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	issuer.ID = ids.ToURN(uid)
	issuer.Email = stringOrEmpty(email)
	issuer.Description = stringOrEmpty(desc)
	issuer.Image = stringOrEmpty(image)
	issuer.PublicKey = stringOrEmpty(publicKey)
	issuer.CreatedAt = createdAt.UTC()
	issuer.UpdatedAt = updatedAt.UTC()
	if err := decodeJSON(ext, &issuer.Extensions); err != nil {
		return nil, err
	}
	return &issuer, nil
}
