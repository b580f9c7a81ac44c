package pg

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"

	"badgehub.org/internal/badge"
	"badgehub.org/internal/ids"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	s := NewStore(db, Options{})
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return s, mock
}

func TestIssuerCreateBindsColumns(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`insert into issuers`)).
		WithArgs(sqlmock.AnyArg(), "Org", "https://org.example", sql.NullString{},
			sql.NullString{}, sql.NullString{}, sql.NullString{}, nil,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := s.Issuers().Create(context.Background(), badge.Issuer{
		Name: "Org",
		URL:  "https://org.example",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !ids.IsURN(created.ID) {
		t.Fatalf("created id %q is not a uuid urn", created.ID)
	}
	if _, err := ids.ToUUID(created.ID); err != nil {
		t.Fatalf("created id %q is not uuid-backed: %v", created.ID, err)
	}
}

func TestIssuerCreateRejectsMalformedID(t *testing.T) {
	s, _ := newMockStore(t)

	// No SQL runs: the id is rejected before the engine is touched.
	_, err := s.Issuers().Create(context.Background(), badge.Issuer{
		ID:   "urn:uuid:not-a-uuid",
		Name: "Org",
		URL:  "https://org.example",
	})
	if !errors.Is(err, badge.ErrValidation) {
		t.Fatalf("malformed id on create: %v", err)
	}
}

func TestIssuerFindByIDScansRow(t *testing.T) {
	s, mock := newMockStore(t)

	id := ids.NewURN()
	uid, _ := ids.ToUUID(id)
	created := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "name", "url", "email", "description", "image", "public_key", "extensions", "created_at", "updated_at",
	}).AddRow(uid.String(), "Org", "https://org.example", "badges@org.example", nil, nil, nil,
		[]byte(`{"region":"eu"}`), created, created)
	mock.ExpectQuery(regexp.QuoteMeta(`select id, name, url, email, description, image, public_key, extensions, created_at, updated_at from issuers where id = $1`)).
		WithArgs(uid).
		WillReturnRows(rows)

	found, err := s.Issuers().FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil {
		t.Fatal("row not scanned")
	}
	if found.ID != id {
		t.Fatalf("id not normalized to urn form: %q", found.ID)
	}
	if found.Email != "badges@org.example" || found.Description != "" {
		t.Fatalf("nullable columns mis-scanned: %+v", found)
	}
	if diff := cmp.Diff(map[string]any{"region": "eu"}, found.Extensions); diff != "" {
		t.Fatalf("extensions mis-decoded (-want +got):\n%s", diff)
	}
	if !found.CreatedAt.Equal(created) || found.CreatedAt.Location() != time.UTC {
		t.Fatalf("timestamp not normalized to UTC: %v", found.CreatedAt)
	}
}

func TestIssuerFindByIDMalformedResolvesToNil(t *testing.T) {
	s, _ := newMockStore(t)

	// A malformed id can name no row, so no query runs.
	found, err := s.Issuers().FindByID(context.Background(), "urn:uuid:not-a-uuid")
	if err != nil || found != nil {
		t.Fatalf("malformed id should read as missing: %v %v", found, err)
	}
}

func TestUniqueViolationBecomesConstraintError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`insert into platforms`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "platforms_client_id_key"})

	_, err := s.Platforms().Create(context.Background(), badge.Platform{Name: "LMS", ClientID: "dup"})
	if !errors.Is(err, badge.ErrConstraint) {
		t.Fatalf("unique violation: %v", err)
	}
	var ce *badge.ConstraintError
	if !errors.As(err, &ce) || ce.Field != "platforms_client_id_key" {
		t.Fatalf("constraint name not carried: %v", err)
	}
}

func TestForeignKeyViolationBecomesConstraintError(t *testing.T) {
	err := classify(&pgconn.PgError{Code: "23503", ConstraintName: "badge_classes_issuer_id_fkey"})
	if !errors.Is(err, badge.ErrConstraint) {
		t.Fatalf("fk violation: %v", err)
	}
	var ce *badge.ConstraintError
	if !errors.As(err, &ce) || ce.Field != "foreign key" {
		t.Fatalf("fk classification: %v", err)
	}
}

func TestConnectionClassErrors(t *testing.T) {
	if err := classify(&pgconn.PgError{Code: "08006"}); !errors.Is(err, badge.ErrConnection) {
		t.Fatalf("connection failure code: %v", err)
	}
	if err := classify(errors.New("boom")); !errors.Is(err, badge.ErrEngine) {
		t.Fatalf("unclassified error: %v", err)
	}
	if err := classify(context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation must pass through: %v", err)
	}
}

func TestIssuerDeleteMissing(t *testing.T) {
	s, mock := newMockStore(t)

	id := ids.NewURN()
	uid, _ := ids.ToUUID(id)
	mock.ExpectExec(regexp.QuoteMeta(`delete from issuers where id = $1`)).
		WithArgs(uid).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := s.Issuers().Delete(context.Background(), id)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted {
		t.Fatal("zero affected rows should report false")
	}
}

func TestIssuerUpdateWritesOnlyTouchedColumns(t *testing.T) {
	s, mock := newMockStore(t)

	id := ids.NewURN()
	uid, _ := ids.ToUUID(id)
	created := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "name", "url", "email", "description", "image", "public_key", "extensions", "created_at", "updated_at",
	}).AddRow(uid.String(), "Org", "https://org.example", nil, nil, nil, nil,
		[]byte(`{"keep":"me"}`), created, created)
	mock.ExpectQuery(regexp.QuoteMeta(`from issuers where id = $1`)).
		WithArgs(uid).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta(`update issuers set name = $1, updated_at = $2 where id = $3`)).
		WithArgs("Renamed", sqlmock.AnyArg(), uid).
		WillReturnResult(sqlmock.NewResult(0, 1))

	name := "Renamed"
	updated, err := s.Issuers().Update(context.Background(), id, badge.IssuerUpdate{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Renamed" || updated.URL != "https://org.example" {
		t.Fatalf("merge semantics broken: %+v", updated)
	}
	if diff := cmp.Diff(map[string]any{"keep": "me"}, updated.Extensions); diff != "" {
		t.Fatalf("untouched extensions must survive (-want +got):\n%s", diff)
	}
}

func TestApplySettingsUsesBoundParameters(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`select set_config($1, $2, false)`)).
		WithArgs("statement_timeout", "5s").
		WillReturnRows(sqlmock.NewRows([]string{"set_config"}).AddRow("5s"))
	mock.ExpectQuery(regexp.QuoteMeta(`select set_config($1, $2, false)`)).
		WithArgs("work_mem", "64MB").
		WillReturnRows(sqlmock.NewRows([]string{"set_config"}).AddRow("64MB"))

	err := s.ApplySettings(context.Background(), map[string]string{
		"work_mem":          "64MB",
		"statement_timeout": "5s",
	})
	if err != nil {
		t.Fatalf("apply settings: %v", err)
	}
}

func TestApplySettingsFailureNamesValue(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`select set_config($1, $2, false)`)).
		WithArgs("work_mem", "4MB").
		WillReturnError(errors.New("permission denied to set parameter"))

	err := s.ApplySettings(context.Background(), map[string]string{"work_mem": "4MB"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "work_mem") || !strings.Contains(err.Error(), `"4MB"`) {
		t.Fatalf("error should carry the rejected name and value: %v", err)
	}
}

func TestApplySettingsRejectsInjection(t *testing.T) {
	s, _ := newMockStore(t)

	// Nothing reaches the engine for names or values off the grammar.
	cases := []map[string]string{
		{"work_mem; drop table issuers": "64MB"},
		{"work_mem": "64MB; drop table issuers"},
		{"work_mem": "64MB", "statement_timeout": "not valid at all"},
	}
	for _, settings := range cases {
		if err := s.ApplySettings(context.Background(), settings); !errors.Is(err, badge.ErrValidation) {
			t.Errorf("settings %v: want validation error, got %v", settings, err)
		}
	}
}

func TestOpenRejectsBlankDSN(t *testing.T) {
	if _, err := Open("  ", Options{}); !errors.Is(err, badge.ErrValidation) {
		t.Fatalf("blank dsn: %v", err)
	}
}

func TestDisconnectedStoreRefusesWork(t *testing.T) {
	s, err := Open("postgres://localhost/badges", Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.IsConnected() {
		t.Fatal("store should start disconnected")
	}
	if _, err := s.Issuers().FindAll(context.Background()); !errors.Is(err, badge.ErrConnection) {
		t.Fatalf("disconnected repo call: %v", err)
	}
	if s.HealthCheck(context.Background()) {
		t.Fatal("health check should fail while disconnected")
	}
}
