package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"badgehub.org/internal/badge"
	"badgehub.org/internal/ids"
)

func TestUserAssertionAddRejectsNonUUIDIDs(t *testing.T) {
	s, _ := newMockStore(t)

	// uuid columns cannot hold arbitrary identifiers, so the shape is
	// checked before any SQL runs.
	_, err := s.UserAssertions().Add(context.Background(), "student-42", ids.NewURN(), nil)
	if !errors.Is(err, badge.ErrValidation) {
		t.Fatalf("non-uuid user id: %v", err)
	}
	_, err = s.UserAssertions().Add(context.Background(), ids.NewURN(), "assertion-7", nil)
	if !errors.Is(err, badge.ErrValidation) {
		t.Fatalf("non-uuid assertion id: %v", err)
	}
}

func TestUserAssertionAddReactivatesDeletedRow(t *testing.T) {
	s, mock := newMockStore(t)

	userID, assertionID, linkID := ids.NewURN(), ids.NewURN(), ids.NewURN()
	userUID, _ := ids.ToUUID(userID)
	assertionUID, _ := ids.ToUUID(assertionID)
	linkUID, _ := ids.ToUUID(linkID)
	added := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "assertion_id", "status", "metadata", "added_at", "updated_at",
	}).AddRow(linkUID.String(), userUID.String(), assertionUID.String(), "deleted",
		[]byte(`{"source":"import"}`), added, added)
	mock.ExpectQuery(regexp.QuoteMeta(`from user_assertions`)).
		WithArgs(userUID, assertionUID).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta(`update user_assertions set status = $1, metadata = $2, updated_at = $3 where id = $4`)).
		WithArgs("active", []byte(`{"source":"manual"}`), sqlmock.AnyArg(), linkUID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ua, err := s.UserAssertions().Add(context.Background(), userID, assertionID, map[string]any{"source": "manual"})
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if ua.ID != linkID {
		t.Fatalf("existing row not reused: %q vs %q", ua.ID, linkID)
	}
	if ua.Status != badge.UserAssertionActive {
		t.Fatalf("row not reactivated: %q", ua.Status)
	}
	if !ua.AddedAt.Equal(added) {
		t.Fatalf("original added_at must survive reactivation: %v", ua.AddedAt)
	}
}

func TestUserAssertionRemoveMissing(t *testing.T) {
	s, mock := newMockStore(t)

	userID, assertionID := ids.NewURN(), ids.NewURN()
	userUID, _ := ids.ToUUID(userID)
	assertionUID, _ := ids.ToUUID(assertionID)
	mock.ExpectQuery(regexp.QuoteMeta(`from user_assertions`)).
		WithArgs(userUID, assertionUID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "assertion_id", "status", "metadata", "added_at", "updated_at",
		}))

	removed, err := s.UserAssertions().Remove(context.Background(), userID, assertionID)
	if err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	if removed {
		t.Fatal("removing a missing link should report false")
	}
}
