package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"

	"badgehub.org/internal/badge"
	"badgehub.org/internal/ids"
)

func TestPlatformCreateDefaultsStatus(t *testing.T) {
	s := newTestStore(t)

	created, err := s.Platforms().Create(context.Background(), badge.Platform{
		Name:     "LMS",
		ClientID: "lms-client",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != badge.PlatformActive {
		t.Fatalf("status should default to active, got %q", created.Status)
	}
}

func TestPlatformCreateRejectsUnknownStatus(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Platforms().Create(context.Background(), badge.Platform{
		Name:     "LMS",
		ClientID: "c",
		Status:   "archived",
	})
	if !errors.Is(err, badge.ErrValidation) {
		t.Fatalf("unknown status: %v", err)
	}
}

func TestPlatformClientIDUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Platforms().Create(ctx, badge.Platform{Name: "First", ClientID: "shared"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.Platforms().Create(ctx, badge.Platform{Name: "Second", ClientID: "shared"})
	if !errors.Is(err, badge.ErrConstraint) {
		t.Fatalf("duplicate client id should violate a constraint: %v", err)
	}
	var ce *badge.ConstraintError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConstraintError, got %T: %v", err, err)
	}
	if !strings.Contains(ce.Field, "client_id") {
		t.Fatalf("constraint should name the column, got %q", ce.Field)
	}
}

func TestPlatformFindByClientID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Platforms().Create(ctx, badge.Platform{Name: "LMS", ClientID: "lookup-me"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := s.Platforms().FindByClientID(ctx, "lookup-me")
	if err != nil {
		t.Fatalf("find by client id: %v", err)
	}
	if found == nil || found.ID != created.ID {
		t.Fatalf("lookup by client id failed: %+v", found)
	}

	missing, err := s.Platforms().FindByClientID(ctx, "no-such-client")
	if err != nil || missing != nil {
		t.Fatalf("missing client id should resolve to nil: %v %v", missing, err)
	}
}

func TestPlatformStatusTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Platforms().Create(ctx, badge.Platform{Name: "LMS", ClientID: "transitions"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	suspended := badge.PlatformSuspended
	updated, err := s.Platforms().Update(ctx, created.ID, badge.PlatformUpdate{Status: &suspended})
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if updated.Status != badge.PlatformSuspended {
		t.Fatalf("status not updated: %q", updated.Status)
	}

	bogus := badge.PlatformStatus("retired")
	if _, err := s.Platforms().Update(ctx, created.ID, badge.PlatformUpdate{Status: &bogus}); !errors.Is(err, badge.ErrValidation) {
		t.Fatalf("bogus status on update: %v", err)
	}
}

func TestPlatformUserCreateRequiresPlatform(t *testing.T) {
	s := newTestStore(t)

	_, err := s.PlatformUsers().Create(context.Background(), badge.PlatformUser{
		PlatformID: ids.NewURN(),
		ExternalID: "u-1",
	})
	if !errors.Is(err, badge.ErrNotFound) {
		t.Fatalf("dangling platform reference: %v", err)
	}
}

func TestPlatformUserExternalIDUniquePerPlatform(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	platform, err := s.Platforms().Create(ctx, badge.Platform{Name: "LMS", ClientID: "lms-a"})
	if err != nil {
		t.Fatalf("seed platform: %v", err)
	}
	other, err := s.Platforms().Create(ctx, badge.Platform{Name: "Other", ClientID: "lms-b"})
	if err != nil {
		t.Fatalf("seed other platform: %v", err)
	}

	if _, err := s.PlatformUsers().Create(ctx, badge.PlatformUser{PlatformID: platform.ID, ExternalID: "u-1"}); err != nil {
		t.Fatalf("first user: %v", err)
	}
	// Same external id on the same platform collides.
	_, err = s.PlatformUsers().Create(ctx, badge.PlatformUser{PlatformID: platform.ID, ExternalID: "u-1"})
	if !errors.Is(err, badge.ErrConstraint) {
		t.Fatalf("duplicate external id: %v", err)
	}
	// The same external id on another platform is fine.
	if _, err := s.PlatformUsers().Create(ctx, badge.PlatformUser{PlatformID: other.ID, ExternalID: "u-1"}); err != nil {
		t.Fatalf("same external id on another platform: %v", err)
	}
}

func TestPlatformUserLookupAndUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	platform, err := s.Platforms().Create(ctx, badge.Platform{Name: "LMS", ClientID: "lms-c"})
	if err != nil {
		t.Fatalf("seed platform: %v", err)
	}
	created, err := s.PlatformUsers().Create(ctx, badge.PlatformUser{
		PlatformID:  platform.ID,
		ExternalID:  "student-42",
		DisplayName: "Student",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	found, err := s.PlatformUsers().FindByPlatformAndExternalID(ctx, platform.ID, "student-42")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found == nil || found.ID != created.ID {
		t.Fatalf("lookup by platform and external id failed: %+v", found)
	}

	email := "student@example.org"
	updated, err := s.PlatformUsers().Update(ctx, created.ID, badge.PlatformUserUpdate{Email: &email})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Email != email || updated.DisplayName != "Student" {
		t.Fatalf("partial update wrong: %+v", updated)
	}
}
