package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"badgehub.org/internal/badge"
	"badgehub.org/internal/ids"
)

func TestIssuerRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Issuers().Create(ctx, badge.Issuer{
		Name:        "Example Org",
		URL:         "https://org.example",
		Email:       "badges@org.example",
		Description: "issues badges",
		Image:       "https://org.example/logo.png",
		PublicKey:   "-----BEGIN PUBLIC KEY-----",
		Extensions:  map[string]any{"region": "eu", "tier": float64(2)},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !ids.IsURN(created.ID) {
		t.Fatalf("generated id %q is not a uuid urn", created.ID)
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("timestamps not set on create: %+v", created)
	}

	found, err := s.Issuers().FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil {
		t.Fatal("created issuer not found")
	}
	if diff := cmp.Diff(created, *found); diff != "" {
		t.Fatalf("round trip mismatch (-created +found):\n%s", diff)
	}
}

func TestIssuerEmptyExtensionsReadBackAsNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Issuers().Create(ctx, badge.Issuer{
		Name:       "Bare",
		URL:        "https://bare.example",
		Extensions: map[string]any{},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	found, err := s.Issuers().FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Extensions != nil {
		t.Fatalf("empty extension bag should read back nil, got %v", found.Extensions)
	}
}

func TestIssuerFindMissing(t *testing.T) {
	s := newTestStore(t)

	found, err := s.Issuers().FindByID(context.Background(), ids.NewURN())
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if found != nil {
		t.Fatalf("missing issuer should resolve to nil, got %+v", found)
	}
	if _, err := s.Issuers().FindByID(context.Background(), "  "); !errors.Is(err, badge.ErrValidation) {
		t.Fatalf("blank id: %v", err)
	}
}

func TestIssuerUpdateMergesExtensions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Issuers().Create(ctx, badge.Issuer{
		Name:       "Org",
		URL:        "https://org.example",
		Extensions: map[string]any{"region": "eu", "tier": float64(1)},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Renamed Org"
	updated, err := s.Issuers().Update(ctx, created.ID, badge.IssuerUpdate{
		Name:       &name,
		Extensions: map[string]any{"tier": float64(2), "verified": true},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Renamed Org" || updated.URL != "https://org.example" {
		t.Fatalf("pointer field semantics broken: %+v", updated)
	}
	want := map[string]any{"region": "eu", "tier": float64(2), "verified": true}
	if diff := cmp.Diff(want, updated.Extensions); diff != "" {
		t.Fatalf("extensions not merged (-want +got):\n%s", diff)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatal("update must not touch created_at")
	}

	// The merge survives a fresh read.
	found, err := s.Issuers().FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("re-read: %v", err)
	}
	if diff := cmp.Diff(want, found.Extensions); diff != "" {
		t.Fatalf("stored extensions mismatch (-want +got):\n%s", diff)
	}
}

func TestIssuerUpdateMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)

	name := "whatever"
	updated, err := s.Issuers().Update(context.Background(), ids.NewURN(), badge.IssuerUpdate{Name: &name})
	if err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if updated != nil {
		t.Fatalf("missing target should yield nil result, got %+v", updated)
	}
}

func TestIssuerDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Issuers().Create(ctx, badge.Issuer{Name: "Org", URL: "https://org.example"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	deleted, err := s.Issuers().Delete(ctx, created.ID)
	if err != nil || !deleted {
		t.Fatalf("delete existing: %v %v", deleted, err)
	}
	deleted, err = s.Issuers().Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if deleted {
		t.Fatal("deleting a missing issuer should report false")
	}
}

func TestIssuerFindAllOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, _ := s.Issuers().Create(ctx, badge.Issuer{Name: "First", URL: "https://1.example"})
	time.Sleep(2 * time.Millisecond) // timestamps carry millisecond precision
	second, _ := s.Issuers().Create(ctx, badge.Issuer{Name: "Second", URL: "https://2.example"})

	all, err := s.Issuers().FindAll(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 issuers, got %d", len(all))
	}
	if all[0].ID != first.ID || all[1].ID != second.ID {
		t.Fatalf("issuers out of creation order: %v", []string{all[0].Name, all[1].Name})
	}
}
