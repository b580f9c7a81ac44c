package badge

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidationf(t *testing.T) {
	err := Validationf("issuer id must not be blank")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "issuer id must not be blank") {
		t.Fatalf("message lost: %v", err)
	}
}

func TestNotFoundf(t *testing.T) {
	err := NotFoundf("badge class", "urn:uuid:missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "badge class") || !strings.Contains(err.Error(), "urn:uuid:missing") {
		t.Fatalf("message should name entity and id: %v", err)
	}
}

func TestConstraintErrorUnwrap(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: platforms.client_id")
	err := &ConstraintError{Field: "platforms.client_id", Err: cause}
	if !errors.Is(err, ErrConstraint) {
		t.Fatalf("expected ErrConstraint, got %v", err)
	}
	if !strings.Contains(err.Error(), "platforms.client_id") {
		t.Fatalf("field lost: %v", err)
	}
}

func TestOpErrorChain(t *testing.T) {
	inner := &ConstraintError{Field: "foreign key", Err: errors.New("boom")}
	err := &OpError{Op: "create", Entity: "badge_class", ID: "urn:uuid:x", Err: inner}
	if !errors.Is(err, ErrConstraint) {
		t.Fatalf("OpError should unwrap to the classified cause, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "create") || !strings.Contains(msg, "badge_class") || !strings.Contains(msg, "urn:uuid:x") {
		t.Fatalf("context lost: %s", msg)
	}

	wrapped := fmt.Errorf("service layer: %w", err)
	var opErr *OpError
	if !errors.As(wrapped, &opErr) || opErr.Entity != "badge_class" {
		t.Fatalf("errors.As should recover the OpError: %v", wrapped)
	}
}
