package ids

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewIsSortableAndUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := New()
		if len(id) != 26 {
			t.Fatalf("unexpected ulid length: %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestURNRoundTrip(t *testing.T) {
	id := NewURN()
	if !IsURN(id) {
		t.Fatalf("expected urn:uuid form, got %q", id)
	}
	u, err := ToUUID(id)
	if err != nil {
		t.Fatalf("to uuid: %v", err)
	}
	if back := ToURN(u); back != id {
		t.Fatalf("round trip mismatch: %q != %q", back, id)
	}
}

func TestToUUIDAcceptsBareUUID(t *testing.T) {
	raw := uuid.NewString()
	u, err := ToUUID(raw)
	if err != nil {
		t.Fatalf("to uuid: %v", err)
	}
	if u.String() != raw {
		t.Fatalf("expected %q, got %q", raw, u.String())
	}
}

func TestToUUIDRejectsMalformed(t *testing.T) {
	if _, err := ToUUID("not-a-uuid"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}
