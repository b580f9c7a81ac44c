package badge

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMergeExtensionsKeyByKey(t *testing.T) {
	existing := map[string]any{"a": 1, "b": "keep"}
	patch := map[string]any{"b": "replaced", "c": true}

	got := MergeExtensions(existing, patch)
	want := map[string]any{"a": 1, "b": "replaced", "c": true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merge mismatch (-want +got):\n%s", diff)
	}

	// The inputs stay untouched.
	if existing["b"] != "keep" {
		t.Fatalf("existing map mutated: %v", existing)
	}
}

func TestMergeExtensionsEmpty(t *testing.T) {
	if got := MergeExtensions(nil, nil); got != nil {
		t.Fatalf("expected nil for empty merge, got %v", got)
	}
	got := MergeExtensions(nil, map[string]any{"k": "v"})
	if got["k"] != "v" {
		t.Fatalf("patch-only merge lost key: %v", got)
	}
	got = MergeExtensions(map[string]any{"k": "v"}, nil)
	if got["k"] != "v" {
		t.Fatalf("existing-only merge lost key: %v", got)
	}
}

func TestCloneExtensions(t *testing.T) {
	if CloneExtensions(nil) != nil {
		t.Fatal("clone of nil should stay nil")
	}
	src := map[string]any{"k": "v"}
	clone := CloneExtensions(src)
	clone["k"] = "changed"
	if src["k"] != "v" {
		t.Fatalf("clone shares storage with source: %v", src)
	}
}
