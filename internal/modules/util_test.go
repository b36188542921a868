package modules

import (
	"encoding/json"
	"io"
	"math"
	"strings"
	"testing"
)

func TestMapToReader_ProducesValidJSON(t *testing.T) {
	r := mapToReader(map[string]any{"a": 1, "b": "two"})
	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got["b"] != "two" {
		t.Fatalf("unexpected content: %+v", got)
	}
}

func TestStableJSON_KeyOrderIndependent(t *testing.T) {
	a := stableJSON(map[string]any{"z": 1, "a": 2})
	b := stableJSON(map[string]any{"a": 2.0, "z": 1.0})
	if a != b {
		t.Fatalf("expected identical output regardless of key insertion order: %q vs %q", a, b)
	}
}

func TestStableJSON_NestedStructures(t *testing.T) {
	got := stableJSON(map[string]any{
		"list": []any{1.0, "x", map[string]any{"k": "v"}},
	})
	if !strings.Contains(got, `"k":"v"`) {
		t.Fatalf("expected nested object rendered, got %s", got)
	}
}

func TestStableJSON_MaxDepthGuardTerminates(t *testing.T) {
	var v any = "leaf"
	for i := 0; i < maxStableDepth+10; i++ {
		v = map[string]any{"n": v}
	}
	got := stableJSON(v)
	if !strings.Contains(got, "<max-depth>") {
		t.Fatalf("expected max-depth marker to appear in deeply nested structure")
	}
}

func TestStructuralMatch_SubsetMapMatches(t *testing.T) {
	want := map[string]any{"tool": "Bash"}
	got := map[string]any{"tool": "Bash", "extra": "ignored"}
	if !structuralMatch(want, got) {
		t.Fatal("subset of keys present with matching values should match")
	}
}

func TestStructuralMatch_MissingKeyFails(t *testing.T) {
	want := map[string]any{"tool": "Bash", "danger": true}
	got := map[string]any{"tool": "Bash"}
	if structuralMatch(want, got) {
		t.Fatal("missing key should not match")
	}
}

func TestStructuralMatch_SequencesMatchPairwise(t *testing.T) {
	want := []any{1.0, 2.0}
	got := []any{1.0, 2.0}
	if !structuralMatch(want, got) {
		t.Fatal("equal-length identical sequences should match")
	}
	if structuralMatch(want, []any{1.0, 2.0, 3.0}) {
		t.Fatal("sequences of different length must not match")
	}
}

func TestStructuralMatch_NaNNeverEqualsItself(t *testing.T) {
	if structuralMatch(math.NaN(), math.NaN()) {
		t.Fatal("NaN must never equal itself per Object.is-style semantics")
	}
}

func TestStructuralMatch_ScalarMismatchFails(t *testing.T) {
	if structuralMatch("a", "b") {
		t.Fatal("differing scalars must not match")
	}
	if !structuralMatch("a", "a") {
		t.Fatal("identical scalars must match")
	}
}
