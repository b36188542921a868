package policy

import (
	"reflect"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestDeepMergeArguments_NestedMapsMerge(t *testing.T) {
	dst := map[string]any{
		"command": "ls",
		"meta":    map[string]any{"a": 1, "b": 2},
	}
	src := map[string]any{
		"meta": map[string]any{"b": 3, "c": 4},
	}
	got := deepMergeArguments(dst, src)
	want := map[string]any{
		"command": "ls",
		"meta":    map[string]any{"a": 1, "b": 3, "c": 4},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDeepMergeArguments_ScalarAndSliceReplace(t *testing.T) {
	dst := map[string]any{"flags": []any{"a", "b"}, "count": 1}
	src := map[string]any{"flags": []any{"c"}, "count": 2}
	got := deepMergeArguments(dst, src)
	if !reflect.DeepEqual(got["flags"], []any{"c"}) {
		t.Fatalf("expected slice replacement, got %v", got["flags"])
	}
	if got["count"] != 2 {
		t.Fatalf("expected scalar overwrite, got %v", got["count"])
	}
}

func TestDeepMergeArguments_NilDst(t *testing.T) {
	got := deepMergeArguments(nil, map[string]any{"a": 1})
	if got["a"] != 1 {
		t.Fatalf("expected a=1, got %+v", got)
	}
}

// Deep-merge composition of patches is associative: applying p1 then
// p2 then p3 in sequence yields the same result regardless of how the
// sequence is grouped, since applyPatch folds left-to-right and
// deepMergeArguments on disjoint-then-overlapping keys is associative for
// last-writer-wins scalars and recursively-merged maps.
func TestApplyPatch_AssociativeComposition(t *testing.T) {
	p1 := &Patch{ToolArguments: map[string]any{"meta": map[string]any{"a": 1}}}
	p2 := &Patch{ToolArguments: map[string]any{"meta": map[string]any{"b": 2}}}
	p3 := &Patch{ToolArguments: map[string]any{"meta": map[string]any{"c": 3}}}

	seq := &Transforms{}
	applyPatch(seq, p1)
	applyPatch(seq, p2)
	applyPatch(seq, p3)

	grouped := &Transforms{}
	applyPatch(grouped, p1)
	merged23 := &Transforms{}
	applyPatch(merged23, p2)
	applyPatch(merged23, p3)
	applyPatch(grouped, &Patch{ToolArguments: merged23.ToolArguments})

	if !reflect.DeepEqual(seq.ToolArguments, grouped.ToolArguments) {
		t.Fatalf("non-associative merge: sequential=%+v grouped=%+v", seq.ToolArguments, grouped.ToolArguments)
	}
	want := map[string]any{"a": 1, "b": 2, "c": 3}
	meta, _ := seq.ToolArguments["meta"].(map[string]any)
	if !reflect.DeepEqual(meta, want) {
		t.Fatalf("got meta %+v, want %+v", meta, want)
	}
}

func TestApplyPatch_ScalarLastWriterWins(t *testing.T) {
	tr := &Transforms{}
	applyPatch(tr, &Patch{RequestText: strPtr("first")})
	applyPatch(tr, &Patch{RequestText: strPtr("second")})
	if tr.RequestText == nil || *tr.RequestText != "second" {
		t.Fatalf("expected last writer to win, got %v", tr.RequestText)
	}
}

func TestApplyPatch_NilPatchIsNoop(t *testing.T) {
	tr := &Transforms{ToolArguments: map[string]any{"x": 1}}
	applyPatch(tr, nil)
	if tr.ToolArguments["x"] != 1 {
		t.Fatalf("nil patch must not mutate transforms, got %+v", tr.ToolArguments)
	}
}
