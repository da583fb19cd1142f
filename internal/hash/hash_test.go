package hash

import (
	"strings"
	"testing"

	"github.com/schemaforge/schemaforge/internal/types"
)

func TestStructure_Deterministic(t *testing.T) {
	tree := &types.TypeTree{
		Kind: types.KindObject,
		Children: map[string]*types.TypeTree{
			"b": {Kind: types.KindString},
			"a": {Kind: types.KindNumber, Optional: true},
		},
	}
	f1 := Structure(tree)
	f2 := Structure(tree)
	if f1 != f2 {
		t.Fatalf("Structure() not deterministic: %q vs %q", f1, f2)
	}
}

func TestStructure_IgnoresChildOrderAndExamples(t *testing.T) {
	a := &types.TypeTree{
		Kind: types.KindObject,
		Children: map[string]*types.TypeTree{
			"x": {Kind: types.KindString, Examples: []types.RawExample{{JSON: []byte(`"v1"`)}}},
			"y": {Kind: types.KindNumber},
		},
	}
	b := &types.TypeTree{
		Kind: types.KindObject,
		Children: map[string]*types.TypeTree{
			"y": {Kind: types.KindNumber, Path: "y"},
			"x": {Kind: types.KindString, Path: "x", Redacted: true},
		},
	}
	if Structure(a) != Structure(b) {
		t.Fatalf("Structure() should ignore path/examples/redacted metadata")
	}
}

func TestStructure_DiffersOnKindChange(t *testing.T) {
	a := &types.TypeTree{Kind: types.KindString}
	b := &types.TypeTree{Kind: types.KindNumber}
	if Structure(a) == Structure(b) {
		t.Fatalf("Structure() should differ when kind differs")
	}
}

func TestStructure_DiffersOnOptionalChange(t *testing.T) {
	a := &types.TypeTree{Kind: types.KindString, Optional: false}
	b := &types.TypeTree{Kind: types.KindString, Optional: true}
	if Structure(a) == Structure(b) {
		t.Fatalf("Structure() should differ when optional differs")
	}
}

func TestPayload_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"a": 1.0, "b": "x"}
	b := map[string]any{"b": "x", "a": 1.0}
	if Payload(a) != Payload(b) {
		t.Fatalf("Payload() should be independent of map iteration order")
	}
}

func TestPayload_LargeStringSentinel(t *testing.T) {
	blob1 := strings.Repeat("A", largeStringBound+1)
	blob2 := strings.Repeat("B", largeStringBound+1)
	p1 := map[string]any{"image": blob1}
	p2 := map[string]any{"image": blob2}
	if Payload(p1) != Payload(p2) {
		t.Fatalf("Payload() should fingerprint identically for differing oversize blobs")
	}
}

func TestPayload_SmallStringsStillDistinguished(t *testing.T) {
	p1 := map[string]any{"name": "alice"}
	p2 := map[string]any{"name": "bob"}
	if Payload(p1) == Payload(p2) {
		t.Fatalf("Payload() should distinguish small differing strings")
	}
}

func TestSimilarity(t *testing.T) {
	digest := Structure(&types.TypeTree{Kind: types.KindString})
	if got := Similarity(digest, digest); got != 1.0 {
		t.Errorf("Similarity(x, x) = %v, want 1.0", got)
	}
	other := Structure(&types.TypeTree{Kind: types.KindNumber})
	if got := Similarity(digest, other); got == 1.0 {
		t.Errorf("Similarity(x, y) = %v, want < 1.0 for differing digests", got)
	}
	if got := Similarity("ab", "abc"); got != 0.0 {
		t.Errorf("Similarity() on mismatched lengths = %v, want 0.0", got)
	}
}

func TestShortID(t *testing.T) {
	digest := Structure(&types.TypeTree{Kind: types.KindBoolean})
	short := ShortID(digest, 8)
	if len(short) != 8 {
		t.Fatalf("ShortID() length = %d, want 8", len(short))
	}
	if !strings.HasPrefix(digest, short) {
		t.Fatalf("ShortID() %q not a prefix of %q", short, digest)
	}
}
