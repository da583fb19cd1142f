// Package compare implements the Comparator (spec §4.F): merging a newly
// observed TypeTree into a previously saved one, and classifying the
// differences between two trees for drift reporting.
package compare

import (
	"sort"

	"github.com/schemaforge/schemaforge/internal/types"
)

// DiffKind tags one atomic difference between two trees at a path.
type DiffKind string

const (
	DiffTypeChange     DiffKind = "type_change"
	DiffOptionalChange DiffKind = "optional_change"
	DiffFieldAdded     DiffKind = "field_added"
	DiffFieldRemoved   DiffKind = "field_removed"
)

// Diff is one atomic difference located by dotted path.
type Diff struct {
	Path string
	Kind DiffKind
	From string
	To   string
}

// Merge folds b (newly observed) into a (previously saved) and returns the
// combined tree, applying the kind rule, optionality rule, children rule,
// array-item rule, example rule, and redaction rule (§4.F) in order. Merge
// is commutative and associative up to example ordering, and idempotent
// when a equals b (§8).
func Merge(a, b *types.TypeTree) *types.TypeTree {
	if a == nil {
		return cloneTree(b)
	}
	if b == nil {
		return cloneTree(a)
	}

	out := &types.TypeTree{Path: a.Path}
	if out.Path == "" {
		out.Path = b.Path
	}

	// Kind rule: equal kinds keep that kind; differing kinds fold into a
	// union so no information is discarded.
	if a.Kind == b.Kind {
		out.Kind = a.Kind
	} else {
		out.Kind = types.KindUnion
	}

	// Optionality rule: a field is optional if either side already says
	// so, or if the two sides disagree about whether it is present at
	// all (exclusive presence across observations implies optional).
	out.Optional = a.Optional || b.Optional

	if out.Kind == types.KindObject || out.Kind == types.KindUnion {
		out.Children = mergeChildren(a, b)
	}

	if out.Kind == types.KindArray || out.Kind == types.KindUnion {
		out.ItemType = mergeItemType(a, b)
	}

	out.Examples = mergeExamples(a.Examples, b.Examples)

	// Redaction rule: redacted if either side observed redaction; a
	// base64 tag takes precedence over json/text since it reflects the
	// stronger heuristic signal.
	out.Redacted = a.Redacted || b.Redacted
	out.RedactedOriginalKind = mergeRedactedKind(a, b)

	return out
}

func mergeChildren(a, b *types.TypeTree) map[string]*types.TypeTree {
	aChildren := childrenOf(a)
	bChildren := childrenOf(b)

	keys := map[string]bool{}
	for k := range aChildren {
		keys[k] = true
	}
	for k := range bChildren {
		keys[k] = true
	}

	out := make(map[string]*types.TypeTree, len(keys))
	for k := range keys {
		ac, aok := aChildren[k]
		bc, bok := bChildren[k]
		switch {
		case aok && bok:
			out[k] = Merge(ac, bc)
		case aok && !bok:
			child := cloneTree(ac)
			child.Optional = true
			out[k] = child
		case !aok && bok:
			child := cloneTree(bc)
			child.Optional = true
			out[k] = child
		}
	}
	return out
}

// childrenOf returns a node's children regardless of whether it is itself
// an object node (children live on it directly) or some other kind being
// folded into a union alongside an object (no children to contribute).
func childrenOf(t *types.TypeTree) map[string]*types.TypeTree {
	if t == nil || (t.Kind != types.KindObject && t.Kind != types.KindUnion) {
		return nil
	}
	return t.Children
}

func mergeItemType(a, b *types.TypeTree) *types.TypeTree {
	aItem := itemOf(a)
	bItem := itemOf(b)
	if aItem == nil {
		return cloneTree(bItem)
	}
	if bItem == nil {
		return cloneTree(aItem)
	}
	return Merge(aItem, bItem)
}

func itemOf(t *types.TypeTree) *types.TypeTree {
	if t == nil || (t.Kind != types.KindArray && t.Kind != types.KindUnion) {
		return nil
	}
	return t.ItemType
}

// mergeExamples concatenates and deduplicates by exact JSON bytes,
// retaining at most MaxExamplesDuringMerge with the most recently seen
// (i.e. latest in b) examples kept when the cap is exceeded. Callers
// persisting the result truncate further to MaxExamplesPersisted (§4.F
// example rule).
func mergeExamples(a, b []types.RawExample) []types.RawExample {
	seen := make(map[string]bool, len(a)+len(b))
	var out []types.RawExample
	add := func(examples []types.RawExample) {
		for _, ex := range examples {
			key := string(ex.JSON)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ex)
		}
	}
	add(a)
	add(b)

	if len(out) > types.MaxExamplesDuringMerge {
		out = out[len(out)-types.MaxExamplesDuringMerge:]
	}
	return out
}

// TruncateExamples caps every node's Examples (the node itself, its
// children, and its array item type, recursively) at MaxExamplesPersisted,
// keeping the most recently observed examples — the tail of the slice,
// matching mergeExamples' own most-recent-last ordering. mergeExamples
// only enforces the looser MaxExamplesDuringMerge bound so that folding in
// one more payload never discards an example prematurely; callers persist
// a merged tree only after calling TruncateExamples on it (§3
// MaxExamplesPersisted, §4.F example rule, invariant R4).
func TruncateExamples(t *types.TypeTree) {
	if t == nil {
		return
	}
	if len(t.Examples) > types.MaxExamplesPersisted {
		t.Examples = append([]types.RawExample(nil), t.Examples[len(t.Examples)-types.MaxExamplesPersisted:]...)
	}
	for _, child := range t.Children {
		TruncateExamples(child)
	}
	if t.ItemType != nil {
		TruncateExamples(t.ItemType)
	}
}

func mergeRedactedKind(a, b *types.TypeTree) types.RedactedOriginalKind {
	if a.RedactedOriginalKind == types.RedactedBase64 || b.RedactedOriginalKind == types.RedactedBase64 {
		return types.RedactedBase64
	}
	if a.RedactedOriginalKind != "" {
		return a.RedactedOriginalKind
	}
	return b.RedactedOriginalKind
}

func cloneTree(t *types.TypeTree) *types.TypeTree {
	if t == nil {
		return nil
	}
	out := &types.TypeTree{
		Path:                 t.Path,
		Kind:                 t.Kind,
		Optional:             t.Optional,
		Redacted:             t.Redacted,
		RedactedOriginalKind: t.RedactedOriginalKind,
	}
	if t.Children != nil {
		out.Children = make(map[string]*types.TypeTree, len(t.Children))
		for k, v := range t.Children {
			out.Children[k] = cloneTree(v)
		}
	}
	if t.ItemType != nil {
		out.ItemType = cloneTree(t.ItemType)
	}
	if t.Examples != nil {
		out.Examples = append([]types.RawExample(nil), t.Examples...)
	}
	return out
}

// IsSubset reports whether every field, kind, and non-optionality
// constraint of sub is compatible with super: every required field of sub
// is present and non-conflicting in super, and sub introduces no field
// super disallows. Used by drift reporting to tell "expected growth" apart
// from "incompatible change".
func IsSubset(sub, super *types.TypeTree) bool {
	if sub == nil {
		return true
	}
	if super == nil {
		return false
	}
	if sub.Kind != super.Kind && super.Kind != types.KindUnion {
		return false
	}
	if !sub.Optional && super.Optional {
		return false
	}

	if sub.Kind == types.KindObject {
		superChildren := childrenOf(super)
		for k, subChild := range sub.Children {
			superChild, ok := superChildren[k]
			if !ok {
				return false
			}
			if !IsSubset(subChild, superChild) {
				return false
			}
		}
	}

	if sub.Kind == types.KindArray {
		if !IsSubset(sub.ItemType, itemOf(super)) {
			return false
		}
	}

	return true
}

// Diffs enumerates the atomic differences between before and after,
// walking both trees in lockstep by path.
func Diffs(before, after *types.TypeTree) []Diff {
	var out []Diff
	walkDiffs(before, after, "", &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func walkDiffs(before, after *types.TypeTree, path string, out *[]Diff) {
	switch {
	case before == nil && after == nil:
		return
	case before == nil:
		*out = append(*out, Diff{Path: path, Kind: DiffFieldAdded, To: string(after.Kind)})
		return
	case after == nil:
		*out = append(*out, Diff{Path: path, Kind: DiffFieldRemoved, From: string(before.Kind)})
		return
	}

	if before.Kind != after.Kind {
		*out = append(*out, Diff{Path: path, Kind: DiffTypeChange, From: string(before.Kind), To: string(after.Kind)})
	}
	if before.Optional != after.Optional {
		*out = append(*out, Diff{
			Path: path,
			Kind: DiffOptionalChange,
			From: boolLabel(before.Optional),
			To:   boolLabel(after.Optional),
		})
	}

	beforeChildren := childrenOf(before)
	afterChildren := childrenOf(after)
	keys := map[string]bool{}
	for k := range beforeChildren {
		keys[k] = true
	}
	for k := range afterChildren {
		keys[k] = true
	}
	for k := range keys {
		childPath := k
		if path != "" {
			childPath = path + "." + k
		}
		walkDiffs(beforeChildren[k], afterChildren[k], childPath, out)
	}

	if before.Kind == types.KindArray || after.Kind == types.KindArray {
		walkDiffs(itemOf(before), itemOf(after), path+"[*]", out)
	}
}

func boolLabel(b bool) string {
	if b {
		return "optional"
	}
	return "required"
}
