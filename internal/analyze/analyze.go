// Package analyze implements the Analyzer (spec §4.E): building a
// TypeTree from a redacted payload, attaching bounded examples, and
// synthesizing a union itemType for heterogeneous arrays from a bounded
// sample of elements.
package analyze

import (
	"encoding/json"

	"github.com/schemaforge/schemaforge/internal/compare"
	"github.com/schemaforge/schemaforge/internal/detect"
	"github.com/schemaforge/schemaforge/internal/types"
)

// Analyzer builds TypeTrees from decoded, already-redacted payload values.
// It never re-inspects the pre-redaction payload; classification on the
// original value already happened upstream (§4.D before §4.E).
type Analyzer struct{}

// New constructs an Analyzer. Stateless; safe for concurrent use.
func New() *Analyzer {
	return &Analyzer{}
}

// Analyze walks a redacted payload depth-first and returns the TypeTree
// describing its shape, with every node's Examples populated from the
// values observed at that path (capped at MaxExamplesPersisted) and
// Redacted/RedactedOriginalKind set from report. Every node starts
// Optional=false; optionality is established only by the Comparator's
// merge against prior observations (§4.E, §4.F).
func (an *Analyzer) Analyze(value any, report types.RedactionReport) *types.TypeTree {
	return an.walk(value, "", report)
}

func (an *Analyzer) walk(value any, path string, report types.RedactionReport) *types.TypeTree {
	kind := detect.Of(value)
	node := &types.TypeTree{Path: path, Kind: kind}
	an.attachExample(node, value)
	an.applyRedaction(node, path, report)

	switch kind {
	case types.KindObject:
		obj := value.(map[string]any)
		node.Children = make(map[string]*types.TypeTree, len(obj))
		for k, v := range obj {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			node.Children[k] = an.walk(v, childPath, report)
		}
	case types.KindArray:
		arr := value.([]any)
		node.ItemType = an.analyzeArrayItems(arr, path, report)
	}

	return node
}

// analyzeArrayItems builds the itemType for an array node by analyzing up
// to MaxUnionArraySamples elements and folding them together with the
// Comparator's merge rules. A homogeneous sample collapses to a single
// kind; a heterogeneous one naturally folds into a union (§4.E).
func (an *Analyzer) analyzeArrayItems(arr []any, parentPath string, report types.RedactionReport) *types.TypeTree {
	if len(arr) == 0 {
		return nil
	}

	itemPath := parentPath + "[*]"
	sampleCount := len(arr)
	if sampleCount > types.MaxUnionArraySamples {
		sampleCount = types.MaxUnionArraySamples
	}

	var merged *types.TypeTree
	for i := 0; i < sampleCount; i++ {
		item := an.walk(arr[i], itemPath, report)
		merged = compare.Merge(merged, item)
	}
	return merged
}

// applyRedaction marks node as redacted when the Truncator's report holds
// an entry at path, and records the heuristic original-kind tag (§4.E).
func (an *Analyzer) applyRedaction(node *types.TypeTree, path string, report types.RedactionReport) {
	if report == nil {
		return
	}
	entry, ok := report[path]
	if !ok {
		return
	}
	node.Redacted = true
	node.RedactedOriginalKind = entry.Tag
}

// attachExample records value's canonical JSON form as the single example
// on node, replacing any examples it held. No bound is applied here;
// deduplication by exact bytes and the example caps happen in the merge.
func (an *Analyzer) attachExample(node *types.TypeTree, value any) {
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	node.Examples = []types.RawExample{{JSON: b}}
}
