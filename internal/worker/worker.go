// Package worker implements the Worker (spec §4.J): the single
// cooperative pipeline stage that turns one job into a persisted
// SchemaRecord update, wiring the Truncator, Classifier, Analyzer,
// Comparator, Generator, Store, and Event Log together under the
// per-kind exclusion the Store already provides.
package worker

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/schemaforge/schemaforge/internal/analyze"
	"github.com/schemaforge/schemaforge/internal/classify"
	"github.com/schemaforge/schemaforge/internal/compare"
	"github.com/schemaforge/schemaforge/internal/eventlog"
	"github.com/schemaforge/schemaforge/internal/generate"
	"github.com/schemaforge/schemaforge/internal/hash"
	"github.com/schemaforge/schemaforge/internal/store"
	"github.com/schemaforge/schemaforge/internal/truncate"
	"github.com/schemaforge/schemaforge/internal/types"
)

// Worker wires every pure pipeline stage to the Store and Event Log. Safe
// for concurrent use across distinct kinds: per-kind exclusion is the
// Store's responsibility (§4.H, §5).
type Worker struct {
	truncator  *truncate.Truncator
	classifier *classify.Classifier
	analyzer   *analyze.Analyzer
	generator  *generate.Generator
	store      *store.Store
	log        *eventlog.Log // optional; nil disables Event Log writes
}

// New constructs a Worker. log may be nil when no Event Log is
// configured; AppendEventRow and UpsertSchemaCache are then skipped.
func New(truncator *truncate.Truncator, classifier *classify.Classifier, analyzer *analyze.Analyzer, generator *generate.Generator, st *store.Store, log *eventlog.Log) *Worker {
	return &Worker{
		truncator:  truncator,
		classifier: classifier,
		analyzer:   analyzer,
		generator:  generator,
		store:      st,
		log:        log,
	}
}

// ProcessPayload is the Worker's only entry point (§4.J, §6
// ProcessPayload): decode, redact, classify, analyze, merge-or-create,
// persist, log. Any failure before persistence completes propagates to
// the caller (the Job Queue), which applies its own retry policy (§4.J
// step 9, §7).
func (w *Worker) ProcessPayload(headers map[string]string, rawPayload []byte) error {
	start := time.Now()

	var decoded any
	if err := json.Unmarshal(rawPayload, &decoded); err != nil {
		return fmt.Errorf("%w: %v", types.ErrMalformedPayload, err)
	}
	if _, ok := decoded.(map[string]any); !ok {
		return types.ErrMalformedPayload
	}

	redacted, report := w.truncator.Redact(decoded)
	kind := types.EventKind(w.classifier.Classify(headers, decoded))
	newTree := w.analyzer.Analyze(redacted, report)

	prior, err := w.store.Load(kind)
	if err != nil {
		return fmt.Errorf("worker: load prior record for %q: %w", kind, err)
	}

	now := time.Now()
	var record *types.SchemaRecord
	var regenerated bool

	if prior != nil {
		merged := compare.Merge(prior.SavedTree, newTree)
		compare.TruncateExamples(merged)
		mergedFp := hash.Structure(merged)
		identical := mergedFp == prior.StructureFingerprint

		record = prior
		record.SavedTree = merged
		record.TotalReceived++
		record.LastSeen = now
		record.LastModified = now

		if identical {
			record.Fields = deriveFieldSets(merged)
			examplesJSON := marshalExamples(merged.Examples)
			if err := w.store.Touch(kind, store.TouchInput{
				Record:       record,
				Metadata:     w.generator.Metadata(record),
				ExamplesJSON: examplesJSON,
				RawSample:    rawSampleBytes(decoded),
			}); err != nil {
				return fmt.Errorf("worker: touch record for %q: %w", kind, err)
			}
		} else {
			record.Version = prior.Version + 1
			record.StructureFingerprint = mergedFp
			record.Fields = deriveFieldSets(merged)
			record.Variations = updateVariations(record.Variations, mergedFp)
			if err := w.generateAndSave(kind, record, decoded); err != nil {
				return err
			}
			regenerated = true
		}
	} else {
		fp := hash.Structure(newTree)
		record = &types.SchemaRecord{
			Kind:                 kind,
			Version:              1,
			StructureFingerprint: fp,
			FirstSeen:            now,
			LastSeen:             now,
			LastModified:         now,
			TotalReceived:        1,
			Fields:               deriveFieldSets(newTree),
			Variations:           updateVariations(nil, fp),
			SavedTree:            newTree,
		}
		if err := w.generateAndSave(kind, record, decoded); err != nil {
			return err
		}
		regenerated = true
	}
	_ = regenerated // generation-vs-touch distinction kept for future metrics; no counter wired yet.

	if w.log != nil {
		if err := w.log.UpsertSchemaCache(record); err != nil {
			return fmt.Errorf("worker: upsert schema cache for %q: %w", kind, err)
		}
		row := types.EventRow{
			Kind:                 kind,
			PayloadFingerprint:   hash.Payload(decoded),
			SizeOriginal:         len(rawPayload),
			SizeRedacted:         sizeOf(redacted),
			RedactedFieldCount:   len(report),
			ReceivedAt:           start,
			ProcessedAt:          time.Now(),
			ProcessingDurationMs: time.Since(start).Milliseconds(),
		}
		if err := w.log.AppendEventRow(row); err != nil {
			return fmt.Errorf("worker: append event row for %q: %w", kind, err)
		}
	}

	return nil
}

// generateAndSave runs the Generator over record.SavedTree and persists
// every artifact via Store.Save (§4.G, §4.H).
func (w *Worker) generateAndSave(kind types.EventKind, record *types.SchemaRecord, original any) error {
	artifacts := w.generator.Generate(kind, record)
	return w.store.Save(kind, store.SaveInput{
		Record:          record,
		Metadata:        artifacts.Metadata,
		ValidatorSource: artifacts.ValidatorSource,
		InterfaceSource: artifacts.InterfaceSource,
		ExamplesJSON:    marshalExamples(record.SavedTree.Examples),
		RawSample:       rawSampleBytes(original),
	})
}

// marshalExamples renders a TypeTree node's bounded example set (root
// node: whole-payload examples) as the examples.json artifact (§6).
func marshalExamples(examples []types.RawExample) []byte {
	raws := make([]json.RawMessage, 0, len(examples))
	for _, ex := range examples {
		raws = append(raws, json.RawMessage(ex.JSON))
	}
	b, err := json.MarshalIndent(raws, "", "  ")
	if err != nil {
		return []byte("[]")
	}
	return b
}

// rawSampleBytes archives the original, unredacted payload: raw-samples/
// exists precisely so an operator can inspect the real value behind a
// redaction sentinel (§8 scenario 4), bounded by the Store's retention
// cap rather than by redaction. Failure to marshal silently skips
// archiving, same policy as a failed disk write.
func rawSampleBytes(original any) []byte {
	b, err := json.Marshal(original)
	if err != nil {
		return nil
	}
	return b
}

func sizeOf(value any) int {
	b, err := json.Marshal(value)
	if err != nil {
		return 0
	}
	return len(b)
}

// deriveFieldSets partitions tree's dotted paths into required, optional,
// and redacted sets (§3 SchemaRecord.fields). A redacted field is
// reported as redacted regardless of its optionality, so the three sets
// stay disjoint.
func deriveFieldSets(tree *types.TypeTree) types.FieldSets {
	var sets types.FieldSets
	walkFieldSets(tree, "", &sets)
	sort.Strings(sets.Required)
	sort.Strings(sets.Optional)
	sort.Strings(sets.Redacted)
	return sets
}

func walkFieldSets(t *types.TypeTree, path string, sets *types.FieldSets) {
	if t == nil {
		return
	}
	if path != "" {
		switch {
		case t.Redacted:
			sets.Redacted = append(sets.Redacted, path)
		case t.Optional:
			sets.Optional = append(sets.Optional, path)
		default:
			sets.Required = append(sets.Required, path)
		}
	}
	for key, child := range t.Children {
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}
		walkFieldSets(child, childPath, sets)
	}
	if t.Kind == types.KindArray && t.ItemType != nil {
		walkFieldSets(t.ItemType, path+"[*]", sets)
	}
}

// updateVariations folds a newly observed structure fingerprint into the
// bounded, count-descending variation history (§3 SchemaRecord.variations,
// MaxVariations). A fingerprint already present has its count bumped in
// place; a new one is appended and, if the list now exceeds the bound,
// the least-observed variation is dropped.
func updateVariations(variations []types.Variation, fp string) []types.Variation {
	for i := range variations {
		if variations[i].TreeFingerprint == fp {
			variations[i].Count++
			sortVariationsDesc(variations)
			return variations
		}
	}
	variations = append(variations, types.Variation{
		TreeFingerprint: fp,
		Count:           1,
		Description:     hash.ShortID(fp, 8),
	})
	sortVariationsDesc(variations)
	if len(variations) > types.MaxVariations {
		variations = variations[:types.MaxVariations]
	}
	return variations
}

func sortVariationsDesc(variations []types.Variation) {
	sort.SliceStable(variations, func(i, j int) bool {
		return variations[i].Count > variations[j].Count
	})
}
