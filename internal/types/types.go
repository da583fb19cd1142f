// Package types provides domain models shared across schemaforge's inference
// pipeline: the opaque Payload the ingress hands us, the TypeTree that
// describes its shape, and the SchemaRecord persisted per event kind.
//
// Zero-dependency design: this file, errors.go and tree.go use only the
// standard library (encoding/json, errors, time) so the type tree can be
// vendored into lightweight callers (the generator,
// the dashboard) without pulling in storage or queue deps. ID utilities in
// ids.go import uuid but are isolated for selective inclusion.
package types

import "encoding/json"

// EventKind identifies the group of payloads a reasonable human would
// consider "the same shape". May contain '/' to denote hierarchy, e.g.
// "whatsapp_business_account/messages_image".
type EventKind string

// Payload is an opaque JSON value received from a webhook sender.
// json.RawMessage wrapper preserves original bytes; pipeline stages decode
// into a TypeTree only where they need to inspect structure.
type Payload json.RawMessage

// MarshalJSON implements json.Marshaler, preserving the raw bytes.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	return json.RawMessage(p).MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler, capturing raw bytes unparsed.
func (p *Payload) UnmarshalJSON(data []byte) error {
	return (*json.RawMessage)(p).UnmarshalJSON(data)
}

// ValueKind is the closed set of tags the Type Detector assigns to any
// JSON value, and the set a TypeTree node's Kind draws from.
type ValueKind string

const (
	KindString  ValueKind = "string"
	KindNumber  ValueKind = "number"
	KindBoolean ValueKind = "boolean"
	KindNull    ValueKind = "null"
	KindObject  ValueKind = "object"
	KindArray   ValueKind = "array"
	KindUnion   ValueKind = "union"
)

// RedactedOriginalKind tags the heuristic guess of what a truncated
// string's original content held.
type RedactedOriginalKind string

const (
	RedactedBase64 RedactedOriginalKind = "base64"
	RedactedJSON   RedactedOriginalKind = "json"
	RedactedText   RedactedOriginalKind = "text"
)

// Resource limits and defaults enforced by the pipeline. Mirrors the
// teacher's bounded-resource posture (MaxPathDepth et al.) adapted to the
// schema-inference domain described in spec §3/§6.
const (
	// MaxExamplesPersisted caps examples retained on a TypeTree node once
	// persisted (§3 invariant R4).
	MaxExamplesPersisted = 10

	// MaxExamplesDuringMerge caps the transient example list kept while
	// folding new evidence into a node, before truncation to
	// MaxExamplesPersisted (§4.F example rule).
	MaxExamplesDuringMerge = 20

	// MaxUnionArraySamples caps the sample elements synthesized onto a
	// heterogeneous array's synthetic union itemType (§4.E).
	MaxUnionArraySamples = 5

	// MaxVariations caps the number of distinct structure fingerprints a
	// SchemaRecord retains for drift analysis (§3).
	MaxVariations = 10

	// DefaultMaxRawSamples is the default cap on unredacted archive
	// entries retained per kind (§4.H, §6 MAX_RAW_SAMPLES).
	DefaultMaxRawSamples = 10

	// DefaultTruncateMaxLength is the default prefix length the Truncator
	// retains (§6 TRUNCATE_MAX_LENGTH).
	DefaultTruncateMaxLength = 100

	// DefaultQueueConcurrency is the default worker pool size (§6
	// QUEUE_CONCURRENCY).
	DefaultQueueConcurrency = 5

	// DefaultQueueMaxAttempts is the default retry budget per job before
	// it moves to the failed set (§6 QUEUE_MAX_ATTEMPTS).
	DefaultQueueMaxAttempts = 3

	// DefaultQueueBackoffDelayMs is the initial exponential-backoff delay
	// in milliseconds (§6 QUEUE_BACKOFF_DELAY_MS).
	DefaultQueueBackoffDelayMs = 2000
)
