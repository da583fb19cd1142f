// Package detect implements the Type Detector (spec §4.A): a pure
// function classifying any decoded JSON value into the closed set of
// ValueKind tags the rest of the pipeline operates on.
package detect

import "github.com/schemaforge/schemaforge/internal/types"

// Of classifies a decoded JSON value (as produced by encoding/json's
// default any-unmarshaling: map[string]any, []any, string, float64, bool,
// or nil) into its ValueKind. Any other Go type is treated as an opaque
// object-like value and reported as KindObject, since it cannot arise
// from encoding/json decoding of valid JSON.
func Of(value any) types.ValueKind {
	switch v := value.(type) {
	case nil:
		return types.KindNull
	case map[string]any:
		return types.KindObject
	case []any:
		return types.KindArray
	case string:
		return types.KindString
	case bool:
		return types.KindBoolean
	case float64:
		if isNaN(v) {
			return types.KindNull
		}
		return types.KindNumber
	default:
		return types.KindObject
	}
}

// isNaN reports whether f is NaN without importing math for a single
// comparison; NaN is the only float64 value unequal to itself.
func isNaN(f float64) bool {
	return f != f
}
