// Package truncate implements the Truncator (spec §4.C): a size-bounded
// field redactor that walks a decoded payload depth-first and rewrites
// terminal string values judged oversize or name-flagged, emitting a
// RedactionReport alongside the redacted payload.
package truncate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/schemaforge/schemaforge/internal/types"
)

// Sentinel is appended after the retained prefix of a truncated string.
const Sentinel = "...[TRUNCATED]"

// DefaultFieldNames are the trailing-path-segment substrings that force
// truncation regardless of length (§6 TRUNCATE_FIELDS).
var DefaultFieldNames = []string{"base64", "jpegthumbnail", "thumbnail", "data", "image"}

var base64Like = regexp.MustCompile(`^[A-Za-z0-9+/]+=*$`)

// Config holds the Truncator's tunables (§4.C, §6).
type Config struct {
	// MaxLength is the prefix length retained for a redacted string.
	MaxLength int
	// FieldNames are lower-cased substrings matched against the trailing
	// segment of a field's dotted path (after stripping array indices).
	FieldNames []string
}

// DefaultConfig returns the Truncator's default configuration.
func DefaultConfig() Config {
	return Config{
		MaxLength:  types.DefaultTruncateMaxLength,
		FieldNames: append([]string(nil), DefaultFieldNames...),
	}
}

// Truncator redacts oversize or name-flagged string fields from a decoded
// payload. The zero value is not usable; construct via New.
type Truncator struct {
	cfg Config
}

// New constructs a Truncator from cfg, defaulting MaxLength if unset.
func New(cfg Config) *Truncator {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = types.DefaultTruncateMaxLength
	}
	if cfg.FieldNames == nil {
		cfg.FieldNames = append([]string(nil), DefaultFieldNames...)
	}
	return &Truncator{cfg: cfg}
}

// Redact walks value depth-first and returns a redacted copy alongside a
// RedactionReport of every path it rewrote. The set of paths present in
// the redacted value equals the set of paths in value; only terminal
// string values change (§4.C structural-preservation guarantee).
func (tr *Truncator) Redact(value any) (any, types.RedactionReport) {
	report := types.RedactionReport{}
	redacted := tr.walk(value, "", report)
	return redacted, report
}

func (tr *Truncator) walk(value any, path string, report types.RedactionReport) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			childPath := joinPath(path, k)
			out[k] = tr.walk(child, childPath, report)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			childPath := indexPath(path, i)
			out[i] = tr.walk(child, childPath, report)
		}
		return out
	case string:
		return tr.maybeRedactString(v, path, report)
	default:
		return value
	}
}

func (tr *Truncator) maybeRedactString(s string, path string, report types.RedactionReport) string {
	// Already-redacted strings are left alone: re-applying the Truncator to
	// its own output must be idempotent (§8), and a string ending in the
	// sentinel has nothing left to shrink.
	if strings.HasSuffix(s, Sentinel) {
		return s
	}

	tag, shouldRedact := tr.classify(s, path)
	if !shouldRedact {
		return s
	}

	max := tr.cfg.MaxLength
	redacted := s
	if len(s) > max {
		redacted = s[:max] + Sentinel
	} else {
		redacted = s + Sentinel
	}

	report[path] = types.RedactionEntry{
		Path:           path,
		OriginalLength: len(s),
		RedactedLength: len(redacted),
		Tag:            tag,
	}
	return redacted
}

// classify decides whether s at path should be redacted and, if so, what
// its original content is heuristically guessed to hold (§4.C).
func (tr *Truncator) classify(s string, path string) (types.RedactedOriginalKind, bool) {
	nameFlagged := tr.nameFlagged(path)
	oversizeBase64 := len(s) > 10*tr.cfg.MaxLength && looksLikeBase64(s)

	if !nameFlagged && !oversizeBase64 {
		return "", false
	}

	if looksLikeBase64(s) {
		return types.RedactedBase64, true
	}
	if looksLikeJSON(s) {
		return types.RedactedJSON, true
	}
	return types.RedactedText, true
}

func (tr *Truncator) nameFlagged(path string) bool {
	trailing := strings.ToLower(trailingSegment(path))
	for _, name := range tr.cfg.FieldNames {
		if strings.Contains(trailing, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

// trailingSegment returns the final field-name component of a dotted
// path, stripping any trailing array index brackets.
func trailingSegment(path string) string {
	if path == "" {
		return ""
	}
	last := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		last = path[i+1:]
	}
	if i := strings.IndexByte(last, '['); i >= 0 {
		last = last[:i]
	}
	return last
}

// looksLikeBase64 applies the base64 heuristic: length >= 20, multiple of
// 4, matches ^[A-Za-z0-9+/]+=*$ (§4.C).
func looksLikeBase64(s string) bool {
	if len(s) < 20 || len(s)%4 != 0 {
		return false
	}
	return base64Like.MatchString(s)
}

// looksLikeJSON applies the JSON heuristic used only to tag (not to
// trigger) truncation: s parses to an object or array when considered
// alone.
func looksLikeJSON(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return false
	}
	var v any
	return json.Unmarshal([]byte(trimmed), &v) == nil
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return fmt.Sprintf("%s.%s", parent, key)
}

func indexPath(parent string, i int) string {
	return fmt.Sprintf("%s[%d]", parent, i)
}
