package queue

import (
	"encoding/json"
	"strings"
)

// DefaultPriority is used whenever neither the precedence table nor the
// keyword fallback recognizes the payload (§4.I).
const DefaultPriority = 5

// MinPriority and MaxPriority bound the priority band a job may be
// enqueued at (§4.I).
const (
	MinPriority = 1
	MaxPriority = 15
)

// precedenceTable maps well-known, coarse type names to a priority in
// [MinPriority, MaxPriority]. This is a Classifier-free view: it looks at
// whatever tag field a sender happens to carry rather than running the
// full classification cascade, so enqueue-time priority assignment never
// has to wait on the Classifier's own work (§4.I).
var precedenceTable = map[string]int{
	"payment":      15,
	"order":        13,
	"transaction":  13,
	"message":      10,
	"chat":         10,
	"notification": 8,
	"status":       6,
	"delivery":     6,
	"receipt":      6,
	"media":        6,
	"presence":     3,
	"typing":       2,
	"heartbeat":    1,
	"keepalive":    1,
	"ping":         1,
}

// keywordBands is the fallback table consulted when no precedence entry
// matches: substrings scanned across the payload's keys and string values,
// most specific first.
var keywordBands = []struct {
	keyword  string
	priority int
}{
	{"payment", 15},
	{"order", 13},
	{"message", 10},
	{"chat", 10},
	{"notification", 8},
	{"status", 6},
	{"receipt", 6},
	{"presence", 3},
	{"typing", 2},
	{"ping", 1},
}

// tagFields is the ordered set of top-level fields checked for a coarse
// type name before falling back to keyword scanning.
var tagFields = []string{"type", "event", "eventType", "kind", "topic"}

// PriorityOf computes a payload's queue priority (§4.I). It never invokes
// the Classifier: it reads whatever tag field the sender happens to
// expose directly, then falls back to a keyword scan, then to
// DefaultPriority. Priority only orders latency; it never affects
// correctness.
func PriorityOf(payload json.RawMessage) int {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return DefaultPriority
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return DefaultPriority
	}

	for _, field := range tagFields {
		v, ok := obj[field]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if p, ok := lookupPrecedence(s); ok {
			return p
		}
	}

	haystack := strings.ToLower(flatten(obj))
	for _, band := range keywordBands {
		if strings.Contains(haystack, band.keyword) {
			return band.priority
		}
	}
	return DefaultPriority
}

func lookupPrecedence(tag string) (int, bool) {
	lower := strings.ToLower(tag)
	if p, ok := precedenceTable[lower]; ok {
		return p, true
	}
	for keyword, p := range precedenceTable {
		if strings.Contains(lower, keyword) {
			return p, true
		}
	}
	return 0, false
}

// flatten joins every key and every string value in obj (recursively, one
// level into nested objects and arrays) into a single lowercase-scannable
// string, for the keyword fallback.
func flatten(obj map[string]any) string {
	var sb strings.Builder
	flattenInto(&sb, obj, 0)
	return sb.String()
}

func flattenInto(sb *strings.Builder, v any, depth int) {
	if depth > 2 {
		return
	}
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			sb.WriteString(k)
			sb.WriteByte(' ')
			flattenInto(sb, child, depth+1)
		}
	case []any:
		for _, child := range val {
			flattenInto(sb, child, depth+1)
		}
	case string:
		sb.WriteString(val)
		sb.WriteByte(' ')
	}
}
