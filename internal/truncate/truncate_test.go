package truncate

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/schemaforge/schemaforge/internal/types"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("decode(%q): %v", raw, err)
	}
	return v
}

func TestRedact_ExactMaxLengthUnchanged(t *testing.T) {
	tr := New(DefaultConfig())
	s := strings.Repeat("x", 100)
	payload := map[string]any{"note": s}
	redacted, report := tr.Redact(payload)
	got := redacted.(map[string]any)["note"].(string)
	if got != s {
		t.Errorf("string of exactly maxLength should be unchanged, got %q", got)
	}
	if len(report) != 0 {
		t.Errorf("expected no redaction entries, got %v", report)
	}
}

func TestRedact_OverMaxLengthNonBase64Unchanged(t *testing.T) {
	tr := New(DefaultConfig())
	s := strings.Repeat("this is plain text, not base64 at all. ", 3)[:101]
	payload := map[string]any{"note": s}
	redacted, report := tr.Redact(payload)
	got := redacted.(map[string]any)["note"].(string)
	if got != s {
		t.Errorf("non-base64-looking string over maxLength in unflagged field should be unchanged, got %q", got)
	}
	if len(report) != 0 {
		t.Errorf("expected no redaction entries, got %v", report)
	}
}

func TestRedact_OversizeBase64RedactedRegardlessOfFieldName(t *testing.T) {
	tr := New(DefaultConfig())
	s := strings.Repeat("QUJD", 300) // 10*maxLength+ base64-looking
	payload := map[string]any{"unrelated_field": s}
	redacted, report := tr.Redact(payload)
	got := redacted.(map[string]any)["unrelated_field"].(string)
	if !strings.HasSuffix(got, Sentinel) {
		t.Errorf("oversize base64-like string should be redacted even in unflagged field, got %q", got)
	}
	entry, ok := report["unrelated_field"]
	if !ok {
		t.Fatalf("expected redaction report entry for unrelated_field")
	}
	if entry.Tag != types.RedactedBase64 {
		t.Errorf("Tag = %v, want base64", entry.Tag)
	}
}

func TestRedact_FieldNameMatchTriggersRedaction(t *testing.T) {
	tr := New(DefaultConfig())
	payload := map[string]any{"image": "short"}
	redacted, report := tr.Redact(payload)
	got := redacted.(map[string]any)["image"].(string)
	if !strings.HasSuffix(got, Sentinel) {
		t.Errorf("name-flagged field should be redacted even when short, got %q", got)
	}
	if _, ok := report["image"]; !ok {
		t.Errorf("expected redaction report entry for image")
	}
}

func TestRedact_EmptyObjectAndArray(t *testing.T) {
	tr := New(DefaultConfig())
	redacted, _ := tr.Redact(map[string]any{})
	if m, ok := redacted.(map[string]any); !ok || len(m) != 0 {
		t.Errorf("empty object should redact to empty object, got %#v", redacted)
	}

	redactedArr, _ := tr.Redact([]any{})
	if a, ok := redactedArr.([]any); !ok || len(a) != 0 {
		t.Errorf("empty array should redact to empty array, got %#v", redactedArr)
	}
}

func TestRedact_NumbersAndBooleansNeverTouched(t *testing.T) {
	tr := New(DefaultConfig())
	payload := map[string]any{"n": 42.0, "b": true, "image": 7.0}
	redacted, report := tr.Redact(payload)
	m := redacted.(map[string]any)
	if m["n"] != 42.0 || m["b"] != true || m["image"] != 7.0 {
		t.Errorf("non-string values must never be redacted, got %#v", m)
	}
	if len(report) != 0 {
		t.Errorf("expected no redaction entries for non-string values, got %v", report)
	}
}

func pathSet(t *testing.T, value any) map[string]bool {
	t.Helper()
	set := map[string]bool{}
	var walk func(v any, path string)
	walk = func(v any, path string) {
		set[path] = true
		switch vv := v.(type) {
		case map[string]any:
			for k, child := range vv {
				p := k
				if path != "" {
					p = path + "." + k
				}
				walk(child, p)
			}
		case []any:
			for i, child := range vv {
				walk(child, path+"[i]")
				_ = i
			}
		}
	}
	walk(value, "")
	return set
}

// Property: the set of paths in a redacted payload equals the set of
// paths in the original (§8 structural preservation).
func TestRedact_PropertyStructuralPreservation(t *testing.T) {
	tr := New(DefaultConfig())
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("path set is preserved across redaction", prop.ForAll(
		func(aLen, bLen int, nested bool) bool {
			a := strings.Repeat("a", aLen)
			b := strings.Repeat("Q", bLen)
			var payload map[string]any
			if nested {
				payload = map[string]any{
					"outer": map[string]any{"image": a, "note": b},
					"items": []any{map[string]any{"data": a}},
				}
			} else {
				payload = map[string]any{"note": a, "image": b}
			}

			redacted, _ := tr.Redact(payload)
			before := pathSet(t, payload)
			after := pathSet(t, redacted)
			if len(before) != len(after) {
				return false
			}
			for k := range before {
				if !after[k] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 500),
		gen.IntRange(0, 500),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property: Truncator(Truncator(P)) == Truncator(P) (§8 idempotence).
func TestRedact_PropertyIdempotent(t *testing.T) {
	tr := New(DefaultConfig())
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("redaction is idempotent", prop.ForAll(
		func(length int, flagged bool) bool {
			s := strings.Repeat("QUJDRA==", length/8+1)
			field := "note"
			if flagged {
				field = "image"
			}
			payload := map[string]any{field: s}

			once, _ := tr.Redact(payload)
			twice, _ := tr.Redact(once)

			onceJSON, _ := json.Marshal(once)
			twiceJSON, _ := json.Marshal(twice)
			return string(onceJSON) == string(twiceJSON)
		},
		gen.IntRange(0, 2000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestRedact_GuaranteeAgainstDecodedJSON(t *testing.T) {
	tr := New(DefaultConfig())
	raw := `{"thumbnail": "` + strings.Repeat("A", 150) + `", "caption": "hello world"}`
	value := decode(t, raw)
	redacted, report := tr.Redact(value)
	m := redacted.(map[string]any)
	if m["caption"] != "hello world" {
		t.Errorf("unflagged short field should be unchanged")
	}
	if !strings.HasSuffix(m["thumbnail"].(string), Sentinel) {
		t.Errorf("thumbnail field should be redacted by name")
	}
	if len(report) != 1 {
		t.Errorf("expected exactly 1 report entry, got %d", len(report))
	}
}
