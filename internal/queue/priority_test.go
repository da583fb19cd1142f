package queue

import "testing"

func TestPriorityOf_PrecedenceTableViaTagField(t *testing.T) {
	cases := map[string]int{
		`{"type":"payment","amount":100}`:       15,
		`{"type":"message","body":"hi"}`:        10,
		`{"event":"presence","state":"online"}`: 3,
		`{"kind":"heartbeat"}`:                  1,
	}
	for payload, want := range cases {
		if got := PriorityOf([]byte(payload)); got != want {
			t.Errorf("PriorityOf(%s) = %d, want %d", payload, got, want)
		}
	}
}

func TestPriorityOf_KeywordFallbackWhenNoTagField(t *testing.T) {
	payload := []byte(`{"notes":"order confirmation pending"}`)
	if got := PriorityOf(payload); got != 13 {
		t.Errorf("PriorityOf() = %d, want 13 (order keyword)", got)
	}
}

func TestPriorityOf_DefaultWhenNothingMatches(t *testing.T) {
	payload := []byte(`{"foo":"bar","baz":42}`)
	if got := PriorityOf(payload); got != DefaultPriority {
		t.Errorf("PriorityOf() = %d, want default %d", got, DefaultPriority)
	}
}

func TestPriorityOf_NonObjectPayloadIsDefault(t *testing.T) {
	if got := PriorityOf([]byte(`[1,2,3]`)); got != DefaultPriority {
		t.Errorf("PriorityOf(array) = %d, want default %d", got, DefaultPriority)
	}
	if got := PriorityOf([]byte(`not json`)); got != DefaultPriority {
		t.Errorf("PriorityOf(invalid) = %d, want default %d", got, DefaultPriority)
	}
}

func TestPriorityOf_PrecedenceBeatsKeywordFallback(t *testing.T) {
	// "type" directly names a band even though the keyword scan would
	// also find a match buried in an unrelated nested field.
	payload := []byte(`{"type":"payment","meta":{"note":"a status update"}}`)
	if got := PriorityOf(payload); got != 15 {
		t.Errorf("PriorityOf() = %d, want 15 (tag field wins over nested keyword)", got)
	}
}

func TestPriorityOf_BoundsWithinRange(t *testing.T) {
	for p := range precedenceTable {
		got := precedenceTable[p]
		if got < MinPriority || got > MaxPriority {
			t.Errorf("precedence %q = %d, out of [%d,%d]", p, got, MinPriority, MaxPriority)
		}
	}
}
