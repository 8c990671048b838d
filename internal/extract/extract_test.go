package extract

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return doc
}

func TestAnswerAiAnswerWinsRegardlessOfStatus(t *testing.T) {
	doc := decode(t, `{"ai_answer":"hello"}`)
	if got := Answer(doc, false); got != "hello" {
		t.Fatalf("expected 'hello', got %q", got)
	}
	if got := Answer(doc, true); got != "hello" {
		t.Fatalf("expected 'hello', got %q", got)
	}
}

func TestAnswerOutputsPathOnSuccess(t *testing.T) {
	doc := decode(t, `{"outputs":[{"outputs":[{"results":{"message":{"result":"`+"```"+`\nworld\n`+"```"+`"}}}]}]}`)
	if got := Answer(doc, true); got != "world" {
		t.Fatalf("expected 'world', got %q", got)
	}
	// The outputs path is only followed for successful invocations.
	if got := Answer(doc, false); got != "" {
		t.Fatalf("expected empty answer for non-success, got %q", got)
	}
}

func TestAnswerJoinsFragments(t *testing.T) {
	doc := decode(t, `{"outputs":[{"outputs":[
		{"results":{"message":{"result":"  first "}}},
		{"results":{"message":{"result":""}}},
		{"results":{"message":{"result":"second"}}}
	]}]}`)
	if got := Answer(doc, true); got != "first\nsecond" {
		t.Fatalf("expected joined fragments, got %q", got)
	}
}

func TestAnswerMalformedShapes(t *testing.T) {
	cases := []string{
		`{}`,
		`{"outputs":[]}`,
		`{"outputs":"nope"}`,
		`{"outputs":[{"outputs":[{"results":{}}]}]}`,
		`{"outputs":[{"outputs":[{"results":{"message":{"result":42}}}]}]}`,
	}
	for _, c := range cases {
		if got := Answer(decode(t, c), true); got != "" {
			t.Fatalf("expected empty answer for %s, got %q", c, got)
		}
	}
}

func TestCredits(t *testing.T) {
	if got := Credits(decode(t, `{"credits":2500000}`)); got != 2.5 {
		t.Fatalf("expected 2.5, got %v", got)
	}
	if got := Credits(decode(t, `{"credits":"1500000"}`)); got != 1.5 {
		t.Fatalf("expected 1.5, got %v", got)
	}
	if got := Credits(decode(t, `{}`)); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```\nworld\n```", "world"},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```inline```", "inline"},
		{"no fences", "no fences"},
		{"  padded  ", "padded"},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Fatalf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
