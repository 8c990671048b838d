package domain

import (
	"bytes"
	"encoding"
	"encoding/json"
)

// FlowStatus is the status vocabulary of the remote flow invocation service.
type FlowStatus string

const (
	FlowPending FlowStatus = "PENDING"
	FlowSuccess FlowStatus = "SUCCESS"
	FlowFailed  FlowStatus = "FAILED"
	FlowError   FlowStatus = "ERROR"
)

func (s FlowStatus) IsTerminal() bool {
	return s == FlowSuccess || s == FlowFailed || s == FlowError
}

var _ encoding.TextMarshaler = FlowStatus("")

func (s FlowStatus) MarshalText() ([]byte, error) { return []byte(string(s)), nil }

// ResultPayload holds the remote `result` field, which the API returns either
// as an already-parsed object or as a JSON-encoded string. Decoding happens on
// demand so both forms yield the same document.
type ResultPayload struct {
	raw json.RawMessage
}

func (p *ResultPayload) UnmarshalJSON(data []byte) error {
	p.raw = append(p.raw[:0], data...)
	return nil
}

func (p ResultPayload) MarshalJSON() ([]byte, error) {
	if len(p.raw) == 0 {
		return []byte("null"), nil
	}
	return p.raw, nil
}

func (p ResultPayload) IsZero() bool {
	trimmed := bytes.TrimSpace(p.raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Document returns the payload as a decoded object. A string payload is
// decoded a second time, so `"{\"ai_answer\":\"x\"}"` and `{"ai_answer":"x"}`
// produce the same map.
func (p ResultPayload) Document() (map[string]any, bool) {
	if p.IsZero() {
		return nil, false
	}
	var doc map[string]any
	if err := json.Unmarshal(p.raw, &doc); err == nil {
		return doc, true
	}
	var s string
	if err := json.Unmarshal(p.raw, &s); err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// Text returns the payload as a plain string when it is one.
func (p ResultPayload) Text() (string, bool) {
	if p.IsZero() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(p.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// InvocationResult is the response of both the invoke and the poll endpoints.
// Raw retains the verbatim body for diagnostics.
type InvocationResult struct {
	ID           string        `json:"id"`
	Status       FlowStatus    `json:"status"`
	Result       ResultPayload `json:"result,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Credits      float64       `json:"credits,omitempty"`
	Raw          json.RawMessage `json:"-"`
}
