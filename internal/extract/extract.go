// Package extract pulls the textual answer and the credit cost out of the
// nested response documents returned by the flow invocation service.
package extract

import (
	"strconv"
	"strings"
)

// CreditsDivisor converts the API's micro-unit credit figure to a
// human-readable decimal.
const CreditsDivisor = 1_000_000

// Answer extracts the textual answer from a decoded response document.
//
// A top-level "ai_answer" wins regardless of status. Otherwise, and only for a
// successful invocation, the outputs[0].outputs[*].results.message.result
// fragments are trimmed, stripped of code fences and joined with newlines.
// Returns "" when nothing usable is found.
func Answer(doc map[string]any, succeeded bool) string {
	if doc == nil {
		return ""
	}
	if v, ok := doc["ai_answer"].(string); ok && v != "" {
		return v
	}
	if !succeeded {
		return ""
	}
	outer, ok := doc["outputs"].([]any)
	if !ok || len(outer) == 0 {
		return ""
	}
	first, ok := outer[0].(map[string]any)
	if !ok {
		return ""
	}
	inner, ok := first["outputs"].([]any)
	if !ok {
		return ""
	}
	var parts []string
	for _, item := range inner {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		results, ok := m["results"].(map[string]any)
		if !ok {
			continue
		}
		message, ok := results["message"].(map[string]any)
		if !ok {
			continue
		}
		s, ok := message["result"].(string)
		if !ok {
			continue
		}
		s = StripFences(strings.TrimSpace(s))
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Credits reads the top-level "credits" field and converts it from
// micro-units. Returns 0 when the field is absent or not numeric.
func Credits(doc map[string]any) float64 {
	if doc == nil {
		return 0
	}
	switch v := doc["credits"].(type) {
	case float64:
		return v / CreditsDivisor
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f / CreditsDivisor
	default:
		return 0
	}
}

// StripFences removes leading and trailing triple-backtick markers, including
// a language tag on the opening fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		rest := s[3:]
		if idx := strings.Index(rest, "\n"); idx >= 0 && !strings.Contains(rest[:idx], "```") {
			rest = rest[idx+1:]
		}
		s = rest
	}
	if strings.HasSuffix(strings.TrimSpace(s), "```") {
		trimmed := strings.TrimSpace(s)
		s = trimmed[:len(trimmed)-3]
	}
	return strings.TrimSpace(s)
}
