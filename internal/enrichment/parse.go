package enrichment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// salvageJSON extracts a JSON object from model output. Models wrap JSON in
// markdown fences or chat it up with prose more often than they return it
// clean, so parsing happens in three passes: as-is, fence-stripped, then the
// widest {...} window.
func salvageJSON(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty model output")
	}
	if msg, ok := tryParseObject(raw); ok {
		return msg, nil
	}
	if stripped := stripFences(raw); stripped != raw {
		if msg, ok := tryParseObject(stripped); ok {
			return msg, nil
		}
		raw = stripped
	}
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start >= 0 && end > start {
		if msg, ok := tryParseObject(raw[start : end+1]); ok {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("no JSON object found in model output")
}

func tryParseObject(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}

// stripFences removes a leading ```json (or bare ```) fence and the matching
// trailing fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		head := strings.TrimSpace(s[:i])
		if head == "" || strings.EqualFold(head, "json") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
