package llm

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ExtractJSON pulls the JSON payload out of a model response that may wrap
// it in prose or a markdown code fence. Returns "" when no candidate object
// or array is present.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return raw
	}

	// Fenced block, with or without a language tag.
	if idx := strings.Index(raw, "```"); idx >= 0 {
		rest := raw[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(candidate, "{") || strings.HasPrefix(candidate, "[") {
				return candidate
			}
		}
	}

	// Last resort: widest brace span in the text.
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start >= 0 && end > start {
		return raw[start : end+1]
	}

	return ""
}

// Repair returns input unchanged when it is already valid JSON, otherwise
// runs it through the jsonrepair library. The bool reports whether a repair
// was applied.
func Repair(input string) (string, bool, error) {
	var probe any
	if json.Unmarshal([]byte(input), &probe) == nil {
		return input, false, nil
	}

	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return "", true, err
	}
	return repaired, true, nil
}
