package genai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONList locates the outermost JSON list inside free-form model
// output and decodes it into raw elements. Models routinely wrap the list
// in commentary or markdown code fences; both are tolerated. Anything the
// parser cannot salvage is an error the caller maps to "zero records".
func ExtractJSONList(text string) ([]json.RawMessage, error) {
	cleaned := stripCodeFences(text)

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON list delimiters in response (%d bytes)", len(text))
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("parse JSON list: %w", err)
	}
	return items, nil
}

// stripCodeFences removes leading/trailing markdown fence markers such as
// ```json ... ``` without touching the fenced content.
func stripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl != -1 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
