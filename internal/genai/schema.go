package genai

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildQuestionJSONSchema returns a JSON-Schema (draft 2020-12 subset) for
// one extracted question object. It is embedded in the prompt and used
// locally to reject structurally broken elements before they become
// candidates. Choices stay deliberately loose here: the normalizer owns
// shape coercion, the schema only rules out types it cannot coerce.
func BuildQuestionJSONSchema() map[string]any {
	choiceObject := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":    map[string]any{"type": "string"},
			"label": map[string]any{"type": "string"},
			"text":  map[string]any{"type": "string"},
		},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question_text": map[string]any{"type": "string"},
			"options": map[string]any{
				"anyOf": []any{
					map[string]any{"type": "array", "items": map[string]any{"anyOf": []any{choiceObject, map[string]any{"type": "string"}}}},
					map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
				},
			},
			"correct_answer": map[string]any{"type": "string"},
			"explanation":    map[string]any{"type": "string"},
			"difficulty":     map[string]any{"type": "string"},
			"topic":          map[string]any{"type": "string"},
			"subtopic":       map[string]any{"type": "string"},
		},
		"required": []string{"question_text"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
