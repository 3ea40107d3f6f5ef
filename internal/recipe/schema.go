package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSONSchema returns the wire form of a validated Recipe as a JSON Schema
// (draft 2020-12 subset).
func JSONSchema() map[string]any {
	nonEmpty := map[string]any{"type": "string", "minLength": 1, "pattern": `\S`}
	return map[string]any{
		"type":     "object",
		"required": []string{"title", "description", "ingredients", "steps"},
		"properties": map[string]any{
			"title":       nonEmpty,
			"description": map[string]any{"type": []string{"string", "null"}},
			"ingredients": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"qty", "unit", "item"},
					"properties": map[string]any{
						"qty":  nonEmpty,
						"unit": map[string]any{"type": "string"},
						"item": nonEmpty,
					},
				},
			},
			"steps": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"index", "text", "timestamp_sec"},
					"properties": map[string]any{
						"index":         map[string]any{"type": "integer", "minimum": 1},
						"text":          nonEmpty,
						"timestamp_sec": map[string]any{"type": "integer", "minimum": 0},
					},
				},
			},
		},
	}
}

// Conformance re-serializes assembled recipes and checks them against JSONSchema.
// It is safe for concurrent use.
type Conformance struct {
	schema *jsonschema.Schema
}

func NewConformance() (*Conformance, error) {
	b, err := json.Marshal(JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("recipe.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("recipe.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Conformance{schema: schema}, nil
}

func (c *Conformance) Check(r Recipe) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal recipe: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal recipe: %w", err)
	}
	if err := c.schema.Validate(v); err != nil {
		return fmt.Errorf("recipe does not match schema: %w", err)
	}
	return nil
}
