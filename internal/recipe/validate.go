package recipe

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"
)

const defaultDeclinedDescription = "No recipe found in transcript"

// Validate checks a parsed candidate against the recipe rules and performs every
// type coercion in one pass. It fails fast on the first violation and never
// returns a partially assembled Recipe.
func Validate(c Candidate) (Recipe, error) {
	if !c.OK() {
		return Recipe{}, RecoveryExhausted(c.Err())
	}
	doc, ok := c.Value().(map[string]any)
	if !ok {
		return Recipe{}, Structural("", "Response is not a JSON object")
	}

	rawTitle, ok := doc["title"]
	if !ok {
		return Recipe{}, Structural("title", "Missing 'title' in response")
	}
	rawIngredients, ok := doc["ingredients"].([]any)
	if !ok {
		return Recipe{}, Structural("ingredients", "Missing or invalid 'ingredients' in response")
	}
	rawSteps, ok := doc["steps"].([]any)
	if !ok {
		return Recipe{}, Structural("steps", "Missing or invalid 'steps' in response")
	}

	description, hasDescription := descriptionOf(doc)
	if len(rawIngredients) == 0 || len(rawSteps) == 0 {
		reason := defaultDeclinedDescription
		if hasDescription {
			reason = *description
		}
		lower := strings.ToLower(reason)
		if strings.Contains(lower, "error") || strings.Contains(lower, "no recipe") {
			return Recipe{}, Declined(reason)
		}
		if len(rawIngredients) == 0 {
			return Recipe{}, Structural("ingredients", "'ingredients' must not be empty")
		}
		return Recipe{}, Structural("steps", "'steps' must not be empty")
	}

	title := strings.TrimSpace(titleString(rawTitle))
	if title == "" {
		return Recipe{}, Structural("title", "'title' must not be empty")
	}

	ingredients := make([]Ingredient, 0, len(rawIngredients))
	for i, raw := range rawIngredients {
		ing, err := validateIngredient(i+1, raw)
		if err != nil {
			return Recipe{}, err
		}
		ingredients = append(ingredients, ing)
	}

	steps := make([]Step, 0, len(rawSteps))
	for i, raw := range rawSteps {
		step, err := validateStep(i+1, raw)
		if err != nil {
			return Recipe{}, err
		}
		steps = append(steps, step)
	}
	slices.SortStableFunc(steps, func(a, b Step) int { return a.Index - b.Index })

	return Recipe{
		Title:       title,
		Description: description,
		Ingredients: ingredients,
		Steps:       steps,
	}, nil
}

func validateIngredient(pos int, raw any) (Ingredient, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Ingredient{}, Structural("ingredients", "Ingredient %d is not an object", pos)
	}
	fields := [3]string{}
	for i, key := range []string{"qty", "unit", "item"} {
		v, ok := obj[key]
		if !ok {
			return Ingredient{}, Structural("ingredients", "Ingredient %d missing required field '%s'", pos, key)
		}
		s, ok := coerceString(v)
		if !ok {
			return Ingredient{}, Structural("ingredients", "Ingredient %d field '%s' must be a string", pos, key)
		}
		fields[i] = strings.TrimSpace(s)
	}
	if fields[0] == "" {
		return Ingredient{}, Structural("ingredients", "Ingredient %d has empty 'qty'", pos)
	}
	if fields[2] == "" {
		return Ingredient{}, Structural("ingredients", "Ingredient %d has empty 'item'", pos)
	}
	return Ingredient{Qty: fields[0], Unit: fields[1], Item: fields[2]}, nil
}

func validateStep(pos int, raw any) (Step, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Step{}, Structural("steps", "Step %d is not an object", pos)
	}
	rawIndex, hasIndex := obj["index"]
	rawText, hasText := obj["text"]
	rawTS, hasTS := obj["timestamp_sec"]
	if !hasTS {
		rawTS, hasTS = obj["timestampSec"]
	}
	if !hasIndex || !hasText || !hasTS {
		return Step{}, Structural("steps", "Step %d missing required fields", pos)
	}

	index, ok := coerceInt(rawIndex)
	if !ok {
		return Step{}, Structural("steps", "Step %d 'index' must be an integer", pos)
	}
	if index < 1 {
		return Step{}, Structural("steps", "Step %d 'index' must be >= 1", pos)
	}
	text, ok := coerceString(rawText)
	if !ok {
		return Step{}, Structural("steps", "Step %d 'text' must be a string", pos)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Step{}, Structural("steps", "Step %d has empty 'text'", pos)
	}
	ts, ok := coerceTimestamp(rawTS)
	if !ok {
		return Step{}, Structural("steps", "Step %d 'timestamp_sec' must be an integer", pos)
	}
	if ts < 0 {
		return Step{}, Structural("steps", "Step %d 'timestamp_sec' must be >= 0", pos)
	}
	return Step{Index: index, Text: text, TimestampSec: ts}, nil
}

// descriptionOf treats an explicit null the same as an absent key.
func descriptionOf(doc map[string]any) (*string, bool) {
	v, ok := doc["description"]
	if !ok || v == nil {
		return nil, false
	}
	s := titleString(v)
	return &s, true
}

func titleString(v any) string {
	if s, ok := coerceString(v); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func coerceString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func coerceInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) || math.Abs(t) > math.MaxInt32 {
			return 0, false
		}
		return int(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return coerceInt(f)
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return coerceInt(f)
	default:
		return 0, false
	}
}

// coerceTimestamp rounds fractional seconds copied from transcript markers and
// maps null to zero.
func coerceTimestamp(v any) (int, bool) {
	switch t := v.(type) {
	case nil:
		return 0, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || math.Abs(t) > math.MaxInt32 {
			return 0, false
		}
		return int(math.Round(t)), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return coerceTimestamp(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return coerceTimestamp(f)
	default:
		return 0, false
	}
}
