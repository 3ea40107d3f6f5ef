// Package prompt renders the fixed instruction templates used for recipe
// extraction and cooking Q&A. It performs no I/O.
package prompt

import (
	"fmt"

	"recipeflow/internal/recipe"
)

const ExtractionInstruction = `You are a recipe extraction assistant. Your task is to extract structured recipe information from a video transcript.

CRITICAL RULES:
1. Output ONLY valid JSON. No markdown, no backticks, no explanations.
2. The JSON must match this exact schema:
{
  "title": "Recipe Title",
  "description": "Optional description",
  "ingredients": [
    {"qty": "2", "unit": "cups", "item": "flour"},
    {"qty": "To taste", "unit": "", "item": "salt"},
    ...
  ],
  "steps": [
    {"index": 1, "text": "Step instruction", "timestamp_sec": 123},
    {"index": 2, "text": "Step instruction", "timestamp_sec": 456},
    ...
  ]
}

3. Ingredients must be an array of objects with:
   - qty: the quantity as a decimal string (e.g. "2", "0.5"). If no quantity is given use exactly "To taste" or "As required". Never leave qty empty.
   - unit: the unit of measure (e.g. "cups", "g", "tbsp"), or "" if there is none.
   - item: the ingredient itself, without the quantity or unit.

4. Steps must be an array of objects with:
   - index: sequential number starting from 1
   - text: concise step instruction
   - timestamp_sec: integer seconds from video start (round to nearest second)

5. TIMESTAMP EXTRACTION IS CRITICAL: The transcript lines are formatted as "[XX.XXs] text content".
   - Pick timestamps ONLY from the timestamps shown in the transcript lines (the numbers in brackets).
   - For each step, find the transcript line(s) that best match that step and use the timestamp from those lines.
   - If a step corresponds to multiple transcript lines, use the earliest timestamp.
   - Round timestamps to the nearest integer second.
   - DO NOT invent or guess timestamps - only use timestamps that appear in the transcript format [XX.XXs].

6. Steps should be clear, actionable cooking instructions. Combine related actions into single steps when appropriate.

7. If the transcript doesn't contain a recipe, return empty ingredients and steps arrays and put an error in the description field explaining why.

Output ONLY the JSON object, nothing else.`

const (
	extractionReminder = "Remember: Output ONLY valid JSON matching the schema, no markdown or explanations."
	repairNotice       = "The previous response was invalid JSON. Return ONLY valid JSON matching the schema, no markdown or explanations."
)

// Extract carries both halves of an extraction prompt so the repair prompt can
// be rebuilt from the same materials.
type Extract struct {
	Instruction string
	User        string
}

func Extraction(req recipe.ExtractionRequest) Extract {
	user := fmt.Sprintf(`Extract recipe information from this video transcript.

Video URL: %s

Transcript (with timestamps in [XX.XXs] format):
%s

Extract the recipe title, ingredients list, and cooking steps with timestamps.
IMPORTANT: Pick timestamps ONLY from the timestamps shown in the transcript lines (the [XX.XXs] format).
Do not invent timestamps - use the exact timestamps from the transcript that correspond to each step.

Output as JSON matching the required schema.`, req.SourceRef, req.Transcript)

	return Extract{Instruction: ExtractionInstruction, User: user}
}

func (e Extract) String() string {
	return e.Instruction + "\n\n" + e.User + "\n\n" + extractionReminder
}

// Repair is sent once when the first response could not be parsed.
func (e Extract) Repair() string {
	return e.Instruction + "\n\n" + e.User + "\n\n" + repairNotice
}
