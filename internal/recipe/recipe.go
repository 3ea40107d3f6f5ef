// Package recipe holds the validated recipe domain types, the untyped candidate
// produced by the JSON recovery cascade, and the rules that turn one into the other.
package recipe

// Sentinel quantities the model may use instead of a number.
const (
	QtyToTaste    = "To taste"
	QtyAsRequired = "As required"
)

type Ingredient struct {
	Qty  string `json:"qty"`
	Unit string `json:"unit"`
	Item string `json:"item"`
}

type Step struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	TimestampSec int    `json:"timestamp_sec"`
}

// Recipe is only ever produced by Validate; a value of this type always has a
// title, at least one ingredient and at least one step.
type Recipe struct {
	Title       string       `json:"title"`
	Description *string      `json:"description"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []Step       `json:"steps"`
}

type ExtractionRequest struct {
	SourceType string
	SourceRef  string
	Transcript string
	Options    map[string]any
}

type ChatStep struct {
	Text  string
	Index *int
}

type ChatContext struct {
	RecipeID         string
	Title            string
	Description      string
	Ingredients      []Ingredient
	Steps            []ChatStep
	UserMessage      string
	CurrentStepIndex *int
}

// CurrentStep returns the step the user is on, or false when the index is
// absent or outside the step list.
func (c ChatContext) CurrentStep() (ChatStep, int, bool) {
	if c.CurrentStepIndex == nil {
		return ChatStep{}, 0, false
	}
	i := *c.CurrentStepIndex
	if i < 0 || i >= len(c.Steps) {
		return ChatStep{}, 0, false
	}
	return c.Steps[i], i, true
}
