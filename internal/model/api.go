package model

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type ReadyResponse struct {
	OK          bool   `json:"ok"`
	ServiceName string `json:"service_name,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

type ExtractRequest struct {
	SourceType string         `json:"source_type"`
	SourceRef  string         `json:"source_ref"`
	Transcript string         `json:"transcript"`
	Options    map[string]any `json:"options,omitempty"`
}

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

type ExtractResponse struct {
	Title       string       `json:"title"`
	Description *string      `json:"description"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []Step       `json:"steps"`
}

type ChatStep struct {
	Text  string `json:"text"`
	Index *int   `json:"index"`
}

type ChatRequest struct {
	RecipeID         string       `json:"recipe_id"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Ingredients      []Ingredient `json:"ingredients"`
	Steps            []ChatStep   `json:"steps"`
	Message          string       `json:"message"`
	CurrentStepIndex *int         `json:"current_step_index,omitempty"`
}

type ChatResponse struct {
	Message string `json:"message"`
}
