// Package llm defines the contract every text-generation provider satisfies.
package llm

import (
	"context"
	"fmt"
)

type Sampling struct {
	Temperature float64
	// MaxOutputTokens caps generated length; zero leaves the provider default.
	MaxOutputTokens int
}

type Request struct {
	Prompt   string
	Sampling Sampling
}

type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text  string
	Usage *TokenUsage
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// ProviderError is the structured failure surfaced by provider clients.
type ProviderError struct {
	Provider   string
	StatusCode int
	Reason     string
	Body       string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request failed: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s request failed with status %d", e.Provider, e.StatusCode)
}

// Reason values reported by ProviderError.
const (
	ReasonStatus        = "status"
	ReasonEmptyResponse = "empty_response"
	ReasonBlocked       = "blocked"
	ReasonDecode        = "decode"
)
