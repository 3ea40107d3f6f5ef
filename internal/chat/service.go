// Package chat answers free-form cooking questions about a recipe.
package chat

import (
	"context"
	"strings"
	"time"

	"recipeflow/internal/llm"
	"recipeflow/internal/prompt"
	"recipeflow/internal/recipe"
)

const (
	chatTemperature     = 0.7
	chatMaxOutputTokens = 300
)

type Result struct {
	Message string
	Usage   *llm.TokenUsage
}

type Service struct {
	generator llm.Generator
	timeout   time.Duration
}

func New(generator llm.Generator, timeout time.Duration) *Service {
	return &Service{generator: generator, timeout: timeout}
}

// Respond returns the model's reply as plain text; no JSON parsing is applied.
func (s *Service) Respond(ctx context.Context, c recipe.ChatContext) (Result, error) {
	if strings.TrimSpace(c.UserMessage) == "" {
		return Result{}, recipe.Invalid("message", "message is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.generator.Generate(ctx, llm.Request{
		Prompt: prompt.Chat(c),
		Sampling: llm.Sampling{
			Temperature:     chatTemperature,
			MaxOutputTokens: chatMaxOutputTokens,
		},
	})
	if err != nil {
		return Result{}, recipe.ModelUnavailable(err)
	}
	return Result{Message: strings.TrimSpace(resp.Text), Usage: resp.Usage}, nil
}
