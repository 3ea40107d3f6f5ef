// Package extraction turns a timestamped video transcript into a validated
// recipe by prompting a model and recovering JSON from its reply.
package extraction

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"recipeflow/internal/llm"
	"recipeflow/internal/prompt"
	"recipeflow/internal/recipe"
)

// OutcomeFunc receives the cascade stage on success or the error kind on failure.
type OutcomeFunc func(outcome string)

type Option func(*Service)

func WithOutcomeObserver(fn OutcomeFunc) Option {
	return func(s *Service) {
		s.observe = fn
	}
}

// WithConformance checks every assembled recipe against the recipe JSON Schema.
func WithConformance(c *recipe.Conformance) Option {
	return func(s *Service) {
		s.conformance = c
	}
}

func WithLocalRepair(enabled bool) Option {
	return func(s *Service) {
		s.localRepair = enabled
	}
}

type Result struct {
	Recipe     recipe.Recipe
	Stage      Stage
	ModelCalls int
	Usage      *llm.TokenUsage
}

type Service struct {
	generator   llm.Generator
	timeout     time.Duration
	logger      *slog.Logger
	localRepair bool
	cascade     *Cascade
	conformance *recipe.Conformance
	observe     OutcomeFunc
	tracer      trace.Tracer
}

func New(generator llm.Generator, timeout time.Duration, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		generator: generator,
		timeout:   timeout,
		logger:    logger,
		tracer:    otel.Tracer("recipeflow/extraction"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.cascade = NewCascade(generator, s.localRepair, logger)
	return s
}

// Extract runs the whole pipeline. Once started it is not cancelled by the
// caller; only the configured timeout bounds it.
func (s *Service) Extract(ctx context.Context, req recipe.ExtractionRequest) (Result, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return Result{}, recipe.Invalid("transcript", "transcript is required")
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "extraction.extract", trace.WithAttributes(
		attribute.String("recipe.source_type", req.SourceType),
		attribute.Int("recipe.transcript_len", len(req.Transcript)),
	))
	defer span.End()

	result, err := s.extract(ctx, req)
	if err != nil {
		kind := recipe.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		s.report(string(kind))
		return Result{}, err
	}
	span.SetAttributes(
		attribute.String("extraction.stage", string(result.Stage)),
		attribute.Int("extraction.model_calls", result.ModelCalls),
	)
	s.report(string(result.Stage))
	return result, nil
}

func (s *Service) extract(ctx context.Context, req recipe.ExtractionRequest) (Result, error) {
	p := prompt.Extraction(req)

	resp, err := s.generator.Generate(ctx, llm.Request{
		Prompt:   p.String(),
		Sampling: llm.Sampling{Temperature: extractTemperature},
	})
	if err != nil {
		return Result{}, recipe.ModelUnavailable(err)
	}

	recovery, err := s.cascade.Recover(ctx, resp.Text, p)
	if err != nil {
		return Result{}, err
	}

	r, err := recipe.Validate(recovery.Candidate)
	if err != nil {
		return Result{}, err
	}
	if s.conformance != nil {
		if err := s.conformance.Check(r); err != nil {
			return Result{}, recipe.Internal(err)
		}
	}

	result := Result{Recipe: r, Stage: recovery.Stage, ModelCalls: 1, Usage: resp.Usage}
	if recovery.Repair != nil {
		result.ModelCalls++
		result.Usage = addUsage(result.Usage, recovery.Repair.Usage)
	}
	return result, nil
}

func (s *Service) report(outcome string) {
	if s.observe != nil {
		s.observe(outcome)
	}
}

func addUsage(a, b *llm.TokenUsage) *llm.TokenUsage {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &llm.TokenUsage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}
