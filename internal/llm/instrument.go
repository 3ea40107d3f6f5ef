package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type instrumented struct {
	next     Generator
	provider string
	model    string
	timeout  time.Duration
	tracer   trace.Tracer
}

// Instrument wraps g with a hard per-call timeout and a tracing span. A
// non-positive timeout leaves the caller's deadline in charge.
func Instrument(g Generator, provider, model string, timeout time.Duration) Generator {
	return &instrumented{
		next:     g,
		provider: provider,
		model:    model,
		timeout:  timeout,
		tracer:   otel.Tracer("recipeflow/llm"),
	}
}

func (i *instrumented) Generate(ctx context.Context, req Request) (Response, error) {
	ctx, span := i.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.provider", i.provider),
		attribute.String("llm.model", i.model),
		attribute.Float64("llm.temperature", req.Sampling.Temperature),
		attribute.Int("llm.max_output_tokens", req.Sampling.MaxOutputTokens),
		attribute.Int("llm.prompt_len", len(req.Prompt)),
	))
	defer span.End()

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	resp, err := i.next.Generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return Response{}, err
	}
	span.SetAttributes(attribute.Int("llm.response_len", len(resp.Text)))
	if resp.Usage != nil {
		span.SetAttributes(attribute.Int("llm.tokens_total", resp.Usage.TotalTokens))
	}
	return resp, nil
}
