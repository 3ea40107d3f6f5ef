package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type sleepyGenerator struct{}

func (sleepyGenerator) Generate(ctx context.Context, _ Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-time.After(5 * time.Second):
		return Response{Text: "late"}, nil
	}
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, req Request) (Response, error) {
	return Response{Text: req.Prompt}, nil
}

func TestInstrumentEnforcesTimeout(t *testing.T) {
	g := Instrument(sleepyGenerator{}, "test", "m", 20*time.Millisecond)
	_, err := g.Generate(context.Background(), Request{Prompt: "hi"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestInstrumentPassesThrough(t *testing.T) {
	g := Instrument(echoGenerator{}, "test", "m", 0)
	resp, err := g.Generate(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "hi" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
}
