package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"recipeflow/internal/llm"
	"recipeflow/internal/prompt"
	"recipeflow/internal/recipe"
)

// Stage names the cascade step that produced a parseable candidate.
type Stage string

const (
	StageStrict      Stage = "strict"
	StageBraces      Stage = "braces"
	StageLocalRepair Stage = "local_repair"
	StageRepairRetry Stage = "repair_retry"
)

const (
	extractTemperature = 0.3
	repairTemperature  = 0.1
)

var errNoBraces = errors.New("no JSON object found in response")

type Recovery struct {
	Candidate recipe.Candidate
	Stage     Stage
	// Repair is set when the repair retry was issued.
	Repair *llm.Response
}

// Cascade recovers a JSON value from unreliable model output: strict parse,
// then brace extraction, then (optionally) local repair, then exactly one
// repair query to the model.
type Cascade struct {
	generator   llm.Generator
	localRepair bool
	logger      *slog.Logger
}

func NewCascade(generator llm.Generator, localRepair bool, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{generator: generator, localRepair: localRepair, logger: logger}
}

func (c *Cascade) Recover(ctx context.Context, raw string, p prompt.Extract) (Recovery, error) {
	sanitized := Sanitize(raw)
	if cand := strictParse(sanitized); cand.OK() {
		return Recovery{Candidate: cand, Stage: StageStrict}, nil
	}

	braced, found := extractBraces(raw)
	if found {
		if cand := strictParse(braced); cand.OK() {
			return Recovery{Candidate: cand, Stage: StageBraces}, nil
		}
	}

	if c.localRepair {
		source := sanitized
		if found {
			source = braced
		}
		if repaired, err := jsonrepair.JSONRepair(source); err == nil {
			if cand := strictParse(repaired); cand.OK() {
				c.logger.Warn("extract.local_repair_applied", "raw_len", len(raw))
				return Recovery{Candidate: cand, Stage: StageLocalRepair}, nil
			}
		}
	}

	c.logger.Warn("extract.repair_retry", "raw_len", len(raw), "braces_found", found)
	resp, err := c.generator.Generate(ctx, llm.Request{
		Prompt:   p.Repair(),
		Sampling: llm.Sampling{Temperature: repairTemperature},
	})
	if err != nil {
		return Recovery{}, recipe.ModelUnavailable(err)
	}
	cand := strictParse(Sanitize(resp.Text))
	if !cand.OK() {
		return Recovery{}, recipe.RecoveryExhausted(cand.Err())
	}
	return Recovery{Candidate: cand, Stage: StageRepairRetry, Repair: &resp}, nil
}

// strictParse accepts exactly one JSON value with nothing but whitespace around it.
func strictParse(s string) recipe.Candidate {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return recipe.Unparsed(err)
	}
	return recipe.Parsed(v)
}

// extractBraces returns the greedy span from the first '{' to the last '}'.
func extractBraces(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}
