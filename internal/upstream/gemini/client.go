// Package gemini is a minimal client for the Gemini generateContent REST endpoint.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recipeflow/internal/llm"
)

const providerName = "gemini"

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	observer   ObserverFunc
}

type part struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      *content `json:"content,omitempty"`
		FinishReason string   `json:"finishReason,omitempty"`
	} `json:"candidates,omitempty"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func New(baseURL, apiKey, model string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		httpClient: httpClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("generate_content", statusCode, time.Since(started)) }()

	temperature := req.Sampling.Temperature
	cfg := &generationConfig{Temperature: &temperature}
	if req.Sampling.MaxOutputTokens > 0 {
		maxTokens := req.Sampling.MaxOutputTokens
		cfg.MaxOutputTokens = &maxTokens
	}
	payload, err := json.Marshal(generateContentRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: cfg,
	})
	if err != nil {
		return llm.Response{}, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return llm.Response{}, err
	}
	httpReq.Header.Set("x-goog-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return llm.Response{}, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return llm.Response{}, &llm.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Reason:     llm.ReasonStatus,
			Body:       truncateBody(string(body)),
		}
	}
	return parseGenerateContent(body)
}

// CheckModels fetches the configured model's metadata.
func (c *Client) CheckModels(ctx context.Context) error {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("models", statusCode, time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models/"+url.PathEscape(c.model), nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &llm.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Reason:     llm.ReasonStatus,
			Body:       truncateBody(string(body)),
		}
	}
	return nil
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func parseGenerateContent(data []byte) (llm.Response, error) {
	var parsed generateContentResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return llm.Response{}, &llm.ProviderError{Provider: providerName, Reason: llm.ReasonDecode, Body: fmt.Sprintf("invalid generateContent response: %v", err)}
	}
	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return llm.Response{}, &llm.ProviderError{Provider: providerName, Reason: llm.ReasonBlocked, Body: parsed.PromptFeedback.BlockReason}
	}
	if len(parsed.Candidates) == 0 || parsed.Candidates[0].Content == nil {
		return llm.Response{}, &llm.ProviderError{Provider: providerName, Reason: llm.ReasonEmptyResponse}
	}

	var b strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		if p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		reason := llm.ReasonEmptyResponse
		if parsed.Candidates[0].FinishReason == "SAFETY" {
			reason = llm.ReasonBlocked
		}
		return llm.Response{}, &llm.ProviderError{Provider: providerName, Reason: reason, Body: parsed.Candidates[0].FinishReason}
	}

	resp := llm.Response{Text: b.String()}
	if u := parsed.UsageMetadata; u != nil {
		resp.Usage = &llm.TokenUsage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return resp, nil
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
