package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recipeflow/internal/llm"
)

const providerName = "openai"

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	observer   ObserverFunc
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Messages    []ChatMessage `json:"messages"`
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

// Generate sends the prompt as a single user message.
func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	return c.ChatCompletion(ctx, ChatCompletionRequest{
		Model:       c.model,
		Temperature: req.Sampling.Temperature,
		MaxTokens:   req.Sampling.MaxOutputTokens,
		Messages:    []ChatMessage{{Role: "user", Content: req.Prompt}},
	})
}

func (c *Client) ChatCompletion(ctx context.Context, reqPayload ChatCompletionRequest) (llm.Response, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("chat_completions", statusCode, time.Since(started)) }()

	payload, err := json.Marshal(reqPayload)
	if err != nil {
		return llm.Response{}, err
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return llm.Response{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return llm.Response{}, err
	}
	defer httpResp.Body.Close()
	statusCode = httpResp.StatusCode

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return llm.Response{}, err
	}

	if httpResp.StatusCode != http.StatusOK {
		return llm.Response{}, &llm.ProviderError{
			Provider:   providerName,
			StatusCode: httpResp.StatusCode,
			Reason:     llm.ReasonStatus,
			Body:       truncateBody(string(respBody)),
		}
	}

	return parseChatCompletion(respBody)
}

func (c *Client) CheckModels(ctx context.Context) error {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("models", statusCode, time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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

func parseChatCompletion(data []byte) (llm.Response, error) {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage,omitempty"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return llm.Response{}, &llm.ProviderError{Provider: providerName, Reason: llm.ReasonDecode, Body: fmt.Sprintf("invalid chat completion response: %v", err)}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return llm.Response{}, &llm.ProviderError{Provider: providerName, Reason: llm.ReasonEmptyResponse}
	}

	resp := llm.Response{Text: parsed.Choices[0].Message.Content}
	if parsed.Usage != nil {
		resp.Usage = &llm.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
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
