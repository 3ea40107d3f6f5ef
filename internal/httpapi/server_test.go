package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"recipeflow/internal/chat"
	"recipeflow/internal/config"
	"recipeflow/internal/extraction"
	"recipeflow/internal/llm"
	"recipeflow/internal/model"
	"recipeflow/internal/recipe"
)

const testToken = "secret-token"

type stubExtraction struct {
	result extraction.Result
	err    error
	input  recipe.ExtractionRequest
	calls  int
}

func (s *stubExtraction) Extract(_ context.Context, req recipe.ExtractionRequest) (extraction.Result, error) {
	s.calls++
	s.input = req
	return s.result, s.err
}

type stubChat struct {
	result chat.Result
	err    error
	input  recipe.ChatContext
}

func (s *stubChat) Respond(_ context.Context, c recipe.ChatContext) (chat.Result, error) {
	s.input = c
	return s.result, s.err
}

type stubUpstream struct{ err error }

func (s stubUpstream) CheckModels(context.Context) error { return s.err }

type stubMetrics struct {
	chatOutcomes []string
	httpRoutes   []string
}

func (m *stubMetrics) ObserveHTTP(route, _ string, _ int, _ time.Duration) {
	m.httpRoutes = append(m.httpRoutes, route)
}

func (m *stubMetrics) ObserveChat(outcome string) {
	m.chatOutcomes = append(m.chatOutcomes, outcome)
}

func newTestHandler(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	if deps.Extraction == nil {
		deps.Extraction = &stubExtraction{}
	}
	if deps.Chat == nil {
		deps.Chat = &stubChat{}
	}
	if deps.Upstream == nil {
		deps.Upstream = stubUpstream{}
	}
	cfg := config.Config{
		ModelProvider:  config.ProviderGemini,
		ServiceToken:   testToken,
		FrontendOrigin: "http://localhost:3000",
		MaxBodyBytes:   64 * 1024,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, logger, deps)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set(serviceTokenHeader, testToken)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return resp
}

func strPtr(s string) *string { return &s }

const validExtractBody = `{"source_type":"youtube","source_ref":"abc123","transcript":"boil pasta then add salt"}`

func TestHealth(t *testing.T) {
	h := newTestHandler(t, Dependencies{})

	w := doJSON(t, h, http.MethodGet, "/health", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	var resp model.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" || resp.Service != "recipeflow" {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestReadyzReportsUpstreamFailure(t *testing.T) {
	h := newTestHandler(t, Dependencies{Upstream: stubUpstream{err: &llm.ProviderError{Provider: "gemini", StatusCode: 401, Reason: llm.ReasonStatus}}})

	w := doJSON(t, h, http.MethodGet, "/readyz", "", false)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Error.Code != "not_ready" {
		t.Fatalf("unexpected code: %s", resp.Error.Code)
	}
	if resp.Error.Details["upstream_status"] != float64(401) {
		t.Fatalf("expected upstream status in details, got %+v", resp.Error.Details)
	}
}

func TestReadyzOK(t *testing.T) {
	h := newTestHandler(t, Dependencies{})

	w := doJSON(t, h, http.MethodGet, "/readyz", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok":true`) || !strings.Contains(w.Body.String(), `"provider":"gemini"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestProtectedRoutesRequireServiceToken(t *testing.T) {
	ext := &stubExtraction{}
	h := newTestHandler(t, Dependencies{Extraction: ext})

	for _, path := range []string{"/extract", "/chat"} {
		w := doJSON(t, h, http.MethodPost, path, validExtractBody, false)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: unexpected status: %d", path, w.Code)
		}
		if resp := decodeError(t, w); resp.Error.Code != "unauthorized" {
			t.Fatalf("%s: unexpected code: %s", path, resp.Error.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(validExtractBody))
	req.Header.Set(serviceTokenHeader, "wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: unexpected status: %d", w.Code)
	}
	if ext.calls != 0 {
		t.Fatalf("extraction should not run without auth")
	}
}

func TestExtractReturnsRecipe(t *testing.T) {
	ext := &stubExtraction{result: extraction.Result{
		Recipe: recipe.Recipe{
			Title:       "Pasta",
			Description: strPtr("Simple pasta"),
			Ingredients: []recipe.Ingredient{{Qty: "200", Unit: "g", Item: "pasta"}, {Qty: recipe.QtyToTaste, Unit: "", Item: "salt"}},
			Steps:       []recipe.Step{{Index: 1, Text: "Boil pasta", TimestampSec: 12}},
		},
		Stage:      extraction.StageStrict,
		ModelCalls: 1,
	}}
	h := newTestHandler(t, Dependencies{Extraction: ext})

	w := doJSON(t, h, http.MethodPost, "/extract", `{"source_type":"youtube","source_ref":"abc123","transcript":"boil pasta","options":{"lang":"en"}}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", w.Code, w.Body.String())
	}
	if ext.input.SourceRef != "abc123" || ext.input.Transcript != "boil pasta" || ext.input.Options["lang"] != "en" {
		t.Fatalf("unexpected extraction input: %+v", ext.input)
	}

	var resp model.ExtractResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Title != "Pasta" || resp.Description == nil || *resp.Description != "Simple pasta" {
		t.Fatalf("unexpected recipe: %+v", resp)
	}
	if len(resp.Ingredients) != 2 || resp.Ingredients[1].Qty != "To taste" {
		t.Fatalf("unexpected ingredients: %+v", resp.Ingredients)
	}
	if !strings.Contains(w.Body.String(), `"timestamp_sec":12`) {
		t.Fatalf("expected snake_case timestamp key: %s", w.Body.String())
	}
}

func TestExtractRejectsMissingFields(t *testing.T) {
	ext := &stubExtraction{}
	h := newTestHandler(t, Dependencies{Extraction: ext})

	cases := map[string]string{
		"source_type": `{"source_ref":"r","transcript":"t"}`,
		"source_ref":  `{"source_type":"youtube","transcript":"t"}`,
		"transcript":  `{"source_type":"youtube","source_ref":"r","transcript":"   "}`,
	}
	for field, body := range cases {
		w := doJSON(t, h, http.MethodPost, "/extract", body, true)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: unexpected status: %d", field, w.Code)
		}
		resp := decodeError(t, w)
		if resp.Error.Code != "invalid_request" || resp.Error.Details["field"] != field {
			t.Fatalf("%s: unexpected error: %+v", field, resp.Error)
		}
	}
	if ext.calls != 0 {
		t.Fatalf("extraction should not be called for invalid requests")
	}
}

func TestExtractRejectsMalformedJSON(t *testing.T) {
	h := newTestHandler(t, Dependencies{})

	w := doJSON(t, h, http.MethodPost, "/extract", `{"source_type":`, true)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/extract", validExtractBody+`{}`, true)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("trailing value: unexpected status: %d", w.Code)
	}
}

func TestExtractRejectsOversizedBody(t *testing.T) {
	h := newTestHandler(t, Dependencies{})

	body := `{"source_type":"youtube","source_ref":"r","transcript":"` + strings.Repeat("a", 70*1024) + `"}`
	w := doJSON(t, h, http.MethodPost, "/extract", body, true)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status: %d", w.Code)
	}
}

func TestExtractErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "declined",
			err:        recipe.Declined("no recipe in this video"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "extraction_declined",
			wantMsg:    "Recipe extraction failed: no recipe in this video",
		},
		{
			name:       "structural",
			err:        recipe.Structural("title", "'title' is required"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "invalid_recipe",
			wantMsg:    "Invalid response format: 'title' is required",
		},
		{
			name:       "recovery exhausted",
			err:        recipe.RecoveryExhausted(errors.New("unexpected end of JSON input")),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "invalid_json",
			wantMsg:    "Invalid JSON response after repair attempt",
		},
		{
			name:       "model unavailable",
			err:        recipe.ModelUnavailable(&llm.ProviderError{Provider: "gemini", StatusCode: 500, Reason: llm.ReasonStatus}),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "model_unavailable",
			wantMsg:    "model unavailable",
		},
		{
			name:       "internal",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
			wantMsg:    "Internal error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, Dependencies{Extraction: &stubExtraction{err: tc.err}})
			w := doJSON(t, h, http.MethodPost, "/extract", validExtractBody, true)
			if w.Code != tc.wantStatus {
				t.Fatalf("unexpected status: %d", w.Code)
			}
			resp := decodeError(t, w)
			if resp.Error.Code != tc.wantCode || resp.Error.Message != tc.wantMsg {
				t.Fatalf("unexpected error: %+v", resp.Error)
			}
			if resp.RequestID == "" {
				t.Fatalf("expected request id in error body")
			}
		})
	}
}

func TestModelUnavailableDetailsCarryUpstreamStatus(t *testing.T) {
	err := recipe.ModelUnavailable(&llm.ProviderError{Provider: "openai", StatusCode: 429, Reason: llm.ReasonStatus, Body: "rate limited"})
	h := newTestHandler(t, Dependencies{Extraction: &stubExtraction{err: err}})

	w := doJSON(t, h, http.MethodPost, "/extract", validExtractBody, true)
	resp := decodeError(t, w)
	if resp.Error.Details["upstream_status"] != float64(429) || resp.Error.Details["provider"] != "openai" {
		t.Fatalf("unexpected details: %+v", resp.Error.Details)
	}
}

func TestChatForwardsContext(t *testing.T) {
	chatSvc := &stubChat{result: chat.Result{Message: "Use medium heat."}}
	metrics := &stubMetrics{}
	h := newTestHandler(t, Dependencies{Chat: chatSvc, Metrics: metrics})

	body := `{
		"recipe_id":"r1",
		"title":"Pasta",
		"description":"Simple",
		"ingredients":[{"qty":"200","unit":"g","item":"pasta"}],
		"steps":[{"text":"Boil water","index":1},{"text":"Cook pasta"}],
		"message":"How hot?",
		"current_step_index":1
	}`
	w := doJSON(t, h, http.MethodPost, "/chat", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", w.Code, w.Body.String())
	}

	var resp model.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Use medium heat." {
		t.Fatalf("unexpected message: %q", resp.Message)
	}

	in := chatSvc.input
	if in.RecipeID != "r1" || in.UserMessage != "How hot?" || len(in.Ingredients) != 1 || len(in.Steps) != 2 {
		t.Fatalf("unexpected chat input: %+v", in)
	}
	if in.Steps[0].Index == nil || *in.Steps[0].Index != 1 || in.Steps[1].Index != nil {
		t.Fatalf("unexpected step indexes: %+v", in.Steps)
	}
	if in.CurrentStepIndex == nil || *in.CurrentStepIndex != 1 {
		t.Fatalf("unexpected current step: %v", in.CurrentStepIndex)
	}
	if len(metrics.chatOutcomes) != 1 || metrics.chatOutcomes[0] != "ok" {
		t.Fatalf("unexpected chat outcomes: %v", metrics.chatOutcomes)
	}
}

func TestChatRequiresMessage(t *testing.T) {
	chatSvc := &stubChat{}
	h := newTestHandler(t, Dependencies{Chat: chatSvc})

	w := doJSON(t, h, http.MethodPost, "/chat", `{"recipe_id":"r1","title":"Pasta","message":"  "}`, true)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if chatSvc.input.UserMessage != "" {
		t.Fatalf("chat service should not be called")
	}
}

func TestChatModelFailureMapsTo503(t *testing.T) {
	metrics := &stubMetrics{}
	chatSvc := &stubChat{err: recipe.ModelUnavailable(errors.New("timeout"))}
	h := newTestHandler(t, Dependencies{Chat: chatSvc, Metrics: metrics})

	w := doJSON(t, h, http.MethodPost, "/chat", `{"title":"Pasta","message":"Why?"}`, true)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if len(metrics.chatOutcomes) != 1 || metrics.chatOutcomes[0] != "model_unavailable" {
		t.Fatalf("unexpected chat outcomes: %v", metrics.chatOutcomes)
	}
}

func TestCORSPreflightAllowsFrontendOrigin(t *testing.T) {
	h := newTestHandler(t, Dependencies{})

	req := httptest.NewRequest(http.MethodOptions, "/extract", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-Service-Token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin: %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("unexpected allow credentials: %q", got)
	}
	if w.Code == http.StatusUnauthorized {
		t.Fatalf("preflight must not require the service token")
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newTestHandler(t, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "rid-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "rid-1" {
		t.Fatalf("unexpected request id: %q", got)
	}

	w = doJSON(t, h, http.MethodGet, "/health", "", false)
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestMetricsObservesRoutePattern(t *testing.T) {
	metrics := &stubMetrics{}
	h := newTestHandler(t, Dependencies{Metrics: metrics})

	doJSON(t, h, http.MethodGet, "/health", "", false)
	if len(metrics.httpRoutes) != 1 || metrics.httpRoutes[0] != "/health" {
		t.Fatalf("unexpected routes: %v", metrics.httpRoutes)
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	h := newTestHandler(t, Dependencies{})

	w := doJSON(t, h, http.MethodGet, "/nope", "", false)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != "not_found" {
		t.Fatalf("unexpected code: %s", resp.Error.Code)
	}
}
