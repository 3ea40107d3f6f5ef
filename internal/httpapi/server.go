package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"recipeflow/internal/chat"
	"recipeflow/internal/config"
	"recipeflow/internal/extraction"
	"recipeflow/internal/llm"
	"recipeflow/internal/model"
	"recipeflow/internal/recipe"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

const serviceName = "recipeflow"

type ExtractionService interface {
	Extract(ctx context.Context, req recipe.ExtractionRequest) (extraction.Result, error)
}

type ChatService interface {
	Respond(ctx context.Context, c recipe.ChatContext) (chat.Result, error)
}

type UpstreamChecker interface {
	CheckModels(ctx context.Context) error
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
	ObserveChat(outcome string)
}

type Dependencies struct {
	Extraction     ExtractionService
	Chat           ChatService
	Upstream       UpstreamChecker
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	extraction   ExtractionService
	chat         ChatService
	upstream     UpstreamChecker
	metrics      MetricsObserver
	metricsRoute http.Handler
}

type ctxKey string

const (
	requestIDHeader    = "X-Request-Id"
	serviceTokenHeader = "X-Service-Token"
	requestIDContext   = ctxKey("request_id")
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Extraction == nil || deps.Chat == nil || deps.Upstream == nil {
		panic("httpapi: all dependencies are required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		extraction:   deps.Extraction,
		chat:         deps.Chat,
		upstream:     deps.Upstream,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/extract", s.handleExtract)
		r.Post("/chat", s.handleChat)
	})

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{Status: "healthy", Service: serviceName})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.upstream.CheckModels(ctx); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "not_ready", "model provider check failed", detailsForError(err))
		return
	}
	writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: serviceName, Provider: s.cfg.ModelProvider})
}

func (s *server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req model.ExtractRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if field := firstBlank(map[string]string{
		"source_type": req.SourceType,
		"source_ref":  req.SourceRef,
		"transcript":  req.Transcript,
	}, "source_type", "source_ref", "transcript"); field != "" {
		s.writeMappedError(w, r, recipe.Invalid(field, "%s is required", field))
		return
	}

	result, err := s.extraction.Extract(r.Context(), recipe.ExtractionRequest{
		SourceType: req.SourceType,
		SourceRef:  req.SourceRef,
		Transcript: req.Transcript,
		Options:    req.Options,
	})
	if err != nil {
		s.logger.Warn("extract_failed",
			"request_id", requestIDFromContext(r.Context()),
			"source_type", req.SourceType,
			"kind", recipe.KindOf(err),
			"error", err,
		)
		s.writeMappedError(w, r, err)
		return
	}

	s.logger.Info("extract_completed",
		"request_id", requestIDFromContext(r.Context()),
		"source_type", req.SourceType,
		"stage", result.Stage,
		"model_calls", result.ModelCalls,
		"ingredients", len(result.Recipe.Ingredients),
		"steps", len(result.Recipe.Steps),
		"tokens_total", totalTokens(result.Usage),
	)
	writeJSON(w, http.StatusOK, toExtractResponse(result.Recipe))
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeMappedError(w, r, recipe.Invalid("message", "message is required"))
		return
	}

	result, err := s.chat.Respond(r.Context(), toChatContext(req))
	if err != nil {
		s.observeChat(string(recipe.KindOf(err)))
		s.logger.Warn("chat_failed",
			"request_id", requestIDFromContext(r.Context()),
			"recipe_id", req.RecipeID,
			"kind", recipe.KindOf(err),
			"error", err,
		)
		s.writeMappedError(w, r, err)
		return
	}
	s.observeChat("ok")
	writeJSON(w, http.StatusOK, model.ChatResponse{Message: result.Message})
}

func (s *server) observeChat(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveChat(outcome)
	}
}

func (s *server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return false
	}
	if err := ensureBodyFullyConsumed(decoder); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return false
	}
	return true
}

func (s *server) handleJSONDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", fmt.Sprintf("request exceeds %d bytes", s.cfg.MaxBodyBytes), nil)
		return
	}
	s.writeError(w, r, http.StatusUnprocessableEntity, string(recipe.KindValidation), "invalid JSON body", map[string]any{"error": err.Error()})
}

// writeMappedError translates the error taxonomy into HTTP statuses.
func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	kind := recipe.KindInternal
	message := "Internal error"
	details := map[string]any{}

	var e *recipe.Error
	if errors.As(err, &e) {
		kind = e.Kind
		message = e.Message
		if e.Field != "" {
			details["field"] = e.Field
		}
	}

	switch kind {
	case recipe.KindAuth:
		status = http.StatusUnauthorized
	case recipe.KindValidation, recipe.KindDeclined:
		status = http.StatusUnprocessableEntity
	case recipe.KindStructural:
		status = http.StatusUnprocessableEntity
		message = "Invalid response format: " + message
	case recipe.KindJSONRecoveryExhausted:
		status = http.StatusUnprocessableEntity
		if e != nil && e.Err != nil {
			details["error"] = e.Err.Error()
		}
	case recipe.KindModelUnavailable:
		status = http.StatusServiceUnavailable
		if e != nil {
			for k, v := range detailsForError(e.Err) {
				details[k] = v
			}
		}
	default:
		kind = recipe.KindInternal
		message = "Internal error"
	}

	if len(details) == 0 {
		details = nil
	}
	s.writeError(w, r, status, string(kind), message, details)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{
		Error:     model.APIError{Code: code, Message: message, Details: details},
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(serviceTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.ServiceToken)) != 1 {
			s.writeMappedError(w, r, &recipe.Error{Kind: recipe.KindAuth, Message: "Invalid service token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func ensureBodyFullyConsumed(decoder *json.Decoder) error {
	var extra any
	if err := decoder.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple JSON values")
		}
		return err
	}
	return nil
}

func firstBlank(values map[string]string, order ...string) string {
	for _, key := range order {
		if strings.TrimSpace(values[key]) == "" {
			return key
		}
	}
	return ""
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func toExtractResponse(r recipe.Recipe) model.ExtractResponse {
	out := model.ExtractResponse{
		Title:       r.Title,
		Description: r.Description,
		Ingredients: make([]model.Ingredient, 0, len(r.Ingredients)),
		Steps:       make([]model.Step, 0, len(r.Steps)),
	}
	for _, ing := range r.Ingredients {
		out.Ingredients = append(out.Ingredients, model.Ingredient{Qty: ing.Qty, Unit: ing.Unit, Item: ing.Item})
	}
	for _, st := range r.Steps {
		out.Steps = append(out.Steps, model.Step{Index: st.Index, Text: st.Text, TimestampSec: st.TimestampSec})
	}
	return out
}

func toChatContext(req model.ChatRequest) recipe.ChatContext {
	c := recipe.ChatContext{
		RecipeID:         req.RecipeID,
		Title:            req.Title,
		Description:      req.Description,
		Ingredients:      make([]recipe.Ingredient, 0, len(req.Ingredients)),
		Steps:            make([]recipe.ChatStep, 0, len(req.Steps)),
		UserMessage:      req.Message,
		CurrentStepIndex: req.CurrentStepIndex,
	}
	for _, ing := range req.Ingredients {
		c.Ingredients = append(c.Ingredients, recipe.Ingredient{Qty: ing.Qty, Unit: ing.Unit, Item: ing.Item})
	}
	for _, st := range req.Steps {
		c.Steps = append(c.Steps, recipe.ChatStep{Text: st.Text, Index: st.Index})
	}
	return c
}

func totalTokens(u *llm.TokenUsage) int {
	if u == nil {
		return 0
	}
	return u.TotalTokens
}

func detailsForError(err error) map[string]any {
	if err == nil {
		return nil
	}
	details := map[string]any{"error": err.Error()}
	var providerErr *llm.ProviderError
	if errors.As(err, &providerErr) {
		details["provider"] = providerErr.Provider
		details["reason"] = providerErr.Reason
		if providerErr.StatusCode != 0 {
			details["upstream_status"] = providerErr.StatusCode
		}
		if providerErr.Body != "" {
			details["upstream_body"] = providerErr.Body
		}
	}
	return details
}
