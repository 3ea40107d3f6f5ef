package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recipeflow/internal/chat"
	"recipeflow/internal/config"
	"recipeflow/internal/extraction"
	"recipeflow/internal/httpapi"
	"recipeflow/internal/llm"
	"recipeflow/internal/observability"
	"recipeflow/internal/recipe"
	"recipeflow/internal/upstream/gemini"
	"recipeflow/internal/upstream/openai"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "recipeflow"

type modelProvider interface {
	llm.Generator
	CheckModels(ctx context.Context) error
}

func main() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "dotenv error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()

	shutdownTracing, err := observability.InitTracing(context.Background(), logger, cfg.Tracing, serviceName)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	upstreamHTTPClient := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: otelhttp.NewTransport(transport),
	}

	var provider modelProvider
	switch cfg.ModelProvider {
	case config.ProviderOpenAI:
		provider = openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, upstreamHTTPClient,
			openai.WithObserver(metrics.UpstreamObserver(config.ProviderOpenAI)))
	default:
		provider = gemini.New(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel, upstreamHTTPClient,
			gemini.WithObserver(metrics.UpstreamObserver(config.ProviderGemini)))
	}
	generator := llm.Instrument(provider, cfg.ModelProvider, cfg.ModelName(), cfg.ModelTimeout)

	conformance, err := recipe.NewConformance()
	if err != nil {
		logger.Error("recipe schema compile failed", "error", err)
		os.Exit(1)
	}

	extractionService := extraction.New(generator, cfg.RequestTimeout, logger,
		extraction.WithConformance(conformance),
		extraction.WithLocalRepair(cfg.JSONLocalRepair),
		extraction.WithOutcomeObserver(metrics.ObserveExtraction),
	)
	chatService := chat.New(generator, cfg.ModelTimeout)

	handler := httpapi.NewServer(cfg, logger, httpapi.Dependencies{
		Extraction:     extractionService,
		Chat:           chatService,
		Upstream:       provider,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           otelhttp.NewHandler(handler, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", cfg.ListenAddr,
			"provider", cfg.ModelProvider,
			"model", cfg.ModelName(),
			"local_repair", cfg.JSONLocalRepair,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
