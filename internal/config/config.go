package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	ListenAddr      string
	ModelProvider   string
	GeminiAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	ServiceToken    string
	FrontendOrigin  string
	RequestTimeout  time.Duration
	ModelTimeout    time.Duration
	MaxBodyBytes    int64
	JSONLocalRepair bool
	LogLevel        string
	Tracing         TracingConfig
}

type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRatio  float64
}

type envConfig struct {
	ListenAddr            string  `env:"LISTEN_ADDR" envDefault:":8004"`
	ModelProvider         string  `env:"MODEL_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey          string  `env:"GEMINI_API_KEY"`
	GeminiModel           string  `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiBaseURL         string  `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	OpenAIAPIKey          string  `env:"OPENAI_API_KEY"`
	OpenAIModel           string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL         string  `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	ServiceToken          string  `env:"SERVICE_TOKEN"`
	FrontendOrigin        string  `env:"FRONTEND_ORIGIN" envDefault:"http://localhost:5173"`
	RequestTimeoutSeconds int     `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"60"`
	ModelTimeoutSeconds   int     `env:"MODEL_TIMEOUT_SECONDS" envDefault:"45"`
	MaxBodyBytes          int64   `env:"MAX_BODY_BYTES" envDefault:"2097152"`
	JSONLocalRepair       bool    `env:"JSON_LOCAL_REPAIR" envDefault:"false"`
	LogLevel              string  `env:"LOG_LEVEL" envDefault:"info"`
	TracingEnabled        bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint          string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SampleRatio           float64 `env:"OTEL_SAMPLER_RATIO" envDefault:"0.1"`
}

func Load() (Config, error) {
	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      strings.TrimSpace(raw.ListenAddr),
		ModelProvider:   strings.ToLower(strings.TrimSpace(raw.ModelProvider)),
		GeminiAPIKey:    strings.TrimSpace(raw.GeminiAPIKey),
		GeminiModel:     strings.TrimSpace(raw.GeminiModel),
		GeminiBaseURL:   strings.TrimRight(strings.TrimSpace(raw.GeminiBaseURL), "/"),
		OpenAIAPIKey:    strings.TrimSpace(raw.OpenAIAPIKey),
		OpenAIModel:     strings.TrimSpace(raw.OpenAIModel),
		OpenAIBaseURL:   strings.TrimRight(strings.TrimSpace(raw.OpenAIBaseURL), "/"),
		ServiceToken:    strings.TrimSpace(raw.ServiceToken),
		FrontendOrigin:  strings.TrimRight(strings.TrimSpace(raw.FrontendOrigin), "/"),
		RequestTimeout:  time.Duration(raw.RequestTimeoutSeconds) * time.Second,
		ModelTimeout:    time.Duration(raw.ModelTimeoutSeconds) * time.Second,
		MaxBodyBytes:    raw.MaxBodyBytes,
		JSONLocalRepair: raw.JSONLocalRepair,
		LogLevel:        strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		Tracing: TracingConfig{
			Enabled:      raw.TracingEnabled,
			OTLPEndpoint: strings.TrimSpace(raw.OTLPEndpoint),
			SampleRatio:  clampRatio(raw.SampleRatio),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	switch c.ModelProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY environment variable is required")
		}
		if c.GeminiModel == "" {
			return errors.New("GEMINI_MODEL must not be empty")
		}
		if c.GeminiBaseURL == "" {
			return errors.New("GEMINI_BASE_URL must not be empty")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY environment variable is required")
		}
		if c.OpenAIModel == "" {
			return errors.New("OPENAI_MODEL must not be empty")
		}
		if c.OpenAIBaseURL == "" {
			return errors.New("OPENAI_BASE_URL must not be empty")
		}
	default:
		return fmt.Errorf("MODEL_PROVIDER must be %q or %q, got %q", ProviderGemini, ProviderOpenAI, c.ModelProvider)
	}
	if c.ServiceToken == "" {
		return errors.New("SERVICE_TOKEN environment variable is required")
	}
	if c.FrontendOrigin == "" {
		return errors.New("FRONTEND_ORIGIN must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT_SECONDS must be > 0")
	}
	if c.ModelTimeout <= 0 {
		return errors.New("MODEL_TIMEOUT_SECONDS must be > 0")
	}
	if c.ModelTimeout > c.RequestTimeout {
		return errors.New("MODEL_TIMEOUT_SECONDS must not exceed REQUEST_TIMEOUT_SECONDS")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTES must be > 0")
	}
	return nil
}

// ModelName returns the model identifier of the configured provider.
func (c Config) ModelName() string {
	if c.ModelProvider == ProviderOpenAI {
		return c.OpenAIModel
	}
	return c.GeminiModel
}

func clampRatio(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
