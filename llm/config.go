package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Config selects and tunes the model backend.
type Config struct {
	// Provider is "openai", "gemini" or "none". Default: "none".
	Provider string `json:"provider" yaml:"provider"`

	// Endpoint is the base URL of an OpenAI-compatible server, or an
	// override of the Gemini API base.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	Model string `json:"model" yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"api_key_env" yaml:"api_key_env"`

	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`

	// Timeout bounds each call. Default: 60s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// BreakerThreshold consecutive failures open the breaker for BreakerReset.
	BreakerThreshold int           `json:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerReset     time.Duration `json:"breaker_reset" yaml:"breaker_reset"`
}

func (c *Config) defaults() {
	if c.Provider == "" {
		c.Provider = "none"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2048
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 3
	}
	if c.BreakerReset <= 0 {
		c.BreakerReset = time.Minute
	}
	if c.APIKeyEnv == "" {
		switch c.Provider {
		case "gemini":
			c.APIKeyEnv = "GEMINI_API_KEY"
		case "openai":
			c.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if c.Model == "" && c.Provider == "gemini" {
		c.Model = "gemini-2.5-flash"
	}
}

// Backend is what New builds: a guarded Client and, when the provider
// supports images, a Vision.
type Backend struct {
	Client      Client
	Vision      Vision
	Temperature float64
	MaxTokens   int
}

// New builds the backend described by cfg. Provider "none" yields a
// Disabled client, which sends every scorer straight to its heuristic.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backend, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	b := &Backend{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}
	apiKey := os.Getenv(cfg.APIKeyEnv)

	var raw Client
	switch cfg.Provider {
	case "none":
		b.Client = Disabled{}
		return b, nil
	case "openai":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("llm: openai provider needs an endpoint")
		}
		raw = NewOpenAI(cfg.Endpoint, cfg.Model, apiKey, logger)
	case "gemini":
		g, err := NewGemini(ctx, apiKey, cfg.Model, cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		raw = g
		b.Vision = g
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}

	breaker := NewBreaker(WithBreakerThreshold(cfg.BreakerThreshold), WithBreakerResetTimeout(cfg.BreakerReset))
	b.Client = NewGuard(raw, cfg.Timeout, breaker, logger)
	logger.Info("llm: backend ready", "provider", cfg.Provider, "model", cfg.Model)
	return b, nil
}
