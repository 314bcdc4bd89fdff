package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("lexflow.generation")

var (
	// ErrGeneration wraps failures reported by the model backend.
	ErrGeneration = errors.New("generation failed")

	// ErrTimeout indicates the call exceeded its deadline.
	ErrTimeout = errors.New("generation timed out")

	// ErrEmptyResponse indicates the model returned no usable text.
	ErrEmptyResponse = errors.New("empty generation response")

	// ErrUnavailable indicates the circuit breaker is open.
	ErrUnavailable = errors.New("generation backend unavailable")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Config configures the LLM generator.
type Config struct {
	// Provider is ollama (default) or openai.
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`

	// SystemPrompt is sent as the system message of every call.
	SystemPrompt string `koanf:"system_prompt"`

	Timeout     time.Duration `koanf:"timeout"`
	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`

	// RateLimit is requests per second; Burst the bucket size.
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`

	// BreakerThreshold consecutive failures open the breaker for BreakerTimeout.
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// DefaultSystemPrompt frames every call as legal research assistance.
const DefaultSystemPrompt = "You are a careful legal research assistant. Answer only from the material provided and cite sources by their labels."

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "ollama"
	}
	if c.Model == "" {
		switch c.Provider {
		case "openai":
			c.Model = "gpt-4o-mini"
		default:
			c.Model = "llama3.1"
		}
	}
	if c.BaseURL == "" && c.Provider == "ollama" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.RateLimit == 0 {
		c.RateLimit = 50.0 / 60.0
	}
	if c.Burst == 0 {
		c.Burst = 5
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerTimeout == 0 {
		c.BreakerTimeout = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	switch c.Provider {
	case "ollama":
		if c.BaseURL == "" {
			return fmt.Errorf("%w: base URL required for ollama", ErrInvalidConfig)
		}
	case "openai":
		if c.APIKey == "" {
			return fmt.Errorf("%w: api key required for openai", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be in [0,2]", ErrInvalidConfig)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidConfig)
	}
	return nil
}

// NewModel builds the langchaingo model named by cfg.Provider.
func NewModel(cfg Config) (llms.Model, error) {
	switch cfg.Provider {
	case "ollama":
		m, err := ollama.New(ollama.WithServerURL(cfg.BaseURL), ollama.WithModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("creating ollama model: %w", err)
		}
		return m, nil
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating openai model: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// LLMGenerator calls a langchaingo model.
type LLMGenerator struct {
	model   llms.Model
	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// New builds the configured model and wraps it.
func New(cfg Config, logger *zap.Logger) (*LLMGenerator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return NewLLMGenerator(model, cfg, logger), nil
}

// NewLLMGenerator wraps an existing model.
func NewLLMGenerator(model llms.Model, cfg Config, logger *zap.Logger) *LLMGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	g := &LLMGenerator{
		model:   model,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:  logger,
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "generation",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		// Caller cancellation says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return g
}

// Generate sends prompt as a single human message after the configured
// system prompt and returns the first choice's text.
func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "generation.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("prompt_chars", len(prompt)),
	)

	fail := func(err error) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return fail(fmt.Errorf("%w: waiting for rate limiter: %v", ErrTimeout, err))
	}

	start := time.Now()
	out, err := g.breaker.Execute(func() (interface{}, error) {
		resp, err := g.model.GenerateContent(ctx, []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, g.cfg.SystemPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		},
			llms.WithTemperature(g.cfg.Temperature),
			llms.WithMaxTokens(g.cfg.MaxTokens),
		)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Content, nil
	})
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fail(fmt.Errorf("%w: %v", ErrUnavailable, err))
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fail(fmt.Errorf("%w after %s: %v", ErrTimeout, g.cfg.Timeout, err))
	case err != nil:
		return fail(fmt.Errorf("%w: %v", ErrGeneration, err))
	}

	text := strings.TrimSpace(out.(string))
	if text == "" {
		return fail(ErrEmptyResponse)
	}

	span.SetAttributes(attribute.Int("response_chars", len(text)))
	span.SetStatus(codes.Ok, "success")
	g.logger.Debug("generation complete",
		zap.String("model", g.cfg.Model),
		zap.Duration("duration", elapsed),
		zap.Int("response_chars", len(text)),
	)
	return text, nil
}

var _ Generator = (*LLMGenerator)(nil)
