package embeddings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is an Embedder with a known output dimension.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// Config selects and configures an embedding provider.
type Config struct {
	// Provider is one of fastembed (default), tei, ollama, openai.
	Provider string `koanf:"provider"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// BaseURL is the server URL for tei, ollama and openai-compatible APIs.
	BaseURL string `koanf:"base_url"`

	// APIKey is used by openai.
	APIKey string `koanf:"api_key"`

	// CacheDir is the fastembed model cache directory.
	CacheDir string `koanf:"cache_dir"`

	// Dimension overrides the dimension inferred from the model name.
	Dimension int `koanf:"dimension"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "fastembed"
	}
	if c.Model == "" {
		switch c.Provider {
		case "ollama":
			c.Model = "nomic-embed-text"
		case "openai":
			c.Model = "text-embedding-3-small"
		default:
			c.Model = "BAAI/bge-small-en-v1.5"
		}
	}
	if c.BaseURL == "" {
		switch c.Provider {
		case "tei":
			c.BaseURL = "http://localhost:8080"
		case "ollama":
			c.BaseURL = "http://localhost:11434"
		}
	}
	if c.CacheDir == "" {
		c.CacheDir = "~/.cache/lexflow/models"
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	switch c.Provider {
	case "fastembed", "":
	case "tei", "ollama":
		if c.BaseURL == "" {
			return fmt.Errorf("%w: base URL required for %s", ErrInvalidConfig, c.Provider)
		}
	case "openai":
		if c.APIKey == "" {
			return fmt.Errorf("%w: api key required for openai", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	return nil
}

// dimensionForModel returns the embedding dimension for a model name,
// falling back to 384.
func dimensionForModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "text-embedding-3-large"):
		return 3072
	case strings.Contains(m, "text-embedding-3-small"), strings.Contains(m, "ada-002"):
		return 1536
	case strings.Contains(m, "nomic-embed"), strings.Contains(m, "base"):
		return 768
	case strings.Contains(m, "large"):
		return 1024
	default:
		return 384
	}
}

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg Config, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = dimensionForModel(cfg.Model)
	}
	metrics := NewMetrics(logger)

	switch cfg.Provider {
	case "fastembed":
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "tei":
		p, err := NewTEIProvider(cfg, dim, metrics)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "ollama":
		llm, err := ollama.New(ollama.WithServerURL(cfg.BaseURL), ollama.WithModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("creating ollama client: %w", err)
		}
		e, err := embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("creating ollama embedder: %w", err)
		}
		return NewLangchainProvider(e, cfg.Model, dim, metrics), nil
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithEmbeddingModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		e, err := embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("creating openai embedder: %w", err)
		}
		return NewLangchainProvider(e, cfg.Model, dim, metrics), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
