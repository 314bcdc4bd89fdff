package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a vector store provider.
type Config struct {
	// Provider is "chromem" (default) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "chromem"
	}
	c.Chromem.ApplyDefaults()
	c.Qdrant.ApplyDefaults()
}

// Validate validates the selected provider's configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case "chromem", "":
		return c.Chromem.Validate()
	case "qdrant":
		return c.Qdrant.Validate()
	default:
		return fmt.Errorf("%w: unsupported provider %q (supported: chromem, qdrant)", ErrInvalidConfig, c.Provider)
	}
}

// NewStore creates the Store named by cfg.Provider.
func NewStore(ctx context.Context, cfg Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(cfg.Chromem, embedder, logger.Named("chromem"))
	case "qdrant":
		return NewQdrantStore(ctx, cfg.Qdrant, embedder, logger.Named("qdrant"))
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}
