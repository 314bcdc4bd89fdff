package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
)

// LangchainProvider adapts a langchaingo embedder (Ollama, OpenAI) to Provider.
type LangchainProvider struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	metrics   *Metrics
}

// NewLangchainProvider wraps e. metrics may be nil.
func NewLangchainProvider(e embeddings.Embedder, model string, dimension int, metrics *Metrics) *LangchainProvider {
	return &LangchainProvider{embedder: e, model: model, dimension: dimension, metrics: metrics}
}

// EmbedDocuments embeds texts.
func (p *LangchainProvider) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() { p.metrics.Record(ctx, p.model, "embed_documents", time.Since(start), len(texts), err) }()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err = p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// EmbedQuery embeds a single query.
func (p *LangchainProvider) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	start := time.Now()
	defer func() { p.metrics.Record(ctx, p.model, "embed_query", time.Since(start), 1, err) }()

	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vector, err = p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

// Dimension returns the configured embedding dimension.
func (p *LangchainProvider) Dimension() int { return p.dimension }

// Close is a no-op; langchaingo clients hold no resources.
func (p *LangchainProvider) Close() error { return nil }
