package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TEIProvider calls the /embed endpoint of a Text Embeddings Inference server.
type TEIProvider struct {
	baseURL   string
	model     string
	apiKey    string
	dimension int
	client    *http.Client
	metrics   *Metrics
}

type teiRequest struct {
	Inputs   any  `json:"inputs"`
	Truncate bool `json:"truncate"`
}

// NewTEIProvider creates a TEI provider. metrics may be nil.
func NewTEIProvider(cfg Config, dimension int, metrics *Metrics) (*TEIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return &TEIProvider{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		dimension: dimension,
		client:    &http.Client{Timeout: 60 * time.Second},
		metrics:   metrics,
	}, nil
}

// EmbedDocuments embeds texts in one request.
func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() { p.metrics.Record(ctx, p.model, "embed_documents", time.Since(start), len(texts), err) }()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err = p.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

// EmbedQuery embeds a single query.
func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	start := time.Now()
	defer func() { p.metrics.Record(ctx, p.model, "embed_query", time.Since(start), 1, err) }()

	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}
	return vectors[0], nil
}

func (p *TEIProvider) embed(ctx context.Context, inputs any) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(msg))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// Dimension returns the configured embedding dimension.
func (p *TEIProvider) Dimension() int { return p.dimension }

// Close is a no-op for HTTP providers.
func (p *TEIProvider) Close() error { return nil }
