package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/corpus"
	"github.com/fyrsmithlabs/lexflow/internal/vectorstore"
)

// Client searches the vector index and joins hits to corpus records.
type Client struct {
	vectors vectorstore.Store
	records RecordLookup
	logger  *zap.Logger
}

// NewClient creates a Client. records may be nil, in which case hits carry
// the text stored in the vector index.
func NewClient(vectors vectorstore.Store, records RecordLookup, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{vectors: vectors, records: records, logger: logger}
}

// Search runs a similarity search for query and returns at most topK hits.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	results, err := c.vectors.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hit := Hit{
			ID:       r.ID,
			Score:    float64(r.Score),
			Text:     r.Content,
			Metadata: r.Metadata,
		}
		hit.Title, _ = r.Metadata["title"].(string)
		chapter, _ := r.Metadata["cap"].(string)
		number, _ := r.Metadata["section"].(string)
		hit.Source = corpus.Label(chapter, number, hit.Title, r.ID)

		if c.records != nil {
			sec, err := c.records.Get(ctx, r.ID)
			switch {
			case err == nil:
				hit.Text = sec.Text
				hit.Title = sec.Title
				hit.Source = sec.Label()
			case errors.Is(err, corpus.ErrNotFound):
				c.logger.Debug("hit has no corpus record", zap.String("id", r.ID))
			default:
				return nil, fmt.Errorf("loading record %s: %w", r.ID, err)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Record returns the full corpus record for id.
func (c *Client) Record(ctx context.Context, id string) (corpus.Section, error) {
	if c.records == nil {
		return corpus.Section{}, fmt.Errorf("%w: %s", corpus.ErrNotFound, id)
	}
	return c.records.Get(ctx, id)
}

var _ Searcher = (*Client)(nil)
