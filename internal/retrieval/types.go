package retrieval

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/lexflow/internal/corpus"
)

var (
	// ErrSearchFailed is returned when every query of a request failed.
	ErrSearchFailed = errors.New("search failed")

	// ErrInvalidRequest indicates a malformed retrieval request.
	ErrInvalidRequest = errors.New("invalid retrieval request")
)

// Hit is one similarity match as returned by a Searcher.
type Hit struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text,omitempty"`
	Title    string         `json:"title,omitempty"`
	Source   string         `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Passage is a retrieved, de-duplicated unit of corpus text.
type Passage struct {
	ID          string         `json:"id"`
	Text        string         `json:"text"`
	Source      string         `json:"source"`
	Title       string         `json:"title,omitempty"`
	Score       float64        `json:"score"`
	OriginQuery string         `json:"origin_query"`
	Queries     []string       `json:"queries"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Searcher runs one similarity search.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Hit, error)
}

// RecordLookup resolves a section id to its full record.
type RecordLookup interface {
	Get(ctx context.Context, id string) (corpus.Section, error)
}

// Versioner reports the current corpus version.
type Versioner interface {
	Version(ctx context.Context) (int64, error)
}

// Request is a multi-query retrieval request.
type Request struct {
	Queries      []string `json:"queries" validate:"required,min=1,dive,required"`
	TopKPerQuery int      `json:"top_k" validate:"gte=0,lte=100"`
	// MinScore is the score floor; nil uses the pipeline default.
	MinScore *float64 `json:"min_score,omitempty" validate:"omitempty,gte=-1,lte=1"`
}
