package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("lexflow.retrieval")

// Config holds pipeline defaults.
type Config struct {
	// TopKPerQuery is the number of candidates fetched per query. Default: 5
	TopKPerQuery int `koanf:"top_k_per_query"`

	// MinScore drops candidates scoring below it. Nil means the default
	// 0.5; an explicit 0 keeps every non-negative candidate.
	MinScore *float64 `koanf:"min_score"`

	// MaxConcurrency bounds the number of in-flight searches. Default: 4
	MaxConcurrency int `koanf:"max_concurrency"`

	// Rerank enables term-overlap reranking after the merge.
	Rerank bool `koanf:"rerank"`

	// RerankWeight is the share of the overlap score in the rerank key. Default: 0.3
	RerankWeight float64 `koanf:"rerank_weight"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopKPerQuery == 0 {
		c.TopKPerQuery = 5
	}
	if c.MinScore == nil {
		c.MinScore = floatPtr(0.5)
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 4
	}
	if c.RerankWeight == 0 {
		c.RerankWeight = 0.3
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.TopKPerQuery < 1 || c.TopKPerQuery > 100 {
		return fmt.Errorf("%w: top_k_per_query must be in [1,100], got %d", ErrInvalidRequest, c.TopKPerQuery)
	}
	if c.MinScore != nil && (*c.MinScore < -1 || *c.MinScore > 1) {
		return fmt.Errorf("%w: min_score must be in [-1,1], got %g", ErrInvalidRequest, *c.MinScore)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("%w: max_concurrency must be positive", ErrInvalidRequest)
	}
	if c.RerankWeight < 0 || c.RerankWeight > 1 {
		return fmt.Errorf("%w: rerank_weight must be in [0,1]", ErrInvalidRequest)
	}
	return nil
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache memoizes per-query searches.
func WithCache(c Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithVersioner keys cache entries on the corpus version.
func WithVersioner(v Versioner) Option {
	return func(p *Pipeline) { p.versioner = v }
}

// Pipeline fans a request out across queries and merges the results.
type Pipeline struct {
	searcher  Searcher
	cfg       Config
	cache     Cache
	versioner Versioner
	logger    *zap.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(searcher Searcher, cfg Config, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	p := &Pipeline{searcher: searcher, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Retrieve runs one search per query, waits for all of them, drops hits
// below the score floor and merges duplicates.
//
// Passage ids in the result are unique. A duplicate keeps its highest score,
// the first query that surfaced it as OriginQuery, and every contributing
// query in first-seen order. Ties in score keep first-seen order (query
// index, then rank). A query whose search fails is logged and skipped; the
// call fails only when every query failed.
func (p *Pipeline) Retrieve(ctx context.Context, req Request) ([]Passage, error) {
	queries := normalizeQueries(req.Queries)
	topK := req.TopKPerQuery
	if topK <= 0 {
		topK = p.cfg.TopKPerQuery
	}
	minScore := *p.cfg.MinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}

	ctx, span := tracer.Start(ctx, "retrieval.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.Int("query_count", len(queries)),
		attribute.Int("top_k", topK),
		attribute.Float64("min_score", minScore),
	)

	if len(queries) == 0 {
		return []Passage{}, nil
	}

	version := p.corpusVersion(ctx)

	results := make([][]Hit, len(queries))
	errs := make([]error, len(queries))

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, q := range queries {
		g.Go(func() error {
			hits, err := p.search(ctx, i, q, topK, minScore, version)
			if err != nil {
				errs[i] = err
				p.logger.Warn("query search failed",
					zap.Int("query_index", i),
					zap.String("query", q),
					zap.Error(err),
				)
				return nil
			}
			results[i] = hits
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	failed := 0
	var firstErr error
	for _, err := range errs {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if failed == len(queries) {
		err := fmt.Errorf("%w: all %d queries failed: %w", ErrSearchFailed, failed, firstErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	passages := merge(queries, results, minScore)
	if p.cfg.Rerank {
		passages = rerank(queries, passages, p.cfg.RerankWeight)
	}

	span.SetAttributes(
		attribute.Int("passage_count", len(passages)),
		attribute.Int("failed_queries", failed),
	)
	span.SetStatus(codes.Ok, "success")
	p.logger.Debug("retrieval complete",
		zap.Int("queries", len(queries)),
		zap.Int("failed_queries", failed),
		zap.Int("passages", len(passages)),
	)
	return passages, nil
}

func (p *Pipeline) search(ctx context.Context, index int, query string, topK int, minScore float64, version int64) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "retrieval.search")
	defer span.End()
	span.SetAttributes(attribute.Int("query_index", index))

	key := CacheKey(query, topK, minScore, version)
	if p.cache != nil {
		if hits, ok := p.cache.Get(ctx, key); ok {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return hits, nil
		}
	}

	hits, err := p.searcher.Search(ctx, query, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("hit_count", len(hits)))

	if p.cache != nil {
		p.cache.Set(ctx, key, hits)
	}
	return hits, nil
}

func (p *Pipeline) corpusVersion(ctx context.Context) int64 {
	if p.versioner == nil {
		return 0
	}
	v, err := p.versioner.Version(ctx)
	if err != nil {
		p.logger.Warn("reading corpus version", zap.Error(err))
		return 0
	}
	return v
}

// CacheKey identifies a memoized search. Any change to the corpus version
// invalidates every key.
func CacheKey(query string, topK int, minScore float64, version int64) string {
	return "v" + strconv.FormatInt(version, 10) +
		"|k" + strconv.Itoa(topK) +
		"|s" + strconv.FormatFloat(minScore, 'g', -1, 64) +
		"|" + query
}

func normalizeQueries(in []string) []string {
	out := make([]string, 0, len(in))
	for _, q := range in {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// merge de-duplicates hits across queries. results[i] belongs to queries[i].
func merge(queries []string, results [][]Hit, minScore float64) []Passage {
	index := make(map[string]int)
	var passages []Passage

	for qi, hits := range results {
		query := queries[qi]
		for _, h := range hits {
			if h.Score < minScore {
				continue
			}
			if i, ok := index[h.ID]; ok {
				pass := &passages[i]
				if h.Score > pass.Score {
					pass.Score = h.Score
				}
				if !contains(pass.Queries, query) {
					pass.Queries = append(pass.Queries, query)
				}
				continue
			}
			index[h.ID] = len(passages)
			passages = append(passages, Passage{
				ID:          h.ID,
				Text:        h.Text,
				Source:      h.Source,
				Title:       h.Title,
				Score:       h.Score,
				OriginQuery: query,
				Queries:     []string{query},
				Metadata:    h.Metadata,
			})
		}
	}

	for i := range passages {
		passages[i].Score = clamp01(passages[i].Score)
	}

	// Stable sort keeps first-seen order for equal scores.
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	if passages == nil {
		passages = []Passage{}
	}
	return passages
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func floatPtr(f float64) *float64 { return &f }
