package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/capability"
)

// CapabilityName is the registry name of the retrieval capability.
const CapabilityName = "retrieval"

// TaskInput is the task shape accepted by the retrieval capability. Queries
// falls back to Query, then Question. TopK is an alias of TopKPerQuery.
type TaskInput struct {
	Queries      []string `json:"queries"`
	Query        string   `json:"query"`
	Question     string   `json:"question"`
	TopKPerQuery int      `json:"top_k_per_query"`
	TopK         int      `json:"top_k"`
	MinScore     *float64 `json:"min_score"`
}

// PerQuery returns the effective candidates per query, 0 meaning the
// pipeline default.
func (in TaskInput) PerQuery() int {
	if in.TopKPerQuery > 0 {
		return in.TopKPerQuery
	}
	return in.TopK
}

// QueryList returns the effective queries of the task.
func (in TaskInput) QueryList() []string {
	if qs := normalizeQueries(in.Queries); len(qs) > 0 {
		return qs
	}
	for _, q := range []string{in.Query, in.Question} {
		if qs := normalizeQueries([]string{q}); len(qs) > 0 {
			return qs
		}
	}
	return nil
}

// Capability exposes a Pipeline as the "retrieval" capability. An empty
// result is a success with count 0.
type Capability struct {
	pipeline *Pipeline
	logger   *zap.Logger
}

// NewCapability creates the retrieval capability.
func NewCapability(p *Pipeline, logger *zap.Logger) *Capability {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capability{pipeline: p, logger: logger}
}

func (c *Capability) Name() string          { return CapabilityName }
func (c *Capability) Kind() capability.Kind { return capability.KindRetrieval }
func (c *Capability) Outputs() []string     { return []string{"passages", "count", "queries"} }

// Execute retrieves passages for the task's queries.
func (c *Capability) Execute(ctx context.Context, task capability.Task) capability.Result {
	var in TaskInput
	unused, err := task.DecodeUnused(&in)
	if err != nil {
		return capability.Failed(err)
	}
	if len(unused) > 0 {
		c.logger.Warn("ignoring unknown retrieval inputs", zap.Strings("keys", unused))
	}
	queries := in.QueryList()
	if len(queries) == 0 {
		return capability.Failedf("no queries provided")
	}

	passages, err := c.pipeline.Retrieve(ctx, Request{
		Queries:      queries,
		TopKPerQuery: in.PerQuery(),
		MinScore:     in.MinScore,
	})
	if err != nil {
		return capability.Failedf("retrieval: %v", err)
	}

	return capability.Completed(map[string]any{
		"passages": passages,
		"count":    len(passages),
		"queries":  queries,
	})
}

var _ capability.Capability = (*Capability)(nil)
