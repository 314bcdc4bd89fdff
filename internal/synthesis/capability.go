package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/capability"
	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
)

const (
	// CapabilityName is the registry name of the synthesis capability.
	CapabilityName = "synthesis"

	// ResearchCapabilityName is the registry name of the legal research
	// capability.
	ResearchCapabilityName = "legal_research"
)

// NoResultsAnswer is the answer of a legal research task that retrieved
// nothing.
const NoResultsAnswer = "No relevant provisions were found for this question."

// Retriever is the retrieval dependency of the capabilities.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) ([]retrieval.Passage, error)
}

// Source is a caller-supplied source.
type Source struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// TaskInput is the task shape of the synthesis capability. Passages win
// over sources; with neither, document_queries (or the question) are
// retrieved.
type TaskInput struct {
	Question        string              `json:"question"`
	Focus           string              `json:"focus"`
	Mode            string              `json:"synthesis_type"`
	Passages        []retrieval.Passage `json:"passages"`
	Sources         []any               `json:"sources"`
	DocumentQueries []string            `json:"document_queries"`
	TopK            int                 `json:"top_k_per_query"`
	MinScore        *float64            `json:"min_score"`
}

// Capability exposes the unit as the "synthesis" capability.
type Capability struct {
	unit      *Unit
	retriever Retriever
	logger    *zap.Logger
}

// NewCapability creates the synthesis capability. retriever may be nil, in
// which case tasks must carry passages or sources.
func NewCapability(unit *Unit, retriever Retriever, logger *zap.Logger) *Capability {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capability{unit: unit, retriever: retriever, logger: logger}
}

func (c *Capability) Name() string          { return CapabilityName }
func (c *Capability) Kind() capability.Kind { return capability.KindGeneration }
func (c *Capability) Outputs() []string {
	return []string{"answer", "citations", "confidence", "count", "mode", "conflicts"}
}

// Execute synthesizes an answer for the task.
func (c *Capability) Execute(ctx context.Context, task capability.Task) capability.Result {
	in, err := decodeInput(task)
	if err != nil {
		return capability.Failed(err)
	}

	passages := in.Passages
	if len(passages) == 0 && len(in.Sources) > 0 {
		if passages, err = sourcesToPassages(in.Sources); err != nil {
			return capability.Failed(err)
		}
	}
	if len(passages) == 0 {
		if passages, err = c.retrieve(ctx, in); err != nil {
			return capability.Failedf("%v", err)
		}
	}
	if len(passages) == 0 {
		return capability.Failedf("%v", ErrNoPassages)
	}

	ans, err := c.unit.Synthesize(ctx, Request{
		Question: in.Question,
		Focus:    in.Focus,
		Mode:     Mode(in.Mode),
		Passages: passages,
	})
	if err != nil {
		return capability.Failedf("synthesis: %v", err)
	}

	return capability.Completed(map[string]any{
		"answer":     ans.Text,
		"citations":  ans.Citations,
		"confidence": string(ans.Confidence),
		"count":      len(ans.Citations),
		"mode":       string(ans.Mode),
		"conflicts":  ans.Conflicts,
	})
}

func (c *Capability) retrieve(ctx context.Context, in TaskInput) ([]retrieval.Passage, error) {
	queries := in.DocumentQueries
	if len(queries) == 0 && strings.TrimSpace(in.Question) != "" {
		queries = []string{in.Question}
	}
	if len(queries) == 0 {
		return nil, errors.New("no sources, passages or queries provided")
	}
	if c.retriever == nil {
		return nil, errors.New("no retriever configured for document queries")
	}

	cfg := c.unit.Config()
	topK := in.TopK
	if topK <= 0 {
		topK = cfg.TopKPerQuery
	}
	minScore := *cfg.MinScore
	if in.MinScore != nil {
		minScore = *in.MinScore
	}

	passages, err := c.retriever.Retrieve(ctx, retrieval.Request{
		Queries:      queries,
		TopKPerQuery: topK,
		MinScore:     &minScore,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieving documents: %w", err)
	}
	c.logger.Debug("retrieved documents for synthesis",
		zap.Int("queries", len(queries)),
		zap.Int("passages", len(passages)),
	)
	return passages, nil
}

// ResearchInput is the task shape of the legal_research capability.
type ResearchInput struct {
	Question string   `json:"question"`
	Focus    string   `json:"focus"`
	Mode     string   `json:"synthesis_type"`
	TopK     int      `json:"top_k"`
	MinScore *float64 `json:"min_score"`
}

// ResearchCapability answers a question by retrieval followed by synthesis.
type ResearchCapability struct {
	unit      *Unit
	retriever Retriever
}

// NewResearchCapability creates the legal_research capability.
func NewResearchCapability(unit *Unit, retriever Retriever) *ResearchCapability {
	return &ResearchCapability{unit: unit, retriever: retriever}
}

func (c *ResearchCapability) Name() string          { return ResearchCapabilityName }
func (c *ResearchCapability) Kind() capability.Kind { return capability.KindGeneration }
func (c *ResearchCapability) Outputs() []string {
	return []string{"answer", "citations", "confidence", "passages", "count"}
}

// Execute retrieves passages for the question and synthesizes an answer.
// A question with no matching passages completes with low confidence and
// no generation call.
func (c *ResearchCapability) Execute(ctx context.Context, task capability.Task) capability.Result {
	var in ResearchInput
	if err := task.Decode(&in); err != nil {
		return capability.Failed(err)
	}
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return capability.Failedf("question is required")
	}

	if c.retriever == nil {
		return capability.Failedf("no retriever configured")
	}

	cfg := c.unit.Config()
	minScore := *cfg.ResearchMinScore
	if in.MinScore != nil {
		minScore = *in.MinScore
	}
	topK := in.TopK
	if topK <= 0 {
		topK = cfg.TopKPerQuery
	}

	passages, err := c.retriever.Retrieve(ctx, retrieval.Request{
		Queries:      []string{question},
		TopKPerQuery: topK,
		MinScore:     &minScore,
	})
	if err != nil {
		return capability.Failedf("retrieval: %v", err)
	}
	if len(passages) == 0 {
		return capability.Completed(map[string]any{
			"answer":     NoResultsAnswer,
			"citations":  []Citation{},
			"confidence": string(ConfidenceLow),
			"passages":   []retrieval.Passage{},
			"count":      0,
		})
	}

	ans, err := c.unit.Synthesize(ctx, Request{
		Question: question,
		Focus:    in.Focus,
		Mode:     Mode(in.Mode),
		Passages: passages,
	})
	if err != nil {
		return capability.Failedf("synthesis: %v", err)
	}

	return capability.Completed(map[string]any{
		"answer":     ans.Text,
		"citations":  ans.Citations,
		"confidence": string(ans.Confidence),
		"passages":   passages,
		"count":      len(passages),
	})
}

// decodeInput binds the task, passing typed passages from an upstream
// retrieval step through untouched.
func decodeInput(task capability.Task) (TaskInput, error) {
	t := task.Clone()
	typed, ok := t["passages"].([]retrieval.Passage)
	if ok {
		delete(t, "passages")
	}
	var in TaskInput
	if err := t.Decode(&in); err != nil {
		return TaskInput{}, err
	}
	if ok {
		in.Passages = typed
	}
	return in, nil
}

func sourcesToPassages(sources []any) ([]retrieval.Passage, error) {
	out := make([]retrieval.Passage, 0, len(sources))
	for i, raw := range sources {
		id := fmt.Sprintf("source-%d", i+1)
		switch v := raw.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				continue
			}
			out = append(out, retrieval.Passage{ID: id, Text: v, Source: fmt.Sprintf("Source %d", i+1)})
		case map[string]any:
			var s Source
			if err := capability.Task(v).Decode(&s); err != nil {
				return nil, fmt.Errorf("source %d: %w", i+1, err)
			}
			label := s.Source
			if label == "" {
				label = s.Title
			}
			if label == "" {
				label = fmt.Sprintf("Source %d", i+1)
			}
			out = append(out, retrieval.Passage{ID: id, Text: s.Content, Title: s.Title, Source: label, Score: s.Score})
		default:
			return nil, fmt.Errorf("%w: source %d has unsupported type %T", capability.ErrInvalidTask, i+1, raw)
		}
	}
	return out, nil
}

var (
	_ capability.Capability = (*Capability)(nil)
	_ capability.Capability = (*ResearchCapability)(nil)
	_ Retriever             = (*retrieval.Pipeline)(nil)
)
