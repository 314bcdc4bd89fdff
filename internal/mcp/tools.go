package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
	"github.com/fyrsmithlabs/lexflow/internal/validation"
	"github.com/fyrsmithlabs/lexflow/internal/workflow"
)

type listWorkflowsInput struct {
	Domain string `json:"domain,omitempty" jsonschema:"Only list workflows of this domain"`
}

type listWorkflowsOutput struct {
	Workflows []workflow.Summary `json:"workflows" jsonschema:"Registered workflows"`
	Count     int                `json:"count" jsonschema:"Number of workflows returned"`
}

type executeWorkflowInput struct {
	Workflow string         `json:"workflow" jsonschema:"Name of the workflow to run"`
	Input    map[string]any `json:"input,omitempty" jsonschema:"Workflow input, e.g. {\"question\": \"...\"}"`
}

type executeWorkflowOutput struct {
	ExecutionID string         `json:"execution_id" jsonschema:"Execution identifier"`
	Status      string         `json:"status" jsonschema:"completed or failed"`
	Steps       []string       `json:"steps" jsonschema:"Steps run, in order"`
	Output      map[string]any `json:"output,omitempty" jsonschema:"Payload of the output step"`
	Error       string         `json:"error,omitempty" jsonschema:"Failure reason when status is failed"`
	DurationMS  int64          `json:"duration_ms" jsonschema:"Run duration in milliseconds"`
}

type retrievePassagesInput struct {
	Queries  []string `json:"queries" jsonschema:"Search queries; results are merged and de-duplicated"`
	TopK     int      `json:"top_k,omitempty" jsonschema:"Candidates per query (default 5)"`
	MinScore *float64 `json:"min_score,omitempty" jsonschema:"Similarity floor (default 0.5)"`
}

type retrievePassagesOutput struct {
	Passages []retrieval.Passage `json:"passages" jsonschema:"Passages sorted by descending score"`
	Count    int                 `json:"count" jsonschema:"Number of passages"`
}

type validateAnswerInput struct {
	Assessment string `json:"assessment" jsonschema:"Assessment text to score, JSON or prose"`
}

type validateAnswerOutput struct {
	OverallScore    float64            `json:"overall_score" jsonschema:"Weighted score 0-100"`
	DimensionScores map[string]float64 `json:"dimension_scores" jsonschema:"Per-dimension scores"`
	Issues          []string           `json:"issues" jsonschema:"Problems found"`
	Recommendations []string           `json:"recommendations" jsonschema:"Suggested fixes"`
	Status          string             `json:"status" jsonschema:"passed, partial or failed"`
	Strategy        string             `json:"strategy" jsonschema:"How the assessment was parsed"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_workflows",
		Description: "List the registered research workflows",
	}, instrument(s, "list_workflows", s.listWorkflows))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "execute_workflow",
		Description: "Run a workflow by name and return its aggregated result",
	}, instrument(s, "execute_workflow", s.executeWorkflow))

	if s.retriever != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "retrieve_passages",
			Description: "Search the legal corpus with one or more queries",
		}, instrument(s, "retrieve_passages", s.retrievePassages))
	}

	if s.validator != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "validate_answer",
			Description: "Score an answer assessment for accuracy, completeness and consistency",
		}, instrument(s, "validate_answer", s.validateAnswer))
	}
}

// instrument wraps a handler with metrics and logging.
func instrument[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, name)
		defer s.metrics.DecrementActive(ctx, name)

		res, out, err := h(ctx, req, in)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		if err != nil {
			s.logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	}
}

func text(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func (s *Server) listWorkflows(_ context.Context, _ *mcp.CallToolRequest, in listWorkflowsInput) (*mcp.CallToolResult, listWorkflowsOutput, error) {
	out := listWorkflowsOutput{Workflows: []workflow.Summary{}}
	for _, wf := range s.orch.Workflows() {
		if in.Domain != "" && !strings.EqualFold(wf.Domain, in.Domain) {
			continue
		}
		out.Workflows = append(out.Workflows, wf)
	}
	out.Count = len(out.Workflows)

	names := make([]string, len(out.Workflows))
	for i, wf := range out.Workflows {
		names[i] = wf.Name
	}
	return text("%d workflows: %s", out.Count, strings.Join(names, ", ")), out, nil
}

func (s *Server) executeWorkflow(ctx context.Context, _ *mcp.CallToolRequest, in executeWorkflowInput) (*mcp.CallToolResult, executeWorkflowOutput, error) {
	if in.Workflow == "" {
		return nil, executeWorkflowOutput{}, fmt.Errorf("workflow is required")
	}

	res, err := s.orch.Execute(ctx, in.Workflow, in.Input)
	if err != nil {
		return nil, executeWorkflowOutput{}, err
	}

	out := executeWorkflowOutput{
		ExecutionID: res.ExecutionID,
		Status:      string(res.Status),
		Steps:       append([]string{}, res.Order...),
		Output:      res.Output,
		Error:       res.Error,
		DurationMS:  res.DurationMS,
	}

	summary := text("workflow %s %s", in.Workflow, res.Status)
	if answer, ok := res.Output["answer"].(string); ok && answer != "" {
		summary = text("%s", answer)
	} else if res.Error != "" {
		summary = text("workflow %s failed: %s", in.Workflow, res.Error)
	}
	return summary, out, nil
}

func (s *Server) retrievePassages(ctx context.Context, _ *mcp.CallToolRequest, in retrievePassagesInput) (*mcp.CallToolResult, retrievePassagesOutput, error) {
	if len(in.Queries) == 0 {
		return nil, retrievePassagesOutput{}, fmt.Errorf("%w: at least one query is required", retrieval.ErrInvalidRequest)
	}

	passages, err := s.retriever.Retrieve(ctx, retrieval.Request{
		Queries:      in.Queries,
		TopKPerQuery: in.TopK,
		MinScore:     in.MinScore,
	})
	if err != nil {
		return nil, retrievePassagesOutput{}, err
	}
	if passages == nil {
		passages = []retrieval.Passage{}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d passages", len(passages))
	for _, p := range passages {
		fmt.Fprintf(&b, "\n[%s %.2f] %s", p.ID, p.Score, p.Title)
	}
	return text("%s", b.String()), retrievePassagesOutput{Passages: passages, Count: len(passages)}, nil
}

func (s *Server) validateAnswer(ctx context.Context, _ *mcp.CallToolRequest, in validateAnswerInput) (*mcp.CallToolResult, validateAnswerOutput, error) {
	if strings.TrimSpace(in.Assessment) == "" {
		return nil, validateAnswerOutput{}, fmt.Errorf("invalid input: assessment is required")
	}

	rep := s.validator.Validate(ctx, in.Assessment)
	out := validateAnswerOutput{
		OverallScore:    rep.OverallScore,
		DimensionScores: rep.DimensionScores(),
		Issues:          nonNil(rep.Issues),
		Recommendations: nonNil(rep.Recommendations),
		Status:          string(rep.Status),
		Strategy:        string(rep.Strategy),
	}
	return text("%s", rep.String()), out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ Validator = (*validation.Validator)(nil)
