package http

import (
	"github.com/fyrsmithlabs/lexflow/internal/capability"
	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
	"github.com/fyrsmithlabs/lexflow/internal/workflow"
)

// HealthResponse is the response body for GET /api/v1/health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Services map[string]string `json:"services,omitempty"`
}

// ExecuteRequest is the request body for POST /workflows/:name/execute.
type ExecuteRequest struct {
	Input map[string]any `json:"input"`
}

// ParallelRequest is the request body for POST /tasks/parallel.
type ParallelRequest struct {
	Tasks []workflow.ParallelTask `json:"tasks" validate:"required,min=1,dive"`
}

// ParallelResponse maps task ids to their results.
type ParallelResponse struct {
	Results map[string]capability.Result `json:"results"`
}

// RetrieveResponse is the response body for POST /retrieve.
type RetrieveResponse struct {
	Passages []retrieval.Passage `json:"passages"`
	Count    int                 `json:"count"`
}

// ValidateRequest is the request body for POST /validate.
type ValidateRequest struct {
	Assessment string `json:"assessment" validate:"required"`
}

// CapabilitiesResponse lists registered capabilities.
type CapabilitiesResponse struct {
	Capabilities []capability.Descriptor `json:"capabilities"`
}

// WorkflowsResponse lists registered workflows.
type WorkflowsResponse struct {
	Workflows []workflow.Summary `json:"workflows"`
}

// ExecutionsResponse lists recent runs, newest first.
type ExecutionsResponse struct {
	Executions []workflow.ExecutionRecord `json:"executions"`
}
