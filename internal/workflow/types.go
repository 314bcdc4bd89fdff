package workflow

import (
	"time"

	"github.com/fyrsmithlabs/lexflow/internal/capability"
)

// Step is a single capability invocation inside a workflow.
type Step struct {
	ID          string         `json:"id" yaml:"id" toml:"id"`
	Capability  string         `json:"capability" yaml:"capability" toml:"capability"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty" toml:"description"`
	Input       map[string]any `json:"input,omitempty" yaml:"input,omitempty" toml:"input"`

	// BestEffort steps record their failure without halting the run.
	BestEffort bool `json:"best_effort,omitempty" yaml:"best_effort,omitempty" toml:"best_effort"`

	// Timeout bounds this step only. Zero means the run deadline applies.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout"`
}

// Definition is a named, ordered sequence of steps.
type Definition struct {
	Name        string   `json:"name" yaml:"name" toml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" toml:"description"`
	Domain      string   `json:"domain,omitempty" yaml:"domain,omitempty" toml:"domain"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags"`
	Steps       []Step   `json:"steps" yaml:"steps" toml:"steps"`

	// OutputStep names the step whose payload becomes Result.Output.
	// Defaults to the last step.
	OutputStep string `json:"output_step,omitempty" yaml:"output_step,omitempty" toml:"output_step"`

	// Timeout bounds the whole run. Zero falls back to Config.Timeout.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout"`
}

// Summary describes a registered workflow.
type Summary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Steps       int      `json:"steps"`
}

// Status is the overall outcome of a workflow run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result aggregates one workflow run.
type Result struct {
	ExecutionID string                       `json:"execution_id"`
	Workflow    string                       `json:"workflow"`
	Status      Status                       `json:"status"`
	Results     map[string]capability.Result `json:"results"`
	Order       []string                     `json:"order"`
	Output      map[string]any               `json:"output,omitempty"`
	Error       string                       `json:"error,omitempty"`
	StartedAt   time.Time                    `json:"started_at"`
	Duration    time.Duration                `json:"-"`
	DurationMS  int64                        `json:"duration_ms"`
}

// ParallelTask is an independent capability invocation run by ExecuteParallel.
type ParallelTask struct {
	ID         string         `json:"id" validate:"required"`
	Capability string         `json:"capability" validate:"required"`
	Input      map[string]any `json:"input"`
}
