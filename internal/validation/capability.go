package validation

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/capability"
	"github.com/fyrsmithlabs/lexflow/internal/generation"
)

// CapabilityName is the registry name of the validation capability.
const CapabilityName = "validation"

// TaskInput is the task shape of the validation capability. An assessment
// is validated directly; otherwise the generator assesses content.
type TaskInput struct {
	Assessment     string   `json:"assessment"`
	Content        any      `json:"content"`
	Question       string   `json:"question"`
	Sources        any      `json:"sources"`
	Requirements   []string `json:"requirements"`
	ValidationType string   `json:"validation_type"`
}

// Capability exposes the validator as the "validation" capability.
type Capability struct {
	validator *Validator
	gen       generation.Generator
	logger    *zap.Logger
}

// NewCapability creates the validation capability. gen may be nil, in which
// case only direct assessments are accepted.
func NewCapability(v *Validator, gen generation.Generator, logger *zap.Logger) *Capability {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capability{validator: v, gen: gen, logger: logger}
}

func (c *Capability) Name() string          { return CapabilityName }
func (c *Capability) Kind() capability.Kind { return capability.KindValidation }
func (c *Capability) Outputs() []string {
	return []string{"overall_score", "dimension_scores", "issues", "recommendations", "status", "strategy", "passed"}
}

// Execute validates the task's assessment or content.
func (c *Capability) Execute(ctx context.Context, task capability.Task) capability.Result {
	var in TaskInput
	if err := task.Decode(&in); err != nil {
		return capability.Failed(err)
	}

	assessment := in.Assessment
	if strings.TrimSpace(assessment) == "" {
		content := strings.TrimSpace(FormatValue(in.Content))
		if content == "" {
			return capability.Failedf("no content provided for validation")
		}
		vtype := Type(in.ValidationType)
		if vtype == "" {
			vtype = TypeComprehensive
		}
		if !vtype.Valid() {
			return capability.Failedf("unknown validation type %q", in.ValidationType)
		}
		if c.gen == nil {
			return capability.Failedf("no generator configured for content assessment")
		}

		reply, err := c.gen.Generate(ctx, BuildPrompt(AssessmentRequest{
			Type:         vtype,
			Content:      content,
			Question:     in.Question,
			Sources:      FormatSources(in.Sources),
			Requirements: in.Requirements,
		}))
		if err != nil {
			return capability.Failedf("assessment: %v", err)
		}
		assessment = reply
	}

	rep := c.validator.Validate(ctx, assessment)
	c.logger.Debug("validation complete", zap.Stringer("report", rep))
	return capability.Completed(Payload(rep))
}

// Payload renders a report as a capability payload.
func Payload(rep Report) map[string]any {
	return map[string]any{
		"overall_score":    rep.OverallScore,
		"dimension_scores": rep.DimensionScores(),
		"issues":           rep.Issues,
		"recommendations":  rep.Recommendations,
		"status":           string(rep.Status),
		"strategy":         string(rep.Strategy),
		"passed":           rep.Passed(),
	}
}

var _ capability.Capability = (*Capability)(nil)
