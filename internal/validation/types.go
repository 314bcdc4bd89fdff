package validation

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Status is the verdict of a report.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Strategy names the cascade stage that produced a report.
type Strategy string

const (
	StrategyStructured Strategy = "structured"
	StrategyFields     Strategy = "fields"
	StrategyHeuristic  Strategy = "heuristic"
	StrategyDefault    Strategy = "default"
)

// Dimension is one scored quality axis.
type Dimension string

const (
	Accuracy     Dimension = "accuracy"
	Completeness Dimension = "completeness"
	Consistency  Dimension = "consistency"
)

// Dimensions lists every dimension in report order.
func Dimensions() []Dimension {
	return []Dimension{Accuracy, Completeness, Consistency}
}

// UnparsedIssue is the issue of a report built by the default stage.
const UnparsedIssue = "could not parse assessment"

// Report is a structured quality assessment. Every score is in [0,100].
type Report struct {
	OverallScore    float64               `json:"overall_score"`
	Dimensions      map[Dimension]float64 `json:"dimension_scores"`
	Issues          []string              `json:"issues"`
	Recommendations []string              `json:"recommendations"`
	Status          Status                `json:"status"`
	Strategy        Strategy              `json:"strategy"`
}

// Passed reports whether the report's status is passed.
func (r Report) Passed() bool { return r.Status == StatusPassed }

// DimensionScores returns the dimension scores keyed by name.
func (r Report) DimensionScores() map[string]float64 {
	out := make(map[string]float64, len(r.Dimensions))
	for d, s := range r.Dimensions {
		out[string(d)] = s
	}
	return out
}

// Weights weighs dimensions into the overall score. They are normalized,
// so only their ratios matter.
type Weights struct {
	Accuracy     float64 `koanf:"accuracy"`
	Completeness float64 `koanf:"completeness"`
	Consistency  float64 `koanf:"consistency"`
}

func (w Weights) of(d Dimension) float64 {
	switch d {
	case Accuracy:
		return w.Accuracy
	case Completeness:
		return w.Completeness
	case Consistency:
		return w.Consistency
	}
	return 0
}

// Config configures the validator.
type Config struct {
	Weights Weights `koanf:"weights"`

	// PassThreshold and PartialThreshold bound the status bands:
	// score >= pass is passed, partial <= score < pass is partial.
	// A nil PartialThreshold means 40; an explicit 0 never fails a report.
	PassThreshold    float64  `koanf:"pass_threshold"`
	PartialThreshold *float64 `koanf:"partial_threshold"`

	// Midpoint is the neutral score of the default report.
	Midpoint float64 `koanf:"midpoint"`

	MaxIssues          int `koanf:"max_issues"`
	MaxRecommendations int `koanf:"max_recommendations"`

	// MinHeuristicWords is the shortest text the heuristic stage scores.
	MinHeuristicWords int `koanf:"min_heuristic_words"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Weights == (Weights{}) {
		c.Weights = Weights{Accuracy: 1, Completeness: 1, Consistency: 1}
	}
	if c.PassThreshold == 0 {
		c.PassThreshold = 80
	}
	if c.PartialThreshold == nil {
		partial := 40.0
		c.PartialThreshold = &partial
	}
	if c.Midpoint == 0 {
		c.Midpoint = 50
	}
	if c.MaxIssues == 0 {
		c.MaxIssues = 20
	}
	if c.MaxRecommendations == 0 {
		c.MaxRecommendations = 5
	}
	if c.MinHeuristicWords == 0 {
		c.MinHeuristicWords = 12
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	w := c.Weights
	if w.Accuracy < 0 || w.Completeness < 0 || w.Consistency < 0 {
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidConfig)
	}
	if w.Accuracy+w.Completeness+w.Consistency == 0 {
		return fmt.Errorf("%w: at least one weight must be positive", ErrInvalidConfig)
	}
	if partial := c.partial(); partial < 0 || c.PassThreshold > 100 || partial >= c.PassThreshold {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= partial < pass <= 100", ErrInvalidConfig)
	}
	if c.Midpoint < 0 || c.Midpoint > 100 {
		return fmt.Errorf("%w: midpoint must be in [0,100]", ErrInvalidConfig)
	}
	if c.MaxRecommendations < 1 || c.MaxIssues < 1 {
		return fmt.Errorf("%w: max_issues and max_recommendations must be positive", ErrInvalidConfig)
	}
	return nil
}

// Overall combines dimension scores with the configured weights.
func (c Config) Overall(dims map[Dimension]float64) float64 {
	var sum, total float64
	for _, d := range Dimensions() {
		w := c.Weights.of(d)
		sum += w * clampScore(dims[d])
		total += w
	}
	if total == 0 {
		return c.Midpoint
	}
	return clampScore(round2(sum / total))
}

func (c Config) partial() float64 {
	if c.PartialThreshold == nil {
		return 40
	}
	return *c.PartialThreshold
}

// StatusFor maps an overall score to a status.
func (c Config) StatusFor(score float64) Status {
	switch {
	case score >= c.PassThreshold:
		return StatusPassed
	case score >= c.partial():
		return StatusPartial
	default:
		return StatusFailed
	}
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
