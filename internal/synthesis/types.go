package synthesis

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
)

var (
	// ErrNoPassages is returned when there is nothing to synthesize.
	ErrNoPassages = errors.New("no relevant documents found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Mode selects the instructions given to the model.
type Mode string

const (
	ModeMerge     Mode = "merge"
	ModeReport    Mode = "report"
	ModeSummary   Mode = "summary"
	ModeReconcile Mode = "reconcile"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeMerge, ModeReport, ModeSummary, ModeReconcile:
		return true
	}
	return false
}

// Confidence grades an answer by the retrieval behind it.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Request is one synthesis call.
type Request struct {
	Question string
	Focus    string
	Mode     Mode
	Passages []retrieval.Passage
}

// Citation points at a passage that was part of the prompt.
type Citation struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Title  string  `json:"title,omitempty"`
	Score  float64 `json:"score"`
}

// Answer is the synthesized text with its provenance.
type Answer struct {
	Text       string     `json:"answer"`
	Mode       Mode       `json:"mode"`
	Citations  []Citation `json:"citations"`
	Confidence Confidence `json:"confidence"`
	// Conflicts lists conflicts the model reported in reconcile mode.
	Conflicts []string `json:"conflicts,omitempty"`
}

// Config configures the synthesis unit.
type Config struct {
	// MaxContextChars bounds the passage block of the prompt.
	MaxContextChars int `koanf:"max_context_chars"`

	// SystemPrompt opens every prompt.
	SystemPrompt string `koanf:"system_prompt"`

	// MinScore is the retrieval floor used when the synthesis capability
	// retrieves its own passages. Nil means the default 0.6.
	MinScore *float64 `koanf:"min_score"`

	// TopKPerQuery is used when the synthesis capability retrieves.
	TopKPerQuery int `koanf:"top_k_per_query"`

	// ResearchMinScore is the retrieval floor of the legal_research
	// capability. Nil means the default 0.3.
	ResearchMinScore *float64 `koanf:"research_min_score"`
}

// DefaultSystemPrompt frames the synthesis task.
const DefaultSystemPrompt = "You are an expert at synthesizing legal information from multiple sources. Write a coherent answer with proper citations."

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxContextChars == 0 {
		c.MaxContextChars = 4000
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.MinScore == nil {
		c.MinScore = floatPtr(0.6)
	}
	if c.TopKPerQuery == 0 {
		c.TopKPerQuery = 5
	}
	if c.ResearchMinScore == nil {
		c.ResearchMinScore = floatPtr(0.3)
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.MaxContextChars < 100 {
		return fmt.Errorf("%w: max_context_chars must be at least 100", ErrInvalidConfig)
	}
	if !inScoreRange(c.MinScore) {
		return fmt.Errorf("%w: min_score must be in [-1,1]", ErrInvalidConfig)
	}
	if !inScoreRange(c.ResearchMinScore) {
		return fmt.Errorf("%w: research_min_score must be in [-1,1]", ErrInvalidConfig)
	}
	if c.TopKPerQuery < 1 || c.TopKPerQuery > 100 {
		return fmt.Errorf("%w: top_k_per_query must be in [1,100]", ErrInvalidConfig)
	}
	return nil
}

func floatPtr(f float64) *float64 { return &f }

func inScoreRange(f *float64) bool {
	return f == nil || (*f >= -1 && *f <= 1)
}

// ConfidenceFor grades a set of passages.
func ConfidenceFor(passages []retrieval.Passage) Confidence {
	if len(passages) == 0 {
		return ConfidenceLow
	}
	var sum float64
	for _, p := range passages {
		sum += p.Score
	}
	mean := sum / float64(len(passages))
	if len(passages) >= 3 && mean >= 0.7 {
		return ConfidenceHigh
	}
	return ConfidenceMedium
}
