package validation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/lexflow/internal/capability"
	"github.com/fyrsmithlabs/lexflow/internal/generation"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	return New(Config{}, zaptest.NewLogger(t))
}

func assertBounded(t *testing.T, rep Report) {
	t.Helper()
	assert.GreaterOrEqual(t, rep.OverallScore, 0.0)
	assert.LessOrEqual(t, rep.OverallScore, 100.0)
	require.Len(t, rep.Dimensions, 3)
	for d, s := range rep.Dimensions {
		assert.GreaterOrEqual(t, s, 0.0, d)
		assert.LessOrEqual(t, s, 100.0, d)
	}
	assert.LessOrEqual(t, len(rep.Recommendations), 5)
}

func TestValidate_Structured(t *testing.T) {
	ctx := context.Background()
	v := newValidator(t)

	t.Run("plain json", func(t *testing.T) {
		rep := v.Validate(ctx, `{"accuracy": 90, "completeness": 80, "consistency": 70, "issues": ["minor gap"], "recommendations": ["add example"]}`)
		assert.Equal(t, StrategyStructured, rep.Strategy)
		assert.Equal(t, 90.0, rep.Dimensions[Accuracy])
		assert.Equal(t, 80.0, rep.OverallScore)
		assert.Equal(t, StatusPassed, rep.Status)
		assert.Equal(t, []string{"minor gap"}, rep.Issues)
		assert.Equal(t, []string{"add example"}, rep.Recommendations)
		assertBounded(t, rep)
	})

	t.Run("fenced block", func(t *testing.T) {
		rep := v.Validate(ctx, "Here is my assessment:\n```json\n{\"accuracy_score\": 50, \"completeness_score\": 40, \"consistency_score\": 30}\n```\nThanks.")
		assert.Equal(t, StrategyStructured, rep.Strategy)
		assert.Equal(t, 40.0, rep.OverallScore)
		assert.Equal(t, StatusPartial, rep.Status)
	})

	t.Run("largest balanced object in prose", func(t *testing.T) {
		text := `Sure. Note {"x": 1} first. Result: {"dimension_scores": {"accuracy": 20, "completeness": 30, "consistency": 10}, "factual_errors": ["wrong section"], "note": "brace } in string"} end`
		rep := v.Validate(ctx, text)
		assert.Equal(t, StrategyStructured, rep.Strategy)
		assert.Equal(t, 20.0, rep.OverallScore)
		assert.Equal(t, StatusFailed, rep.Status)
		assert.Equal(t, []string{"wrong section"}, rep.Issues)
	})

	t.Run("overall only fills dimensions", func(t *testing.T) {
		rep := v.Validate(ctx, `{"quality_score": 65}`)
		assert.Equal(t, StrategyStructured, rep.Strategy)
		assert.Equal(t, 65.0, rep.OverallScore)
		assert.Equal(t, 65.0, rep.Dimensions[Consistency])
	})

	t.Run("single dimension fills the rest with its score", func(t *testing.T) {
		rep := v.Validate(ctx, `{"accuracy_score": 85, "unsupported_claims": ["claim A"], "misleading_statements": ["claim B"]}`)
		assert.Equal(t, 85.0, rep.OverallScore)
		assert.Equal(t, []string{"claim A", "claim B"}, rep.Issues)
	})

	t.Run("scores are clamped", func(t *testing.T) {
		rep := v.Validate(ctx, `{"accuracy": 150, "completeness": -20, "consistency": "9/10"}`)
		assert.Equal(t, 100.0, rep.Dimensions[Accuracy])
		assert.Equal(t, 0.0, rep.Dimensions[Completeness])
		assert.Equal(t, 90.0, rep.Dimensions[Consistency])
		assertBounded(t, rep)
	})

	t.Run("recommendations capped at five", func(t *testing.T) {
		rep := v.Validate(ctx, `{"score": 70, "recommendations": ["a","b","c","d","e","f","g"]}`)
		assert.Len(t, rep.Recommendations, 5)
	})

	t.Run("json without scores falls through", func(t *testing.T) {
		rep := v.Validate(ctx, `{"verdict": "fine"}`)
		assert.Equal(t, StrategyDefault, rep.Strategy)
	})
}

func TestValidate_Fields(t *testing.T) {
	ctx := context.Background()
	v := newValidator(t)

	text := `**Accuracy**: 8/10
Completeness score: 60
- Consistency = 70%
Overall: 99

Issues:
- Section 465 is cited for the wrong proposition
- Missing discussion of remedies

Recommendations:
1. Cite Section 466 for liability
2. Add remedies
Closing remarks follow.
- not a recommendation`

	rep := v.Validate(ctx, text)
	assert.Equal(t, StrategyFields, rep.Strategy)
	assert.Equal(t, 80.0, rep.Dimensions[Accuracy])
	assert.Equal(t, 60.0, rep.Dimensions[Completeness])
	assert.Equal(t, 70.0, rep.Dimensions[Consistency])
	assert.Equal(t, 70.0, rep.OverallScore)
	assert.Equal(t, StatusPartial, rep.Status)
	assert.Equal(t, []string{"Section 465 is cited for the wrong proposition", "Missing discussion of remedies"}, rep.Issues)
	assert.Equal(t, []string{"Cite Section 466 for liability", "Add remedies"}, rep.Recommendations)

	t.Run("dimension score is not read as overall", func(t *testing.T) {
		rep := v.Validate(ctx, "accuracy score: 30")
		assert.Equal(t, StrategyFields, rep.Strategy)
		assert.Equal(t, 30.0, rep.OverallScore)
	})

	t.Run("overall only", func(t *testing.T) {
		rep := v.Validate(ctx, "Rating: 85")
		assert.Equal(t, 85.0, rep.OverallScore)
		assert.Equal(t, StatusPassed, rep.Status)
	})
}

func TestValidate_Heuristic(t *testing.T) {
	ctx := context.Background()
	v := newValidator(t)

	t.Run("well cited direct prose", func(t *testing.T) {
		text := "Under Cap. 622, Section 465 a director must exercise reasonable care, skill and diligence. Section 466 makes the director liable to the company for breach of that duty."
		rep := v.Validate(ctx, text)
		assert.Equal(t, StrategyHeuristic, rep.Strategy)
		assert.Equal(t, 85.0, rep.Dimensions[Accuracy])
		assert.Equal(t, 80.0, rep.Dimensions[Consistency])
		assert.Empty(t, rep.Issues)
		assertBounded(t, rep)
	})

	t.Run("hedged uncited prose", func(t *testing.T) {
		text := "It may be that directors might possibly owe some duty, perhaps of care, but this is unclear and it could be otherwise, although nobody is sure what the law says here."
		rep := v.Validate(ctx, text)
		assert.Equal(t, StrategyHeuristic, rep.Strategy)
		assert.Less(t, rep.Dimensions[Accuracy], 60.0)
		assert.Contains(t, rep.Issues, "no citations to sources")
		assert.True(t, strings.HasPrefix(rep.Issues[0], "frequent hedging language"))
		assertBounded(t, rep)
	})
}

func TestValidate_Default(t *testing.T) {
	ctx := context.Background()

	inputs := map[string]string{
		"empty":                      "",
		"garbage":                    "}}{{ ### ??? !!! 12345 ::: null",
		"unbalanced json":            `{"accuracy": `,
		"binary":                     "\x00\xff\xfe{{{",
		"few words":                  "looks fine to me",
		"array not object":           `[1, 2, 3]`,
		"long garbage":               "xqzv plmk trwe bnmz qwpo lkjh asdf ghjk zxcv bnmq wert yuio pasd fghj",
		"long prose without markers": "the report is here and the answer is in it as it was for the board and the members of the company today",
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			v := New(Config{}, zap.New(core))

			var rep Report
			require.NotPanics(t, func() { rep = v.Validate(ctx, in) })
			assert.Equal(t, StrategyDefault, rep.Strategy)
			assert.Equal(t, StatusPartial, rep.Status)
			assert.Equal(t, 50.0, rep.OverallScore)
			assert.Contains(t, rep.Issues[0], "could not parse")
			assert.Equal(t, 1, logs.FilterMessage("assessment not parseable").Len())
		})
	}
}

func threshold(f float64) *float64 { return &f }

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var cfg Config
		cfg.ApplyDefaults()
		assert.Equal(t, 80.0, cfg.PassThreshold)
		require.NotNil(t, cfg.PartialThreshold)
		assert.Equal(t, 40.0, *cfg.PartialThreshold)
		assert.Equal(t, 50.0, cfg.Midpoint)
		assert.Equal(t, 5, cfg.MaxRecommendations)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("status bands", func(t *testing.T) {
		var cfg Config
		cfg.ApplyDefaults()
		assert.Equal(t, StatusPassed, cfg.StatusFor(80))
		assert.Equal(t, StatusPartial, cfg.StatusFor(79.99))
		assert.Equal(t, StatusPartial, cfg.StatusFor(40))
		assert.Equal(t, StatusFailed, cfg.StatusFor(39.99))
	})

	t.Run("custom weights", func(t *testing.T) {
		v := New(Config{Weights: Weights{Accuracy: 0.4, Completeness: 0.3, Consistency: 0.3}}, nil)
		rep := v.Validate(context.Background(), `{"accuracy": 100, "completeness": 50, "consistency": 50}`)
		assert.Equal(t, 70.0, rep.OverallScore)
	})

	t.Run("custom thresholds", func(t *testing.T) {
		v := New(Config{PassThreshold: 60, PartialThreshold: threshold(30)}, nil)
		rep := v.Validate(context.Background(), `{"score": 65}`)
		assert.Equal(t, StatusPassed, rep.Status)
	})

	t.Run("explicit zero partial threshold is kept", func(t *testing.T) {
		v := New(Config{PartialThreshold: threshold(0)}, nil)
		require.NoError(t, v.Config().Validate())
		assert.Equal(t, 0.0, *v.Config().PartialThreshold)

		rep := v.Validate(context.Background(), `{"score": 5}`)
		assert.Equal(t, StatusPartial, rep.Status)
	})

	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative weight", Config{Weights: Weights{Accuracy: -1, Completeness: 1}}},
		{"inverted thresholds", Config{PassThreshold: 40, PartialThreshold: threshold(80)}},
		{"negative partial threshold", Config{PartialThreshold: threshold(-1)}},
		{"midpoint out of range", Config{Midpoint: 120}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.ApplyDefaults()
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(AssessmentRequest{
		Type:         TypeAccuracy,
		Content:      "Directors owe a duty of care.",
		Question:     "What duties?",
		Sources:      []string{"Cap. 622, Section 465: reasonable care"},
		Requirements: []string{"cite sections"},
	})
	assert.Contains(t, p, "Assess the accuracy")
	assert.Contains(t, p, "Original question: What duties?")
	assert.Contains(t, p, "- cite sections")
	assert.Contains(t, p, "Cap. 622, Section 465: reasonable care")
	assert.Contains(t, p, `"accuracy": 0-100`)
	assert.NotContains(t, p, `"completeness": 0-100`)

	p = BuildPrompt(AssessmentRequest{Content: "x"})
	for _, d := range Dimensions() {
		assert.Contains(t, p, `"`+string(d)+`": 0-100`)
	}
}

func TestFormatSources(t *testing.T) {
	type citation struct {
		ID     string `json:"id"`
		Source string `json:"source"`
		Title  string `json:"title,omitempty"`
	}
	assert.Equal(t, []string{"Cap. 1, Section 2: Interpretation"},
		FormatSources([]citation{{ID: "a", Source: "Cap. 1, Section 2", Title: "Interpretation"}}))
	assert.Equal(t, []string{"one", "two"}, FormatSources([]any{"one", "two"}))
	assert.Equal(t, []string{"single"}, FormatSources("single"))
	assert.Nil(t, FormatSources(nil))
}

type fixedGenerator struct {
	reply  string
	err    error
	prompt string
}

func (g *fixedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.reply, g.err
}

func TestCapability_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("direct assessment", func(t *testing.T) {
		c := NewCapability(newValidator(t), nil, zaptest.NewLogger(t))
		res := c.Execute(ctx, capability.Task{"assessment": `{"accuracy": 90, "completeness": 90, "consistency": 90}`})
		require.True(t, res.OK(), res.Error)
		assert.Equal(t, 90.0, res.Payload["overall_score"])
		assert.Equal(t, "passed", res.Payload["status"])
		assert.Equal(t, "structured", res.Payload["strategy"])
		assert.Equal(t, true, res.Payload["passed"])
		assert.Equal(t, map[string]float64{"accuracy": 90, "completeness": 90, "consistency": 90}, res.Payload["dimension_scores"])
	})

	t.Run("garbage assessment is partial not failed", func(t *testing.T) {
		c := NewCapability(newValidator(t), nil, nil)
		res := c.Execute(ctx, capability.Task{"assessment": "%%% ??? ###"})
		require.True(t, res.OK(), res.Error)
		assert.Equal(t, "partial", res.Payload["status"])
		assert.Contains(t, res.Payload["issues"].([]string)[0], "could not parse")
	})

	t.Run("generator assesses content", func(t *testing.T) {
		gen := &fixedGenerator{reply: "```json\n{\"completeness\": 45, \"issues\": [\"no remedies\"]}\n```"}
		c := NewCapability(newValidator(t), gen, nil)
		res := c.Execute(ctx, capability.Task{
			"content":         "Directors owe a duty of care.",
			"question":        "What duties and remedies?",
			"sources":         []map[string]any{{"source": "Cap. 622, Section 465"}},
			"validation_type": "completeness",
		})
		require.True(t, res.OK(), res.Error)
		assert.Equal(t, 45.0, res.Payload["overall_score"])
		assert.Equal(t, "partial", res.Payload["status"])
		assert.Equal(t, []string{"no remedies"}, res.Payload["issues"])
		assert.Contains(t, gen.prompt, "Assess the completeness")
		assert.Contains(t, gen.prompt, "Cap. 622, Section 465")
	})

	t.Run("generator failure", func(t *testing.T) {
		gen := &fixedGenerator{err: generation.ErrTimeout}
		c := NewCapability(newValidator(t), gen, nil)
		res := c.Execute(ctx, capability.Task{"content": "text"})
		assert.False(t, res.OK())
		assert.Contains(t, res.Error, "timed out")
	})

	t.Run("unknown type", func(t *testing.T) {
		c := NewCapability(newValidator(t), &fixedGenerator{}, nil)
		res := c.Execute(ctx, capability.Task{"content": "text", "validation_type": "vibes"})
		assert.False(t, res.OK())
		assert.Contains(t, res.Error, "vibes")
	})

	t.Run("no content", func(t *testing.T) {
		c := NewCapability(newValidator(t), &fixedGenerator{}, nil)
		res := c.Execute(ctx, capability.Task{})
		assert.False(t, res.OK())
		assert.Contains(t, res.Error, "no content")
	})

	t.Run("content without generator", func(t *testing.T) {
		c := NewCapability(newValidator(t), nil, nil)
		res := c.Execute(ctx, capability.Task{"content": "text"})
		assert.False(t, res.OK())
	})
}
