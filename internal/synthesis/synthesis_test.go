package synthesis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/lexflow/internal/capability"
	"github.com/fyrsmithlabs/lexflow/internal/generation"
	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
)

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

func (g *recordingGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type stubRetriever struct {
	passages []retrieval.Passage
	err      error
	requests []retrieval.Request
}

func (r *stubRetriever) Retrieve(_ context.Context, req retrieval.Request) ([]retrieval.Passage, error) {
	r.requests = append(r.requests, req)
	return r.passages, r.err
}

func samplePassages() []retrieval.Passage {
	return []retrieval.Passage{
		{ID: "sec-465", Text: "A director shall exercise reasonable care, skill and diligence.", Source: "Cap. 622, Section 465", Score: 0.81},
		{ID: "sec-466", Text: "Liability for breach of the duty of care.", Source: "Cap. 622, Section 466", Score: 0.74},
		{ID: "sec-12", Text: "Interpretation of terms.", Metadata: map[string]any{"cap": "1", "section": "12"}, Score: 0.7},
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Run("labels and focus are embedded", func(t *testing.T) {
		prompt, used := BuildPrompt("SYSTEM", Request{
			Question: "What are director duties?",
			Focus:    "duty of care",
			Passages: samplePassages(),
		}, 4000)

		assert.Len(t, used, 3)
		assert.True(t, strings.HasPrefix(prompt, "SYSTEM"))
		assert.Contains(t, prompt, "Question: What are director duties?")
		assert.Contains(t, prompt, "Focus: duty of care")
		assert.Contains(t, prompt, "[1] Cap. 622, Section 465\nA director shall")
		assert.Contains(t, prompt, "[3] Cap. 1, Section 12\n")
	})

	t.Run("budget stops adding passages", func(t *testing.T) {
		passages := []retrieval.Passage{
			{ID: "a", Source: "A", Text: strings.Repeat("a", 60)},
			{ID: "b", Source: "B", Text: strings.Repeat("b", 60)},
			{ID: "c", Source: "C", Text: strings.Repeat("c", 60)},
		}
		prompt, used := BuildPrompt("", Request{Passages: passages}, 150)

		require.Len(t, used, 2)
		assert.Equal(t, "a", used[0].ID)
		assert.Equal(t, "b", used[1].ID)
		assert.NotContains(t, prompt, "ccc")
	})

	t.Run("oversized first passage is truncated", func(t *testing.T) {
		passages := []retrieval.Passage{{ID: "big", Source: "Big", Text: strings.Repeat("x", 500)}}
		prompt, used := BuildPrompt("", Request{Passages: passages}, 100)

		require.Len(t, used, 1)
		assert.Less(t, strings.Count(prompt, "x"), 100)
	})

	t.Run("unknown mode falls back to merge", func(t *testing.T) {
		prompt, _ := BuildPrompt("", Request{Mode: "poem", Passages: samplePassages()}, 4000)
		assert.Contains(t, prompt, instructions[ModeMerge])
	})
}

func TestSourceLabel(t *testing.T) {
	tests := []struct {
		name string
		p    retrieval.Passage
		want string
	}{
		{"explicit source", retrieval.Passage{ID: "x", Source: "Cap. 9"}, "Cap. 9"},
		{"chapter and section", retrieval.Passage{ID: "x", Metadata: map[string]any{"cap": "32", "section": "2"}}, "Cap. 32, Section 2"},
		{"title", retrieval.Passage{ID: "x", Title: "Companies Ordinance"}, "Companies Ordinance"},
		{"id", retrieval.Passage{ID: "x"}, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SourceLabel(tt.p))
		})
	}
}

func TestConfidenceFor(t *testing.T) {
	p := func(scores ...float64) []retrieval.Passage {
		out := make([]retrieval.Passage, len(scores))
		for i, s := range scores {
			out[i] = retrieval.Passage{Score: s}
		}
		return out
	}
	assert.Equal(t, ConfidenceLow, ConfidenceFor(nil))
	assert.Equal(t, ConfidenceHigh, ConfidenceFor(p(0.9, 0.8, 0.7)))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(p(0.9, 0.8)))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(p(0.4, 0.4, 0.4)))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(p(0.2)))
}

func TestUnit_Synthesize(t *testing.T) {
	ctx := context.Background()

	t.Run("single call with citations mirroring passages", func(t *testing.T) {
		gen := &recordingGenerator{reply: "  Directors owe a duty of care (Cap. 622, Section 465).  "}
		u := New(gen, Config{}, zaptest.NewLogger(t))

		ans, err := u.Synthesize(ctx, Request{Question: "duties?", Passages: samplePassages()})
		require.NoError(t, err)
		assert.Equal(t, 1, gen.calls())
		assert.Equal(t, "Directors owe a duty of care (Cap. 622, Section 465).", ans.Text)
		assert.Equal(t, ModeMerge, ans.Mode)
		assert.Equal(t, ConfidenceHigh, ans.Confidence)
		require.Len(t, ans.Citations, 3)
		assert.Equal(t, Citation{ID: "sec-465", Source: "Cap. 622, Section 465", Score: 0.81}, ans.Citations[0])
		assert.Equal(t, "Cap. 1, Section 12", ans.Citations[2].Source)
	})

	t.Run("citations are stable across identical runs", func(t *testing.T) {
		gen := &recordingGenerator{reply: "text"}
		u := New(gen, Config{}, zaptest.NewLogger(t))

		first, err := u.Synthesize(ctx, Request{Passages: samplePassages()})
		require.NoError(t, err)
		second, err := u.Synthesize(ctx, Request{Passages: samplePassages()})
		require.NoError(t, err)
		assert.Equal(t, first.Citations, second.Citations)
		assert.Equal(t, first.Confidence, second.Confidence)
	})

	t.Run("no passages", func(t *testing.T) {
		gen := &recordingGenerator{reply: "x"}
		u := New(gen, Config{}, zaptest.NewLogger(t))

		_, err := u.Synthesize(ctx, Request{})
		assert.ErrorIs(t, err, ErrNoPassages)
		assert.Equal(t, 0, gen.calls())
	})

	t.Run("generation failure returns no answer", func(t *testing.T) {
		gen := &recordingGenerator{err: generation.ErrTimeout}
		u := New(gen, Config{}, zaptest.NewLogger(t))

		ans, err := u.Synthesize(ctx, Request{Passages: samplePassages()})
		assert.Nil(t, ans)
		assert.ErrorIs(t, err, generation.ErrTimeout)
		assert.Equal(t, 1, gen.calls())
	})

	t.Run("reconcile mode extracts json", func(t *testing.T) {
		gen := &recordingGenerator{reply: "```json\n{\"reconciled_output\": \"Section 465 governs.\", \"conflicts_identified\": [{\"conflict\": \"465 vs 466 scope\", \"resolution\": \"465 is general\"}]}\n```"}
		u := New(gen, Config{}, zaptest.NewLogger(t))

		ans, err := u.Synthesize(ctx, Request{Mode: ModeReconcile, Passages: samplePassages()})
		require.NoError(t, err)
		assert.Equal(t, "Section 465 governs.", ans.Text)
		assert.Equal(t, []string{"465 vs 466 scope"}, ans.Conflicts)
	})

	t.Run("reconcile mode keeps prose replies", func(t *testing.T) {
		gen := &recordingGenerator{reply: "No conflicts."}
		u := New(gen, Config{}, zaptest.NewLogger(t))

		ans, err := u.Synthesize(ctx, Request{Mode: ModeReconcile, Passages: samplePassages()})
		require.NoError(t, err)
		assert.Equal(t, "No conflicts.", ans.Text)
		assert.Empty(t, ans.Conflicts)
	})

	t.Run("citations limited to passages in budget", func(t *testing.T) {
		gen := &recordingGenerator{reply: "ok"}
		u := New(gen, Config{MaxContextChars: 100}, zaptest.NewLogger(t))

		ans, err := u.Synthesize(ctx, Request{Passages: samplePassages()})
		require.NoError(t, err)
		assert.Len(t, ans.Citations, 1)
		assert.Equal(t, ConfidenceMedium, ans.Confidence)
	})
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, 4000, cfg.MaxContextChars)
	assert.Equal(t, 0.6, *cfg.MinScore)
	assert.Equal(t, 0.3, *cfg.ResearchMinScore)
	assert.Equal(t, 5, cfg.TopKPerQuery)
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.MaxContextChars = 10
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.MinScore = floatPtr(2)
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	zero := Config{MinScore: floatPtr(0), ResearchMinScore: floatPtr(0)}
	zero.ApplyDefaults()
	assert.Equal(t, 0.0, *zero.MinScore)
	assert.Equal(t, 0.0, *zero.ResearchMinScore)
	assert.NoError(t, zero.Validate())
}

func TestCapability_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("typed passages from upstream step", func(t *testing.T) {
		gen := &recordingGenerator{reply: "answer"}
		c := NewCapability(New(gen, Config{}, nil), nil, zaptest.NewLogger(t))

		res := c.Execute(ctx, capability.Task{
			"passages": samplePassages(),
			"question": "duties?",
		})
		require.True(t, res.OK(), res.Error)
		assert.Equal(t, "answer", res.Payload["answer"])
		assert.Equal(t, 3, res.Payload["count"])
		assert.Equal(t, "high", res.Payload["confidence"])
	})

	t.Run("decoded passages from JSON input", func(t *testing.T) {
		gen := &recordingGenerator{reply: "answer"}
		c := NewCapability(New(gen, Config{}, nil), nil, nil)

		res := c.Execute(ctx, capability.Task{
			"passages": []any{
				map[string]any{"id": "s1", "text": "t1", "source": "Cap. 1", "score": 0.9},
			},
		})
		require.True(t, res.OK(), res.Error)
		citations := res.Payload["citations"].([]Citation)
		require.Len(t, citations, 1)
		assert.Equal(t, "Cap. 1", citations[0].Source)
	})

	t.Run("caller sources", func(t *testing.T) {
		gen := &recordingGenerator{reply: "merged"}
		c := NewCapability(New(gen, Config{}, nil), nil, nil)

		res := c.Execute(ctx, capability.Task{
			"sources": []any{
				"plain text source",
				map[string]any{"title": "Employment Ordinance", "content": "Wages are due monthly."},
			},
			"synthesis_type": "summary",
		})
		require.True(t, res.OK(), res.Error)
		citations := res.Payload["citations"].([]Citation)
		require.Len(t, citations, 2)
		assert.Equal(t, "Source 1", citations[0].Source)
		assert.Equal(t, "Employment Ordinance", citations[1].Source)
		assert.Equal(t, "summary", res.Payload["mode"])
		assert.Contains(t, gen.prompts[0], instructions[ModeSummary])
	})

	t.Run("document queries fall back to question", func(t *testing.T) {
		gen := &recordingGenerator{reply: "answer"}
		r := &stubRetriever{passages: samplePassages()}
		c := NewCapability(New(gen, Config{}, nil), r, nil)

		res := c.Execute(ctx, capability.Task{"question": "director duties"})
		require.True(t, res.OK(), res.Error)
		require.Len(t, r.requests, 1)
		assert.Equal(t, []string{"director duties"}, r.requests[0].Queries)
		assert.Equal(t, 0.6, *r.requests[0].MinScore)
		assert.Equal(t, 5, r.requests[0].TopKPerQuery)
	})

	t.Run("document queries are retrieved together", func(t *testing.T) {
		r := &stubRetriever{passages: samplePassages()}
		c := NewCapability(New(&recordingGenerator{reply: "a"}, Config{}, nil), r, nil)

		res := c.Execute(ctx, capability.Task{
			"document_queries": []any{"q1", "q2"},
			"top_k_per_query":  3,
			"min_score":        0.5,
		})
		require.True(t, res.OK(), res.Error)
		assert.Equal(t, []string{"q1", "q2"}, r.requests[0].Queries)
		assert.Equal(t, 3, r.requests[0].TopKPerQuery)
		assert.Equal(t, 0.5, *r.requests[0].MinScore)
	})

	t.Run("empty retrieval fails", func(t *testing.T) {
		gen := &recordingGenerator{reply: "x"}
		c := NewCapability(New(gen, Config{}, nil), &stubRetriever{}, nil)

		res := c.Execute(ctx, capability.Task{"question": "nothing matches"})
		assert.False(t, res.OK())
		assert.Contains(t, res.Error, "no relevant documents found")
		assert.Equal(t, 0, gen.calls())
	})

	t.Run("nothing to work with", func(t *testing.T) {
		c := NewCapability(New(&recordingGenerator{}, Config{}, nil), &stubRetriever{}, nil)
		res := c.Execute(ctx, capability.Task{})
		assert.False(t, res.OK())
		assert.Contains(t, res.Error, "no sources")
	})

	t.Run("generation failure", func(t *testing.T) {
		gen := &recordingGenerator{err: errors.New("model offline")}
		c := NewCapability(New(gen, Config{}, nil), nil, nil)

		res := c.Execute(ctx, capability.Task{"passages": samplePassages()})
		assert.False(t, res.OK())
		assert.Contains(t, res.Error, "model offline")
		assert.Nil(t, res.Payload)
	})

	t.Run("descriptor", func(t *testing.T) {
		c := NewCapability(nil, nil, nil)
		assert.Equal(t, "synthesis", c.Name())
		assert.Equal(t, capability.KindGeneration, c.Kind())
		assert.Contains(t, c.Outputs(), "answer")
		assert.Contains(t, c.Outputs(), "citations")
	})
}

func TestResearchCapability_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("retrieves with research floor then synthesizes", func(t *testing.T) {
		gen := &recordingGenerator{reply: "Directors must act with care."}
		r := &stubRetriever{passages: samplePassages()}
		c := NewResearchCapability(New(gen, Config{}, nil), r)

		res := c.Execute(ctx, capability.Task{"question": "What are director duties?"})
		require.True(t, res.OK(), res.Error)
		assert.Equal(t, 0.3, *r.requests[0].MinScore)
		assert.Equal(t, []string{"What are director duties?"}, r.requests[0].Queries)
		assert.Equal(t, "Directors must act with care.", res.Payload["answer"])
		assert.Equal(t, "high", res.Payload["confidence"])
		assert.Equal(t, 3, res.Payload["count"])
		assert.Len(t, res.Payload["passages"], 3)
	})

	t.Run("no passages completes with low confidence", func(t *testing.T) {
		gen := &recordingGenerator{reply: "x"}
		c := NewResearchCapability(New(gen, Config{}, nil), &stubRetriever{})

		res := c.Execute(ctx, capability.Task{"question": "unknown topic"})
		require.True(t, res.OK(), res.Error)
		assert.Equal(t, NoResultsAnswer, res.Payload["answer"])
		assert.Equal(t, "low", res.Payload["confidence"])
		assert.Equal(t, 0, res.Payload["count"])
		assert.Equal(t, 0, gen.calls())
	})

	t.Run("missing question", func(t *testing.T) {
		c := NewResearchCapability(New(&recordingGenerator{}, Config{}, nil), &stubRetriever{})
		res := c.Execute(ctx, capability.Task{"question": "  "})
		assert.False(t, res.OK())
		assert.Contains(t, res.Error, "question is required")
	})

	t.Run("retrieval error", func(t *testing.T) {
		r := &stubRetriever{err: retrieval.ErrSearchFailed}
		c := NewResearchCapability(New(&recordingGenerator{}, Config{}, nil), r)
		res := c.Execute(ctx, capability.Task{"question": "q"})
		assert.False(t, res.OK())
		assert.Contains(t, res.Error, "search failed")
	})
}
