package synthesis

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/generation"
	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
)

var tracer = otel.Tracer("lexflow.synthesis")

// Unit synthesizes answers from passages.
type Unit struct {
	gen    generation.Generator
	cfg    Config
	logger *zap.Logger
}

// New creates a synthesis unit.
func New(gen generation.Generator, cfg Config, logger *zap.Logger) *Unit {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Unit{gen: gen, cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (u *Unit) Config() Config { return u.cfg }

// Synthesize makes exactly one generation call. On failure no text is
// returned.
func (u *Unit) Synthesize(ctx context.Context, req Request) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "synthesis.Synthesize")
	defer span.End()

	if len(req.Passages) == 0 {
		span.SetStatus(codes.Error, ErrNoPassages.Error())
		return nil, ErrNoPassages
	}
	if !req.Mode.Valid() {
		req.Mode = ModeMerge
	}

	prompt, used := BuildPrompt(u.cfg.SystemPrompt, req, u.cfg.MaxContextChars)
	span.SetAttributes(
		attribute.String("mode", string(req.Mode)),
		attribute.Int("passages.supplied", len(req.Passages)),
		attribute.Int("passages.used", len(used)),
	)
	if len(used) < len(req.Passages) {
		u.logger.Debug("context budget reached",
			zap.Int("supplied", len(req.Passages)),
			zap.Int("used", len(used)),
			zap.Int("max_context_chars", u.cfg.MaxContextChars),
		)
	}

	text, err := u.gen.Generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	ans := &Answer{
		Text:       strings.TrimSpace(text),
		Mode:       req.Mode,
		Citations:  citations(used),
		Confidence: ConfidenceFor(used),
	}
	if req.Mode == ModeReconcile {
		ans.Text, ans.Conflicts = parseReconcile(ans.Text)
	}

	span.SetAttributes(attribute.String("confidence", string(ans.Confidence)))
	span.SetStatus(codes.Ok, "success")
	return ans, nil
}

func citations(passages []retrieval.Passage) []Citation {
	out := make([]Citation, 0, len(passages))
	for _, p := range passages {
		out = append(out, Citation{
			ID:     p.ID,
			Source: SourceLabel(p),
			Title:  p.Title,
			Score:  p.Score,
		})
	}
	return out
}

// parseReconcile pulls the reconciled text and conflicts out of a JSON
// reply. Non-JSON replies are returned unchanged.
func parseReconcile(text string) (string, []string) {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	if !gjson.Valid(body) {
		return text, nil
	}

	out := gjson.Get(body, "reconciled_output")
	if !out.Exists() || strings.TrimSpace(out.String()) == "" {
		return text, nil
	}
	var conflicts []string
	for _, c := range gjson.Get(body, "conflicts_identified.#.conflict").Array() {
		if s := strings.TrimSpace(c.String()); s != "" {
			conflicts = append(conflicts, s)
		}
	}
	return strings.TrimSpace(out.String()), conflicts
}
