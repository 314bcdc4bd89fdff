package validation

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("lexflow.validation")

// Validator runs the extraction cascade.
type Validator struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a validator.
func New(cfg Config, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Validator{cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (v *Validator) Config() Config { return v.cfg }

// Validate extracts a report from content. Each stage is tried once; when
// all of them fail the neutral default report is returned.
func (v *Validator) Validate(ctx context.Context, content string) (rep Report) {
	_, span := tracer.Start(ctx, "validation.Validate")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("validation panicked, using default report", zap.Any("panic", r))
			rep = v.neutral()
		}
		span.SetAttributes(
			attribute.String("strategy", string(rep.Strategy)),
			attribute.String("status", string(rep.Status)),
			attribute.Float64("overall_score", rep.OverallScore),
		)
	}()

	stages := []struct {
		strategy Strategy
		run      func(string) (extraction, bool)
	}{
		{StrategyStructured, structured},
		{StrategyFields, fields},
		{StrategyHeuristic, func(s string) (extraction, bool) { return heuristic(s, v.cfg.MinHeuristicWords) }},
	}
	for _, stage := range stages {
		if ex, ok := stage.run(content); ok {
			v.logger.Debug("assessment extracted", zap.String("strategy", string(stage.strategy)))
			return v.build(ex, stage.strategy)
		}
	}

	v.logger.Debug("assessment not parseable", zap.Int("length", len(content)))
	return v.neutral()
}

func (v *Validator) build(ex extraction, strategy Strategy) Report {
	fill := v.cfg.Midpoint
	switch {
	case ex.hasOverall:
		fill = ex.overall
	case len(ex.dims) > 0:
		var sum float64
		for _, s := range ex.dims {
			sum += s
		}
		fill = sum / float64(len(ex.dims))
	}

	dims := make(map[Dimension]float64, 3)
	for _, d := range Dimensions() {
		s, ok := ex.dims[d]
		if !ok {
			s = fill
		}
		dims[d] = round2(clampScore(s))
	}

	overall := v.cfg.Overall(dims)
	return Report{
		OverallScore:    overall,
		Dimensions:      dims,
		Issues:          dedupe(ex.issues, v.cfg.MaxIssues),
		Recommendations: dedupe(ex.recs, v.cfg.MaxRecommendations),
		Status:          v.cfg.StatusFor(overall),
		Strategy:        strategy,
	}
}

// neutral is the default report: every dimension at the midpoint.
func (v *Validator) neutral() Report {
	dims := make(map[Dimension]float64, 3)
	for _, d := range Dimensions() {
		dims[d] = v.cfg.Midpoint
	}
	return Report{
		OverallScore:    v.cfg.Midpoint,
		Dimensions:      dims,
		Issues:          []string{UnparsedIssue},
		Recommendations: []string{},
		Status:          StatusPartial,
		Strategy:        StrategyDefault,
	}
}

func dedupe(items []string, limit int) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(item))
		if len(out) == limit {
			break
		}
	}
	return out
}

// String renders the report on one line for logs.
func (r Report) String() string {
	return fmt.Sprintf("%s %.1f (%s)", r.Status, r.OverallScore, r.Strategy)
}
