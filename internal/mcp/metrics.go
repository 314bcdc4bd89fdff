package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
	"github.com/fyrsmithlabs/lexflow/internal/workflow"
)

const instrumentationName = "github.com/fyrsmithlabs/lexflow/internal/mcp"

// Metrics records tool invocation metrics.
type Metrics struct {
	invocations    metric.Int64Counter
	duration       metric.Float64Histogram
	errors         metric.Int64Counter
	activeRequests metric.Int64UpDownCounter
}

// NewMetrics creates tool metrics from the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{}

	var err error
	m.invocations, err = meter.Int64Counter(
		"lexflow.mcp.tool.invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		logger.Warn("failed to create invocations counter", zap.Error(err))
	}

	m.duration, err = meter.Float64Histogram(
		"lexflow.mcp.tool.duration_seconds",
		metric.WithDescription("Duration of MCP tool invocations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"lexflow.mcp.tool.errors_total",
		metric.WithDescription("Total number of MCP tool errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.activeRequests, err = meter.Int64UpDownCounter(
		"lexflow.mcp.tool.active_requests",
		metric.WithDescription("Number of currently active MCP tool requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create active requests gauge", zap.Error(err))
	}
	return m
}

// RecordInvocation records one finished invocation.
func (m *Metrics) RecordInvocation(ctx context.Context, tool string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("reason", categorizeError(err)),
		))
	}
}

// IncrementActive marks an invocation as started.
func (m *Metrics) IncrementActive(ctx context.Context, tool string) {
	if m.activeRequests != nil {
		m.activeRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
	}
}

// DecrementActive marks an invocation as finished.
func (m *Metrics) DecrementActive(ctx context.Context, tool string) {
	if m.activeRequests != nil {
		m.activeRequests.Add(ctx, -1, metric.WithAttributes(attribute.String("tool", tool)))
	}
}

func categorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, workflow.ErrUnknownWorkflow):
		return "not_found"
	case errors.Is(err, retrieval.ErrInvalidRequest), errors.Is(err, workflow.ErrInvalidDefinition):
		return "validation_error"
	case errors.Is(err, retrieval.ErrSearchFailed):
		return "storage_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal_error"
	}
}
