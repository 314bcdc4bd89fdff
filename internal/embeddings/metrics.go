package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/lexflow/internal/embeddings"

// Metrics holds embedding instruments. A nil *Metrics records nothing.
type Metrics struct {
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	errors    metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return NewMetricsWithMeter(otel.Meter(instrumentationName), logger)
}

// NewMetricsWithMeter creates instruments on the given meter.
func NewMetricsWithMeter(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{}
	var err error

	m.duration, err = meter.Float64Histogram(
		"lexflow.embedding.duration_seconds",
		metric.WithDescription("Duration of embedding requests by model and operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.batchSize, err = meter.Int64Histogram(
		"lexflow.embedding.batch_size",
		metric.WithDescription("Number of texts per embedding request"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 500),
	)
	if err != nil {
		logger.Warn("failed to create batch size histogram", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"lexflow.embedding.errors_total",
		metric.WithDescription("Embedding request failures by model and operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create errors counter", zap.Error(err))
	}
	return m
}

// Record records one embedding request.
func (m *Metrics) Record(ctx context.Context, model, operation string, duration time.Duration, batchSize int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if batchSize > 0 && m.batchSize != nil {
		m.batchSize.Record(ctx, int64(batchSize), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
