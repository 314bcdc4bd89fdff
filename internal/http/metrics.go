package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/lexflow/internal/http"

// Metrics records OpenTelemetry request metrics.
type Metrics struct {
	meter          metric.Meter
	logger         *zap.Logger
	requestsTotal  metric.Int64Counter
	requestDur     metric.Float64Histogram
	activeRequests metric.Int64UpDownCounter
}

// NewMetrics creates request metrics from the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{meter: meter, logger: logger}

	var err error
	m.requestsTotal, err = meter.Int64Counter(
		"lexflow.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create requests counter", zap.Error(err))
	}

	// Workflow runs call a model, so the buckets reach well past a minute.
	m.requestDur, err = meter.Float64Histogram(
		"lexflow.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration by method, route and status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.activeRequests, err = meter.Int64UpDownCounter(
		"lexflow.http.active_requests",
		metric.WithDescription("Requests currently in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create active requests gauge", zap.Error(err))
	}
	return m
}

// Middleware records one observation per request. The route pattern, not
// the raw path, is used as the endpoint label.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()

			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, 1)
				defer m.activeRequests.Add(ctx, -1)
			}

			err := next(c)
			status := c.Response().Status
			if err != nil {
				status = toHTTPError(err).Code
			}

			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", routeLabel(c.Path())),
				attribute.Int("status", status),
			)
			if m.requestsTotal != nil {
				m.requestsTotal.Add(ctx, 1, attrs)
			}
			if m.requestDur != nil {
				m.requestDur.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return err
		}
	}
}

func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
