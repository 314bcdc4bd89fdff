package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans and metrics in memory.
type TestTelemetry struct {
	*Telemetry
	SpanRecorder *tracetest.SpanRecorder
	Reader       *sdkmetric.ManualReader
}

// NewTestTelemetry builds in-memory providers without touching the globals.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	rec := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	return &TestTelemetry{
		Telemetry: &Telemetry{
			config:         cfg,
			tracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)),
			meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		},
		SpanRecorder: rec,
		Reader:       reader,
	}
}

// InstallGlobal sets the test providers as the otel globals for the
// duration of tb and restores the previous ones afterwards.
func (t *TestTelemetry) InstallGlobal(tb testing.TB) {
	tb.Helper()
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	otel.SetTracerProvider(t.tracerProvider)
	otel.SetMeterProvider(t.meterProvider)
	tb.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})
}

// SpanNames lists the names of ended spans in end order.
func (t *TestTelemetry) SpanNames() []string {
	spans := t.SpanRecorder.Ended()
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
	}
	return names
}

// SpanByName returns the first ended span called name, or nil.
func (t *TestTelemetry) SpanByName(name string) sdktrace.ReadOnlySpan {
	for _, s := range t.SpanRecorder.Ended() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// Collect gathers the current metrics.
func (t *TestTelemetry) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := t.Reader.Collect(ctx, &rm)
	return rm, err
}
