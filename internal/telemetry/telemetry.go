package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Telemetry owns the tracer and meter providers.
type Telemetry struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logProvider    log.LoggerProvider
	degraded       atomic.Bool
}

// New builds providers from cfg and installs them globally. A disabled
// config yields an instance that hands out the global providers.
func New(ctx context.Context, cfg *Config, logger *zap.Logger) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)

	if exp, err := newTraceExporter(ctx, cfg); err != nil {
		t.degrade(logger, wrap("trace", err))
	} else {
		t.tracerProvider = newTracerProvider(exp, cfg, res)
		otel.SetTracerProvider(t.tracerProvider)
	}

	if cfg.Metrics {
		if exp, err := newMetricExporter(ctx, cfg); err != nil {
			t.degrade(logger, wrap("metric", err))
		} else {
			t.meterProvider = newMeterProvider(exp, cfg, res)
			otel.SetMeterProvider(t.meterProvider)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("protocol", cfg.Protocol),
		zap.Bool("degraded", t.degraded.Load()),
	)
	return t, nil
}

func (t *Telemetry) degrade(logger *zap.Logger, err error) {
	t.degraded.Store(true)
	logger.Warn("telemetry degraded", zap.Error(err))
}

// Tracer returns a tracer from the owned provider, or the global one.
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter from the owned provider, or the global one.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// LoggerProvider returns the provider for the zap bridge, if one was set.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil {
		return nil
	}
	return t.logProvider
}

// SetLoggerProvider sets the provider for the zap bridge.
func (t *Telemetry) SetLoggerProvider(lp log.LoggerProvider) {
	if t != nil {
		t.logProvider = lp
	}
}

// Degraded reports whether a provider failed to start.
func (t *Telemetry) Degraded() bool {
	return t != nil && t.degraded.Load()
}

// Enabled reports whether telemetry export is configured.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.config != nil && t.config.Enabled
}

// Shutdown flushes and stops the providers, bounded by the configured
// timeout when ctx has no deadline.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.config != nil && t.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
