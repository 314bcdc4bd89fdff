package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	executionKey struct{}
	requestKey   struct{}
	loggerKey    struct{}
)

type execution struct {
	id       string
	workflow string
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// WithExecution records the workflow execution handled by ctx.
func WithExecution(ctx context.Context, executionID, workflow string) context.Context {
	return context.WithValue(ctx, executionKey{}, execution{id: executionID, workflow: workflow})
}

// WithRequestID records the inbound request id. IDs that are empty, too
// long or contain unexpected characters are ignored.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if !idPattern.MatchString(requestID) {
		return ctx
	}
	return context.WithValue(ctx, requestKey{}, requestID)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestKey{}).(string)
	return id
}

// ContextFields returns the correlation fields carried by ctx.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if ex, ok := ctx.Value(executionKey{}).(execution); ok {
		if ex.id != "" {
			fields = append(fields, zap.String("execution_id", ex.id))
		}
		if ex.workflow != "" {
			fields = append(fields, zap.String("workflow", ex.workflow))
		}
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	return fields
}

// For returns logger annotated with the correlation fields of ctx.
func For(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(fields...)
	}
	return logger
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx annotated with its
// correlation fields, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	logger, ok := ctx.Value(loggerKey{}).(*zap.Logger)
	if !ok {
		return zap.NewNop()
	}
	return For(ctx, logger)
}
