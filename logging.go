package tracekit

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// LoggerWithTrace returns a logger carrying the trace context of ctx as
// structured fields, correlating log lines with spans.
//
//	logger := tracekit.LoggerWithTrace(ctx, log)
//	logger.Info("processing request")
//	// the entry carries trace_id and span_id fields
func LoggerWithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return nil
	}
	fields := TraceFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// TraceFields returns the trace context of ctx as zap fields. Empty when no
// valid span is active.
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}

	fields := make([]zap.Field, 0, 3)
	if sc.HasTraceID() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	if sc.HasSpanID() {
		fields = append(fields, zap.String("span_id", sc.SpanID().String()))
	}
	if sc.IsSampled() {
		fields = append(fields, zap.Bool("trace_sampled", true))
	}
	return fields
}
