// Package observability provides the trace/span id accessors the audit
// recorder attaches to every entry, plus an optional TracerProvider setup.
// The accessors read whatever provider is installed globally, so an
// embedding process may bring its own OpenTelemetry wiring instead of
// calling Setup.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// GetTraceID returns the active span's trace ID, or "" if none is active.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// GetSpanID returns the active span's span ID, or "" if none is active.
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().SpanID().String()
}
