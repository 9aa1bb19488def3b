// Package tracing wraps handler executions in OpenTelemetry spans. Spans go to
// the globally registered tracer provider, which is a no-op until the
// application installs one.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies the spans created here.
const InstrumentationName = "github.com/drblury/jetflow"

// Attribute keys set on job and stream spans.
const (
	AttrJID      = attribute.Key("jetflow.jid")
	AttrClass    = attribute.Key("jetflow.class")
	AttrStream   = attribute.Key("jetflow.stream")
	AttrSubject  = attribute.Key("jetflow.subject")
	AttrAttempt  = attribute.Key("jetflow.attempt")
	AttrSequence = attribute.Key("jetflow.sequence")
)

// Tracer returns the tracer used by the processors.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Start opens a consumer span named name.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
