package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/drblury/asyncflow"

// Tracer starts one span per dispatch.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a tracer backed by the global OpenTelemetry provider, or a
// no-op tracer when disabled.
func NewTracer(enabled bool) *Tracer {
	if !enabled {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(tracerName)}
	}
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// NewTracerFromProvider uses an explicit provider.
func NewTracerFromProvider(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		return NewTracer(false)
	}
	return &Tracer{tracer: provider.Tracer(tracerName)}
}

// Start opens the "asyncflow.<verb>" span.
func (t *Tracer) Start(ctx context.Context, verb, operationID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "asyncflow."+verb,
		trace.WithSpanKind(spanKind(verb)),
		trace.WithAttributes(
			attribute.String("messaging.operation.name", verb),
			attribute.String("asyncflow.operation_id", operationID),
		),
	)
}

// Annotate adds the resolved destination to the span.
func Annotate(span trace.Span, protocol, destination, messageName string) {
	span.SetAttributes(
		attribute.String("messaging.system", protocol),
		attribute.String("messaging.destination.name", destination),
		attribute.String("asyncflow.message", messageName),
	)
}

// End records err, if any, and ends the span.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func spanKind(verb string) trace.SpanKind {
	if verb == "subscribe" {
		return trace.SpanKindConsumer
	}
	return trace.SpanKindProducer
}
