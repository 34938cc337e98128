package a2a

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/openfang/openfang/internal/openfang/a2a")

// propagator carries the W3C traceparent header across the tasks/send ->
// remote peer HTTP hop, so a task's span stays in the same trace on both
// sides of the wire.
var propagator = propagation.TraceContext{}

func injectTraceHeaders(ctx context.Context, h http.Header) {
	propagator.Inject(ctx, propagation.HeaderCarrier(h))
}

func extractTraceContext(ctx context.Context, h http.Header) context.Context {
	return propagator.Extract(ctx, propagation.HeaderCarrier(h))
}

func startClientSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "a2a.client."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method)))
}

func startServerSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "a2a.server."+method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("rpc.method", method)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
