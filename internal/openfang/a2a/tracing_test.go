package a2a

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestTraceHeaderRoundTripsSpanContext(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	h := http.Header{}
	injectTraceHeaders(ctx, h)
	if h.Get("traceparent") == "" {
		t.Fatal("expected a traceparent header to be injected")
	}

	extracted := extractTraceContext(context.Background(), h)
	got := trace.SpanContextFromContext(extracted)
	if got.TraceID() != sc.TraceID() {
		t.Fatalf("extracted trace id = %v, want %v", got.TraceID(), sc.TraceID())
	}
}
