package oteltrace

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestPropagatorExtractsTraceparent(t *testing.T) {
	p := InstallPropagator()

	h := http.Header{}
	h.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	ctx := p.Extract(context.Background(), propagation.HeaderCarrier(h))

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		t.Fatal("expected a valid remote span context")
	}
	if got := sc.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected trace id to round-trip, got %s", got)
	}

	// Without an SDK the child span is non-recording but keeps the parent trace.
	_, span := New("").Start(ctx, "child")
	defer span.End()
	if span.SpanContext().TraceID() != sc.TraceID() {
		t.Fatalf("expected child in trace %s, got %s", sc.TraceID(), span.SpanContext().TraceID())
	}
}
