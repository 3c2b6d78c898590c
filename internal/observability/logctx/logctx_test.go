package logctx

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

type recordingLogger struct {
	observability.Logger
	fields []observability.Field
}

func (l *recordingLogger) With(fields ...observability.Field) observability.Logger {
	return &recordingLogger{Logger: l.Logger, fields: append(append([]observability.Field(nil), l.fields...), fields...)}
}

func TestFromOrFallbacks(t *testing.T) {
	t.Parallel()

	if FromOr(context.Background(), nil) == nil {
		t.Fatalf("expected a no-op logger when nothing is available")
	}
	fallback := &recordingLogger{Logger: observability.NopLogger()}
	if got := FromOr(context.Background(), fallback); got != fallback {
		t.Fatalf("expected the fallback logger")
	}
	stored := &recordingLogger{Logger: observability.NopLogger()}
	if got := FromOr(With(context.Background(), stored), fallback); got != stored {
		t.Fatalf("expected the context logger to win over the fallback")
	}
}

func TestEnrich(t *testing.T) {
	t.Parallel()

	if ctx := Enrich(context.Background(), observability.F("order_id", "o-1")); From(ctx) != nil {
		t.Fatalf("expected no logger to be invented")
	}

	base := &recordingLogger{Logger: observability.NopLogger(), fields: []observability.Field{observability.F("request_id", "r-1")}}
	ctx := Enrich(With(context.Background(), base), observability.F("order_id", "o-1"))

	got, ok := From(ctx).(*recordingLogger)
	if !ok {
		t.Fatalf("expected the enriched recording logger, got %T", From(ctx))
	}
	if len(got.fields) != 2 || got.fields[0].Key != "request_id" || got.fields[1].Value != "o-1" {
		t.Fatalf("unexpected fields: %+v", got.fields)
	}
	if len(base.fields) != 1 {
		t.Fatalf("expected the parent logger to stay untouched, got %+v", base.fields)
	}
}
