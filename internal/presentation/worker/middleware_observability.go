package workerpresentation

import (
	"context"

	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"

	"github.com/google/uuid"
)

// WithEventContext injects a run-scoped logger for background executions.
// Dynamic fields only: trace_id/span_id from ctx (if valid), event_id (generated
// if empty), plus caller-provided low-cardinality attributes such as "worker" or "event".
func WithEventContext(ctx context.Context, base observability.Logger, attrs map[string]string) context.Context {
	if base == nil {
		base = logctx.FromOr(ctx, observability.NopLogger())
	}

	fields := make([]observability.Field, 0, len(attrs)+3)

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields = append(fields, observability.F("event_id", evtID))
	fields = append(fields, observability.TraceFields(ctx)...)

	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}

	return logctx.With(ctx, base.With(fields...))
}

// Handle wraps an event handler so every delivery runs with its own event-scoped logger.
func Handle(base observability.Logger, worker string, h domoutbox.Handler) domoutbox.Handler {
	return func(ctx context.Context, e domoutbox.Event) error {
		ctx = WithEventContext(ctx, base, map[string]string{
			"worker": worker,
			"event":  e.EventName(),
			"key":    domoutbox.Key(e),
		})
		return h(ctx, e)
	}
}
