package workerpresentation

import (
	"context"
	"sync"
	"testing"

	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
)

type captureLogger struct {
	mu     *sync.Mutex
	fields []observability.Field
}

func (l *captureLogger) With(fields ...observability.Field) observability.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fields = append(l.fields, fields...)
	return l
}
func (l *captureLogger) Debug(string, ...observability.Field) {}
func (l *captureLogger) Info(string, ...observability.Field)  {}
func (l *captureLogger) Warn(string, ...observability.Field)  {}
func (l *captureLogger) Error(string, ...observability.Field) {}

func (l *captureLogger) value(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range l.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

type placed struct{}

func (placed) EventName() string { return "order.placed" }
func (placed) EventKey() string  { return "order-1" }

func TestWithEventContextKeepsProvidedEventID(t *testing.T) {
	t.Parallel()

	base := &captureLogger{mu: &sync.Mutex{}}
	ctx := WithEventContext(context.Background(), base, map[string]string{"event_id": "evt-1", "worker": "sweeper", "empty": ""})

	if logctx.From(ctx) == nil {
		t.Fatal("expected logger on context")
	}
	if v, _ := base.value("event_id"); v != "evt-1" {
		t.Fatalf("expected event_id evt-1, got %v", v)
	}
	if _, ok := base.value("empty"); ok {
		t.Fatal("expected empty attributes to be skipped")
	}
	if _, ok := base.value("trace_id"); ok {
		t.Fatal("expected no trace_id without a span")
	}
}

func TestHandleScopesLoggerPerEvent(t *testing.T) {
	t.Parallel()

	base := &captureLogger{mu: &sync.Mutex{}}
	var got observability.Logger
	h := Handle(base, "order_worker", func(ctx context.Context, _ domoutbox.Event) error {
		got = logctx.From(ctx)
		return nil
	})

	if err := h(context.Background(), placed{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected handler to see a scoped logger")
	}
	if v, _ := base.value("key"); v != "order-1" {
		t.Fatalf("expected key order-1, got %v", v)
	}
	if v, _ := base.value("event"); v != "order.placed" {
		t.Fatalf("expected event order.placed, got %v", v)
	}
}
