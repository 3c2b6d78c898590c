package outbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func TestBusDeliversToNamedAndWildcardSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	var named, all atomic.Int32
	wg.Add(3)
	bus.Subscribe("order.placed", func(context.Context, domoutbox.Event) error {
		named.Add(1)
		wg.Done()
		return nil
	})
	bus.Subscribe(AllEvents, func(context.Context, domoutbox.Event) error {
		all.Add(1)
		wg.Done()
		return nil
	})
	bus.Start(ctx)
	defer bus.Stop(ctx)

	if err := bus.Publish(ctx, testEvent{name: "order.placed"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(ctx, testEvent{name: "order.paid"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitOrFail(t, &wg)
	if named.Load() != 1 {
		t.Fatalf("expected 1 named delivery, got %d", named.Load())
	}
	if all.Load() != 2 {
		t.Fatalf("expected 2 wildcard deliveries, got %d", all.Load())
	}
}

func TestBusSurvivesPanickingHandler(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil, Options{})
	ctx := context.Background()

	delivered := make(chan struct{}, 1)
	bus.Subscribe("boom", func(context.Context, domoutbox.Event) error {
		panic("handler exploded")
	})
	bus.Subscribe("ok", func(context.Context, domoutbox.Event) error {
		delivered <- struct{}{}
		return errors.New("failures are logged, not propagated")
	})
	bus.Start(ctx)
	defer bus.Stop(ctx)

	_ = bus.Publish(ctx, testEvent{name: "boom"})
	_ = bus.Publish(ctx, testEvent{name: "ok"})

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("expected event after a panic to still be delivered")
	}
}

func TestBusStopDrainsQueueAndRejectsPublish(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil, Options{QueueSize: 16})
	ctx := context.Background()

	var seen atomic.Int32
	bus.Subscribe("tick", func(context.Context, domoutbox.Event) error {
		seen.Add(1)
		return nil
	})
	bus.Start(ctx)

	for i := 0; i < 10; i++ {
		if err := bus.Publish(ctx, testEvent{name: "tick"}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	bus.Stop(stopCtx)

	if seen.Load() != 10 {
		t.Fatalf("expected 10 events drained, got %d", seen.Load())
	}
	if err := bus.Publish(ctx, testEvent{name: "tick"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after stop, got %v", err)
	}
}

func TestBusPublishHonoursContextWhenQueueFull(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil, Options{QueueSize: 1})
	bg := context.Background()

	// Not started, so the single slot stays occupied.
	if err := bus.Publish(bg, testEvent{name: "first"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(bg, 20*time.Millisecond)
	defer cancel()
	if err := bus.Publish(ctx, testEvent{name: "second"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}
}
