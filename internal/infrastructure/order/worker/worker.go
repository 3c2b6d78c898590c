package worker

import (
	"context"
	"fmt"

	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
	workerpresentation "github.com/Zhima-Mochi/minishop-fulfillment/internal/presentation/worker"
)

const (
	workerName   = "order_worker"
	paymentActor = "payment-gateway"
)

// Lifecycle is the part of the order service driven by payment outcomes.
type Lifecycle interface {
	MarkPaid(ctx context.Context, orderID, actor string) (*domorder.Order, error)
	FailPayment(ctx context.Context, orderID, actor, reason string) (*domorder.Order, error)
}

// Worker settles orders whose payment was resolved after placement returned,
// either by a gateway notification or by reconciliation.
type Worker struct {
	subscriber domoutbox.Subscriber
	orders     Lifecycle
	log        observability.Logger
}

func New(subscriber domoutbox.Subscriber, orders Lifecycle, logger observability.Logger) *Worker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Worker{
		subscriber: subscriber,
		orders:     orders,
		log:        logger.With(observability.F("component", workerName)),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.orders == nil {
		return
	}
	w.subscriber.Subscribe(dompayment.CompletedEvent{}.EventName(), workerpresentation.Handle(w.log, workerName, w.handlePaymentCompleted))
	w.subscriber.Subscribe(dompayment.FailedEvent{}.EventName(), workerpresentation.Handle(w.log, workerName, w.handlePaymentFailed))
}

func (w *Worker) handlePaymentCompleted(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(dompayment.CompletedEvent)
	if !ok {
		return nil
	}
	logger := logctx.FromOr(ctx, w.log)

	o, err := w.orders.MarkPaid(ctx, evt.OrderID, paymentActor)
	if err != nil {
		logger.Warn("order_mark_paid_failed",
			observability.F("order_id", evt.OrderID),
			observability.F("error", err.Error()),
		)
		return fmt.Errorf("order worker: mark paid: %w", err)
	}

	logger.Info("order_payment_settled",
		observability.F("order_id", o.ID),
		observability.F("status", string(o.Status)),
	)
	return nil
}

func (w *Worker) handlePaymentFailed(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(dompayment.FailedEvent)
	if !ok {
		return nil
	}
	logger := logctx.FromOr(ctx, w.log)

	o, err := w.orders.FailPayment(ctx, evt.OrderID, paymentActor, evt.Reason)
	if err != nil {
		logger.Warn("order_fail_payment_failed",
			observability.F("order_id", evt.OrderID),
			observability.F("error", err.Error()),
		)
		return fmt.Errorf("order worker: fail payment: %w", err)
	}

	logger.Warn("order_payment_failed",
		observability.F("order_id", o.ID),
		observability.F("reason", evt.Reason),
	)
	return nil
}
