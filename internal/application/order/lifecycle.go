package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	appinventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseMarkPaid    = "order.mark_paid"
	useCaseFailPayment = "order.fail_payment"
	useCaseShip        = "order.ship"
	useCaseDeliver     = "order.deliver"
	useCaseCancel      = "order.cancel"
	useCaseGet         = "order.get"
)

// View is an order together with its payment attempts.
type View struct {
	Order    *domain.Order
	Payments []*dompayment.Payment
}

func (s *Service) Get(ctx context.Context, orderID string) (_ View, err error) {
	ctx, call := s.inst.Begin(ctx, useCaseGet, "GetOrder", attribute.String("order.id", orderID))
	defer func() { call.End(err) }()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return View{}, err
	}
	payments, err := s.payments.Payments(ctx, orderID)
	if err != nil {
		return View{}, err
	}
	return View{Order: o, Payments: payments}, nil
}

// MarkPaid moves a pending order to paid and commits the stock of every line.
// Repeating it on a paid order is a no-op.
func (s *Service) MarkPaid(ctx context.Context, orderID, actor string) (_ *domain.Order, err error) {
	ctx, call := s.inst.Begin(ctx, useCaseMarkPaid, "MarkPaid", attribute.String("order.id", orderID))
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", orderID))

	now := s.clock.Now()
	o, changed, err := s.change(ctx, orderID, domain.StatusPaid, func(o *domain.Order) error {
		return o.Pay(actorOr(actor), now)
	})
	if err != nil && o != nil && (o.Status == domain.StatusShipped || o.Status == domain.StatusDelivered) {
		call.Status("ALREADY_PAID")
		return o, nil
	}
	if err != nil && o != nil && (o.Status == domain.StatusCancelled || o.Status == domain.StatusPaymentFailed) {
		// The gateway captured after the order gave its stock back.
		call.Status("LATE_CAPTURE_REFUNDED")
		if rerr := s.refund(ctx, call.Logger(), o); rerr != nil {
			call.Fail("LATE_CAPTURE_REFUND_FAILED")
			return o, rerr
		}
		return o, nil
	}
	if err != nil {
		call.Fail("TRANSITION_FAILED")
		return o, err
	}
	if !changed {
		call.Status("ALREADY_PAID")
		return o, nil
	}

	for _, it := range o.Items {
		rid := it.ReservationID
		cerr := retry(context.WithoutCancel(ctx), s.cfg.CompensationAttempts, s.cfg.CompensationBackoff, func(ctx context.Context) error {
			_, e := s.inventory.CommitStock(ctx, appinventory.CommitInput{
				ReservationID: rid,
				Reason:        "order " + o.Number + " paid",
				Actor:         actorOr(actor),
			})
			return e
		})
		if cerr != nil {
			call.Status("STOCK_COMMIT_FAILED")
			call.Logger().Error("stock_commit_failed",
				observability.F("order_id", o.ID),
				observability.F("reservation_id", rid),
				observability.F("error", cerr.Error()),
			)
		}
	}
	return o, nil
}

// FailPayment moves a pending order to payment_failed and gives back its stock and coupon usage.
func (s *Service) FailPayment(ctx context.Context, orderID, actor, reason string) (_ *domain.Order, err error) {
	ctx, call := s.inst.Begin(ctx, useCaseFailPayment, "FailPayment", attribute.String("order.id", orderID))
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", orderID))

	if reason == "" {
		reason = "payment declined"
	}
	now := s.clock.Now()
	o, changed, err := s.change(ctx, orderID, domain.StatusPaymentFailed, func(o *domain.Order) error {
		return o.FailPayment(actorOr(actor), reason, now)
	})
	if err != nil && o != nil && o.Status == domain.StatusCancelled {
		call.Status("ALREADY_CANCELLED")
		return o, nil
	}
	if err != nil {
		call.Fail("TRANSITION_FAILED")
		return o, err
	}
	if !changed {
		call.Status("ALREADY_FAILED")
		return o, nil
	}

	released := s.releaseReservations(ctx, call.Logger(), reservationIDs(o), reason, actorOr(actor))
	s.releaseCoupon(ctx, call.Logger(), o.CouponCode, o.ID)
	s.abandonPayments(ctx, call.Logger(), o, reason)
	call.With(observability.F("released", released))
	return o, nil
}

func (s *Service) Ship(ctx context.Context, orderID, actor string) (_ *domain.Order, err error) {
	ctx, call := s.inst.Begin(ctx, useCaseShip, "ShipOrder", attribute.String("order.id", orderID))
	defer func() { call.End(err) }()

	now := s.clock.Now()
	o, changed, err := s.change(ctx, orderID, domain.StatusShipped, func(o *domain.Order) error {
		return o.Ship(actorOr(actor), now)
	})
	if err == nil && !changed {
		call.Status("ALREADY_SHIPPED")
	}
	return o, err
}

func (s *Service) Deliver(ctx context.Context, orderID, actor string) (_ *domain.Order, err error) {
	ctx, call := s.inst.Begin(ctx, useCaseDeliver, "DeliverOrder", attribute.String("order.id", orderID))
	defer func() { call.End(err) }()

	now := s.clock.Now()
	o, changed, err := s.change(ctx, orderID, domain.StatusDelivered, func(o *domain.Order) error {
		return o.Deliver(actorOr(actor), now)
	})
	if err == nil && !changed {
		call.Status("ALREADY_DELIVERED")
	}
	return o, err
}

// Cancel cancels a pending or paid order. Stock still held by the order is released;
// a paid order is refunded, an unpaid one gets its coupon usage back and its open
// payments voided.
func (s *Service) Cancel(ctx context.Context, orderID, actor, reason string) (_ *domain.Order, err error) {
	ctx, call := s.inst.Begin(ctx, useCaseCancel, "CancelOrder", attribute.String("order.id", orderID))
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", orderID))

	if strings.TrimSpace(reason) == "" {
		reason = "cancelled by customer"
	}
	o, released, err := s.cancel(ctx, call.Logger(), orderID, actorOr(actor), reason, false)
	call.With(observability.F("released", released))
	return o, err
}

// cancel moves the order to cancelled and undoes what it holds. With pendingOnly
// a paid order is left alone.
func (s *Service) cancel(ctx context.Context, log observability.Logger, orderID, actor, reason string, pendingOnly bool) (*domain.Order, int, error) {
	now := s.clock.Now()
	o, changed, err := s.change(ctx, orderID, domain.StatusCancelled, func(o *domain.Order) error {
		if pendingOnly && o.Status != domain.StatusPending {
			return domain.ErrInvalidStateTransition
		}
		return o.Cancel(actor, reason, now)
	})
	if err != nil || !changed {
		return o, 0, err
	}

	from := o.History[len(o.History)-1].From
	released := s.releaseReservations(ctx, log, reservationIDs(o), reason, actor)
	if from == domain.StatusPaid {
		_ = s.refund(ctx, log, o)
	} else {
		s.releaseCoupon(ctx, log, o.CouponCode, o.ID)
		s.abandonPayments(ctx, log, o, reason)
	}
	return o, released, nil
}

// abandonPayments voids the open payments of an order that will not be paid and
// refunds any the gateway captured in the meantime. Payments the gateway could not
// settle stay flagged; a capture found by reconciliation is refunded by MarkPaid.
func (s *Service) abandonPayments(ctx context.Context, log observability.Logger, o *domain.Order, reason string) {
	captured, err := s.payments.AbandonPayments(context.WithoutCancel(ctx), o.ID, reason)
	if err != nil {
		log.Warn("payment_abandon_deferred",
			observability.F("order_id", o.ID),
			observability.F("error", err.Error()),
		)
	}
	if captured {
		_ = s.refund(ctx, log, o)
	}
}

func (s *Service) refund(ctx context.Context, log observability.Logger, o *domain.Order) error {
	payments, err := s.payments.Payments(ctx, o.ID)
	if err != nil {
		log.Error("refund_lookup_failed", observability.F("order_id", o.ID), observability.F("error", err.Error()))
		return err
	}
	var errs []error
	for _, p := range payments {
		if p.Status != dompayment.StatusCompleted {
			continue
		}
		if _, err := s.payments.RefundPayment(context.WithoutCancel(ctx), p.TransactionID, 0); err != nil {
			errs = append(errs, err)
			log.Error("refund_failed",
				observability.F("order_id", o.ID),
				observability.F("payment_id", p.ID),
				observability.F("error", err.Error()),
			)
		}
	}
	return errors.Join(errs...)
}

// change loads the order, applies one transition and persists it. changed is
// false when the order already sits in target.
func (s *Service) change(ctx context.Context, orderID string, target domain.Status, apply func(*domain.Order) error) (*domain.Order, bool, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	if o.Status == target {
		return o, false, nil
	}
	if err := apply(o); err != nil {
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			return o, false, apperr.Wrap(apperr.KindInvalidState, err,
				fmt.Sprintf("order %s cannot move from %s to %s", o.Number, o.Status, target))
		}
		return o, false, apperr.Internal(err)
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return o, false, wrapRepositoryError(err)
	}
	s.publish(ctx, domain.NewStatusChangedEvent(o))
	return o, true, nil
}

func (s *Service) load(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.Wrap(apperr.KindNotFound, err, fmt.Sprintf("order %s not found", orderID))
	}
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return o, nil
}

func reservationIDs(o *domain.Order) []string {
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ReservationID)
	}
	return ids
}

func actorOr(actor string) string {
	if actor == "" {
		return systemActor
	}
	return actor
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Internal(fmt.Errorf("%w: %v", ErrRepository, err))
}
