package order

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	appinventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/apperr"
)

// retry runs fn until it succeeds, the attempts run out or ctx ends, doubling
// the pause between attempts. Validation and not-found failures are final.
func retry(ctx context.Context, attempts int, backoff time.Duration, fn func(context.Context) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		switch apperr.KindOf(err) {
		case apperr.KindValidation, apperr.KindNotFound, apperr.KindInvalidState:
			return err
		}
		if i == attempts-1 {
			break
		}
		if serr := sleepOrDone(ctx, backoff<<i); serr != nil {
			return err
		}
	}
	return err
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// releaseReservations gives back every reservation, retrying each one. Release is
// idempotent so a retry after a lost response cannot double-restore stock.
func (s *Service) releaseReservations(ctx context.Context, log observability.Logger, reservationIDs []string, reason, actor string) int {
	ctx = context.WithoutCancel(ctx)
	released := 0
	for _, rid := range reservationIDs {
		if rid == "" {
			continue
		}
		var result appinventory.ReleaseResult
		err := retry(ctx, s.cfg.CompensationAttempts, s.cfg.CompensationBackoff, func(ctx context.Context) error {
			var rerr error
			result, rerr = s.inventory.ReleaseStock(ctx, appinventory.ReleaseInput{
				ReservationID: rid,
				Reason:        reason,
				Actor:         actor,
			})
			return rerr
		})
		if err != nil {
			s.compensations.Add(1, observability.L("step", "release_stock"), observability.L("outcome", "error"))
			log.Error("compensation_release_failed",
				observability.F("reservation_id", rid),
				observability.F("error", err.Error()),
			)
			continue
		}
		s.compensations.Add(1, observability.L("step", "release_stock"), observability.L("outcome", "success"))
		if result.Released {
			released++
		}
	}
	return released
}

func (s *Service) releaseCoupon(ctx context.Context, log observability.Logger, code, orderID string) {
	if code == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	err := retry(ctx, s.cfg.CompensationAttempts, s.cfg.CompensationBackoff, func(ctx context.Context) error {
		_, rerr := s.discounts.ReleaseCoupon(ctx, code, orderID)
		return rerr
	})
	outcome := "success"
	if err != nil {
		outcome = "error"
		log.Error("compensation_coupon_release_failed",
			observability.F("code", code),
			observability.F("order_id", orderID),
			observability.F("error", err.Error()),
		)
	}
	s.compensations.Add(1, observability.L("step", "release_coupon"), observability.L("outcome", outcome))
}

// attempt tracks what a placement has done so far, so a failure can undo exactly that.
type attempt struct {
	orderID        string
	reservationIDs []string
	couponCode     string // set once the coupon usage was consumed
	persisted      bool
}

// compensate undoes a failed placement: it releases the reservations, returns the
// coupon usage and cancels the order if it was already stored.
func (s *Service) compensate(ctx context.Context, call *application.Call, a *attempt, cause error) {
	ctx = context.WithoutCancel(ctx)
	log := call.Logger().With(observability.F("order_id", a.orderID))
	reason := "placement failed: " + string(apperr.KindOf(cause))

	if a.persisted {
		// Cancelling releases the order's reservations and coupon usage itself.
		_, _, err := s.cancel(ctx, log, a.orderID, systemActor, reason, true)
		outcome := "success"
		if err != nil {
			outcome = "error"
			log.Error("compensation_cancel_failed", observability.F("error", err.Error()))
		}
		s.compensations.Add(1, observability.L("step", "cancel_order"), observability.L("outcome", outcome))
		if err == nil {
			return
		}
	}

	released := s.releaseReservations(ctx, log, a.reservationIDs, reason, systemActor)
	s.releaseCoupon(ctx, log, a.couponCode, a.orderID)
	log.Warn("placement_compensated",
		observability.F("released", released),
		observability.F("cause", cause.Error()),
	)
}
