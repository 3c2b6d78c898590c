package order

import (
	"context"
	"errors"
	"time"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseReleaseStale = "inventory.release_stale"
	defaultSweepBatch   = 100
	expiredReason       = "payment window expired"
)

// ReleaseStale releases reservations older than ttl whose placement never produced
// a live order: the order is missing, or it ended without taking the stock.
// Pending orders keep their reservations until they are older than the configured
// PendingTTL; then their payment is abandoned and the order cancelled, unless the
// gateway turns out to have captured it.
func (s *Service) ReleaseStale(ctx context.Context, ttl time.Duration, limit int) (_ int, err error) {
	ctx, call := s.inst.Begin(ctx, useCaseReleaseStale, "ReleaseStale",
		attribute.Float64("inventory.ttl_seconds", ttl.Seconds()),
	)
	defer func() { call.End(err) }()

	if limit <= 0 {
		limit = defaultSweepBatch
	}
	stale, err := s.inventory.Outstanding(ctx, s.clock.Now().Add(-ttl), limit)
	if err != nil {
		call.Fail("OUTSTANDING_LIST_FAILED")
		return 0, err
	}

	cutoff := s.clock.Now().Add(-s.cfg.PendingTTL)
	var orphaned, expired []string
	seen := make(map[string]bool)
	for _, res := range stale {
		o, gerr := s.orders.Get(ctx, res.Reference)
		switch {
		case errors.Is(gerr, domain.ErrNotFound):
			orphaned = append(orphaned, res.ID)
		case gerr != nil:
			call.Logger().Warn("stale_reservation_check_failed",
				observability.F("reservation_id", res.ID),
				observability.F("error", gerr.Error()),
			)
		case o.Status == domain.StatusCancelled || o.Status == domain.StatusPaymentFailed:
			orphaned = append(orphaned, res.ID)
		case o.Status == domain.StatusPending && s.cfg.PendingTTL > 0 && !o.CreatedAt.After(cutoff):
			if !seen[o.ID] {
				seen[o.ID] = true
				expired = append(expired, o.ID)
			}
		}
	}

	released := s.releaseReservations(ctx, call.Logger(), orphaned, "reservation expired", systemActor)
	cancelled := 0
	for _, orderID := range expired {
		n, ok := s.expire(ctx, call.Logger(), orderID)
		released += n
		if ok {
			cancelled++
		}
	}
	call.With(
		observability.F("checked", len(stale)),
		observability.F("released", released),
		observability.F("expired_orders", cancelled),
	)
	return released, nil
}

// expire cancels a pending order whose payment never completed and reports the
// reservations it gave back. An order the gateway did charge is paid instead.
func (s *Service) expire(ctx context.Context, log observability.Logger, orderID string) (int, bool) {
	log = log.With(observability.F("order_id", orderID))
	captured, err := s.payments.AbandonPayments(ctx, orderID, expiredReason)
	if err != nil {
		log.Warn("pending_order_expiry_deferred", observability.F("error", err.Error()))
		return 0, false
	}
	if captured {
		if _, err := s.MarkPaid(ctx, orderID, systemActor); err != nil {
			log.Warn("pending_order_mark_paid_failed", observability.F("error", err.Error()))
		}
		return 0, false
	}

	_, released, err := s.cancel(ctx, log, orderID, systemActor, expiredReason, true)
	if err != nil {
		log.Warn("pending_order_expiry_failed", observability.F("error", err.Error()))
		return 0, false
	}
	log.Info("pending_order_expired", observability.F("released", released))
	return released, true
}
