package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	appinventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	apppayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/catalog"
	domcoupon "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/coupon"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const useCasePlace = "order.place"

type PlaceOrderInput struct {
	Owner domain.Owner
	// Items replaces the stored cart when set.
	Items           []catalog.CartItem
	ShippingAddress domain.Address
	// BillingAddress defaults to the shipping address.
	BillingAddress *domain.Address
	CouponCode     string
	Currency       string
	IdempotencyKey string
	Actor          string
}

type PlaceOrderResult struct {
	Order   *domain.Order
	Payment *dompayment.Payment
	// PaymentPending is set when the payment outcome is not known yet, either
	// because the gateway timed out or because the customer still has to confirm.
	PaymentPending bool
	Replayed       bool
	Warnings       []string
}

// PlaceOrder turns a cart into an order: it reserves stock, prices the lines,
// applies the coupon, persists the order and starts the payment. Any failure after
// stock was reserved is compensated before returning.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	ctx, call := s.inst.Begin(ctx, useCasePlace, "PlaceOrder",
		attribute.String("order.owner", in.Owner.Key()),
		attribute.Bool("order.has_coupon", in.CouponCode != ""),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("owner", in.Owner.Key()))

	shipping, billing, verr := s.validatePlacement(in)
	if verr != nil {
		call.Fail("VALIDATION_FAILED")
		return nil, verr
	}

	var idemKey, placedID string
	if in.IdempotencyKey != "" && s.idempotency != nil {
		idemKey = in.Owner.Key() + ":" + in.IdempotencyKey
		replay, claimed, cerr := s.claim(ctx, idemKey)
		if cerr != nil {
			call.Fail("IDEMPOTENCY_CLAIM_FAILED")
			return nil, cerr
		}
		if !claimed {
			call.Status("IDEMPOTENT_REPLAY")
			call.Span().AddEvent("order.idempotent_replay",
				trace.WithAttributes(attribute.String("order.id", replay.Order.ID)),
			)
			return replay, nil
		}
		defer func() {
			s.settleClaim(context.WithoutCancel(ctx), call.Logger(), idemKey, placedID)
		}()
	}

	lines, fromCart, lerr := s.loadLines(ctx, in)
	if lerr != nil {
		call.Fail("CART_INVALID")
		return nil, lerr
	}
	variants, verr := s.lookupVariants(ctx, lines)
	if verr != nil {
		call.Fail("VARIANT_LOOKUP_FAILED")
		return nil, verr
	}

	a := &attempt{orderID: s.ids.NewID()}
	ctx = logctx.Enrich(ctx, observability.F("order_id", a.orderID))
	call.With(observability.F("order_id", a.orderID))
	call.Span().SetAttributes(attribute.String("order.id", a.orderID))

	items, rerr := s.reserve(ctx, a, lines, variants, in.Actor)
	if rerr != nil {
		call.Fail("RESERVATION_FAILED")
		s.compensate(ctx, call, a, rerr)
		return nil, rerr
	}

	var subtotal int64
	for _, it := range items {
		subtotal += it.LineTotal
	}

	result := &PlaceOrderResult{}
	couponCode := domcoupon.NormalizeCode(in.CouponCode)
	var coupon *domcoupon.Validated
	if couponCode != "" {
		v, cerr := s.discounts.ValidateCoupon(ctx, couponCode, subtotal)
		switch {
		case cerr == nil:
			coupon = &v
		case apperr.Is(cerr, apperr.KindCouponInvalid) && s.cfg.CouponPolicy == CouponLenient:
			result.Warnings = append(result.Warnings, apperr.Message(cerr))
			couponCode = ""
		default:
			call.Fail("COUPON_REJECTED")
			s.compensate(ctx, call, a, cerr)
			return nil, cerr
		}
	}

	var discount int64
	if coupon != nil {
		discount = coupon.Discount
	}
	now := s.clock.Now()
	o, berr := domain.New(domain.Params{
		ID:              a.orderID,
		Owner:           in.Owner,
		Items:           items,
		Totals:          s.cfg.Pricing.Totals(subtotal, discount, in.Currency),
		CouponCode:      couponCode,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		Actor:           actorOr(in.Actor),
		Now:             now,
	})
	if berr != nil {
		call.Fail("ORDER_INVALID")
		err = apperr.Wrap(apperr.KindValidation, berr, "order is invalid")
		s.compensate(ctx, call, a, err)
		return nil, err
	}

	// Usage is consumed only once the customer confirmed the order.
	if coupon != nil {
		if aerr := s.discounts.ApplyCoupon(ctx, *coupon, o.ID); aerr != nil {
			if !apperr.Is(aerr, apperr.KindCouponInvalid) || s.cfg.CouponPolicy != CouponLenient {
				call.Fail("COUPON_APPLY_FAILED")
				s.compensate(ctx, call, a, aerr)
				return nil, aerr
			}
			result.Warnings = append(result.Warnings, apperr.Message(aerr))
			o.CouponCode = ""
			o.Totals = s.cfg.Pricing.Totals(subtotal, 0, in.Currency)
		} else {
			a.couponCode = coupon.Code
		}
	}

	if ierr := s.insert(ctx, o, now); ierr != nil {
		call.Fail("REPO_INSERT_FAILED")
		s.compensate(ctx, call, a, ierr)
		return nil, ierr
	}
	a.persisted = true
	placedID = o.ID
	call.With(observability.F("order_number", o.Number), observability.F("total", o.Totals.Total))
	s.publish(ctx, domain.NewPlacedEvent(o))

	if fromCart && s.cart != nil {
		if cerr := s.cart.ClearCart(ctx, in.Owner.Key()); cerr != nil {
			call.Logger().Warn("cart_clear_failed",
				observability.F("owner", in.Owner.Key()),
				observability.F("error", cerr.Error()),
			)
		}
	}

	result.Order = o
	p, perr := s.payments.CreatePayment(ctx, apppayment.CreateInput{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Amount:      o.Totals.Total,
		Currency:    o.Totals.Currency,
	})
	result.Payment = p

	switch {
	case perr == nil && p.Status == dompayment.StatusCompleted:
		paid, merr := s.MarkPaid(ctx, o.ID, systemActor)
		if merr != nil {
			// The payment worker retries on the completed event.
			call.Status("MARK_PAID_DEFERRED")
			return result, nil
		}
		result.Order = paid
	case perr == nil:
		result.PaymentPending = true
		call.Status("PAYMENT_AWAITING_CONFIRMATION")
	case apperr.Is(perr, apperr.KindGatewayTimeout), apperr.Is(perr, apperr.KindGatewayUnavailable):
		// Outcome unknown: keep the order pending and the stock reserved until reconciled.
		result.PaymentPending = true
		result.Warnings = append(result.Warnings, apperr.Message(perr))
		call.Status("PAYMENT_PENDING_RECONCILIATION")
	case apperr.Is(perr, apperr.KindPaymentDeclined):
		failed, ferr := s.FailPayment(ctx, o.ID, systemActor, apperr.Message(perr))
		if ferr == nil {
			result.Order = failed
		}
		call.Fail("PAYMENT_DECLINED")
		return result, perr
	default:
		call.Fail("PAYMENT_START_FAILED")
		s.compensate(ctx, call, a, perr)
		placedID = ""
		return nil, perr
	}
	return result, nil
}

func (s *Service) validatePlacement(in PlaceOrderInput) (domain.Address, domain.Address, error) {
	if err := in.Owner.Validate(); err != nil {
		return domain.Address{}, domain.Address{}, apperr.Wrap(apperr.KindValidation, err,
			"a user id, or a guest id with a valid email, is required")
	}
	shipping := in.ShippingAddress.Normalize()
	if err := shipping.Validate(); err != nil {
		return domain.Address{}, domain.Address{}, apperr.Wrap(apperr.KindValidation, err, "invalid shipping address")
	}
	billing := shipping
	if in.BillingAddress != nil {
		billing = in.BillingAddress.Normalize()
		if err := billing.Validate(); err != nil {
			return domain.Address{}, domain.Address{}, apperr.Wrap(apperr.KindValidation, err, "invalid billing address")
		}
	}
	return shipping, billing, nil
}

// loadLines returns the requested lines with duplicates merged, in first-seen order.
func (s *Service) loadLines(ctx context.Context, in PlaceOrderInput) ([]catalog.CartItem, bool, error) {
	raw, fromCart := in.Items, false
	if len(raw) == 0 {
		if s.cart == nil {
			return nil, false, apperr.Validation("cart is empty")
		}
		items, err := s.cart.GetCartItems(ctx, in.Owner.Key())
		if err != nil {
			return nil, false, apperr.Wrap(apperr.KindInternal, err, "load cart")
		}
		raw, fromCart = items, true
	}

	merged := make([]catalog.CartItem, 0, len(raw))
	index := make(map[string]int, len(raw))
	for _, it := range raw {
		if it.VariantID == "" {
			return nil, false, apperr.Validation("cart line without variant id")
		}
		if it.Quantity <= 0 {
			return nil, false, apperr.Validation(fmt.Sprintf("quantity for variant %s must be greater than zero", it.VariantID))
		}
		if i, ok := index[it.VariantID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.VariantID] = len(merged)
		merged = append(merged, it)
	}
	if len(merged) == 0 {
		return nil, false, apperr.Validation("cart is empty")
	}
	return merged, fromCart, nil
}

func (s *Service) lookupVariants(ctx context.Context, lines []catalog.CartItem) ([]catalog.Variant, error) {
	variants := make([]catalog.Variant, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.LookupConcurrency)
	for i, line := range lines {
		g.Go(func() error {
			start := time.Now()
			v, err := s.catalog.GetVariant(gctx, line.VariantID)
			s.inst.External("catalog", "get_variant", outcome(err), start)
			if errors.Is(err, catalog.ErrVariantNotFound) {
				return apperr.Wrap(apperr.KindValidation, err, fmt.Sprintf("variant %s does not exist", line.VariantID))
			}
			if err != nil {
				return apperr.Wrap(apperr.KindInternal, err, "catalog lookup")
			}
			variants[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return variants, nil
}

// reserve holds stock for each line in order and records every reservation on a,
// so a partial failure can be released.
func (s *Service) reserve(ctx context.Context, a *attempt, lines []catalog.CartItem, variants []catalog.Variant, actor string) ([]domain.Item, error) {
	items := make([]domain.Item, 0, len(lines))
	for i, line := range lines {
		res, err := s.inventory.ReserveStock(ctx, appinventory.ReserveInput{
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			Reference: a.orderID,
			Actor:     actorOr(actor),
		})
		if err != nil {
			return nil, err
		}
		a.reservationIDs = append(a.reservationIDs, res.ID)

		v := variants[i]
		unit := v.UnitPrice()
		items = append(items, domain.Item{
			ID:            s.ids.NewID(),
			VariantID:     v.ID,
			ProductID:     v.ProductID,
			SKU:           v.SKU,
			Quantity:      line.Quantity,
			UnitPrice:     unit,
			LineTotal:     unit * int64(line.Quantity),
			ReservationID: res.ID,
		})
	}
	return items, nil
}

// insert numbers and stores the order, drawing a fresh number when a concurrent
// placement took the one it got.
func (s *Service) insert(ctx context.Context, o *domain.Order, now time.Time) error {
	var err error
	for i := 0; i < maxInsertAttempts; i++ {
		var number string
		number, err = s.numbers.Next(ctx, now)
		if err != nil {
			if errors.Is(err, domain.ErrNumberSpaceExhausted) {
				return apperr.Wrap(apperr.KindConflict, err, "no order numbers left for today")
			}
			return wrapRepositoryError(err)
		}
		o.Number = number
		err = s.orders.Insert(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrNumberTaken) {
			return wrapRepositoryError(err)
		}
	}
	return apperr.Wrap(apperr.KindConflict, err, "could not allocate an order number")
}

func (s *Service) claim(ctx context.Context, key string) (*PlaceOrderResult, bool, error) {
	orderID, claimed, err := s.idempotency.Claim(ctx, key)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.KindInternal, err, "idempotency claim")
	}
	if claimed {
		return nil, true, nil
	}
	if orderID == "" {
		return nil, false, apperr.New(apperr.KindConflict, "an order with this idempotency key is still being placed")
	}
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	res := &PlaceOrderResult{Order: o, Replayed: true}
	if payments, perr := s.payments.Payments(ctx, orderID); perr == nil && len(payments) > 0 {
		res.Payment = payments[len(payments)-1]
		res.PaymentPending = res.Payment.Status == dompayment.StatusPending
	}
	return res, false, nil
}

// settleClaim keeps the key for a placement that produced an order and frees it otherwise.
func (s *Service) settleClaim(ctx context.Context, log observability.Logger, key, orderID string) {
	var err error
	if orderID != "" {
		err = s.idempotency.Complete(ctx, key, orderID)
	} else {
		err = s.idempotency.Forget(ctx, key)
	}
	if err != nil {
		log.Warn("idempotency_settle_failed",
			observability.F("key", key),
			observability.F("error", err.Error()),
		)
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
