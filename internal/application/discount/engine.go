package discount

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/coupon"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
)

const (
	discountService = "discount-service"
	useCaseValidate = "coupon.validate"
	useCaseApply    = "coupon.apply"
	useCaseRelease  = "coupon.release"
	useCaseCreate   = "coupon.create"
)

// Engine validates coupons and keeps their usage counters honest.
type Engine struct {
	repo  domain.Repository
	ids   application.IDGenerator
	clock application.Clock
	inst  *application.Instrument

	redemptions observability.Counter // coupon_redemptions_total{outcome}
}

func NewEngine(repo domain.Repository, ids application.IDGenerator, clock application.Clock, tel observability.Observability) *Engine {
	inst := application.NewInstrument(tel, discountService)
	return &Engine{
		repo:        repo,
		ids:         ids,
		clock:       clock,
		inst:        inst,
		redemptions: inst.Metrics().Counter(observability.MCouponRedemptions),
	}
}

// CreateCoupon stores a new coupon definition.
func (e *Engine) CreateCoupon(ctx context.Context, c domain.Coupon) (_ *domain.Coupon, err error) {
	ctx, call := e.inst.Begin(ctx, useCaseCreate, "CreateCoupon", attribute.String("coupon.code", c.Code))
	defer func() { call.End(err) }()

	c.Code = domain.NormalizeCode(c.Code)
	if verr := c.Validate(); verr != nil {
		call.Fail("COUPON_INVALID_DEFINITION")
		return nil, apperr.Wrap(apperr.KindValidation, verr, "invalid coupon definition")
	}
	if c.ID == "" {
		c.ID = e.ids.NewID()
	}
	now := e.clock.Now()
	c.CreatedAt, c.UpdatedAt = now, now

	if ierr := e.repo.Insert(ctx, &c); ierr != nil {
		if errors.Is(ierr, domain.ErrCodeTaken) {
			call.Fail("COUPON_CODE_TAKEN")
			return nil, apperr.Wrap(apperr.KindConflict, ierr, fmt.Sprintf("coupon %s already exists", c.Code))
		}
		call.Fail("REPO_INSERT_FAILED")
		return nil, apperr.Internal(ierr)
	}
	return &c, nil
}

// ValidateCoupon checks the coupon against the order amount and computes the discount.
// It changes nothing.
func (e *Engine) ValidateCoupon(ctx context.Context, code string, orderAmount int64) (_ domain.Validated, err error) {
	code = domain.NormalizeCode(code)
	ctx, call := e.inst.Begin(ctx, useCaseValidate, "ValidateCoupon",
		attribute.String("coupon.code", code),
		attribute.Int64("coupon.order_amount", orderAmount),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("code", code))

	c, ferr := e.repo.FindByCode(ctx, code)
	if ferr != nil && !errors.Is(ferr, domain.ErrNotFound) {
		call.Fail("REPO_FIND_FAILED")
		return domain.Validated{}, apperr.Internal(ferr)
	}
	if ferr != nil {
		c = nil
	}
	if cerr := c.Check(orderAmount, e.clock.Now()); cerr != nil {
		call.Fail(rejectStatus(cerr))
		return domain.Validated{}, couponError(code, cerr)
	}

	v := domain.Validated{
		CouponID:    c.ID,
		Code:        c.Code,
		Type:        c.Type,
		OrderAmount: orderAmount,
		Discount:    c.Discount(orderAmount),
	}
	call.With(observability.F("discount", v.Discount))
	return v, nil
}

// ApplyCoupon consumes one usage of the coupon for orderID, failing when the
// limit was reached in the meantime.
func (e *Engine) ApplyCoupon(ctx context.Context, v domain.Validated, orderID string) (err error) {
	ctx, call := e.inst.Begin(ctx, useCaseApply, "ApplyCoupon",
		attribute.String("coupon.code", v.Code),
		attribute.String("order.id", orderID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("code", v.Code), observability.F("order_id", orderID))

	_, rerr := e.repo.Redeem(ctx, v.CouponID, domain.Redemption{
		ID:        e.ids.NewID(),
		CouponID:  v.CouponID,
		Code:      v.Code,
		OrderID:   orderID,
		Discount:  v.Discount,
		CreatedAt: e.clock.Now(),
	})
	switch {
	case rerr == nil:
		e.redemptions.Add(1, observability.L("outcome", "applied"))
		return nil
	case errors.Is(rerr, domain.ErrUsageLimitReached), errors.Is(rerr, domain.ErrNotFound):
		call.Fail(rejectStatus(rerr))
		e.redemptions.Add(1, observability.L("outcome", "rejected"))
		return couponError(v.Code, rerr)
	default:
		call.Fail("REPO_REDEEM_FAILED")
		e.redemptions.Add(1, observability.L("outcome", "error"))
		return apperr.Internal(rerr)
	}
}

// ReleaseCoupon gives back the usage consumed by orderID. It reports false when
// the order holds no outstanding redemption.
func (e *Engine) ReleaseCoupon(ctx context.Context, code, orderID string) (_ bool, err error) {
	code = domain.NormalizeCode(code)
	ctx, call := e.inst.Begin(ctx, useCaseRelease, "ReleaseCoupon",
		attribute.String("coupon.code", code),
		attribute.String("order.id", orderID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("code", code), observability.F("order_id", orderID))

	c, ferr := e.repo.FindByCode(ctx, code)
	if errors.Is(ferr, domain.ErrNotFound) {
		call.Status("COUPON_GONE")
		return false, nil
	}
	if ferr != nil {
		call.Fail("REPO_FIND_FAILED")
		return false, apperr.Internal(ferr)
	}

	_, rerr := e.repo.Revert(ctx, c.ID, domain.Redemption{
		ID:        e.ids.NewID(),
		CouponID:  c.ID,
		Code:      c.Code,
		OrderID:   orderID,
		CreatedAt: e.clock.Now(),
	})
	switch {
	case rerr == nil:
		e.redemptions.Add(1, observability.L("outcome", "reverted"))
		return true, nil
	case errors.Is(rerr, domain.ErrNotRedeemed):
		call.Status("NOT_REDEEMED")
		return false, nil
	default:
		call.Fail("REPO_REVERT_FAILED")
		return false, apperr.Internal(rerr)
	}
}

func (e *Engine) Redemptions(ctx context.Context, orderID string) ([]domain.Redemption, error) {
	reds, err := e.repo.Redemptions(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return reds, nil
}

func couponError(code string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return apperr.Wrap(apperr.KindCouponInvalid, err, fmt.Sprintf("coupon %s not found", code))
	case errors.Is(err, domain.ErrNotActive):
		return apperr.Wrap(apperr.KindCouponInvalid, err, fmt.Sprintf("coupon %s is not active", code))
	case errors.Is(err, domain.ErrUsageLimitReached):
		return apperr.Wrap(apperr.KindCouponInvalid, err, fmt.Sprintf("coupon %s has reached its usage limit", code))
	case errors.Is(err, domain.ErrMinimumAmountNotMet):
		return apperr.Wrap(apperr.KindCouponInvalid, err, fmt.Sprintf("order amount is below the minimum for coupon %s", code))
	default:
		return apperr.Wrap(apperr.KindCouponInvalid, err, "coupon rejected")
	}
}

func rejectStatus(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "COUPON_NOT_FOUND"
	case errors.Is(err, domain.ErrNotActive):
		return "COUPON_NOT_ACTIVE"
	case errors.Is(err, domain.ErrUsageLimitReached):
		return "USAGE_LIMIT_REACHED"
	case errors.Is(err, domain.ErrMinimumAmountNotMet):
		return "MINIMUM_NOT_MET"
	default:
		return "COUPON_REJECTED"
	}
}
