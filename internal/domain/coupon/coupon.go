package coupon

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("coupon: not found")
	ErrNotActive           = errors.New("coupon: not active")
	ErrUsageLimitReached   = errors.New("coupon: usage limit reached")
	ErrMinimumAmountNotMet = errors.New("coupon: minimum amount not met")
	ErrInvalid             = errors.New("coupon: invalid definition")
	ErrNotRedeemed         = errors.New("coupon: no redemption for order")
	ErrCodeTaken           = errors.New("coupon: code already exists")
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

var hundred = decimal.NewFromInt(100)

type Coupon struct {
	ID   string
	Code string
	Type Type
	// Value is a percent for TypePercentage and minor units for TypeFixed.
	Value         decimal.Decimal
	MaxDiscount   int64 // 0 means uncapped
	MinimumAmount int64
	ValidFrom     time.Time
	ValidTo       time.Time
	UsageLimit    int // 0 means unlimited
	UsedCount     int
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// NormalizeCode is the canonical form used for lookups.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c *Coupon) Validate() error {
	switch {
	case NormalizeCode(c.Code) == "":
		return errors.Join(ErrInvalid, errors.New("code is required"))
	case c.Type != TypePercentage && c.Type != TypeFixed:
		return errors.Join(ErrInvalid, errors.New("unknown discount type"))
	case c.Value.IsNegative() || c.Value.IsZero():
		return errors.Join(ErrInvalid, errors.New("value must be positive"))
	case c.Type == TypePercentage && c.Value.GreaterThan(hundred):
		return errors.Join(ErrInvalid, errors.New("percentage above 100"))
	case c.MaxDiscount < 0 || c.MinimumAmount < 0 || c.UsageLimit < 0:
		return errors.Join(ErrInvalid, errors.New("negative limit"))
	case !c.ValidTo.IsZero() && c.ValidTo.Before(c.ValidFrom):
		return errors.Join(ErrInvalid, errors.New("validity window is inverted"))
	}
	return nil
}

func (c *Coupon) Deleted() bool { return c.DeletedAt != nil }

// ActiveAt reports whether the coupon is switched on and now falls inside [ValidFrom, ValidTo].
// A zero bound is open.
func (c *Coupon) ActiveAt(now time.Time) bool {
	if !c.Active {
		return false
	}
	if !c.ValidFrom.IsZero() && now.Before(c.ValidFrom) {
		return false
	}
	if !c.ValidTo.IsZero() && now.After(c.ValidTo) {
		return false
	}
	return true
}

func (c *Coupon) Exhausted() bool {
	return c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit
}

// Check applies the rules in order: existence, activity, usage, minimum amount.
func (c *Coupon) Check(orderAmount int64, now time.Time) error {
	switch {
	case c == nil || c.Deleted():
		return ErrNotFound
	case !c.ActiveAt(now):
		return ErrNotActive
	case c.Exhausted():
		return ErrUsageLimitReached
	case orderAmount < c.MinimumAmount:
		return ErrMinimumAmountNotMet
	}
	return nil
}

// Discount computes the amount taken off orderAmount, rounded half away from zero
// to the minor unit and kept within [0, orderAmount].
func (c *Coupon) Discount(orderAmount int64) int64 {
	if orderAmount <= 0 {
		return 0
	}
	var d int64
	switch c.Type {
	case TypePercentage:
		d = decimal.NewFromInt(orderAmount).Mul(c.Value).Div(hundred).Round(0).IntPart()
		if c.MaxDiscount > 0 && d > c.MaxDiscount {
			d = c.MaxDiscount
		}
	case TypeFixed:
		d = c.Value.Round(0).IntPart()
	}
	if d < 0 {
		return 0
	}
	if d > orderAmount {
		return orderAmount
	}
	return d
}

// Validated is the result of a successful validation.
type Validated struct {
	CouponID    string
	Code        string
	Type        Type
	OrderAmount int64
	Discount    int64
}

type RedemptionKind string

const (
	RedemptionApplied  RedemptionKind = "applied"
	RedemptionReverted RedemptionKind = "reverted"
)

// Redemption is an append-only audit record of the discount applied to an order.
type Redemption struct {
	ID        string
	CouponID  string
	Code      string
	OrderID   string
	Discount  int64
	Kind      RedemptionKind
	CreatedAt time.Time
}
