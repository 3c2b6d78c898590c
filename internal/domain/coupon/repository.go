package coupon

import "context"

type Repository interface {
	// FindByCode returns soft-deleted coupons too; callers decide.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Insert(ctx context.Context, c *Coupon) error
	// Redeem increments UsedCount by one only while the limit allows and appends r.
	// It fails with ErrUsageLimitReached when the limit is hit.
	Redeem(ctx context.Context, couponID string, r Redemption) (*Coupon, error)
	// Revert decrements UsedCount for the order's outstanding redemption and appends r.
	// It returns ErrNotRedeemed when nothing is outstanding.
	Revert(ctx context.Context, couponID string, r Redemption) (*Coupon, error)
	Redemptions(ctx context.Context, orderID string) ([]Redemption, error)
}
