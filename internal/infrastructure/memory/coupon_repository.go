package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/coupon"
)

// CouponRepository checks the usage limit and increments under one lock.
type CouponRepository struct {
	mu          sync.Mutex
	coupons     map[string]*domain.Coupon // by id
	codes       map[string]string         // normalized code -> id
	redemptions []domain.Redemption
}

func NewCouponRepository() *CouponRepository {
	return &CouponRepository{
		coupons: make(map[string]*domain.Coupon),
		codes:   make(map[string]string),
	}
}

func (r *CouponRepository) Insert(ctx context.Context, c *domain.Coupon) error {
	_ = ctx
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code := domain.NormalizeCode(c.Code)
	if _, ok := r.codes[code]; ok {
		return domain.ErrCodeTaken
	}
	clone := *c
	clone.Code = code
	r.coupons[c.ID] = &clone
	r.codes[code] = c.ID
	return nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.codes[domain.NormalizeCode(code)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCoupon(r.coupons[id]), nil
}

func (r *CouponRepository) Redeem(ctx context.Context, couponID string, red domain.Redemption) (*domain.Coupon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.coupons[couponID]
	if !ok || c.Deleted() {
		return nil, domain.ErrNotFound
	}
	if c.Exhausted() {
		return cloneCoupon(c), domain.ErrUsageLimitReached
	}
	c.UsedCount++
	c.UpdatedAt = red.CreatedAt
	red.Kind = domain.RedemptionApplied
	r.redemptions = append(r.redemptions, red)
	return cloneCoupon(c), nil
}

func (r *CouponRepository) Revert(ctx context.Context, couponID string, red domain.Redemption) (*domain.Coupon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.coupons[couponID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if outstanding(r.redemptions, couponID, red.OrderID) <= 0 {
		return cloneCoupon(c), domain.ErrNotRedeemed
	}
	if c.UsedCount > 0 {
		c.UsedCount--
	}
	c.UpdatedAt = red.CreatedAt
	red.Kind = domain.RedemptionReverted
	r.redemptions = append(r.redemptions, red)
	return cloneCoupon(c), nil
}

func (r *CouponRepository) Redemptions(ctx context.Context, orderID string) ([]domain.Redemption, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Redemption, 0)
	for _, red := range r.redemptions {
		if red.OrderID == orderID {
			out = append(out, red)
		}
	}
	return out, nil
}

func outstanding(reds []domain.Redemption, couponID, orderID string) int {
	n := 0
	for _, red := range reds {
		if red.CouponID != couponID || red.OrderID != orderID {
			continue
		}
		switch red.Kind {
		case domain.RedemptionApplied:
			n++
		case domain.RedemptionReverted:
			n--
		}
	}
	return n
}

func cloneCoupon(c *domain.Coupon) *domain.Coupon {
	if c == nil {
		return nil
	}
	clone := *c
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		clone.DeletedAt = &t
	}
	return &clone
}
