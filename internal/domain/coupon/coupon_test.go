package coupon

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func save10() *Coupon {
	return &Coupon{
		ID:            "c-1",
		Code:          "SAVE10",
		Type:          TypePercentage,
		Value:         decimal.NewFromInt(10),
		MinimumAmount: 5000,
		ValidFrom:     now.Add(-24 * time.Hour),
		ValidTo:       now.Add(24 * time.Hour),
		UsageLimit:    3,
		Active:        true,
	}
}

func TestCheckOrder(t *testing.T) {
	t.Parallel()

	deleted := now
	tests := []struct {
		name   string
		mutate func(c *Coupon)
		amount int64
		want   error
	}{
		{name: "ok", mutate: func(*Coupon) {}, amount: 10000, want: nil},
		{name: "soft_deleted", mutate: func(c *Coupon) { c.DeletedAt = &deleted }, amount: 10000, want: ErrNotFound},
		{name: "not_started", mutate: func(c *Coupon) { c.ValidFrom = now.Add(time.Hour) }, amount: 10000, want: ErrNotActive},
		{name: "expired", mutate: func(c *Coupon) { c.ValidTo = now.Add(-time.Hour) }, amount: 10000, want: ErrNotActive},
		{name: "deactivated", mutate: func(c *Coupon) { c.Active = false }, amount: 10000, want: ErrNotActive},
		{name: "limit_reached", mutate: func(c *Coupon) { c.UsedCount = 3 }, amount: 10000, want: ErrUsageLimitReached},
		{name: "below_minimum", mutate: func(*Coupon) {}, amount: 4999, want: ErrMinimumAmountNotMet},
		// inactive wins over exhausted and below-minimum
		{name: "precedence", mutate: func(c *Coupon) { c.Active = false; c.UsedCount = 3 }, amount: 1, want: ErrNotActive},
		{name: "unlimited", mutate: func(c *Coupon) { c.UsageLimit = 0; c.UsedCount = 1000 }, amount: 10000, want: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := save10()
			tt.mutate(c)
			err := c.Check(tt.amount, now)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDiscount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		coupon Coupon
		amount int64
		want   int64
	}{
		{name: "ten_percent", coupon: Coupon{Type: TypePercentage, Value: decimal.NewFromInt(10)}, amount: 10000, want: 1000},
		{name: "percent_rounds_half_up", coupon: Coupon{Type: TypePercentage, Value: decimal.NewFromInt(15)}, amount: 999, want: 150},
		{name: "fractional_percent", coupon: Coupon{Type: TypePercentage, Value: decimal.RequireFromString("12.5")}, amount: 8000, want: 1000},
		{name: "percent_capped", coupon: Coupon{Type: TypePercentage, Value: decimal.NewFromInt(50), MaxDiscount: 2000}, amount: 10000, want: 2000},
		{name: "fixed", coupon: Coupon{Type: TypeFixed, Value: decimal.NewFromInt(1500)}, amount: 10000, want: 1500},
		{name: "fixed_clamped_to_amount", coupon: Coupon{Type: TypeFixed, Value: decimal.NewFromInt(1500)}, amount: 900, want: 900},
		{name: "full_percentage", coupon: Coupon{Type: TypePercentage, Value: decimal.NewFromInt(100)}, amount: 4321, want: 4321},
		{name: "zero_amount", coupon: Coupon{Type: TypeFixed, Value: decimal.NewFromInt(500)}, amount: 0, want: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.coupon.Discount(tt.amount); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestValidateDefinition(t *testing.T) {
	t.Parallel()

	c := save10()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid coupon, got %v", err)
	}

	c.Value = decimal.NewFromInt(120)
	if err := c.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	if got := NormalizeCode("  save10 "); got != "SAVE10" {
		t.Fatalf("expected SAVE10, got %q", got)
	}
}
