package order

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPricingTotals(t *testing.T) {
	t.Parallel()
	p := DefaultPricing()

	tests := []struct {
		name                     string
		subtotal, discount       int64
		wantTax, wantShip, total int64
	}{
		{name: "free shipping at threshold", subtotal: 5000, wantTax: 400, wantShip: 0, total: 5400},
		{name: "flat fee below threshold", subtotal: 4999, wantTax: 400, wantShip: 599, total: 5998},
		{name: "tax on subtotal before discount", subtotal: 10000, discount: 1000, wantTax: 800, total: 9800},
		{name: "discount keeps free shipping", subtotal: 5200, discount: 500, wantTax: 416, wantShip: 0, total: 5116},
		{name: "discount capped at subtotal", subtotal: 300, discount: 900, wantTax: 24, wantShip: 599, total: 623},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := p.Totals(tt.subtotal, tt.discount, "")
			if got.Tax != tt.wantTax || got.Shipping != tt.wantShip || got.Total != tt.total {
				t.Fatalf("expected tax %d shipping %d total %d, got %+v", tt.wantTax, tt.wantShip, tt.total, got)
			}
			if err := got.Check(); err != nil {
				t.Fatalf("expected consistent totals, got %v", err)
			}
		})
	}
}

func TestPricingTaxRoundsHalfAwayFromZero(t *testing.T) {
	t.Parallel()
	p := Pricing{TaxRate: decimal.RequireFromString("0.05")}
	// 5% of 1010 is 50.5
	if got := p.Tax(1010); got != 51 {
		t.Fatalf("expected 51, got %d", got)
	}
	if got := p.Tax(1009); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}
