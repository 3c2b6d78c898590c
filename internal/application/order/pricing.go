package order

import (
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"

	"github.com/shopspring/decimal"
)

// Pricing turns a merchandise subtotal and discount into order totals. Tax and
// shipping depend on the subtotal only; the discount is taken off afterwards.
type Pricing struct {
	TaxRate               decimal.Decimal
	FlatShipping          int64
	FreeShippingThreshold int64 // 0 disables free shipping
	Currency              string
}

func DefaultPricing() Pricing {
	return Pricing{
		TaxRate:               decimal.NewFromInt(8).Div(decimal.NewFromInt(100)),
		FlatShipping:          599,
		FreeShippingThreshold: 5000,
		Currency:              "USD",
	}
}

// Tax is rounded half away from zero.
func (p Pricing) Tax(taxable int64) int64 {
	if taxable <= 0 {
		return 0
	}
	return decimal.NewFromInt(taxable).Mul(p.TaxRate).Round(0).IntPart()
}

func (p Pricing) Shipping(merchandise int64) int64 {
	if p.FreeShippingThreshold > 0 && merchandise >= p.FreeShippingThreshold {
		return 0
	}
	return p.FlatShipping
}

func (p Pricing) Totals(subtotal, discount int64, currency string) domain.Totals {
	if discount > subtotal {
		discount = subtotal
	}
	if currency == "" {
		currency = p.Currency
	}
	t := domain.Totals{
		Subtotal: subtotal,
		Tax:      p.Tax(subtotal),
		Shipping: p.Shipping(subtotal),
		Discount: discount,
		Currency: currency,
	}
	t.Total = t.Subtotal + t.Tax + t.Shipping - t.Discount
	return t
}
