// Package catalog holds the read-only views of the catalog and cart collaborators.
package catalog

import (
	"context"
	"errors"
)

var (
	ErrVariantNotFound = errors.New("catalog: variant not found")
	ErrCartUnavailable = errors.New("catalog: cart unavailable")
)

// Variant is the priced, purchasable unit of a product.
type Variant struct {
	ID              string `json:"id"`
	ProductID       string `json:"product_id"`
	SKU             string `json:"sku"`
	Price           int64  `json:"price"`
	SalePrice       *int64 `json:"sale_price,omitempty"`
	PriceAdjustment int64  `json:"price_adjustment"`
	StockQuantity   int    `json:"stock_quantity"`
}

// UnitPrice is the sale price when present, otherwise the list price, plus the variant adjustment.
func (v Variant) UnitPrice() int64 {
	base := v.Price
	if v.SalePrice != nil {
		base = *v.SalePrice
	}
	return base + v.PriceAdjustment
}

type CartItem struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type Catalog interface {
	GetVariant(ctx context.Context, variantID string) (Variant, error)
}

// Cart is keyed by the owner key of a user or guest.
type Cart interface {
	GetCartItems(ctx context.Context, ownerKey string) ([]CartItem, error)
	ClearCart(ctx context.Context, ownerKey string) error
}
