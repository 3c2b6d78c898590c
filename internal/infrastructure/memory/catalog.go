package memory

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/catalog"
)

type Catalog struct {
	mu       sync.RWMutex
	variants map[string]catalog.Variant
}

func NewCatalog(variants ...catalog.Variant) *Catalog {
	c := &Catalog{variants: make(map[string]catalog.Variant, len(variants))}
	for _, v := range variants {
		c.variants[v.ID] = v
	}
	return c
}

func (c *Catalog) Put(v catalog.Variant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variants[v.ID] = v
}

func (c *Catalog) GetVariant(ctx context.Context, variantID string) (catalog.Variant, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Variant{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.variants[variantID]
	if !ok {
		return catalog.Variant{}, catalog.ErrVariantNotFound
	}
	if v.SalePrice != nil {
		sp := *v.SalePrice
		v.SalePrice = &sp
	}
	return v, nil
}

type Cart struct {
	mu    sync.Mutex
	carts map[string][]catalog.CartItem
}

func NewCart() *Cart {
	return &Cart{carts: make(map[string][]catalog.CartItem)}
}

func (c *Cart) Put(ownerKey string, items ...catalog.CartItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carts[ownerKey] = append([]catalog.CartItem(nil), items...)
}

func (c *Cart) GetCartItems(ctx context.Context, ownerKey string) ([]catalog.CartItem, error) {
	_ = ctx

	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]catalog.CartItem(nil), c.carts[ownerKey]...), nil
}

func (c *Cart) ClearCart(ctx context.Context, ownerKey string) error {
	_ = ctx

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.carts, ownerKey)
	return nil
}
