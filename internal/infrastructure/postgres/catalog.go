package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/catalog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Catalog reads variants with their available stock.
type Catalog struct{ DB *pgxpool.Pool }

func NewCatalog(db *pgxpool.Pool) *Catalog { return &Catalog{DB: db} }

func (c *Catalog) GetVariant(ctx context.Context, variantID string) (catalog.Variant, error) {
	var v catalog.Variant
	err := c.DB.QueryRow(ctx, `
		SELECT v.id, v.product_id, v.sku, v.price, v.sale_price, v.price_adjustment, COALESCE(s.available, 0)
		FROM variants v LEFT JOIN stock_levels s ON s.variant_id = v.id
		WHERE v.id = $1`, variantID,
	).Scan(&v.ID, &v.ProductID, &v.SKU, &v.Price, &v.SalePrice, &v.PriceAdjustment, &v.StockQuantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Variant{}, catalog.ErrVariantNotFound
	}
	if err != nil {
		return catalog.Variant{}, fmt.Errorf("postgres: get variant: %w", err)
	}
	return v, nil
}

// PutVariant inserts or replaces a variant's catalog row.
func (c *Catalog) PutVariant(ctx context.Context, v catalog.Variant) error {
	_, err := c.DB.Exec(ctx, `
		INSERT INTO variants (id, product_id, sku, price, sale_price, price_adjustment)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id, sku = EXCLUDED.sku, price = EXCLUDED.price,
			sale_price = EXCLUDED.sale_price, price_adjustment = EXCLUDED.price_adjustment`,
		v.ID, v.ProductID, v.SKU, v.Price, v.SalePrice, v.PriceAdjustment,
	)
	if err != nil {
		return fmt.Errorf("postgres: put variant: %w", err)
	}
	return nil
}
