package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/coupon"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const couponColumns = `id, code, type, value::text, max_discount, minimum_amount, valid_from, valid_to,
	usage_limit, used_count, active, created_at, updated_at, deleted_at`

type CouponRepository struct{ DB *pgxpool.Pool }

func NewCouponRepository(db *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{DB: db}
}

func (r *CouponRepository) Insert(ctx context.Context, c *domain.Coupon) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO coupons (id, code, type, value, max_discount, minimum_amount, valid_from, valid_to,
			usage_limit, used_count, active, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, domain.NormalizeCode(c.Code), c.Type, c.Value.String(), c.MaxDiscount, c.MinimumAmount,
		nullTime(c.ValidFrom), nullTime(c.ValidTo), c.UsageLimit, c.UsedCount, c.Active,
		c.CreatedAt, c.UpdatedAt, c.DeletedAt,
	)
	if uniqueConstraint(err) == "coupons_code_key" {
		return domain.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("postgres: insert coupon: %w", err)
	}
	return nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return scanCoupon(r.DB.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, domain.NormalizeCode(code)))
}

func (r *CouponRepository) Redeem(ctx context.Context, couponID string, red domain.Redemption) (*domain.Coupon, error) {
	var c *domain.Coupon
	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		// The limit check and the increment are one statement.
		c, err = scanCoupon(tx.QueryRow(ctx, `
			UPDATE coupons SET used_count = used_count + 1, updated_at = $2
			WHERE id = $1 AND deleted_at IS NULL AND (usage_limit = 0 OR used_count < usage_limit)
			RETURNING `+couponColumns, couponID, red.CreatedAt))
		if errors.Is(err, domain.ErrNotFound) {
			current, ferr := scanCoupon(tx.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, couponID))
			if ferr != nil {
				return ferr
			}
			if current.Deleted() {
				return domain.ErrNotFound
			}
			c = current
			return domain.ErrUsageLimitReached
		}
		if err != nil {
			return err
		}
		red.Kind = domain.RedemptionApplied
		return insertRedemption(ctx, tx, red)
	})
	if errors.Is(err, domain.ErrUsageLimitReached) {
		return c, err
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CouponRepository) Revert(ctx context.Context, couponID string, red domain.Redemption) (*domain.Coupon, error) {
	var c *domain.Coupon
	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		c, err = scanCoupon(tx.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1 FOR UPDATE`, couponID))
		if err != nil {
			return err
		}

		var outstanding int
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(CASE kind WHEN 'applied' THEN 1 WHEN 'reverted' THEN -1 ELSE 0 END), 0)
			FROM order_coupons WHERE coupon_id = $1 AND order_id = $2`,
			couponID, red.OrderID,
		).Scan(&outstanding); err != nil {
			return err
		}
		if outstanding <= 0 {
			return domain.ErrNotRedeemed
		}

		c, err = scanCoupon(tx.QueryRow(ctx, `
			UPDATE coupons SET used_count = GREATEST(used_count - 1, 0), updated_at = $2
			WHERE id = $1
			RETURNING `+couponColumns, couponID, red.CreatedAt))
		if err != nil {
			return err
		}
		red.Kind = domain.RedemptionReverted
		return insertRedemption(ctx, tx, red)
	})
	if errors.Is(err, domain.ErrNotRedeemed) {
		return c, err
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CouponRepository) Redemptions(ctx context.Context, orderID string) ([]domain.Redemption, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, coupon_id, code, order_id, discount, kind, created_at
		FROM order_coupons WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Redemption, error) {
		var red domain.Redemption
		err := row.Scan(&red.ID, &red.CouponID, &red.Code, &red.OrderID, &red.Discount, &red.Kind, &red.CreatedAt)
		return red, err
	})
}

func insertRedemption(ctx context.Context, tx pgx.Tx, red domain.Redemption) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_coupons (id, coupon_id, code, order_id, discount, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		red.ID, red.CouponID, red.Code, red.OrderID, red.Discount, red.Kind, red.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert redemption: %w", err)
	}
	return nil
}

func scanCoupon(row pgx.Row) (*domain.Coupon, error) {
	var (
		c                  domain.Coupon
		value              string
		validFrom, validTo *time.Time
	)
	err := row.Scan(&c.ID, &c.Code, &c.Type, &value, &c.MaxDiscount, &c.MinimumAmount, &validFrom, &validTo,
		&c.UsageLimit, &c.UsedCount, &c.Active, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.Value, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("postgres: decode coupon value: %w", err)
	}
	c.ValidFrom = fromNullTime(validFrom)
	c.ValidTo = fromNullTime(validTo)
	return &c, nil
}
