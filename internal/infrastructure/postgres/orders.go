package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, number, user_id, guest_id, guest_email,
	subtotal, tax, shipping, discount, total, currency, coupon_code,
	shipping_address, billing_address, status, status_changed_by, status_changed_at,
	cancel_reason, created_at, updated_at, deleted_at`

type OrderRepository struct{ DB *pgxpool.Pool }

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{DB: db}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	shipping, billing, err := encodeAddresses(o)
	if err != nil {
		return err
	}

	err = inTx(ctx, r.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
			o.ID, o.Number, o.Owner.UserID, o.Owner.GuestID, o.Owner.GuestEmail,
			o.Totals.Subtotal, o.Totals.Tax, o.Totals.Shipping, o.Totals.Discount, o.Totals.Total, o.Totals.Currency, o.CouponCode,
			shipping, billing, o.Status, o.StatusChangedBy, o.StatusChangedAt,
			o.CancelReason, o.CreatedAt, o.UpdatedAt, o.DeletedAt,
		); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, it := range o.Items {
			batch.Queue(`
				INSERT INTO order_items (id, order_id, position, variant_id, product_id, sku, quantity, unit_price, line_total, reservation_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				it.ID, o.ID, i, it.VariantID, it.ProductID, it.SKU, it.Quantity, it.UnitPrice, it.LineTotal, it.ReservationID,
			)
		}
		queueHistory(batch, o)
		return tx.SendBatch(ctx, batch).Close()
	})

	switch uniqueConstraint(err) {
	case "":
	case "orders_number_key":
		return domain.ErrNumberTaken
	case "orders_pkey":
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("postgres: insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders SET status = $2, status_changed_by = $3, status_changed_at = $4,
				cancel_reason = $5, updated_at = $6
			WHERE id = $1 AND deleted_at IS NULL`,
			o.ID, o.Status, o.StatusChangedBy, o.StatusChangedAt, o.CancelReason, o.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		batch := &pgx.Batch{}
		queueHistory(batch, o)
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("postgres: update order: %w", err)
	}
	return err
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, variant_id, product_id, sku, quantity, unit_price, line_total, reservation_id
		FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Item, error) {
		var it domain.Item
		err := row.Scan(&it.ID, &it.OrderID, &it.VariantID, &it.ProductID, &it.SKU,
			&it.Quantity, &it.UnitPrice, &it.LineTotal, &it.ReservationID)
		return it, err
	})
	if err != nil {
		return nil, err
	}

	rows, err = r.DB.Query(ctx, `
		SELECT from_status, to_status, actor, reason, at
		FROM order_status_history WHERE order_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	o.History, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StatusChange, error) {
		var h domain.StatusChange
		err := row.Scan(&h.From, &h.To, &h.Actor, &h.Reason, &h.At)
		h.At = h.At.UTC()
		return h, err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE number = $1)`, number).Scan(&exists)
	return exists, err
}

// Sequencer keeps per-day counters in order_sequences.
type Sequencer struct{ DB *pgxpool.Pool }

func NewSequencer(db *pgxpool.Pool) *Sequencer { return &Sequencer{DB: db} }

func (s *Sequencer) Next(ctx context.Context, day string) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `
		INSERT INTO order_sequences (day, value) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET value = order_sequences.value + 1
		RETURNING value`, day).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: next order sequence: %w", err)
	}
	return n, nil
}

// queueHistory writes every history entry by position; entries already stored are skipped.
func queueHistory(batch *pgx.Batch, o *domain.Order) {
	for i, h := range o.History {
		batch.Queue(`
			INSERT INTO order_status_history (order_id, seq, from_status, to_status, actor, reason, at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (order_id, seq) DO NOTHING`,
			o.ID, i, h.From, h.To, h.Actor, h.Reason, h.At,
		)
	}
}

func encodeAddresses(o *domain.Order) ([]byte, []byte, error) {
	shipping, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: encode shipping address: %w", err)
	}
	billing, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: encode billing address: %w", err)
	}
	return shipping, billing, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                 domain.Order
		shipping, billing []byte
		deletedAt         *time.Time
	)
	err := row.Scan(&o.ID, &o.Number, &o.Owner.UserID, &o.Owner.GuestID, &o.Owner.GuestEmail,
		&o.Totals.Subtotal, &o.Totals.Tax, &o.Totals.Shipping, &o.Totals.Discount, &o.Totals.Total, &o.Totals.Currency, &o.CouponCode,
		&shipping, &billing, &o.Status, &o.StatusChangedBy, &o.StatusChangedAt,
		&o.CancelReason, &o.CreatedAt, &o.UpdatedAt, &deletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("postgres: decode shipping address: %w", err)
	}
	if err := json.Unmarshal(billing, &o.BillingAddress); err != nil {
		return nil, fmt.Errorf("postgres: decode billing address: %w", err)
	}
	o.DeletedAt = deletedAt
	o.StatusChangedAt = o.StatusChangedAt.UTC()
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}
