package postgres

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `id, order_id, amount, currency, method, status,
	gateway_reference, transaction_id, refund_id, refunded_amount, gateway_response,
	failure_reason, needs_reconciliation, idempotency_key, processed_at, created_at, updated_at`

type PaymentRepository struct{ DB *pgxpool.Pool }

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{DB: db}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		p.ID, p.OrderID, p.Amount, p.Currency, p.Method, p.Status,
		p.GatewayReference, p.TransactionID, p.RefundID, p.RefundedAmount, p.GatewayResponse,
		p.FailureReason, p.NeedsReconciliation, p.IdempotencyKey, p.ProcessedAt, p.CreatedAt, p.UpdatedAt,
	)
	if uniqueConstraint(err) != "" {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("postgres: insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE payments SET status = $2, gateway_reference = $3, transaction_id = $4, refund_id = $5,
			refunded_amount = $6, gateway_response = $7, failure_reason = $8, needs_reconciliation = $9,
			processed_at = $10, updated_at = $11
		WHERE id = $1`,
		p.ID, p.Status, p.GatewayReference, p.TransactionID, p.RefundID,
		p.RefundedAmount, p.GatewayResponse, p.FailureReason, p.NeedsReconciliation,
		p.ProcessedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return r.one(ctx, `id = $1`, id)
}

func (r *PaymentRepository) FindByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	if reference == "" {
		return nil, domain.ErrNotFound
	}
	return r.one(ctx, `gateway_reference = $1`, reference)
}

func (r *PaymentRepository) FindByTransaction(ctx context.Context, transactionID string) (*domain.Payment, error) {
	if transactionID == "" {
		return nil, domain.ErrNotFound
	}
	return r.one(ctx, `transaction_id = $1`, transactionID)
}

func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]*domain.Payment, error) {
	return r.list(ctx, `order_id = $1 ORDER BY created_at`, orderID)
}

func (r *PaymentRepository) ListNeedingReconciliation(ctx context.Context, limit int) ([]*domain.Payment, error) {
	if limit <= 0 {
		limit = 1000
	}
	return r.list(ctx, `status = 'pending' AND needs_reconciliation ORDER BY created_at LIMIT $1`, limit)
}

func (r *PaymentRepository) one(ctx context.Context, where string, arg any) (*domain.Payment, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where+` ORDER BY created_at LIMIT 1`, arg)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func (r *PaymentRepository) list(ctx context.Context, where string, args ...any) ([]*domain.Payment, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Payment, error) {
		return scanPayment(row)
	})
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Currency, &p.Method, &p.Status,
		&p.GatewayReference, &p.TransactionID, &p.RefundID, &p.RefundedAmount, &p.GatewayResponse,
		&p.FailureReason, &p.NeedsReconciliation, &p.IdempotencyKey, &p.ProcessedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
