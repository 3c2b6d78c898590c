package payment

import "context"

type Repository interface {
	Insert(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	FindByReference(ctx context.Context, reference string) (*Payment, error)
	FindByTransaction(ctx context.Context, transactionID string) (*Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]*Payment, error)
	ListNeedingReconciliation(ctx context.Context, limit int) ([]*Payment, error)
}
