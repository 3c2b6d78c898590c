package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
)

type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{payments: make(map[string]*domain.Payment)}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[p.ID]; ok {
		return domain.ErrConflict
	}
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[p.ID]; !ok {
		return domain.ErrNotFound
	}
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return r.find(ctx, func(p *domain.Payment) bool { return p.ID == id })
}

func (r *PaymentRepository) FindByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	if reference == "" {
		return nil, domain.ErrNotFound
	}
	return r.find(ctx, func(p *domain.Payment) bool { return p.GatewayReference == reference })
}

func (r *PaymentRepository) FindByTransaction(ctx context.Context, transactionID string) (*domain.Payment, error) {
	if transactionID == "" {
		return nil, domain.ErrNotFound
	}
	return r.find(ctx, func(p *domain.Payment) bool { return p.TransactionID == transactionID })
}

func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]*domain.Payment, error) {
	return r.list(ctx, 0, func(p *domain.Payment) bool { return p.OrderID == orderID })
}

func (r *PaymentRepository) ListNeedingReconciliation(ctx context.Context, limit int) ([]*domain.Payment, error) {
	return r.list(ctx, limit, func(p *domain.Payment) bool {
		return p.Status == domain.StatusPending && p.NeedsReconciliation
	})
}

func (r *PaymentRepository) find(ctx context.Context, match func(*domain.Payment) bool) (*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.payments {
		if match(p) {
			return p.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *PaymentRepository) list(ctx context.Context, limit int, match func(*domain.Payment) bool) ([]*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Payment, 0)
	for _, p := range r.payments {
		if match(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
