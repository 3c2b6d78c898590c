package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
)

// InventoryRepository keeps the ledger in process. A single mutex serializes every
// counter move so a reservation check and its decrement can never interleave.
type InventoryRepository struct {
	mu           sync.Mutex
	levels       map[string]*domain.StockLevel
	reservations map[string]*domain.Reservation
	entries      map[string][]domain.LedgerEntry
}

func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{
		levels:       make(map[string]*domain.StockLevel),
		reservations: make(map[string]*domain.Reservation),
		entries:      make(map[string][]domain.LedgerEntry),
	}
}

func (r *InventoryRepository) Reserve(ctx context.Context, res *domain.Reservation, c domain.Change) (domain.StockLevel, error) {
	if err := ctx.Err(); err != nil {
		return domain.StockLevel{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lvl, ok := r.levels[res.VariantID]
	if !ok {
		return domain.StockLevel{}, domain.ErrNotFound
	}
	if lvl.Available < res.Quantity {
		return *lvl, &domain.InsufficientStockError{
			VariantID: res.VariantID,
			Requested: res.Quantity,
			Available: lvl.Available,
		}
	}

	prev := lvl.Available
	lvl.Available -= res.Quantity
	lvl.UpdatedAt = c.At
	r.reservations[res.ID] = cloneReservation(res)
	r.appendEntry(res, domain.EntryReserve, prev, lvl.Available, c)
	return *lvl, nil
}

func (r *InventoryRepository) Release(ctx context.Context, reservationID string, c domain.Change) (*domain.Reservation, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[reservationID]
	if !ok {
		return nil, false, domain.ErrReservationNotFound
	}
	if !res.Outstanding() {
		return cloneReservation(res), false, nil
	}
	lvl := r.levels[res.VariantID]
	prev := lvl.Available
	lvl.Available += res.Quantity
	lvl.UpdatedAt = c.At
	res.Status = domain.ReservationReleased
	res.UpdatedAt = c.At
	r.appendEntry(res, domain.EntryRelease, prev, lvl.Available, c)
	return cloneReservation(res), true, nil
}

func (r *InventoryRepository) Commit(ctx context.Context, reservationID string, c domain.Change) (*domain.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[reservationID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	switch res.Status {
	case domain.ReservationCommitted:
		return cloneReservation(res), nil
	case domain.ReservationReleased:
		return cloneReservation(res), domain.ErrReservationClosed
	}

	lvl := r.levels[res.VariantID]
	// Available already moved at reservation time; only OnHand follows the goods out.
	lvl.OnHand -= res.Quantity
	lvl.UpdatedAt = c.At
	res.Status = domain.ReservationCommitted
	res.UpdatedAt = c.At
	r.appendEntry(res, domain.EntryCommit, lvl.Available, lvl.Available, c)
	return cloneReservation(res), nil
}

func (r *InventoryRepository) Restock(ctx context.Context, variantID string, quantity int, c domain.Change) (domain.StockLevel, error) {
	if err := ctx.Err(); err != nil {
		return domain.StockLevel{}, err
	}
	if quantity <= 0 {
		return domain.StockLevel{}, domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lvl, ok := r.levels[variantID]
	if !ok {
		lvl = &domain.StockLevel{VariantID: variantID}
		r.levels[variantID] = lvl
	}
	prev := lvl.Available
	lvl.OnHand += quantity
	lvl.Available += quantity
	lvl.UpdatedAt = c.At
	r.entries[variantID] = append(r.entries[variantID], domain.LedgerEntry{
		ID:            c.EntryID,
		VariantID:     variantID,
		Kind:          domain.EntryRestock,
		Quantity:      quantity,
		PreviousStock: prev,
		NewStock:      lvl.Available,
		Reason:        c.Reason,
		Actor:         c.Actor,
		CreatedAt:     c.At,
	})
	return *lvl, nil
}

func (r *InventoryRepository) Stock(ctx context.Context, variantID string) (domain.StockLevel, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	lvl, ok := r.levels[variantID]
	if !ok {
		return domain.StockLevel{}, domain.ErrNotFound
	}
	return *lvl, nil
}

func (r *InventoryRepository) Reservation(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[reservationID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return cloneReservation(res), nil
}

func (r *InventoryRepository) Entries(ctx context.Context, variantID string) ([]domain.LedgerEntry, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]domain.LedgerEntry(nil), r.entries[variantID]...), nil
}

func (r *InventoryRepository) Outstanding(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Reservation, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Reservation, 0)
	for _, res := range r.reservations {
		if res.Outstanding() && res.CreatedAt.Before(createdBefore) {
			out = append(out, cloneReservation(res))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InventoryRepository) appendEntry(res *domain.Reservation, kind domain.EntryKind, prev, next int, c domain.Change) {
	r.entries[res.VariantID] = append(r.entries[res.VariantID], domain.LedgerEntry{
		ID:            c.EntryID,
		VariantID:     res.VariantID,
		ReservationID: res.ID,
		Kind:          kind,
		Quantity:      res.Quantity,
		PreviousStock: prev,
		NewStock:      next,
		Reason:        c.Reason,
		Actor:         c.Actor,
		CreatedAt:     c.At,
	})
}

func cloneReservation(r *domain.Reservation) *domain.Reservation {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}
