package order

import "context"

// Repository persists orders with their items and status history.
// Lookups never return soft-deleted orders.
type Repository interface {
	// Insert stores the order and its items as one unit. It returns ErrNumberTaken
	// when another order already uses o.Number and ErrConflict for a duplicate id.
	Insert(ctx context.Context, o *Order) error
	// Update persists status fields and appends new history entries.
	Update(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	NumberExists(ctx context.Context, number string) (bool, error)
}

// Sequencer hands out increasing per-day sequence numbers for order numbers.
type Sequencer interface {
	Next(ctx context.Context, day string) (int, error)
}
