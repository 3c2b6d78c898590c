package inventory

import (
	"context"
	"time"
)

// Repository is the stock ledger store. Every mutating call moves the counter,
// the reservation and the ledger entry together or not at all.
type Repository interface {
	// Reserve decrements Available by r.Quantity when enough stock exists and
	// stores r. It fails with an *InsufficientStockError otherwise.
	Reserve(ctx context.Context, r *Reservation, c Change) (StockLevel, error)
	// Release restores the stock of a reserved reservation. released is false
	// when the reservation was already released or committed.
	Release(ctx context.Context, reservationID string, c Change) (r *Reservation, released bool, err error)
	// Commit closes a reserved reservation without touching Available.
	Commit(ctx context.Context, reservationID string, c Change) (*Reservation, error)
	// Restock adds quantity to both OnHand and Available, creating the level when missing.
	Restock(ctx context.Context, variantID string, quantity int, c Change) (StockLevel, error)

	Stock(ctx context.Context, variantID string) (StockLevel, error)
	Reservation(ctx context.Context, reservationID string) (*Reservation, error)
	Entries(ctx context.Context, variantID string) ([]LedgerEntry, error)
	// Outstanding lists reserved reservations created before the cutoff.
	Outstanding(ctx context.Context, createdBefore time.Time, limit int) ([]*Reservation, error)
}
