package inventory

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound            = errors.New("inventory: variant not found")
	ErrReservationNotFound = errors.New("inventory: reservation not found")
	ErrInvalidQuantity     = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock   = errors.New("inventory: insufficient stock")
	ErrReservationClosed   = errors.New("inventory: reservation already released")
)

// InsufficientStockError names the variant that could not be reserved.
type InsufficientStockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for variant %s: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationReleased  ReservationStatus = "released"
	ReservationCommitted ReservationStatus = "committed"
)

type EntryKind string

const (
	EntryReserve EntryKind = "reserve"
	EntryRelease EntryKind = "release"
	EntryCommit  EntryKind = "commit"
	EntryRestock EntryKind = "restock"
)

// StockLevel is the counter owned by one product variant.
// OnHand - Available is the quantity held by outstanding reservations.
type StockLevel struct {
	VariantID string
	OnHand    int
	Available int
	UpdatedAt time.Time
}

func (s StockLevel) Reserved() int { return s.OnHand - s.Available }

type Reservation struct {
	ID        string
	VariantID string
	Reference string
	Quantity  int
	Status    ReservationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Reservation) Outstanding() bool { return r.Status == ReservationReserved }

// LedgerEntry is one immutable row of the stock ledger.
type LedgerEntry struct {
	ID            string
	VariantID     string
	ReservationID string
	Kind          EntryKind
	Quantity      int
	PreviousStock int
	NewStock      int
	Reason        string
	Actor         string
	CreatedAt     time.Time
}

// NewReservation validates the request and returns an unsaved reservation.
func NewReservation(id, variantID, reference string, quantity int, now time.Time) (*Reservation, error) {
	if variantID == "" {
		return nil, ErrNotFound
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	return &Reservation{
		ID:        id,
		VariantID: variantID,
		Reference: reference,
		Quantity:  quantity,
		Status:    ReservationReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Change describes who moves stock and why; it ends up on the ledger entry.
type Change struct {
	EntryID string
	Reason  string
	Actor   string
	At      time.Time
}
