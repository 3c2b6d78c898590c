package inventory

import "time"

// StockReleasedEvent is emitted when a reservation gives its stock back.
type StockReleasedEvent struct {
	ReservationID string    `json:"reservation_id"`
	VariantID     string    `json:"variant_id"`
	Reference     string    `json:"reference"`
	Quantity      int       `json:"quantity"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (StockReleasedEvent) EventName() string   { return "inventory.stock_released" }
func (e StockReleasedEvent) EventKey() string { return e.VariantID }

// StockCommittedEvent is emitted when a reservation becomes a permanent deduction.
type StockCommittedEvent struct {
	ReservationID string    `json:"reservation_id"`
	VariantID     string    `json:"variant_id"`
	Reference     string    `json:"reference"`
	Quantity      int       `json:"quantity"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (StockCommittedEvent) EventName() string   { return "inventory.stock_committed" }
func (e StockCommittedEvent) EventKey() string { return e.VariantID }

func NewStockReleasedEvent(r *Reservation, reason string) StockReleasedEvent {
	return StockReleasedEvent{
		ReservationID: r.ID,
		VariantID:     r.VariantID,
		Reference:     r.Reference,
		Quantity:      r.Quantity,
		Reason:        reason,
		OccurredAt:    time.Now().UTC(),
	}
}

func NewStockCommittedEvent(r *Reservation) StockCommittedEvent {
	return StockCommittedEvent{
		ReservationID: r.ID,
		VariantID:     r.VariantID,
		Reference:     r.Reference,
		Quantity:      r.Quantity,
		OccurredAt:    time.Now().UTC(),
	}
}
