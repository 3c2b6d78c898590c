package order

import "time"

type ItemSnapshot struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// PlacedEvent is emitted after the order and its items are persisted.
type PlacedEvent struct {
	OrderID    string         `json:"order_id"`
	Number     string         `json:"number"`
	OwnerKey   string         `json:"owner_key"`
	Total      int64          `json:"total"`
	Currency   string         `json:"currency"`
	CouponCode string         `json:"coupon_code,omitempty"`
	Items      []ItemSnapshot `json:"items"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func (PlacedEvent) EventName() string   { return "order.placed" }
func (e PlacedEvent) EventKey() string { return e.OrderID }

func NewPlacedEvent(o *Order) PlacedEvent {
	items := make([]ItemSnapshot, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemSnapshot{VariantID: it.VariantID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return PlacedEvent{
		OrderID:    o.ID,
		Number:     o.Number,
		OwnerKey:   o.Owner.Key(),
		Total:      o.Totals.Total,
		Currency:   o.Totals.Currency,
		CouponCode: o.CouponCode,
		Items:      items,
		OccurredAt: time.Now().UTC(),
	}
}

// StatusChangedEvent is emitted on every lifecycle transition. Its name is
// "order." + the new status, e.g. order.paid or order.cancelled.
type StatusChangedEvent struct {
	OrderID    string    `json:"order_id"`
	Number     string    `json:"number"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Actor      string    `json:"actor"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e StatusChangedEvent) EventName() string { return "order." + string(e.To) }
func (e StatusChangedEvent) EventKey() string  { return e.OrderID }

// NewStatusChangedEvent describes the last transition recorded on o.
func NewStatusChangedEvent(o *Order) StatusChangedEvent {
	evt := StatusChangedEvent{
		OrderID:    o.ID,
		Number:     o.Number,
		To:         o.Status,
		Actor:      o.StatusChangedBy,
		OccurredAt: o.StatusChangedAt,
	}
	if n := len(o.History); n > 0 {
		last := o.History[n-1]
		evt.From = last.From
		evt.Reason = last.Reason
	}
	return evt
}
