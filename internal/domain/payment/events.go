package payment

import "time"

// CompletedEvent is emitted once a payment is captured.
type CompletedEvent struct {
	PaymentID     string    `json:"payment_id"`
	OrderID       string    `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (CompletedEvent) EventName() string   { return "payment.completed" }
func (e CompletedEvent) EventKey() string { return e.OrderID }

// FailedEvent is emitted when the gateway declines a payment.
type FailedEvent struct {
	PaymentID  string    `json:"payment_id"`
	OrderID    string    `json:"order_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (FailedEvent) EventName() string   { return "payment.failed" }
func (e FailedEvent) EventKey() string { return e.OrderID }

type RefundedEvent struct {
	PaymentID  string    `json:"payment_id"`
	OrderID    string    `json:"order_id"`
	RefundID   string    `json:"refund_id"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (RefundedEvent) EventName() string   { return "payment.refunded" }
func (e RefundedEvent) EventKey() string { return e.OrderID }

func NewCompletedEvent(p *Payment) CompletedEvent {
	return CompletedEvent{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		OccurredAt:    time.Now().UTC(),
	}
}

func NewFailedEvent(p *Payment) FailedEvent {
	return FailedEvent{
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		Reason:     p.FailureReason,
		OccurredAt: time.Now().UTC(),
	}
}

func NewRefundedEvent(p *Payment) RefundedEvent {
	return RefundedEvent{
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		RefundID:   p.RefundID,
		Amount:     p.RefundedAmount,
		OccurredAt: time.Now().UTC(),
	}
}
