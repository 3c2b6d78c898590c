package payment

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("payment: record not found")
	ErrInvalidTransition  = errors.New("payment: invalid status transition")
	ErrInvalidAmount      = errors.New("payment: amount must be zero or greater")
	ErrConflict           = errors.New("payment: already exists")
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
	ErrGatewayTimeout     = errors.New("payment: gateway timeout")
	ErrDeclined           = errors.New("payment: declined")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Payment mirrors the state of one gateway payment attempt for an order.
type Payment struct {
	ID                  string
	OrderID             string
	Amount              int64
	Currency            string
	Method              string
	Status              Status
	GatewayReference    string
	TransactionID       string
	RefundID            string
	RefundedAmount      int64
	GatewayResponse     string
	FailureReason       string
	NeedsReconciliation bool
	IdempotencyKey      string
	ProcessedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func New(id, orderID string, amount int64, currency, method string, now time.Time) (*Payment, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	return &Payment{
		ID:             id,
		OrderID:        orderID,
		Amount:         amount,
		Currency:       currency,
		Method:         method,
		Status:         StatusPending,
		IdempotencyKey: "pay_" + id,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Attach stores the gateway reference of a created intent.
func (p *Payment) Attach(reference, response string, now time.Time) {
	p.GatewayReference = reference
	p.GatewayResponse = response
	p.NeedsReconciliation = false
	p.UpdatedAt = now
}

// MarkUnknown keeps the payment pending and flags it for reconciliation.
func (p *Payment) MarkUnknown(reason string, now time.Time) {
	p.NeedsReconciliation = true
	p.FailureReason = reason
	p.UpdatedAt = now
}

func (p *Payment) Complete(transactionID, response string, now time.Time) error {
	if p.Status != StatusPending {
		return ErrInvalidTransition
	}
	p.Status = StatusCompleted
	p.TransactionID = transactionID
	p.GatewayResponse = response
	p.FailureReason = ""
	p.NeedsReconciliation = false
	p.ProcessedAt = &now
	p.UpdatedAt = now
	return nil
}

func (p *Payment) Fail(reason, response string, now time.Time) error {
	if p.Status != StatusPending {
		return ErrInvalidTransition
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	p.GatewayResponse = response
	p.NeedsReconciliation = false
	p.ProcessedAt = &now
	p.UpdatedAt = now
	return nil
}

func (p *Payment) Refund(refundID string, amount int64, now time.Time) error {
	if p.Status != StatusCompleted {
		return ErrInvalidTransition
	}
	if amount <= 0 || amount > p.Amount {
		return ErrInvalidAmount
	}
	p.Status = StatusRefunded
	p.RefundID = refundID
	p.RefundedAmount = amount
	p.UpdatedAt = now
	return nil
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	cp := *p
	if p.ProcessedAt != nil {
		t := *p.ProcessedAt
		cp.ProcessedAt = &t
	}
	return &cp
}
