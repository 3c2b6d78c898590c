package order

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("order: not found")
	ErrConflict        = errors.New("order: already exists")
	ErrNumberTaken     = errors.New("order: number already taken")
	ErrInvalidQuantity = errors.New("order: quantity must be greater than zero")
	ErrInvalidAmount   = errors.New("order: amount must be zero or greater")
	ErrInvalidTotals   = errors.New("order: totals do not add up")
	ErrNoItems         = errors.New("order: at least one item is required")
	ErrInvalidOwner    = errors.New("order: owner must be a user or a guest with email")
)

type Status string

const (
	StatusPending       Status = "pending"
	StatusPaid          Status = "paid"
	StatusShipped       Status = "shipped"
	StatusDelivered     Status = "delivered"
	StatusCancelled     Status = "cancelled"
	StatusPaymentFailed Status = "payment_failed"
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusPaymentFailed
}

// Owner identifies who placed the order: a registered user or a guest.
type Owner struct {
	UserID     string `json:"user_id,omitempty"`
	GuestID    string `json:"guest_id,omitempty"`
	GuestEmail string `json:"guest_email,omitempty" validate:"omitempty,email"`
}

// Key is the cart key for the owner.
func (o Owner) Key() string {
	if o.UserID != "" {
		return "user:" + o.UserID
	}
	return "guest:" + o.GuestID
}

func (o Owner) Validate() error {
	switch {
	case o.UserID != "" && o.GuestID != "":
		return ErrInvalidOwner
	case o.UserID != "":
		return validateStruct(o)
	case o.GuestID != "" && o.GuestEmail != "":
		return validateStruct(o)
	default:
		return ErrInvalidOwner
	}
}

type Item struct {
	ID            string
	OrderID       string
	VariantID     string
	ProductID     string
	SKU           string
	Quantity      int
	UnitPrice     int64
	LineTotal     int64
	ReservationID string
}

// Totals is the monetary breakdown of an order, all in minor units.
type Totals struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Discount int64
	Total    int64
	Currency string
}

// Check enforces Total = Subtotal + Tax + Shipping - Discount and Total >= 0.
func (t Totals) Check() error {
	if t.Subtotal < 0 || t.Tax < 0 || t.Shipping < 0 || t.Discount < 0 {
		return ErrInvalidAmount
	}
	if t.Total != t.Subtotal+t.Tax+t.Shipping-t.Discount {
		return ErrInvalidTotals
	}
	if t.Total < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// StatusChange is one entry of the order's transition history.
type StatusChange struct {
	From   Status
	To     Status
	Actor  string
	Reason string
	At     time.Time
}

type Order struct {
	ID              string
	Number          string
	Owner           Owner
	Items           []Item
	Totals          Totals
	CouponCode      string
	ShippingAddress Address
	BillingAddress  Address
	Status          Status
	StatusChangedBy string
	StatusChangedAt time.Time
	CancelReason    string
	History         []StatusChange
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time

	state OrderState
}

// Params carries everything needed to create an order.
type Params struct {
	ID              string
	Number          string
	Owner           Owner
	Items           []Item
	Totals          Totals
	CouponCode      string
	ShippingAddress Address
	BillingAddress  Address
	Actor           string
	Now             time.Time
}

func New(p Params) (*Order, error) {
	if err := p.Owner.Validate(); err != nil {
		return nil, err
	}
	if len(p.Items) == 0 {
		return nil, ErrNoItems
	}
	var subtotal int64
	for i := range p.Items {
		it := &p.Items[i]
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.UnitPrice < 0 {
			return nil, ErrInvalidAmount
		}
		if it.LineTotal != it.UnitPrice*int64(it.Quantity) {
			return nil, fmt.Errorf("%w: line %s", ErrInvalidTotals, it.VariantID)
		}
		it.OrderID = p.ID
		subtotal += it.LineTotal
	}
	if subtotal != p.Totals.Subtotal {
		return nil, fmt.Errorf("%w: subtotal", ErrInvalidTotals)
	}
	if err := p.Totals.Check(); err != nil {
		return nil, err
	}
	if err := p.ShippingAddress.Validate(); err != nil {
		return nil, fmt.Errorf("shipping address: %w", err)
	}
	if err := p.BillingAddress.Validate(); err != nil {
		return nil, fmt.Errorf("billing address: %w", err)
	}

	now := p.Now.UTC()
	items := make([]Item, len(p.Items))
	copy(items, p.Items)
	return &Order{
		ID:              p.ID,
		Number:          p.Number,
		Owner:           p.Owner,
		Items:           items,
		Totals:          p.Totals,
		CouponCode:      p.CouponCode,
		ShippingAddress: p.ShippingAddress,
		BillingAddress:  p.BillingAddress,
		Status:          StatusPending,
		StatusChangedBy: p.Actor,
		StatusChangedAt: now,
		History:         []StatusChange{{To: StatusPending, Actor: p.Actor, Reason: "placed", At: now}},
		CreatedAt:       now,
		UpdatedAt:       now,
		state:           pendingState{},
	}, nil
}

// Pay moves a pending order to paid.
func (o *Order) Pay(actor string, now time.Time) error {
	return o.apply(actor, "payment captured", now, OrderState.OnPaid)
}

// FailPayment moves a pending order to payment_failed.
func (o *Order) FailPayment(actor, reason string, now time.Time) error {
	return o.apply(actor, reason, now, OrderState.OnPaymentFailed)
}

func (o *Order) Ship(actor string, now time.Time) error {
	return o.apply(actor, "shipped", now, OrderState.OnShipped)
}

func (o *Order) Deliver(actor string, now time.Time) error {
	return o.apply(actor, "delivered", now, OrderState.OnDelivered)
}

func (o *Order) Cancel(actor, reason string, now time.Time) error {
	if err := o.apply(actor, reason, now, OrderState.OnCancelled); err != nil {
		return err
	}
	o.CancelReason = reason
	return nil
}

func (o *Order) apply(actor, reason string, now time.Time, event func(OrderState) (OrderState, error)) error {
	next, err := event(o.currentState())
	if err != nil {
		return fmt.Errorf("%w: %s", err, o.Status)
	}
	now = now.UTC()
	o.History = append(o.History, StatusChange{From: o.Status, To: next.Status(), Actor: actor, Reason: reason, At: now})
	o.state = next
	o.Status = next.Status()
	o.StatusChangedBy = actor
	o.StatusChangedAt = now
	o.UpdatedAt = now
	return nil
}

// CanTransition reports whether the state machine allows moving to target.
func (o *Order) CanTransition(target Status) bool {
	s := o.currentState()
	var err error
	switch target {
	case StatusPaid:
		_, err = s.OnPaid()
	case StatusPaymentFailed:
		_, err = s.OnPaymentFailed()
	case StatusShipped:
		_, err = s.OnShipped()
	case StatusDelivered:
		_, err = s.OnDelivered()
	case StatusCancelled:
		_, err = s.OnCancelled()
	default:
		return false
	}
	return err == nil
}

func (o *Order) currentState() OrderState {
	if o.state == nil || o.state.Status() != o.Status {
		o.state = stateFor(o.Status)
	}
	return o.state
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	cp.History = append([]StatusChange(nil), o.History...)
	if o.DeletedAt != nil {
		t := *o.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}
