package order

import "errors"

var ErrInvalidStateTransition = errors.New("order: invalid state transition")

// OrderState implements the state pattern for order lifecycle transitions.
type OrderState interface {
	Status() Status
	OnPaid() (OrderState, error)
	OnPaymentFailed() (OrderState, error)
	OnShipped() (OrderState, error)
	OnDelivered() (OrderState, error)
	OnCancelled() (OrderState, error)
}

// closed rejects every transition; states embed it and override what they allow.
type closed struct{}

func (closed) OnPaid() (OrderState, error)          { return nil, ErrInvalidStateTransition }
func (closed) OnPaymentFailed() (OrderState, error) { return nil, ErrInvalidStateTransition }
func (closed) OnShipped() (OrderState, error)       { return nil, ErrInvalidStateTransition }
func (closed) OnDelivered() (OrderState, error)     { return nil, ErrInvalidStateTransition }
func (closed) OnCancelled() (OrderState, error)     { return nil, ErrInvalidStateTransition }

type pendingState struct{ closed }

func (pendingState) Status() Status                       { return StatusPending }
func (pendingState) OnPaid() (OrderState, error)          { return paidState{}, nil }
func (pendingState) OnPaymentFailed() (OrderState, error) { return paymentFailedState{}, nil }
func (pendingState) OnCancelled() (OrderState, error)     { return cancelledState{}, nil }

type paidState struct{ closed }

func (paidState) Status() Status                   { return StatusPaid }
func (paidState) OnShipped() (OrderState, error)   { return shippedState{}, nil }
func (paidState) OnCancelled() (OrderState, error) { return cancelledState{}, nil }

type shippedState struct{ closed }

func (shippedState) Status() Status                   { return StatusShipped }
func (shippedState) OnDelivered() (OrderState, error) { return deliveredState{}, nil }

type deliveredState struct{ closed }

func (deliveredState) Status() Status { return StatusDelivered }

type cancelledState struct{ closed }

func (cancelledState) Status() Status { return StatusCancelled }

type paymentFailedState struct{ closed }

func (paymentFailedState) Status() Status { return StatusPaymentFailed }

func stateFor(s Status) OrderState {
	switch s {
	case StatusPaid:
		return paidState{}
	case StatusShipped:
		return shippedState{}
	case StatusDelivered:
		return deliveredState{}
	case StatusCancelled:
		return cancelledState{}
	case StatusPaymentFailed:
		return paymentFailedState{}
	default:
		return pendingState{}
	}
}
