// Package apperr classifies failures crossing the use-case boundary into a
// small set of kinds that transports map to status codes.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInsufficientStock  Kind = "insufficient_stock"
	KindCouponInvalid      Kind = "coupon_invalid"
	KindInvalidState       Kind = "invalid_state"
	KindGatewayUnavailable Kind = "gateway_unavailable"
	KindGatewayTimeout     Kind = "gateway_timeout"
	KindPaymentDeclined    Kind = "payment_declined"
	KindTimeout            Kind = "timeout"
	KindCanceled           Kind = "canceled"
	KindInternal           Kind = "internal"
)

// Error carries a kind, a client-safe message and the underlying cause.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	switch {
	case e.err == nil:
		return e.msg
	case e.msg == "":
		return e.err.Error()
	default:
		return e.msg + ": " + e.err.Error()
	}
}

func (e *Error) Unwrap() error { return e.err }

// Kind satisfies the kinder interface used by transports.
func (e *Error) Kind() string { return string(e.kind) }

// Message is the part of the error that is safe to show to API clients.
func (e *Error) Message() string {
	if e.kind == KindInternal {
		return "internal error"
	}
	if e.msg != "" {
		return e.msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return string(e.kind)
}

func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, err: err}
}

func Validation(msg string) error { return New(KindValidation, msg) }

func Internal(err error) error { return Wrap(KindInternal, err, "") }

// KindOf returns the classification of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-safe message for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message()
	}
	switch KindOf(err) {
	case KindTimeout:
		return "request timed out"
	case KindCanceled:
		return "request canceled"
	default:
		return "internal error"
	}
}

var kindToStatus = map[Kind]int{
	KindValidation:         http.StatusBadRequest,
	KindNotFound:           http.StatusNotFound,
	KindConflict:           http.StatusConflict,
	KindInsufficientStock:  http.StatusConflict,
	KindCouponInvalid:      http.StatusUnprocessableEntity,
	KindInvalidState:       http.StatusConflict,
	KindGatewayUnavailable: http.StatusServiceUnavailable,
	KindGatewayTimeout:     http.StatusGatewayTimeout,
	KindPaymentDeclined:    http.StatusPaymentRequired,
	KindTimeout:            http.StatusGatewayTimeout,
	KindCanceled:           http.StatusRequestTimeout,
}

func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := kindToStatus[KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}
