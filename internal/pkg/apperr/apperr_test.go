package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

var errCause = errors.New("inventory: insufficient stock")

func TestKindOf(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("place order: %w", Wrap(KindInsufficientStock, errCause, "variant v-1"))

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "validation", err: Validation("cart is empty"), want: KindValidation},
		{name: "insufficient_stock_wrapped", err: wrapped, want: KindInsufficientStock},
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "canceled", err: context.Canceled, want: KindCanceled},
		{name: "unknown", err: errors.New("boom"), want: KindInternal},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	t.Parallel()

	err := Wrap(KindInsufficientStock, errCause, "variant v-1")
	if !errors.Is(err, errCause) {
		t.Fatalf("expected wrapped error to match cause")
	}
	if Wrap(KindInternal, nil, "x") != nil {
		t.Fatalf("expected nil for nil cause")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "validation", err: Validation("bad"), want: http.StatusBadRequest},
		{name: "not_found", err: New(KindNotFound, "order not found"), want: http.StatusNotFound},
		{name: "stock", err: New(KindInsufficientStock, "x"), want: http.StatusConflict},
		{name: "gateway_unavailable", err: New(KindGatewayUnavailable, "x"), want: http.StatusServiceUnavailable},
		{name: "gateway_timeout", err: New(KindGatewayTimeout, "x"), want: http.StatusGatewayTimeout},
		{name: "declined", err: New(KindPaymentDeclined, "x"), want: http.StatusPaymentRequired},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := HTTPStatus(tt.err); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestMessageHidesInternalDetail(t *testing.T) {
	t.Parallel()

	err := Internal(errors.New("pq: connection refused on 10.0.0.3"))
	if got := Message(err); got != "internal error" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if got := Message(errors.New("raw")); got != "internal error" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if got := Message(Validation("cart is empty")); got != "cart is empty" {
		t.Fatalf("expected validation message, got %q", got)
	}
}
