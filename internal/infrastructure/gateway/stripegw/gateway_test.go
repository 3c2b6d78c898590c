package stripegw

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"

	"github.com/stripe/stripe-go/v83"
)

type fakeStripe struct {
	mu       sync.Mutex
	idemKeys []string
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	if k := r.Header.Get("Idempotency-Key"); k != "" {
		f.idemKeys = append(f.idemKeys, k)
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents":
		_ = r.ParseForm()
		if r.Form.Get("capture_method") != "manual" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"capture_method must be manual"}}`)
			return
		}
		fmt.Fprintf(w, `{"id":"pi_1","object":"payment_intent","status":"requires_payment_method","client_secret":"pi_1_secret","amount":%s}`, r.Form.Get("amount"))
	case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents/pi_1/capture":
		fmt.Fprint(w, `{"id":"pi_1","object":"payment_intent","status":"succeeded","latest_charge":"ch_1"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents/pi_declined/capture":
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_intents/pi_1":
		fmt.Fprint(w, `{"id":"pi_1","object":"payment_intent","status":"requires_capture"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_intents/pi_failed":
		fmt.Fprint(w, `{"id":"pi_failed","object":"payment_intent","status":"requires_payment_method","last_payment_error":{"type":"card_error","code":"card_declined","message":"declined"}}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents/pi_1/cancel":
		_ = r.ParseForm()
		if r.Form.Get("cancellation_reason") != "abandoned" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"bad cancellation_reason"}}`)
			return
		}
		fmt.Fprint(w, `{"id":"pi_1","object":"payment_intent","status":"canceled","cancellation_reason":"abandoned"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents/pi_captured/cancel":
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"payment_intent_unexpected_state","message":"You cannot cancel this PaymentIntent because it has a status of succeeded."}}`)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_intents/pi_captured":
		fmt.Fprint(w, `{"id":"pi_captured","object":"payment_intent","status":"succeeded","latest_charge":"ch_9"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/refunds":
		_ = r.ParseForm()
		if r.Form.Get("charge") != "ch_1" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"no such charge"}}`)
			return
		}
		fmt.Fprint(w, `{"id":"re_1","object":"refund","status":"succeeded"}`)
	default:
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"type":"api_error","message":"boom"}}`)
	}
}

func newTestGateway(t *testing.T) (*Gateway, *fakeStripe) {
	t.Helper()
	fake := &fakeStripe{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	g, err := New(Config{SecretKey: "sk_test_123", BaseURL: srv.URL, MaxNetworkRetries: stripe.Int64(0)})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return g, fake
}

func TestGatewayIntentCaptureRefund(t *testing.T) {
	t.Parallel()

	g, fake := newTestGateway(t)
	ctx := context.Background()

	intent, err := g.CreateIntent(ctx, domain.IntentRequest{
		PaymentID: "pay-1", OrderID: "o-1", OrderNumber: "ORD202603010001",
		Amount: 9720, Currency: "USD", IdempotencyKey: "pay_pay-1",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.Reference != "pi_1" || intent.ClientSecret != "pi_1_secret" {
		t.Fatalf("unexpected intent %+v", intent)
	}

	capture, err := g.Capture(ctx, "pi_1", "pay_pay-1_capture")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if capture.TransactionID != "ch_1" {
		t.Fatalf("expected ch_1, got %s", capture.TransactionID)
	}

	refund, err := g.Refund(ctx, "ch_1", 0, "pay_pay-1_refund")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refund.RefundID != "re_1" {
		t.Fatalf("expected re_1, got %s", refund.RefundID)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	want := "pay_pay-1,pay_pay-1_capture,pay_pay-1_refund"
	if got := strings.Join(fake.idemKeys, ","); got != want {
		t.Fatalf("expected idempotency keys %s, got %s", want, got)
	}
}

func TestGatewayClassifiesErrors(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{
			name: "card decline",
			call: func() error { _, err := g.Capture(ctx, "pi_declined", "k1"); return err },
			want: domain.ErrDeclined,
		},
		{
			name: "server error",
			call: func() error { _, err := g.Capture(ctx, "pi_unknown", "k2"); return err },
			want: domain.ErrGatewayUnavailable,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGatewayRejectedRequestIsNotRetryable(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)
	_, err := g.Refund(context.Background(), "ch_missing", 100, "k")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrGatewayUnavailable) || errors.Is(err, domain.ErrDeclined) {
		t.Fatalf("expected a plain rejection, got %v", err)
	}
}

func TestGatewayLookup(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)
	ctx := context.Background()

	st, err := g.Lookup(ctx, "pi_1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if st.State != domain.RemoteAuthorized {
		t.Fatalf("expected authorized, got %s", st.State)
	}

	st, err = g.Lookup(ctx, "pi_failed")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if st.State != domain.RemoteFailed || st.Reason != "card_declined" {
		t.Fatalf("expected failed with card_declined, got %+v", st)
	}
}

func TestGatewayCancel(t *testing.T) {
	t.Parallel()

	g, fake := newTestGateway(t)
	ctx := context.Background()

	if err := g.Cancel(ctx, "pi_1", "pay_pay-1_cancel"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := g.Cancel(ctx, "pi_captured", "pay_pay-2_cancel"); err == nil {
		t.Fatal("expected cancelling a captured intent to fail")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.idemKeys) == 0 || fake.idemKeys[0] != "pay_pay-1_cancel" {
		t.Fatalf("expected the cancel idempotency key to be sent, got %v", fake.idemKeys)
	}
}

func TestNewRequiresSecretKey(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without secret key")
	}
}
