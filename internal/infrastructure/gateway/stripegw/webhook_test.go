package stripegw

import (
	"errors"
	"net/http"
	"testing"
	"time"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"

	"github.com/stripe/stripe-go/v83/webhook"
)

const testSecret = "whsec_test"

func signed(t *testing.T, payload string) ([]byte, func(string) string) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	h := http.Header{}
	h.Set(SignatureHeader, sp.Header)
	return sp.Payload, h.Get
}

func TestWebhookParserMapsEvents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    domain.Notification
	}{
		{
			name:    "authorized",
			payload: `{"id":"evt_1","object":"event","type":"payment_intent.amount_capturable_updated","data":{"object":{"id":"pi_1","object":"payment_intent","status":"requires_capture"}}}`,
			want:    domain.Notification{Reference: "pi_1", Kind: domain.NotificationAuthorized},
		},
		{
			name:    "captured",
			payload: `{"id":"evt_2","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","status":"succeeded","latest_charge":"ch_1"}}}`,
			want:    domain.Notification{Reference: "pi_1", Kind: domain.NotificationCaptured, TransactionID: "ch_1"},
		},
		{
			name:    "failed",
			payload: `{"id":"evt_3","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_1","object":"payment_intent","status":"requires_payment_method","last_payment_error":{"type":"card_error","code":"card_declined"}}}}`,
			want:    domain.Notification{Reference: "pi_1", Kind: domain.NotificationFailed, Reason: "card_declined"},
		},
		{
			name:    "unrelated",
			payload: `{"id":"evt_4","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`,
			want:    domain.Notification{Kind: domain.NotificationIgnored},
		},
	}

	p := NewWebhookParser(testSecret)
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			payload, header := signed(t, tt.payload)
			got, err := p.ParseNotification(payload, header)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestWebhookParserRejectsBadSignature(t *testing.T) {
	t.Parallel()

	payload, _ := signed(t, `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	h := http.Header{}
	h.Set(SignatureHeader, "t=1,v1=deadbeef")

	_, err := NewWebhookParser(testSecret).ParseNotification(payload, h.Get)
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}
