package stripegw

import (
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

const SignatureHeader = "Stripe-Signature"

var ErrBadSignature = errors.New("stripegw: webhook signature verification failed")

type WebhookParser struct {
	secret string
}

func NewWebhookParser(secret string) *WebhookParser {
	return &WebhookParser{secret: secret}
}

func (p *WebhookParser) ParseNotification(payload []byte, header func(string) string) (domain.Notification, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header(SignatureHeader), p.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	var kind domain.NotificationKind
	switch event.Type {
	case "payment_intent.amount_capturable_updated":
		kind = domain.NotificationAuthorized
	case "payment_intent.succeeded":
		kind = domain.NotificationCaptured
	case "payment_intent.payment_failed", "payment_intent.canceled":
		kind = domain.NotificationFailed
	default:
		return domain.Notification{Kind: domain.NotificationIgnored}, nil
	}

	var pi stripe.PaymentIntent
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &pi) != nil || pi.ID == "" {
		return domain.Notification{}, fmt.Errorf("stripegw: event %s carries no payment intent", event.ID)
	}

	n := domain.Notification{Reference: pi.ID, Kind: kind, TransactionID: chargeID(&pi)}
	if kind == domain.NotificationFailed {
		n.Reason = remoteStatus(&pi).Reason
		if n.Reason == "" {
			n.Reason = string(event.Type)
		}
	}
	return n, nil
}
