// Package stripegw implements the payment gateway on Stripe PaymentIntents with
// manual capture: the customer confirms with the client secret, the
// amount_capturable_updated webhook reports the authorization and capture
// happens server side.
package stripegw

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"

	"github.com/stripe/stripe-go/v83"
)

const Name = "stripe"

type Config struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides the API endpoint, e.g. for stripe-mock.
	BaseURL string
	// MaxNetworkRetries is left to the SDK default when nil.
	MaxNetworkRetries *int64
}

type Gateway struct {
	sc *stripe.Client
}

func New(cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripegw: secret key is required")
	}
	var opts []stripe.ClientOption
	if cfg.BaseURL != "" || cfg.MaxNetworkRetries != nil {
		bc := &stripe.BackendConfig{MaxNetworkRetries: cfg.MaxNetworkRetries}
		if cfg.BaseURL != "" {
			bc.URL = stripe.String(cfg.BaseURL)
		}
		opts = append(opts, stripe.WithBackends(stripe.NewBackendsWithConfig(bc)))
	}
	return &Gateway{sc: stripe.NewClient(cfg.SecretKey, opts...)}, nil
}

func (g *Gateway) Name() string { return Name }

func (g *Gateway) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String("Order " + req.OrderNumber),
		Metadata: map[string]string{
			"order_id":     req.OrderID,
			"order_number": req.OrderNumber,
			"payment_id":   req.PaymentID,
		},
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := g.sc.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return domain.Intent{}, classify(ctx, "create intent", err)
	}
	return domain.Intent{
		Reference:    pi.ID,
		ClientSecret: pi.ClientSecret,
		Raw:          string(pi.Status),
	}, nil
}

func (g *Gateway) Capture(ctx context.Context, reference, idempotencyKey string) (domain.Capture, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := g.sc.V1PaymentIntents.Capture(ctx, reference, params)
	if err != nil {
		return domain.Capture{}, classify(ctx, "capture", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return domain.Capture{}, fmt.Errorf("%w: intent %s is %s", domain.ErrDeclined, pi.ID, pi.Status)
	}
	return domain.Capture{TransactionID: chargeID(pi), Raw: string(pi.Status)}, nil
}

func (g *Gateway) Refund(ctx context.Context, transactionID string, amount int64, idempotencyKey string) (domain.Refund, error) {
	params := &stripe.RefundCreateParams{Charge: stripe.String(transactionID)}
	if amount > 0 {
		params.Amount = stripe.Int64(amount)
	}
	params.SetIdempotencyKey(idempotencyKey)

	r, err := g.sc.V1Refunds.Create(ctx, params)
	if err != nil {
		return domain.Refund{}, classify(ctx, "refund", err)
	}
	return domain.Refund{RefundID: r.ID, Raw: string(r.Status)}, nil
}

func (g *Gateway) Lookup(ctx context.Context, reference string) (domain.RemoteStatus, error) {
	pi, err := g.sc.V1PaymentIntents.Retrieve(ctx, reference, nil)
	if err != nil {
		return domain.RemoteStatus{}, classify(ctx, "lookup", err)
	}
	return remoteStatus(pi), nil
}

func (g *Gateway) Cancel(ctx context.Context, reference, idempotencyKey string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := g.sc.V1PaymentIntents.Cancel(ctx, reference, params)
	if err != nil {
		var serr *stripe.Error
		// Stripe rejects cancelling an intent that is already canceled.
		if errors.As(err, &serr) && serr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			if st, lerr := g.Lookup(ctx, reference); lerr == nil && st.State == domain.RemoteFailed {
				return nil
			}
		}
		return classify(ctx, "cancel", err)
	}
	if pi.Status != stripe.PaymentIntentStatusCanceled {
		return fmt.Errorf("stripe cancel: intent %s is %s", pi.ID, pi.Status)
	}
	return nil
}

func remoteStatus(pi *stripe.PaymentIntent) domain.RemoteStatus {
	st := domain.RemoteStatus{Raw: string(pi.Status)}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		st.State = domain.RemoteCaptured
		st.TransactionID = chargeID(pi)
	case stripe.PaymentIntentStatusRequiresCapture:
		st.State = domain.RemoteAuthorized
	case stripe.PaymentIntentStatusCanceled:
		st.State = domain.RemoteFailed
		st.Reason = "canceled"
		if pi.CancellationReason != "" {
			st.Reason = string(pi.CancellationReason)
		}
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A fresh intent also waits for a payment method; only a recorded
		// error means the customer's attempt failed.
		if pi.LastPaymentError != nil {
			st.State = domain.RemoteFailed
			st.Reason = declineReason(pi.LastPaymentError)
		} else {
			st.State = domain.RemotePending
		}
	default:
		st.State = domain.RemotePending
	}
	return st
}

func chargeID(pi *stripe.PaymentIntent) string {
	if pi.LatestCharge != nil {
		return pi.LatestCharge.ID
	}
	return ""
}

func declineReason(e *stripe.Error) string {
	switch {
	case e.DeclineCode != "":
		return string(e.DeclineCode)
	case e.Code != "":
		return string(e.Code)
	default:
		return e.Msg
	}
}

// classify maps SDK errors onto the gateway sentinels.
func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: stripe %s: %v", domain.ErrGatewayTimeout, op, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: stripe %s: %v", domain.ErrGatewayTimeout, op, err)
	}

	var serr *stripe.Error
	if errors.As(err, &serr) {
		if serr.Type == stripe.ErrorTypeCard {
			return fmt.Errorf("%w: %s", domain.ErrDeclined, declineReason(serr))
		}
		if serr.HTTPStatusCode == 0 || serr.HTTPStatusCode >= 500 || serr.HTTPStatusCode == 429 {
			return fmt.Errorf("%w: stripe %s: %s", domain.ErrGatewayUnavailable, op, serr.Msg)
		}
		return fmt.Errorf("stripe %s rejected (%d %s): %s", op, serr.HTTPStatusCode, serr.Code, serr.Msg)
	}
	return fmt.Errorf("%w: stripe %s: %v", domain.ErrGatewayUnavailable, op, err)
}
