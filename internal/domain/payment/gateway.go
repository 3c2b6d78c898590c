package payment

import "context"

// IntentRequest asks the gateway for a payable intent.
type IntentRequest struct {
	PaymentID      string
	OrderID        string
	OrderNumber    string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

type Intent struct {
	Reference    string
	ClientSecret string
	Raw          string
}

type Capture struct {
	TransactionID string
	Raw           string
}

type Refund struct {
	RefundID string
	Raw      string
}

type RemoteState string

const (
	RemotePending    RemoteState = "pending"
	RemoteAuthorized RemoteState = "authorized"
	RemoteCaptured   RemoteState = "captured"
	RemoteFailed     RemoteState = "failed"
)

// RemoteStatus is the gateway's view of an intent, used by reconciliation.
type RemoteStatus struct {
	State         RemoteState
	TransactionID string
	Reason        string
	Raw           string
}

// Gateway is the external processor contract. Implementations return errors
// wrapping ErrGatewayUnavailable, ErrGatewayTimeout or ErrDeclined.
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	Capture(ctx context.Context, reference, idempotencyKey string) (Capture, error)
	Refund(ctx context.Context, transactionID string, amount int64, idempotencyKey string) (Refund, error)
	Lookup(ctx context.Context, reference string) (RemoteStatus, error)
	// Cancel voids an intent that was not captured. Cancelling a cancelled
	// intent succeeds; a captured one returns an error.
	Cancel(ctx context.Context, reference, idempotencyKey string) error
}

type NotificationKind string

const (
	NotificationAuthorized NotificationKind = "authorized"
	NotificationCaptured   NotificationKind = "captured"
	NotificationFailed     NotificationKind = "failed"
	NotificationIgnored    NotificationKind = "ignored"
)

// Notification is a verified gateway callback keyed by reference.
type Notification struct {
	Reference     string
	Kind          NotificationKind
	TransactionID string
	Reason        string
}

// NotificationParser verifies and decodes gateway webhooks.
type NotificationParser interface {
	ParseNotification(payload []byte, header func(string) string) (Notification, error)
}
