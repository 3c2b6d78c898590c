package sandbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
)

var ErrBadNotification = errors.New("sandbox: malformed notification")

type notification struct {
	Reference     string `json:"reference"`
	Kind          string `json:"kind"`
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

// NotificationParser decodes the plain JSON callbacks used with the sandbox gateway.
type NotificationParser struct{}

func (NotificationParser) ParseNotification(payload []byte, _ func(string) string) (domain.Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	var n notification
	if err := dec.Decode(&n); err != nil {
		return domain.Notification{}, fmt.Errorf("%w: %v", ErrBadNotification, err)
	}
	if n.Reference == "" {
		return domain.Notification{}, fmt.Errorf("%w: reference is required", ErrBadNotification)
	}

	kind := domain.NotificationKind(n.Kind)
	switch kind {
	case domain.NotificationAuthorized, domain.NotificationCaptured, domain.NotificationFailed:
	default:
		kind = domain.NotificationIgnored
	}
	return domain.Notification{
		Reference:     n.Reference,
		Kind:          kind,
		TransactionID: n.TransactionID,
		Reason:        n.Reason,
	}, nil
}
