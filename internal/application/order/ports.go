package order

import (
	"context"
	"time"

	appinventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	apppayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	domcoupon "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/coupon"
	dominventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	dompayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
)

type InventoryPort interface {
	ReserveStock(ctx context.Context, in appinventory.ReserveInput) (*dominventory.Reservation, error)
	ReleaseStock(ctx context.Context, in appinventory.ReleaseInput) (appinventory.ReleaseResult, error)
	CommitStock(ctx context.Context, in appinventory.CommitInput) (*dominventory.Reservation, error)
	Outstanding(ctx context.Context, cutoff time.Time, limit int) ([]*dominventory.Reservation, error)
}

type DiscountPort interface {
	ValidateCoupon(ctx context.Context, code string, orderAmount int64) (domcoupon.Validated, error)
	ApplyCoupon(ctx context.Context, v domcoupon.Validated, orderID string) error
	ReleaseCoupon(ctx context.Context, code, orderID string) (bool, error)
}

type PaymentPort interface {
	CreatePayment(ctx context.Context, in apppayment.CreateInput) (*dompayment.Payment, error)
	RefundPayment(ctx context.Context, transactionID string, amount int64) (*dompayment.Payment, error)
	Payments(ctx context.Context, orderID string) ([]*dompayment.Payment, error)
	AbandonPayments(ctx context.Context, orderID, reason string) (captured bool, err error)
}

// IdempotencyStore claims placement keys. Claim returns claimed=false with the
// order id of a finished placement, or an empty id while one is still running.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, key, orderID string) error
	Forget(ctx context.Context, key string) error
}
