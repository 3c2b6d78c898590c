package httppresentation

import (
	"time"

	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
)

// Amounts are minor units of Currency.

type orderItemResponse struct {
	VariantID string `json:"variant_id"`
	ProductID string `json:"product_id"`
	SKU       string `json:"sku,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

type statusChangeResponse struct {
	From   domorder.Status `json:"from,omitempty"`
	To     domorder.Status `json:"to"`
	Actor  string          `json:"actor,omitempty"`
	Reason string          `json:"reason,omitempty"`
	At     time.Time       `json:"at"`
}

type orderResponse struct {
	ID              string                 `json:"id"`
	Number          string                 `json:"number"`
	Owner           domorder.Owner         `json:"owner"`
	Status          domorder.Status        `json:"status"`
	Subtotal        int64                  `json:"subtotal"`
	Tax             int64                  `json:"tax"`
	Shipping        int64                  `json:"shipping"`
	Discount        int64                  `json:"discount"`
	Total           int64                  `json:"total"`
	Currency        string                 `json:"currency"`
	CouponCode      string                 `json:"coupon_code,omitempty"`
	ShippingAddress domorder.Address       `json:"shipping_address"`
	BillingAddress  domorder.Address       `json:"billing_address"`
	Items           []orderItemResponse    `json:"items"`
	StatusChangedBy string                 `json:"status_changed_by,omitempty"`
	StatusChangedAt time.Time              `json:"status_changed_at"`
	CancelReason    string                 `json:"cancel_reason,omitempty"`
	History         []statusChangeResponse `json:"history"`
	CreatedAt       time.Time              `json:"created_at"`
}

func newOrderResponse(o *domorder.Order) *orderResponse {
	if o == nil {
		return nil
	}
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			VariantID: it.VariantID,
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal,
		})
	}
	history := make([]statusChangeResponse, 0, len(o.History))
	for _, h := range o.History {
		history = append(history, statusChangeResponse{From: h.From, To: h.To, Actor: h.Actor, Reason: h.Reason, At: h.At})
	}
	return &orderResponse{
		ID:              o.ID,
		Number:          o.Number,
		Owner:           o.Owner,
		Status:          o.Status,
		Subtotal:        o.Totals.Subtotal,
		Tax:             o.Totals.Tax,
		Shipping:        o.Totals.Shipping,
		Discount:        o.Totals.Discount,
		Total:           o.Totals.Total,
		Currency:        o.Totals.Currency,
		CouponCode:      o.CouponCode,
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		Items:           items,
		StatusChangedBy: o.StatusChangedBy,
		StatusChangedAt: o.StatusChangedAt,
		CancelReason:    o.CancelReason,
		History:         history,
		CreatedAt:       o.CreatedAt,
	}
}

type paymentResponse struct {
	ID                  string            `json:"id"`
	OrderID             string            `json:"order_id"`
	Status              dompayment.Status `json:"status"`
	Amount              int64             `json:"amount"`
	RefundedAmount      int64             `json:"refunded_amount,omitempty"`
	Currency            string            `json:"currency"`
	Method              string            `json:"method"`
	GatewayReference    string            `json:"gateway_reference,omitempty"`
	TransactionID       string            `json:"transaction_id,omitempty"`
	FailureReason       string            `json:"failure_reason,omitempty"`
	NeedsReconciliation bool              `json:"needs_reconciliation,omitempty"`
	ProcessedAt         *time.Time        `json:"processed_at,omitempty"`
}

func newPaymentResponse(p *dompayment.Payment) *paymentResponse {
	if p == nil {
		return nil
	}
	return &paymentResponse{
		ID:                  p.ID,
		OrderID:             p.OrderID,
		Status:              p.Status,
		Amount:              p.Amount,
		RefundedAmount:      p.RefundedAmount,
		Currency:            p.Currency,
		Method:              p.Method,
		GatewayReference:    p.GatewayReference,
		TransactionID:       p.TransactionID,
		FailureReason:       p.FailureReason,
		NeedsReconciliation: p.NeedsReconciliation,
		ProcessedAt:         p.ProcessedAt,
	}
}

type placeOrderResponse struct {
	Order          *orderResponse   `json:"order"`
	Payment        *paymentResponse `json:"payment,omitempty"`
	PaymentPending bool             `json:"payment_pending"`
	Replayed       bool             `json:"replayed,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
}

type orderViewResponse struct {
	Order    *orderResponse     `json:"order"`
	Payments []*paymentResponse `json:"payments"`
}

type webhookResponse struct {
	Received bool             `json:"received"`
	Payment  *paymentResponse `json:"payment,omitempty"`
}
