package httppresentation

import (
	"context"
	"net/http"
	"strings"
	"time"

	apporder "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/apperr"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	headerUserID         = "X-User-ID"
	headerGuestID        = "X-Guest-ID"
	headerIdempotencyKey = "Idempotency-Key"
	headerActor          = "X-Actor"

	maxBodyBytes   = 1 << 20
	requestTimeout = 15 * time.Second
)

type OrderService interface {
	PlaceOrder(ctx context.Context, in apporder.PlaceOrderInput) (*apporder.PlaceOrderResult, error)
	Get(ctx context.Context, orderID string) (apporder.View, error)
	Ship(ctx context.Context, orderID, actor string) (*domorder.Order, error)
	Deliver(ctx context.Context, orderID, actor string) (*domorder.Order, error)
	Cancel(ctx context.Context, orderID, actor, reason string) (*domorder.Order, error)
}

type PaymentService interface {
	HandleNotification(ctx context.Context, n dompayment.Notification) (*dompayment.Payment, error)
	RefundPayment(ctx context.Context, transactionID string, amount int64) (*dompayment.Payment, error)
}

type Handler struct {
	orders   OrderService
	payments PaymentService
	webhooks dompayment.NotificationParser
	metrics  http.Handler
	tel      observability.Observability
}

// NewHandler builds the HTTP surface. metrics may be nil to leave /metrics unrouted.
func NewHandler(orders OrderService, payments PaymentService, webhooks dompayment.NotificationParser,
	metrics http.Handler, tel observability.Observability,
) *Handler {
	return &Handler{
		orders:   orders,
		payments: payments,
		webhooks: webhooks,
		metrics:  metrics,
		tel:      observability.OrNop(tel),
	}
}

// Router wires: Recoverer → RealIP → ObservabilityMiddleware → Timeout → handler.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, middleware.RealIP)
	r.Use(ObservabilityMiddleware(h.tel))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.handlePlaceOrder)
		r.Get("/{id}", h.handleGetOrder)
		r.Post("/{id}/cancel", h.handleCancelOrder)
		r.Post("/{id}/ship", h.handleShipOrder)
		r.Post("/{id}/deliver", h.handleDeliverOrder)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Post("/webhook", h.handleWebhook)
		r.Post("/{transaction_id}/refund", h.handleRefund)
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type placeOrderRequest struct {
	GuestEmail      string             `json:"guest_email"`
	ShippingAddress domorder.Address   `json:"shipping_address"`
	BillingAddress  *domorder.Address  `json:"billing_address"`
	CouponCode      string             `json:"coupon_code"`
	Currency        string             `json:"currency"`
	Items           []catalog.CartItem `json:"items"`
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	owner := ownerFrom(r, req.GuestEmail)
	if owner.UserID == "" && owner.GuestID == "" {
		writeError(w, r, apperr.Validation("X-User-ID or X-Guest-ID header is required"))
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), apporder.PlaceOrderInput{
		Owner:           owner,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		CouponCode:      req.CouponCode,
		Currency:        req.Currency,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(headerIdempotencyKey)),
		Actor:           owner.Key(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.PaymentPending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, placeOrderResponse{
		Order:          newOrderResponse(res.Order),
		Payment:        newPaymentResponse(res.Payment),
		PaymentPending: res.PaymentPending,
		Replayed:       res.Replayed,
		Warnings:       res.Warnings,
	})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	payments := make([]*paymentResponse, 0, len(view.Payments))
	for _, p := range view.Payments {
		payments = append(payments, newPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, orderViewResponse{Order: newOrderResponse(view.Order), Payments: payments})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

func (h *Handler) handleShipOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Ship)
}

func (h *Handler) handleDeliverOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Deliver)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, orderID, actor string) (*domorder.Order, error),
) {
	o, err := fn(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

func ownerFrom(r *http.Request, guestEmail string) domorder.Owner {
	if uid := strings.TrimSpace(r.Header.Get(headerUserID)); uid != "" {
		return domorder.Owner{UserID: uid}
	}
	return domorder.Owner{
		GuestID:    strings.TrimSpace(r.Header.Get(headerGuestID)),
		GuestEmail: strings.TrimSpace(guestEmail),
	}
}

// actorFrom names who asked for a transition, for the status history.
func actorFrom(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get(headerActor)); a != "" {
		return a
	}
	if uid := strings.TrimSpace(r.Header.Get(headerUserID)); uid != "" {
		return "user:" + uid
	}
	if gid := strings.TrimSpace(r.Header.Get(headerGuestID)); gid != "" {
		return "guest:" + gid
	}
	return ""
}
