package httppresentation

import (
	"io"
	"net/http"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/apperr"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhooks == nil {
		writeError(w, r, apperr.New(apperr.KindNotFound, "webhooks are not configured"))
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, apperr.Validation("unreadable body"))
		return
	}
	n, err := h.webhooks.ParseNotification(payload, r.Header.Get)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid notification"))
		return
	}

	p, err := h.payments.HandleNotification(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Received: true, Payment: newPaymentResponse(p)})
}

type refundRequest struct {
	// Amount in minor units; zero refunds the full payment.
	Amount int64 `json:"amount"`
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.payments.RefundPayment(r.Context(), chi.URLParam(r, "transaction_id"), req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentResponse(p))
}
