package handlers

import (
	"net/http"

	"github.com/storekit/storefront/internal/services"
)

// RetryPayment opens a fresh Razorpay order for an unpaid online order.
func (h *Handlers) RetryPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := tenantFromContext(ctx)

	orderID, err := pathUUID(r, "orderID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	remote, err := h.payments.CreateRemoteOrder(ctx, tenant, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, remote)
}

// VerifyPayment checks the signature returned by the payment widget.
func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := tenantFromContext(ctx)

	orderID, err := pathUUID(r, "orderID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var confirmation services.PaymentConfirmation
	if err := decodeJSON(w, r, &confirmation); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.payments.VerifyPayment(ctx, tenant, orderID, confirmation)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handlers) CancelPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := tenantFromContext(ctx)

	orderID, err := pathUUID(r, "orderID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.payments.CancelPayment(ctx, tenant, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
