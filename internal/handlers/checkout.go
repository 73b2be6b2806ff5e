package handlers

import (
	"net/http"

	"github.com/storekit/storefront/internal/services"
)

// Checkout places an order from the visitor's cart. The cart is forgotten
// once converted so the next add starts a new one.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := tenantFromContext(ctx)

	var input services.CheckoutInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}

	cartID, _ := h.sessionManager.CartID(ctx, r, tenant.ID)
	result, err := h.checkout.Submit(ctx, tenant, cartID, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.sessionManager.ForgetCart(ctx, r, tenant.ID)
	writeJSON(w, http.StatusCreated, result)
}
