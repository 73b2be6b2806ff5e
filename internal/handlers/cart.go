package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/storekit/storefront/internal/models"
	"github.com/storekit/storefront/internal/services"
)

type cartItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Qty       int       `json:"qty"`
}

type cartQtyRequest struct {
	Qty int `json:"qty"`
}

type cartResponse struct {
	ID            uuid.UUID         `json:"id,omitempty"`
	Status        models.CartStatus `json:"status"`
	Items         []models.CartItem `json:"items"`
	SubtotalPaise int64             `json:"subtotal_paise"`
}

func newCartResponse(cart *models.Cart) cartResponse {
	if cart == nil {
		return cartResponse{Status: models.CartStatusActive, Items: []models.CartItem{}}
	}
	items := cart.Items
	if items == nil {
		items = []models.CartItem{}
	}
	return cartResponse{
		ID:            cart.ID,
		Status:        cart.Status,
		Items:         items,
		SubtotalPaise: cart.SubtotalPaise(),
	}
}

// GetCart returns the visitor's cart for this store, or an empty one.
func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := tenantFromContext(ctx)

	cartID, ok := h.sessionManager.CartID(ctx, r, tenant.ID)
	if !ok {
		writeJSON(w, http.StatusOK, newCartResponse(nil))
		return
	}
	cart, err := h.carts.Get(ctx, tenant.ID, cartID)
	if errors.Is(err, services.ErrCartNotFound) {
		h.sessionManager.ForgetCart(ctx, r, tenant.ID)
		writeJSON(w, http.StatusOK, newCartResponse(nil))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(cart))
}

// AddCartItem adds qty of a product, creating the cart on first use.
func (h *Handlers) AddCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := tenantFromContext(ctx)

	var req cartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.ProductID == uuid.Nil {
		h.writeError(w, r, fmt.Errorf("%w: product_id is required", errBadRequest))
		return
	}

	cartID, _ := h.sessionManager.CartID(ctx, r, tenant.ID)
	cart, err := h.carts.Add(ctx, tenant.ID, cartID, req.ProductID, req.Qty)
	if errors.Is(err, services.ErrCartNotActive) && cartID != uuid.Nil {
		// The remembered cart was checked out elsewhere; start a new one.
		h.sessionManager.ForgetCart(ctx, r, tenant.ID)
		cart, err = h.carts.Add(ctx, tenant.ID, uuid.Nil, req.ProductID, req.Qty)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if cart.ID != cartID {
		if err := h.sessionManager.SetCartID(ctx, w, r, tenant.ID, cart.ID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newCartResponse(cart))
}

// UpdateCartItem sets the quantity of a line; zero removes it.
func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	h.mutateCart(w, r, func(r *http.Request, tenantID, cartID, productID uuid.UUID) (*models.Cart, error) {
		var req cartQtyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
		return h.carts.UpdateQty(r.Context(), tenantID, cartID, productID, req.Qty)
	})
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	h.mutateCart(w, r, func(r *http.Request, tenantID, cartID, productID uuid.UUID) (*models.Cart, error) {
		return h.carts.Remove(r.Context(), tenantID, cartID, productID)
	})
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := tenantFromContext(ctx)

	cartID, ok := h.sessionManager.CartID(ctx, r, tenant.ID)
	if !ok {
		writeJSON(w, http.StatusOK, newCartResponse(nil))
		return
	}
	cart, err := h.carts.Clear(ctx, tenant.ID, cartID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(cart))
}

type cartLineMutation func(r *http.Request, tenantID, cartID, productID uuid.UUID) (*models.Cart, error)

func (h *Handlers) mutateCart(w http.ResponseWriter, r *http.Request, mutate cartLineMutation) {
	ctx := r.Context()
	tenant, _ := tenantFromContext(ctx)

	productID, err := pathUUID(r, "productID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cartID, ok := h.sessionManager.CartID(ctx, r, tenant.ID)
	if !ok {
		h.writeError(w, r, services.ErrCartNotFound)
		return
	}

	cart, err := mutate(r, tenant.ID, cartID, productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(cart))
}
