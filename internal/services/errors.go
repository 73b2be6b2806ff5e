// Package services holds the storefront's business operations. Handlers call
// into services; services call stores, the payment gateway and email.
package services

import (
	"errors"

	"github.com/storekit/storefront/internal/db"
)

var (
	ErrTenantNotFound       = errors.New("store not found")
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrCartNotFound         = errors.New("cart not found")
	ErrCartEmpty            = errors.New("cart is empty")
	ErrCartItemNotFound     = errors.New("item is not in the cart")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrProductNotFound      = errors.New("product not found")
	ErrProductInactive      = errors.New("product is not available")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidCheckout      = errors.New("invalid checkout details")
	ErrInvalidSettings      = errors.New("invalid integration settings")
	ErrInvalidLayout        = errors.New("invalid layout")
	ErrOrderNumberExhausted = errors.New("could not allocate a unique order number")

	ErrGatewayNotConfigured = errors.New("payment gateway is not configured for this store")
	ErrAlreadyPaid          = errors.New("order is already paid")
	ErrNotOnlinePayment     = errors.New("order does not use online payment")
	ErrInvalidSignature     = errors.New("invalid payment signature")
	ErrInvalidWebhookToken  = errors.New("invalid webhook token")

	// Store-level errors surfaced unchanged so callers can match either name.
	ErrCartNotActive           = db.ErrCartNotActive
	ErrInsufficientStock       = db.ErrInsufficientStock
	ErrInvalidStatusTransition = db.ErrInvalidStatusTransition
)
