package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storekit/storefront/internal/db"
	"github.com/storekit/storefront/internal/logging"
	"github.com/storekit/storefront/internal/models"
	"github.com/storekit/storefront/internal/observability"
)

// maxLineQty bounds a single cart line so totals stay well inside int64.
const maxLineQty = 999

type cartStore interface {
	Create(ctx context.Context, tenantID uuid.UUID) (*models.Cart, error)
	Get(ctx context.Context, tenantID, cartID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, cartID uuid.UUID, item models.CartItem, maxQty int) error
	UpdateItemQty(ctx context.Context, cartID, productID uuid.UUID, qty int) error
	DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error
	Clear(ctx context.Context, cartID uuid.UUID) error
}

type productLookup interface {
	GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (*models.Product, error)
}

type CartService struct {
	carts    cartStore
	products productLookup
	logger   *slog.Logger
}

func NewCartService(carts cartStore, products productLookup, logger *slog.Logger) *CartService {
	return &CartService{carts: carts, products: products, logger: logger}
}

func (s *CartService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *CartService) Get(ctx context.Context, tenantID, cartID uuid.UUID) (*models.Cart, error) {
	if cartID == uuid.Nil {
		return nil, ErrCartNotFound
	}
	cart, err := s.carts.Get(ctx, tenantID, cartID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return cart, nil
}

// Add puts qty of productID into the cart, creating the cart when cartID is
// nil or unknown. A product already in the cart keeps the unit price it was
// first added at.
func (s *CartService) Add(ctx context.Context, tenantID, cartID, productID uuid.UUID, qty int) (*models.Cart, error) {
	span := sentry.StartSpan(
		ctx,
		"service.cart.add",
		sentry.WithOpName("service.cart"),
		sentry.WithDescription("Add"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if qty <= 0 || qty > maxLineQty {
		return nil, ErrInvalidQuantity
	}

	product, err := s.products.GetProduct(ctx, tenantID, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if !product.Active {
		return nil, ErrProductInactive
	}

	cart, err := s.Get(ctx, tenantID, cartID)
	switch {
	case errors.Is(err, ErrCartNotFound):
		cart, err = s.carts.Create(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		s.loggerFromContext(ctx).Debug("cart created", "tenant_id", tenantID, "cart_id", cart.ID)
	case err != nil:
		return nil, err
	}
	if !cart.IsActive() {
		return nil, ErrCartNotActive
	}

	err = s.carts.AddItem(ctx, cart.ID, models.CartItem{
		ProductID:      product.ID,
		ProductName:    product.Name,
		Qty:            qty,
		UnitPricePaise: product.PricePaise,
	}, maxLineQty)
	if err != nil {
		return nil, s.mutationError(err)
	}

	observability.MeterFromContext(ctx).Count("cart.item.added", 1)
	return s.Get(ctx, tenantID, cart.ID)
}

// UpdateQty sets the quantity of a line. A quantity of zero or less removes
// the line.
func (s *CartService) UpdateQty(ctx context.Context, tenantID, cartID, productID uuid.UUID, qty int) (*models.Cart, error) {
	if qty <= 0 {
		return s.Remove(ctx, tenantID, cartID, productID)
	}
	if qty > maxLineQty {
		return nil, ErrInvalidQuantity
	}

	cart, err := s.activeCart(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if _, ok := cart.Item(productID); !ok {
		return nil, ErrCartItemNotFound
	}
	if err := s.carts.UpdateItemQty(ctx, cart.ID, productID, qty); err != nil {
		return nil, s.mutationError(err)
	}
	return s.Get(ctx, tenantID, cart.ID)
}

// Remove deletes a line. Removing a product that is not in the cart is not an
// error.
func (s *CartService) Remove(ctx context.Context, tenantID, cartID, productID uuid.UUID) (*models.Cart, error) {
	cart, err := s.activeCart(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if _, ok := cart.Item(productID); !ok {
		return cart, nil
	}
	if err := s.carts.DeleteItem(ctx, cart.ID, productID); err != nil {
		return nil, s.mutationError(err)
	}
	return s.Get(ctx, tenantID, cart.ID)
}

func (s *CartService) Clear(ctx context.Context, tenantID, cartID uuid.UUID) (*models.Cart, error) {
	cart, err := s.activeCart(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if err := s.carts.Clear(ctx, cart.ID); err != nil {
		return nil, s.mutationError(err)
	}
	return s.Get(ctx, tenantID, cart.ID)
}

func (s *CartService) activeCart(ctx context.Context, tenantID, cartID uuid.UUID) (*models.Cart, error) {
	cart, err := s.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if !cart.IsActive() {
		return nil, ErrCartNotActive
	}
	return cart, nil
}

func (s *CartService) mutationError(err error) error {
	switch {
	case errors.Is(err, ErrCartNotActive):
		return ErrCartNotActive
	case errors.Is(err, db.ErrLineQtyExceeded):
		return ErrInvalidQuantity
	}
	return fmt.Errorf("failed to update cart: %w", err)
}
