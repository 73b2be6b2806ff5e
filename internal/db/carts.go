package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storekit/storefront/internal/models"
)

// ErrLineQtyExceeded means an add would push a cart line past its quantity
// limit.
var ErrLineQtyExceeded = errors.New("cart line quantity limit exceeded")

type CartStore struct {
	pool *pgxpool.Pool
}

func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

func (s *CartStore) Create(ctx context.Context, tenantID uuid.UUID) (*models.Cart, error) {
	cart := &models.Cart{TenantID: tenantID, Status: models.CartStatusActive, Items: []models.CartItem{}}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO carts (tenant_id, status)
		VALUES ($1, 'active')
		RETURNING id, created_at, updated_at`, tenantID,
	).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

// Get returns the cart with its items, or pgx.ErrNoRows when the cart does
// not belong to the tenant.
func (s *CartStore) Get(ctx context.Context, tenantID, cartID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, status, created_at, updated_at
		FROM carts WHERE tenant_id = $1 AND id = $2`, tenantID, cartID,
	).Scan(&cart.ID, &cart.TenantID, &status, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cart.Status = models.CartStatus(status)

	rows, err := s.pool.Query(ctx, `
		SELECT product_id, product_name, qty, unit_price_paise
		FROM cart_items WHERE cart_id = $1
		ORDER BY created_at ASC`, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	cart.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.CartItem, error) {
		var item models.CartItem
		err := row.Scan(&item.ProductID, &item.ProductName, &item.Qty, &item.UnitPricePaise)
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan cart items: %w", err)
	}
	return &cart, nil
}

// AddItem inserts item or adds its quantity to the existing line, in one
// statement under the cart lock. An existing line keeps the name and unit
// price it was first added at. A total above maxQty changes nothing and
// returns ErrLineQtyExceeded.
func (s *CartStore) AddItem(ctx context.Context, cartID uuid.UUID, item models.CartItem, maxQty int) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockActiveCart(ctx, tx, cartID); err != nil {
			return err
		}
		cmdTag, err := tx.Exec(ctx, `
			INSERT INTO cart_items (cart_id, product_id, product_name, qty, unit_price_paise)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (cart_id, product_id) DO UPDATE
			SET qty = cart_items.qty + EXCLUDED.qty
			WHERE cart_items.qty + EXCLUDED.qty <= $6`,
			cartID, item.ProductID, item.ProductName, item.Qty, item.UnitPricePaise, maxQty,
		)
		if err != nil {
			return fmt.Errorf("failed to add cart item: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrLineQtyExceeded
		}
		return nil
	})
}

func (s *CartStore) UpdateItemQty(ctx context.Context, cartID, productID uuid.UUID, qty int) error {
	return s.mutate(ctx, cartID, `
		UPDATE cart_items SET qty = $3
		WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID, qty,
	)
}

func (s *CartStore) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error {
	return s.mutate(ctx, cartID, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
}

func (s *CartStore) Clear(ctx context.Context, cartID uuid.UUID) error {
	return s.mutate(ctx, cartID, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
}

// mutate locks the cart row, requires it to be active, then runs statement.
// Holding the row lock orders item edits against a concurrent checkout.
func (s *CartStore) mutate(ctx context.Context, cartID uuid.UUID, statement string, args ...any) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockActiveCart(ctx, tx, cartID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, statement, args...); err != nil {
			return fmt.Errorf("failed to update cart items: %w", err)
		}
		return nil
	})
}

func lockActiveCart(ctx context.Context, tx pgx.Tx, cartID uuid.UUID) error {
	cmdTag, err := tx.Exec(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1 AND status = 'active'`, cartID)
	if err != nil {
		return fmt.Errorf("failed to touch cart: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCartNotActive
	}
	return nil
}
