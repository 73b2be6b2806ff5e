package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storekit/storefront/internal/models"
)

var (
	ErrOrderNumberTaken  = errors.New("order number already exists")
	ErrCartNotActive     = errors.New("cart is not active")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// StockPolicy decides what an order does to a product with too little stock.
type StockPolicy string

const (
	// StockClamp floors stock at zero and accepts the order.
	StockClamp StockPolicy = "clamp"
	// StockReject aborts the order when any line exceeds available stock.
	StockReject StockPolicy = "reject"
)

type OrderStore struct {
	pool   *pgxpool.Pool
	policy StockPolicy
}

func NewOrderStore(pool *pgxpool.Pool, policy StockPolicy) *OrderStore {
	if policy == "" {
		policy = StockClamp
	}
	return &OrderStore{pool: pool, policy: policy}
}

// PlaceOrder inserts order and its items, decrements stock and converts the
// cart in one transaction. On success order.ID and timestamps are populated.
// A colliding order number returns ErrOrderNumberTaken with nothing written.
func (s *OrderStore) PlaceOrder(ctx context.Context, order *models.Order) error {
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO orders (
				tenant_id, cart_id, order_number, customer_name, customer_phone, customer_email,
				shipping_address, subtotal_paise, total_paise, payment_method, status, payment_status
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, created_at, updated_at`,
			order.TenantID, order.CartID, order.OrderNumber, order.CustomerName, order.CustomerPhone,
			order.CustomerEmail, addressJSON, order.SubtotalPaise, order.TotalPaise,
			order.PaymentMethod, order.Status, order.PaymentStatus,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, "orders_tenant_order_number_key") {
				return ErrOrderNumberTaken
			}
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for _, item := range order.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items (order_id, product_id, product_name, qty, unit_price_paise, line_total_paise)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				order.ID, item.ProductID, item.ProductName, item.Qty, item.UnitPricePaise, item.LineTotalPaise,
			); err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
			if err := s.decrementStock(ctx, tx, order.TenantID, item); err != nil {
				return err
			}
		}

		cmdTag, err := tx.Exec(ctx, `
			UPDATE carts SET status = 'converted', updated_at = NOW()
			WHERE id = $1 AND tenant_id = $2 AND status = 'active'`, order.CartID, order.TenantID)
		if err != nil {
			return fmt.Errorf("failed to convert cart: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrCartNotActive
		}
		return nil
	})
}

// decrementStock is a single-row UPDATE so concurrent orders for the same
// product serialize on the row lock.
func (s *OrderStore) decrementStock(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, item models.OrderItem) error {
	query := `UPDATE products SET stock = GREATEST(stock - $1, 0) WHERE id = $2 AND tenant_id = $3`
	if s.policy == StockReject {
		query = `UPDATE products SET stock = stock - $1 WHERE id = $2 AND tenant_id = $3 AND stock >= $1`
	}

	cmdTag, err := tx.Exec(ctx, query, item.Qty, item.ProductID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		if s.policy == StockReject {
			return fmt.Errorf("%w for %s", ErrInsufficientStock, item.ProductName)
		}
		return fmt.Errorf("product %s no longer exists", item.ProductID)
	}
	return nil
}

const orderColumns = `
	id, tenant_id, cart_id, order_number, customer_name, customer_phone, customer_email,
	shipping_address, subtotal_paise, total_paise, refunded_paise, payment_method, status,
	payment_status, razorpay_order_id, razorpay_payment_id, paid_at, created_at, updated_at`

func (s *OrderStore) GetByID(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	return s.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE tenant_id = $1 AND id = $2`, tenantID, orderID)
}

func (s *OrderStore) GetByNumber(ctx context.Context, tenantID uuid.UUID, orderNumber string) (*models.Order, error) {
	return s.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE tenant_id = $1 AND order_number = $2`, tenantID, orderNumber)
}

// GetByRazorpayOrderID finds the order that owns a payment attempt. Every
// attempt has a payment_intents row, so superseded attempts still resolve
// after the order moved on to a newer remote order.
func (s *OrderStore) GetByRazorpayOrderID(ctx context.Context, tenantID uuid.UUID, razorpayOrderID string) (*models.Order, error) {
	return s.getOne(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE tenant_id = $1 AND id = (
			SELECT order_id FROM payment_intents WHERE tenant_id = $1 AND razorpay_order_id = $2
		)`, tenantID, razorpayOrderID)
}

func (s *OrderStore) GetByRazorpayPaymentID(ctx context.Context, tenantID uuid.UUID, razorpayPaymentID string) (*models.Order, error) {
	return s.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE tenant_id = $1 AND razorpay_payment_id = $2`, tenantID, razorpayPaymentID)
}

// AttachRazorpayOrder records a new remote order for a payment attempt and
// resets a failed payment to unpaid. Paid orders are rejected.
func (s *OrderStore) AttachRazorpayOrder(ctx context.Context, intent *models.PaymentIntent) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx, `
			UPDATE orders
			SET razorpay_order_id = $1, payment_status = 'unpaid', updated_at = NOW()
			WHERE tenant_id = $2 AND id = $3 AND payment_status IN ('unpaid', 'failed')`,
			intent.RazorpayOrderID, intent.TenantID, intent.OrderID)
		if err != nil {
			return fmt.Errorf("failed to attach razorpay order: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: expected unpaid/failed", ErrInvalidStatusTransition)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO payment_intents (tenant_id, order_id, amount_paise, currency, razorpay_order_id, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at`,
			intent.TenantID, intent.OrderID, intent.AmountPaise, intent.Currency, intent.RazorpayOrderID, intent.Status,
		).Scan(&intent.ID, &intent.CreatedAt, &intent.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert payment intent: %w", err)
		}
		return nil
	})
}

// MarkPaid moves an unpaid or failed order to paid and confirms it if it was
// still pending. An already paid order returns ErrInvalidStatusTransition.
func (s *OrderStore) MarkPaid(ctx context.Context, tenantID, orderID uuid.UUID, razorpayOrderID, razorpayPaymentID string) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx, `
			UPDATE orders
			SET payment_status = 'paid',
			    status = CASE WHEN status = 'pending' THEN 'confirmed' ELSE status END,
			    razorpay_payment_id = $1, paid_at = NOW(), updated_at = NOW()
			WHERE tenant_id = $2 AND id = $3 AND payment_status IN ('unpaid', 'failed')`,
			razorpayPaymentID, tenantID, orderID)
		if err != nil {
			return fmt.Errorf("failed to mark order paid: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: expected unpaid/failed", ErrInvalidStatusTransition)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE payment_intents
			SET status = $5, razorpay_payment_id = $1, updated_at = NOW()
			WHERE tenant_id = $2 AND order_id = $3 AND razorpay_order_id = $4`,
			razorpayPaymentID, tenantID, orderID, razorpayOrderID, models.IntentPaid); err != nil {
			return fmt.Errorf("failed to mark payment intent paid: %w", err)
		}
		return nil
	})
}

// MarkPaymentFailed moves an unpaid order to failed without touching its
// fulfillment status.
func (s *OrderStore) MarkPaymentFailed(ctx context.Context, tenantID, orderID uuid.UUID, razorpayOrderID string) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx, `
			UPDATE orders SET payment_status = 'failed', updated_at = NOW()
			WHERE tenant_id = $1 AND id = $2 AND payment_status = 'unpaid'`, tenantID, orderID)
		if err != nil {
			return fmt.Errorf("failed to mark payment failed: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: expected unpaid", ErrInvalidStatusTransition)
		}

		if razorpayOrderID != "" {
			if _, err := tx.Exec(ctx, `
				UPDATE payment_intents SET status = $4, updated_at = NOW()
				WHERE tenant_id = $1 AND order_id = $2 AND razorpay_order_id = $3 AND status <> $5`,
				tenantID, orderID, razorpayOrderID, models.IntentFailed, models.IntentPaid); err != nil {
				return fmt.Errorf("failed to mark payment intent failed: %w", err)
			}
		}
		return nil
	})
}

// UpdateFulfillmentStatus sets the order status unless the order is already
// delivered or cancelled.
func (s *OrderStore) UpdateFulfillmentStatus(ctx context.Context, tenantID, orderID uuid.UUID, status models.OrderStatus) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE tenant_id = $2 AND id = $3 AND status NOT IN ('delivered', 'cancelled')`,
		status, tenantID, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order is delivered or cancelled", ErrInvalidStatusTransition)
	}
	return nil
}

// RecordRefund stores refund and adds its amount to the order's refunded
// total. A refund id seen before only updates the stored status, and the
// returned bool is false.
func (s *OrderStore) RecordRefund(ctx context.Context, refund *models.Refund) (bool, error) {
	var inserted bool
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO refunds (tenant_id, order_id, razorpay_refund_id, razorpay_payment_id, amount_paise, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (razorpay_refund_id) DO UPDATE SET status = EXCLUDED.status
			RETURNING id, created_at, (xmax = 0)`,
			refund.TenantID, refund.OrderID, refund.RazorpayRefundID, refund.RazorpayPaymentID,
			refund.AmountPaise, refund.Status,
		).Scan(&refund.ID, &refund.CreatedAt, &inserted)
		if err != nil {
			return fmt.Errorf("failed to record refund: %w", err)
		}
		if !inserted {
			return nil
		}

		cmdTag, err := tx.Exec(ctx, `
			UPDATE orders SET refunded_paise = refunded_paise + $1, updated_at = NOW()
			WHERE tenant_id = $2 AND id = $3`, refund.AmountPaise, refund.TenantID, refund.OrderID)
		if err != nil {
			return fmt.Errorf("failed to update refunded amount: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *OrderStore) getOne(ctx context.Context, query string, args ...any) (*models.Order, error) {
	var order models.Order
	var addressJSON []byte
	var paymentMethod, status, paymentStatus string
	var paidAt *time.Time

	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&order.ID,
		&order.TenantID,
		&order.CartID,
		&order.OrderNumber,
		&order.CustomerName,
		&order.CustomerPhone,
		&order.CustomerEmail,
		&addressJSON,
		&order.SubtotalPaise,
		&order.TotalPaise,
		&order.RefundedPaise,
		&paymentMethod,
		&status,
		&paymentStatus,
		&order.RazorpayOrderID,
		&order.RazorpayPaymentID,
		&paidAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address: %w", err)
	}
	order.PaymentMethod = models.PaymentMethod(paymentMethod)
	order.Status = models.OrderStatus(status)
	order.PaymentStatus = models.PaymentStatus(paymentStatus)
	if paidAt != nil {
		order.PaidAt = *paidAt
	}

	rows, err := s.pool.Query(ctx, `
		SELECT product_id, product_name, qty, unit_price_paise, line_total_paise
		FROM order_items WHERE order_id = $1
		ORDER BY product_name ASC`, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	order.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OrderItem, error) {
		var item models.OrderItem
		err := row.Scan(&item.ProductID, &item.ProductName, &item.Qty, &item.UnitPricePaise, &item.LineTotalPaise)
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan order items: %w", err)
	}
	return &order, nil
}
