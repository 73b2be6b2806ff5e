package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/storekit/storefront/internal/db"
	"github.com/storekit/storefront/internal/email"
	"github.com/storekit/storefront/internal/logging"
	"github.com/storekit/storefront/internal/models"
	"github.com/storekit/storefront/internal/observability"
)

const orderNumberAttempts = 3

type cartReader interface {
	Get(ctx context.Context, tenantID, cartID uuid.UUID) (*models.Cart, error)
}

type orderPlacer interface {
	PlaceOrder(ctx context.Context, order *models.Order) error
}

type remoteOrderCreator interface {
	CreateRemoteOrder(ctx context.Context, tenant *models.Tenant, orderID uuid.UUID) (*RemoteOrder, error)
}

type orderNotifier interface {
	Notify(ctx context.Context, tenant *models.Tenant, order *models.Order, kind email.Kind) error
}

type CheckoutInput struct {
	CustomerName    string                 `json:"customer_name" validate:"required,max=120"`
	CustomerPhone   string                 `json:"customer_phone" validate:"required,numeric,min=10,max=13"`
	CustomerEmail   string                 `json:"customer_email" validate:"omitempty,email,max=254"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	PaymentMethod   models.PaymentMethod   `json:"payment_method" validate:"required,oneof=cod razorpay"`
}

// trimmed returns input with surrounding whitespace removed from every text
// field, so blank values fail required checks.
func (in CheckoutInput) trimmed() CheckoutInput {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	in.PaymentMethod = models.PaymentMethod(strings.TrimSpace(string(in.PaymentMethod)))
	addr := &in.ShippingAddress
	addr.Line1 = strings.TrimSpace(addr.Line1)
	addr.Line2 = strings.TrimSpace(addr.Line2)
	addr.City = strings.TrimSpace(addr.City)
	addr.State = strings.TrimSpace(addr.State)
	addr.Pincode = strings.TrimSpace(addr.Pincode)
	return in
}

// CheckoutResult is the placed order plus, for online payment, the remote
// order to open the payment widget with. PaymentRetryRequired is set when the
// order was placed but the gateway could not be reached.
type CheckoutResult struct {
	Order                *models.Order `json:"order"`
	Payment              *RemoteOrder  `json:"payment,omitempty"`
	PaymentRetryRequired bool          `json:"payment_retry_required"`
}

// CheckoutService turns an active cart into an order.
type CheckoutService struct {
	carts          cartReader
	orders         orderPlacer
	payments       remoteOrderCreator
	notifier       orderNotifier
	validate       *validator.Validate
	newOrderNumber func() string
	logger         *slog.Logger
}

func NewCheckoutService(carts cartReader, orders orderPlacer, payments remoteOrderCreator, notifier orderNotifier, logger *slog.Logger) *CheckoutService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &CheckoutService{
		carts:    carts,
		orders:   orders,
		payments: payments,
		notifier: notifier,
		validate: validate,
		newOrderNumber: func() string {
			return NewOrderNumber(time.Now())
		},
		logger: logger,
	}
}

func (s *CheckoutService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// Submit validates input, places the order in one transaction and, for
// online payment, opens the remote order. Nothing is written when validation
// fails. A gateway failure after the order is placed leaves it unpaid and sets
// PaymentRetryRequired.
func (s *CheckoutService) Submit(ctx context.Context, tenant *models.Tenant, cartID uuid.UUID, input CheckoutInput) (*CheckoutResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.submit",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("Submit"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	input = input.trimmed()
	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("payment_method", string(input.PaymentMethod)))
	recordFailure := func(reason string) {
		meter.Count("checkout.submit.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	meter.Count("checkout.submit.received", 1)

	if err := s.validateInput(input); err != nil {
		recordFailure("invalid_input")
		return nil, err
	}
	if input.PaymentMethod == models.PaymentMethodRazorpay && !tenant.HasRazorpay() {
		recordFailure("gateway_not_configured")
		return nil, ErrGatewayNotConfigured
	}

	cart, err := s.checkoutCart(ctx, tenant.ID, cartID)
	if err != nil {
		recordFailure("cart")
		return nil, err
	}

	order := newOrderFromCart(tenant.ID, cart, input)
	if err := s.place(ctx, order); err != nil {
		switch {
		case errors.Is(err, ErrInsufficientStock):
			recordFailure("insufficient_stock")
		case errors.Is(err, ErrCartNotActive):
			recordFailure("cart_not_active")
		default:
			recordFailure("store")
			span.Status = sentry.SpanStatusInternalError
		}
		return nil, err
	}

	meter.Count("checkout.order.placed", 1)
	logger.Info("order placed",
		"tenant_id", tenant.ID,
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"payment_method", order.PaymentMethod,
		"total_paise", order.TotalPaise)

	if err := s.notifier.Notify(ctx, tenant, order, email.KindOrderPlaced); err != nil {
		logger.Warn("failed to send order confirmation", "error", err, "order_number", order.OrderNumber)
	}

	result := &CheckoutResult{Order: order}
	if order.PaymentMethod != models.PaymentMethodRazorpay {
		return result, nil
	}

	remote, err := s.payments.CreateRemoteOrder(ctx, tenant, order.ID)
	if err != nil {
		logger.Warn("order placed but payment could not be initiated", "error", err, "order_number", order.OrderNumber)
		result.PaymentRetryRequired = true
		return result, nil
	}
	result.Payment = remote
	return result, nil
}

func (s *CheckoutService) validateInput(input CheckoutInput) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrInvalidCheckout, err)
	}
	reasons := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		reasons = append(reasons, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidCheckout, strings.Join(reasons, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "CheckoutInput.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "numeric":
		return field + " must contain only digits"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "len":
		return field + " must be " + fe.Param() + " characters"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	default:
		return field + " is invalid"
	}
}

func (s *CheckoutService) checkoutCart(ctx context.Context, tenantID, cartID uuid.UUID) (*models.Cart, error) {
	if cartID == uuid.Nil {
		return nil, ErrCartEmpty
	}
	cart, err := s.carts.Get(ctx, tenantID, cartID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil, ErrCartEmpty
		}
		return nil, err
	}
	if !cart.IsActive() {
		return nil, ErrCartNotActive
	}
	if len(cart.Items) == 0 {
		return nil, ErrCartEmpty
	}
	return cart, nil
}

// place inserts the order, drawing a fresh order number whenever the
// previous one collides.
func (s *CheckoutService) place(ctx context.Context, order *models.Order) error {
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		order.OrderNumber = s.newOrderNumber()
		err := s.orders.PlaceOrder(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, db.ErrOrderNumberTaken) {
			return err
		}
		s.loggerFromContext(ctx).Warn("order number collision", "order_number", order.OrderNumber, "attempt", attempt)
	}
	return ErrOrderNumberExhausted
}

func newOrderFromCart(tenantID uuid.UUID, cart *models.Cart, input CheckoutInput) *models.Order {
	items := make([]models.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, models.OrderItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Qty:            item.Qty,
			UnitPricePaise: item.UnitPricePaise,
			LineTotalPaise: item.UnitPricePaise * int64(item.Qty),
		})
	}

	subtotal := cart.SubtotalPaise()
	return &models.Order{
		TenantID:        tenantID,
		CartID:          cart.ID,
		CustomerName:    input.CustomerName,
		CustomerPhone:   input.CustomerPhone,
		CustomerEmail:   input.CustomerEmail,
		ShippingAddress: input.ShippingAddress,
		SubtotalPaise:   subtotal,
		TotalPaise:      subtotal,
		PaymentMethod:   input.PaymentMethod,
		Status:          models.StatusPending,
		PaymentStatus:   models.PaymentUnpaid,
		Items:           items,
	}
}

const orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewOrderNumber returns a human-readable order number such as
// ORD-M3X9K2A1-7QF4: a base36 millisecond timestamp and four random
// characters. Uniqueness is enforced by the database.
func NewOrderNumber(now time.Time) string {
	var suffix [4]byte
	for i := range suffix {
		suffix[i] = orderNumberAlphabet[rand.IntN(len(orderNumberAlphabet))]
	}
	return "ORD-" + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)) + "-" + string(suffix[:])
}
