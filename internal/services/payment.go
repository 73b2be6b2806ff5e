package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storekit/storefront/internal/logging"
	"github.com/storekit/storefront/internal/models"
	"github.com/storekit/storefront/internal/observability"
	"github.com/storekit/storefront/internal/razorpay"
)

const defaultCurrency = "INR"

type paymentOrderStore interface {
	GetByID(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	GetByRazorpayOrderID(ctx context.Context, tenantID uuid.UUID, razorpayOrderID string) (*models.Order, error)
	AttachRazorpayOrder(ctx context.Context, intent *models.PaymentIntent) error
	MarkPaid(ctx context.Context, tenantID, orderID uuid.UUID, razorpayOrderID, razorpayPaymentID string) error
	MarkPaymentFailed(ctx context.Context, tenantID, orderID uuid.UUID, razorpayOrderID string) error
}

type gatewayClient interface {
	CreateOrder(ctx context.Context, creds razorpay.Credentials, req razorpay.CreateOrderRequest) (*razorpay.Order, error)
}

// PaymentService drives the online payment of an order through Razorpay.
type PaymentService struct {
	orders  paymentOrderStore
	gateway gatewayClient
	logger  *slog.Logger
}

func NewPaymentService(orders paymentOrderStore, gateway gatewayClient, logger *slog.Logger) *PaymentService {
	return &PaymentService{orders: orders, gateway: gateway, logger: logger}
}

func (s *PaymentService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// RemoteOrder is what the checkout widget needs to collect a payment.
type RemoteOrder struct {
	KeyID           string    `json:"key_id"`
	RazorpayOrderID string    `json:"razorpay_order_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	OrderID         uuid.UUID `json:"order_id"`
	OrderNumber     string    `json:"order_number"`
}

// CreateRemoteOrder opens a Razorpay order for the full order total. It may
// be called again for an order whose previous attempt failed.
func (s *PaymentService) CreateRemoteOrder(ctx context.Context, tenant *models.Tenant, orderID uuid.UUID) (*RemoteOrder, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.create_remote_order",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("CreateRemoteOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) {
		meter.Count("payment.remote_order.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}

	if !tenant.HasRazorpay() {
		recordFailure("not_configured")
		return nil, ErrGatewayNotConfigured
	}

	order, err := s.loadOrder(ctx, tenant.ID, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != models.PaymentMethodRazorpay {
		return nil, ErrNotOnlinePayment
	}
	if order.IsPaid() {
		return nil, ErrAlreadyPaid
	}

	currency := tenant.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	remote, err := s.gateway.CreateOrder(ctx, razorpay.Credentials{
		KeyID:     tenant.RazorpayKeyID,
		KeySecret: tenant.RazorpayKeySecret,
	}, razorpay.CreateOrderRequest{
		Amount:   order.TotalPaise,
		Currency: currency,
		Receipt:  order.OrderNumber,
		Notes: map[string]string{
			"order_id":  order.ID.String(),
			"tenant_id": tenant.ID.String(),
		},
	})
	if err != nil {
		recordFailure("gateway")
		span.Status = sentry.SpanStatusUnavailable
		return nil, fmt.Errorf("failed to create razorpay order: %w", err)
	}

	intent := &models.PaymentIntent{
		TenantID:        tenant.ID,
		OrderID:         order.ID,
		AmountPaise:     order.TotalPaise,
		Currency:        currency,
		RazorpayOrderID: remote.ID,
		Status:          models.IntentCreated,
	}
	if err := s.orders.AttachRazorpayOrder(ctx, intent); err != nil {
		if errors.Is(err, ErrInvalidStatusTransition) {
			return nil, ErrAlreadyPaid
		}
		recordFailure("store")
		return nil, err
	}

	meter.Count("payment.remote_order.created", 1)
	s.loggerFromContext(ctx).Info("razorpay order created",
		"tenant_id", tenant.ID,
		"order_number", order.OrderNumber,
		"razorpay_order_id", remote.ID)

	return &RemoteOrder{
		KeyID:           tenant.RazorpayKeyID,
		RazorpayOrderID: remote.ID,
		Amount:          order.TotalPaise,
		Currency:        currency,
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
	}, nil
}

// PaymentConfirmation is the triple the checkout widget returns on success.
type PaymentConfirmation struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	Signature         string `json:"razorpay_signature"`
}

// VerifyPayment checks the widget's signature. The remote order may be any
// attempt opened for this order, not only the latest. A valid signature
// marks the order paid and confirmed; an invalid one marks an unpaid order
// failed and returns ErrInvalidSignature. Verifying an order that is already
// paid changes nothing.
func (s *PaymentService) VerifyPayment(ctx context.Context, tenant *models.Tenant, orderID uuid.UUID, confirmation PaymentConfirmation) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.verify",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("VerifyPayment"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	if tenant.RazorpayKeySecret == "" {
		return nil, ErrGatewayNotConfigured
	}
	order, err := s.loadOrder(ctx, tenant.ID, orderID)
	if err != nil {
		return nil, err
	}

	ownsAttempt, err := s.ownsAttempt(ctx, order, confirmation.RazorpayOrderID)
	if err != nil {
		return nil, err
	}
	valid := ownsAttempt &&
		razorpay.VerifyPaymentSignature(confirmation.RazorpayOrderID, confirmation.RazorpayPaymentID, confirmation.Signature, tenant.RazorpayKeySecret)

	if !valid {
		meter.Count("payment.verify.rejected", 1)
		logger.Warn("payment signature rejected", "tenant_id", tenant.ID, "order_number", order.OrderNumber)
		if !order.IsPaid() {
			if err := s.orders.MarkPaymentFailed(ctx, tenant.ID, order.ID, order.RazorpayOrderID); err != nil && !errors.Is(err, ErrInvalidStatusTransition) {
				return nil, err
			}
		}
		return nil, ErrInvalidSignature
	}

	if order.IsPaid() {
		meter.Count("payment.verify.already_paid", 1)
		return order, nil
	}

	err = s.orders.MarkPaid(ctx, tenant.ID, order.ID, confirmation.RazorpayOrderID, confirmation.RazorpayPaymentID)
	if err != nil && !errors.Is(err, ErrInvalidStatusTransition) {
		return nil, err
	}
	meter.Count("payment.verify.succeeded", 1)
	logger.Info("payment verified", "tenant_id", tenant.ID, "order_number", order.OrderNumber, "razorpay_payment_id", confirmation.RazorpayPaymentID)

	return s.loadOrder(ctx, tenant.ID, order.ID)
}

// CancelPayment records that the shopper dismissed the payment widget. It is
// treated as a failed payment; the order can be retried.
func (s *PaymentService) CancelPayment(ctx context.Context, tenant *models.Tenant, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, tenant.ID, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid() {
		return nil, ErrAlreadyPaid
	}
	if order.PaymentMethod != models.PaymentMethodRazorpay {
		return nil, ErrNotOnlinePayment
	}

	if err := s.orders.MarkPaymentFailed(ctx, tenant.ID, order.ID, order.RazorpayOrderID); err != nil && !errors.Is(err, ErrInvalidStatusTransition) {
		return nil, err
	}
	observability.MeterFromContext(ctx).Count("payment.cancelled", 1)
	return s.loadOrder(ctx, tenant.ID, order.ID)
}

// ownsAttempt reports whether razorpayOrderID was opened for order.
func (s *PaymentService) ownsAttempt(ctx context.Context, order *models.Order, razorpayOrderID string) (bool, error) {
	if razorpayOrderID == "" {
		return false, nil
	}
	owner, err := s.orders.GetByRazorpayOrderID(ctx, order.TenantID, razorpayOrderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load payment attempt: %w", err)
	}
	return owner.ID == order.ID, nil
}

func (s *PaymentService) loadOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, tenantID, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}
