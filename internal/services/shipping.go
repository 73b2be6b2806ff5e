package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storekit/storefront/internal/email"
	"github.com/storekit/storefront/internal/logging"
	"github.com/storekit/storefront/internal/models"
	"github.com/storekit/storefront/internal/observability"
)

type fulfillmentStore interface {
	GetByNumber(ctx context.Context, tenantID uuid.UUID, orderNumber string) (*models.Order, error)
	UpdateFulfillmentStatus(ctx context.Context, tenantID, orderID uuid.UUID, status models.OrderStatus) error
}

// ShipmentUpdate is the subset of a Shiprocket status push the storefront
// reads. OrderID is the channel order id, which is our order number.
type ShipmentUpdate struct {
	AWB           string `json:"awb"`
	OrderID       string `json:"order_id"`
	CurrentStatus string `json:"current_status"`
	Courier       string `json:"courier_name"`
}

// MapShipmentStatus translates a courier status into an order status. The
// second result is false for statuses that leave the order unchanged.
func MapShipmentStatus(status string) (models.OrderStatus, bool) {
	normalized := normalizeShipmentStatus(status)
	switch {
	case normalized == "delivered":
		return models.StatusDelivered, true
	case normalized == "out_for_delivery", normalized == "in_transit":
		return models.StatusShipped, true
	case normalized == "rto", strings.HasPrefix(normalized, "rto_"):
		return models.StatusCancelled, true
	default:
		return "", false
	}
}

func normalizeShipmentStatus(status string) string {
	normalized := strings.ToLower(strings.TrimSpace(status))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
}

type tenantLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// ShippingService applies courier status pushes to orders. Every accepted
// push is stored once per shipment and status; pushes that fail to apply are
// kept for the retry worker.
type ShippingService struct {
	orders   fulfillmentStore
	webhooks webhookStore
	tenants  tenantLoader
	notifier orderNotifier
	policy   RetryPolicy
	now      func() time.Time
	logger   *slog.Logger
}

func NewShippingService(orders fulfillmentStore, webhooks webhookStore, tenants tenantLoader, notifier orderNotifier, policy RetryPolicy, logger *slog.Logger) *ShippingService {
	return &ShippingService{
		orders:   orders,
		webhooks: webhooks,
		tenants:  tenants,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *ShippingService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// Apply authenticates token against the tenant's Shiprocket token, records
// the push and moves the order to the mapped status. Delivered and cancelled
// orders stay put. A push repeating a stored shipment status is skipped.
func (s *ShippingService) Apply(ctx context.Context, tenant *models.Tenant, token string, update ShipmentUpdate) (models.WebhookStatus, error) {
	span := sentry.StartSpan(
		ctx,
		"service.shipping.apply",
		sentry.WithOpName("service.shipping"),
		sentry.WithDescription("Apply"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("provider", models.WebhookProviderShiprocket))
	meter.Count("webhook.event.received", 1)

	if tenant.ShiprocketToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(tenant.ShiprocketToken)) != 1 {
		meter.Count("webhook.event.rejected", 1)
		return "", ErrInvalidWebhookToken
	}

	payload, err := json.Marshal(update)
	if err != nil {
		return "", fmt.Errorf("failed to encode shipment update: %w", err)
	}
	record := &models.WebhookEvent{
		TenantID:  tenant.ID,
		Provider:  models.WebhookProviderShiprocket,
		EventID:   shipmentEventID(update, payload),
		EventType: normalizeShipmentStatus(update.CurrentStatus),
		Payload:   payload,
		Status:    models.WebhookReceived,
	}
	inserted, err := s.webhooks.Record(ctx, record)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return "", fmt.Errorf("failed to record shipment update: %w", err)
	}
	if !inserted {
		meter.Count("webhook.event.duplicate", 1)
		return models.WebhookSkipped, nil
	}

	status, applyErr := s.apply(ctx, tenant, update)
	if applyErr != nil {
		span.Status = sentry.SpanStatusInternalError
		logger.Error("shipment update failed, scheduling retry", "error", applyErr, "awb", update.AWB, "event_id", record.EventID)
		meter.Count("webhook.event.retry_scheduled", 1)
		if err := s.webhooks.ScheduleRetry(ctx, record.ID, 1, s.now().Add(s.policy.Delay(1)), applyErr.Error()); err != nil {
			logger.Error("failed to schedule shipment retry", "error", err, "event_id", record.EventID)
		}
		return models.WebhookRetryPending, nil
	}

	if err := s.webhooks.SetStatus(ctx, record.ID, status, ""); err != nil {
		logger.Warn("failed to update webhook status", "error", err, "event_id", record.EventID)
	}
	meter.Count("webhook.event.processed", 1, sentry.WithAttributes(attribute.String("status", string(status))))
	return status, nil
}

// Reprocess applies a stored push again for the retry worker.
func (s *ShippingService) Reprocess(ctx context.Context, stored *models.WebhookEvent) (models.WebhookStatus, error) {
	var update ShipmentUpdate
	if err := json.Unmarshal(stored.Payload, &update); err != nil {
		return models.WebhookIgnored, nil
	}
	tenant, err := s.tenants.GetByID(ctx, stored.TenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.WebhookIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load store: %w", err)
	}
	return s.apply(ctx, tenant, update)
}

// apply returns an error only for conditions worth retrying.
func (s *ShippingService) apply(ctx context.Context, tenant *models.Tenant, update ShipmentUpdate) (models.WebhookStatus, error) {
	logger := s.loggerFromContext(ctx)

	target, ok := MapShipmentStatus(update.CurrentStatus)
	if !ok {
		logger.Info("ignoring shipment status", "status", update.CurrentStatus, "order_number", update.OrderID)
		return models.WebhookIgnored, nil
	}

	order, err := s.orders.GetByNumber(ctx, tenant.ID, strings.TrimSpace(update.OrderID))
	if errors.Is(err, pgx.ErrNoRows) {
		logger.Info("shipment update for unknown order", "order_number", update.OrderID, "awb", update.AWB)
		return models.WebhookIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load order: %w", err)
	}
	if order.Status == target {
		return models.WebhookSkipped, nil
	}

	err = s.orders.UpdateFulfillmentStatus(ctx, tenant.ID, order.ID, target)
	if errors.Is(err, ErrInvalidStatusTransition) {
		logger.Info("shipment update for closed order", "order_number", order.OrderNumber, "status", order.Status, "target", target)
		return models.WebhookSkipped, nil
	}
	if err != nil {
		return "", err
	}

	observability.MeterFromContext(ctx).Count("fulfillment.status.updated", 1, sentry.WithAttributes(attribute.String("status", string(target))))
	logger.Info("order fulfillment updated", "order_number", order.OrderNumber, "from", order.Status, "to", target, "awb", update.AWB)

	order.Status = target
	if kind, ok := fulfillmentEmail(target); ok {
		if err := s.notifier.Notify(ctx, tenant, order, kind); err != nil {
			logger.Warn("failed to send fulfillment email", "error", err, "order_number", order.OrderNumber)
		}
	}
	return models.WebhookProcessed, nil
}

// shipmentEventID keys a push by shipment and status. Pushes carrying
// neither an AWB nor an order reference fall back to a hash of the payload.
func shipmentEventID(update ShipmentUpdate, payload []byte) string {
	ref := strings.TrimSpace(update.AWB)
	if ref == "" {
		ref = strings.TrimSpace(update.OrderID)
	}
	if ref == "" {
		sum := sha256.Sum256(payload)
		return hex.EncodeToString(sum[:])
	}
	return ref + ":" + normalizeShipmentStatus(update.CurrentStatus)
}

func fulfillmentEmail(status models.OrderStatus) (email.Kind, bool) {
	switch status {
	case models.StatusShipped:
		return email.KindOrderShipped, true
	case models.StatusDelivered:
		return email.KindOrderDelivered, true
	default:
		return "", false
	}
}
