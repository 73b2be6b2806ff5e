package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sethvargo/go-retry"

	"github.com/storekit/storefront/internal/cache"
	"github.com/storekit/storefront/internal/logging"
	"github.com/storekit/storefront/internal/models"
	"github.com/storekit/storefront/internal/observability"
	"github.com/storekit/storefront/internal/razorpay"
)

const maxRetryDelay = time.Hour

type webhookStore interface {
	Record(ctx context.Context, event *models.WebhookEvent) (bool, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.WebhookStatus, lastError string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]models.WebhookEvent, error)
}

// storedReplayer reapplies a stored delivery from another provider.
type storedReplayer interface {
	Reprocess(ctx context.Context, stored *models.WebhookEvent) (models.WebhookStatus, error)
}

type reconcileOrderStore interface {
	GetByRazorpayOrderID(ctx context.Context, tenantID uuid.UUID, razorpayOrderID string) (*models.Order, error)
	GetByRazorpayPaymentID(ctx context.Context, tenantID uuid.UUID, razorpayPaymentID string) (*models.Order, error)
	MarkPaid(ctx context.Context, tenantID, orderID uuid.UUID, razorpayOrderID, razorpayPaymentID string) error
	MarkPaymentFailed(ctx context.Context, tenantID, orderID uuid.UUID, razorpayOrderID string) error
	RecordRefund(ctx context.Context, refund *models.Refund) (bool, error)
}

// RetryPolicy bounds reprocessing of deliveries that failed with a transient
// error.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Delay returns how long to wait before the given attempt (1-based):
// BaseDelay doubled per attempt, capped at one hour.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 30 * time.Second
	}
	backoff := retry.WithCappedDuration(maxRetryDelay, retry.NewExponential(base))
	delay := base
	for i := 0; i < attempt; i++ {
		next, stop := backoff.Next()
		if stop {
			break
		}
		delay = next
	}
	return delay
}

// Reconciler applies signed Razorpay webhook events to orders. Every
// delivery is stored; deliveries whose processing fails are kept for retry.
// ProcessDue also drains stored Shiprocket pushes through shipments.
type Reconciler struct {
	orders    reconcileOrderStore
	webhooks  webhookStore
	shipments storedReplayer
	cache     cache.Provider
	policy    RetryPolicy
	now       func() time.Time
	logger    *slog.Logger
}

func NewReconciler(orders reconcileOrderStore, webhooks webhookStore, shipments storedReplayer, cacheProvider cache.Provider, policy RetryPolicy, logger *slog.Logger) *Reconciler {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 8
	}
	return &Reconciler{
		orders:    orders,
		webhooks:  webhooks,
		shipments: shipments,
		cache:     cacheProvider,
		policy:    policy,
		now:       time.Now,
		logger:    logger,
	}
}

func (r *Reconciler) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, r.logger)
}

// HandleRazorpay verifies and applies one webhook delivery. It returns
// ErrInvalidSignature before looking at the body when the signature does not
// match. Processing errors do not surface: the delivery is stored as
// retry_pending and acknowledged.
func (r *Reconciler) HandleRazorpay(ctx context.Context, tenant *models.Tenant, eventID string, body []byte, signature string) (models.WebhookStatus, error) {
	span := sentry.StartSpan(
		ctx,
		"service.reconciler.handle_razorpay",
		sentry.WithOpName("service.reconciler"),
		sentry.WithDescription("HandleRazorpay"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := r.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("provider", models.WebhookProviderRazorpay))
	meter.Count("webhook.event.received", 1)

	if tenant.RazorpayWebhookSecret == "" {
		return "", ErrGatewayNotConfigured
	}
	if !razorpay.VerifyWebhookSignature(body, signature, tenant.RazorpayWebhookSecret) {
		meter.Count("webhook.event.rejected", 1)
		logger.Warn("razorpay webhook signature mismatch", "tenant_id", tenant.ID)
		return "", ErrInvalidSignature
	}

	if eventID == "" {
		sum := sha256.Sum256(body)
		eventID = hex.EncodeToString(sum[:])
	}
	var event razorpay.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Event == "" {
		// Signed by Razorpay, so acknowledge it rather than have it redelivered.
		logger.Warn("unreadable razorpay webhook", "event_id", eventID)
		meter.Count("webhook.event.unreadable", 1)
		return r.recordUnreadable(ctx, tenant.ID, eventID, body)
	}

	dedupeKey := cache.WebhookKey(models.WebhookProviderRazorpay, eventID)
	if r.cache != nil {
		added, err := r.cache.Add(ctx, dedupeKey, []byte(event.Event), cache.WebhookTTL)
		if err != nil {
			logger.Warn("webhook dedupe cache unavailable", "error", err)
		} else if !added {
			meter.Count("webhook.event.duplicate", 1)
			return models.WebhookSkipped, nil
		}
	}

	record := &models.WebhookEvent{
		TenantID:  tenant.ID,
		Provider:  models.WebhookProviderRazorpay,
		EventID:   eventID,
		EventType: event.Event,
		Payload:   body,
		Status:    models.WebhookReceived,
	}
	inserted, err := r.webhooks.Record(ctx, record)
	if err != nil {
		r.forget(ctx, dedupeKey)
		span.Status = sentry.SpanStatusInternalError
		return "", fmt.Errorf("failed to record webhook: %w", err)
	}
	if !inserted {
		meter.Count("webhook.event.duplicate", 1)
		return models.WebhookSkipped, nil
	}

	status, procErr := r.apply(ctx, tenant.ID, &event)
	if procErr != nil {
		logger.Error("webhook processing failed, scheduling retry", "error", procErr, "event", event.Event, "event_id", eventID)
		meter.Count("webhook.event.retry_scheduled", 1)
		if err := r.webhooks.ScheduleRetry(ctx, record.ID, 1, r.now().Add(r.policy.Delay(1)), procErr.Error()); err != nil {
			logger.Error("failed to schedule webhook retry", "error", err, "event_id", eventID)
		}
		return models.WebhookRetryPending, nil
	}

	if err := r.webhooks.SetStatus(ctx, record.ID, status, ""); err != nil {
		logger.Warn("failed to update webhook status", "error", err, "event_id", eventID)
	}
	meter.Count("webhook.event.processed", 1, sentry.WithAttributes(attribute.String("status", string(status))))
	logger.Info("razorpay webhook handled", "event", event.Event, "event_id", eventID, "status", status)
	return status, nil
}

// ProcessDue reprocesses up to limit deliveries whose retry time has passed
// and returns how many it claimed.
func (r *Reconciler) ProcessDue(ctx context.Context, limit int, lease time.Duration) (int, error) {
	events, err := r.webhooks.ClaimDue(ctx, limit, lease)
	if err != nil {
		return 0, err
	}

	logger := r.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	for i := range events {
		stored := &events[i]
		status, procErr := r.reprocess(ctx, stored)
		if procErr == nil {
			if err := r.webhooks.SetStatus(ctx, stored.ID, status, ""); err != nil {
				logger.Warn("failed to update webhook status", "error", err, "event_id", stored.EventID)
			}
			meter.Count("webhook.retry.succeeded", 1)
			continue
		}

		attempts := stored.Attempts + 1
		if attempts >= r.policy.MaxAttempts {
			logger.Error("webhook retries exhausted", "error", procErr, "event_id", stored.EventID, "attempts", attempts)
			meter.Count("webhook.retry.exhausted", 1)
			if err := r.webhooks.SetStatus(ctx, stored.ID, models.WebhookFailed, procErr.Error()); err != nil {
				logger.Warn("failed to mark webhook failed", "error", err, "event_id", stored.EventID)
			}
			continue
		}

		meter.Count("webhook.retry.rescheduled", 1)
		if err := r.webhooks.ScheduleRetry(ctx, stored.ID, attempts, r.now().Add(r.policy.Delay(attempts)), procErr.Error()); err != nil {
			logger.Warn("failed to reschedule webhook", "error", err, "event_id", stored.EventID)
		}
	}
	return len(events), nil
}

func (r *Reconciler) reprocess(ctx context.Context, stored *models.WebhookEvent) (models.WebhookStatus, error) {
	switch stored.Provider {
	case models.WebhookProviderRazorpay:
	case models.WebhookProviderShiprocket:
		if r.shipments == nil {
			return models.WebhookIgnored, nil
		}
		return r.shipments.Reprocess(ctx, stored)
	default:
		return models.WebhookIgnored, nil
	}
	var event razorpay.WebhookEvent
	if err := json.Unmarshal(stored.Payload, &event); err != nil {
		return models.WebhookIgnored, nil
	}
	return r.apply(ctx, stored.TenantID, &event)
}

// apply returns an error only for conditions worth retrying. Events that
// refer to unknown orders or repeat an outcome already recorded are settled
// without one.
func (r *Reconciler) apply(ctx context.Context, tenantID uuid.UUID, event *razorpay.WebhookEvent) (models.WebhookStatus, error) {
	switch event.Event {
	case razorpay.EventPaymentCaptured, razorpay.EventOrderPaid:
		return r.applyPaid(ctx, tenantID, event)
	case razorpay.EventPaymentFailed:
		return r.applyFailed(ctx, tenantID, event)
	case razorpay.EventRefundCreated, razorpay.EventRefundProcessed:
		return r.applyRefund(ctx, tenantID, event)
	default:
		r.loggerFromContext(ctx).Info("ignoring razorpay event", "event", event.Event)
		return models.WebhookIgnored, nil
	}
}

func (r *Reconciler) applyPaid(ctx context.Context, tenantID uuid.UUID, event *razorpay.WebhookEvent) (models.WebhookStatus, error) {
	order, status, err := r.orderByRemoteID(ctx, tenantID, event.RemoteOrderID())
	if order == nil {
		return status, err
	}
	if order.IsPaid() {
		return models.WebhookSkipped, nil
	}

	err = r.orders.MarkPaid(ctx, tenantID, order.ID, event.RemoteOrderID(), event.PaymentID())
	if errors.Is(err, ErrInvalidStatusTransition) {
		return models.WebhookSkipped, nil
	}
	if err != nil {
		return "", err
	}
	return models.WebhookProcessed, nil
}

func (r *Reconciler) applyFailed(ctx context.Context, tenantID uuid.UUID, event *razorpay.WebhookEvent) (models.WebhookStatus, error) {
	remoteOrderID := event.RemoteOrderID()
	order, status, err := r.orderByRemoteID(ctx, tenantID, remoteOrderID)
	if order == nil {
		return status, err
	}
	if remoteOrderID != order.RazorpayOrderID {
		// The shopper already started a newer attempt; its outcome decides.
		r.loggerFromContext(ctx).Info("payment failure for superseded attempt",
			"order_number", order.OrderNumber, "razorpay_order_id", remoteOrderID)
		return models.WebhookSkipped, nil
	}

	err = r.orders.MarkPaymentFailed(ctx, tenantID, order.ID, remoteOrderID)
	if errors.Is(err, ErrInvalidStatusTransition) {
		return models.WebhookSkipped, nil
	}
	if err != nil {
		return "", err
	}
	return models.WebhookProcessed, nil
}

func (r *Reconciler) applyRefund(ctx context.Context, tenantID uuid.UUID, event *razorpay.WebhookEvent) (models.WebhookStatus, error) {
	if event.Payload.Refund == nil || event.Payload.Refund.Entity.ID == "" {
		r.loggerFromContext(ctx).Warn("refund event without refund entity", "event", event.Event)
		return models.WebhookIgnored, nil
	}
	entity := event.Payload.Refund.Entity

	order, err := r.orders.GetByRazorpayPaymentID(ctx, tenantID, entity.PaymentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.WebhookIgnored, nil
	}
	if err != nil {
		return "", err
	}

	inserted, err := r.orders.RecordRefund(ctx, &models.Refund{
		TenantID:          tenantID,
		OrderID:           order.ID,
		RazorpayRefundID:  entity.ID,
		RazorpayPaymentID: entity.PaymentID,
		AmountPaise:       entity.Amount,
		Status:            entity.Status,
	})
	if err != nil {
		return "", err
	}
	if !inserted {
		return models.WebhookSkipped, nil
	}
	return models.WebhookProcessed, nil
}

func (r *Reconciler) orderByRemoteID(ctx context.Context, tenantID uuid.UUID, remoteOrderID string) (*models.Order, models.WebhookStatus, error) {
	if remoteOrderID == "" {
		return nil, models.WebhookIgnored, nil
	}
	order, err := r.orders.GetByRazorpayOrderID(ctx, tenantID, remoteOrderID)
	if errors.Is(err, pgx.ErrNoRows) {
		r.loggerFromContext(ctx).Info("webhook for unknown razorpay order", "razorpay_order_id", remoteOrderID)
		return nil, models.WebhookIgnored, nil
	}
	if err != nil {
		return nil, "", err
	}
	return order, "", nil
}

// recordUnreadable stores a signed delivery that is not an event envelope as
// ignored. The payload column holds JSON, so a body that is not JSON is kept
// as a JSON string.
func (r *Reconciler) recordUnreadable(ctx context.Context, tenantID uuid.UUID, eventID string, body []byte) (models.WebhookStatus, error) {
	payload := json.RawMessage(body)
	if !json.Valid(body) {
		quoted, err := json.Marshal(string(body))
		if err != nil {
			return "", fmt.Errorf("failed to encode webhook body: %w", err)
		}
		payload = quoted
	}
	record := &models.WebhookEvent{
		TenantID:  tenantID,
		Provider:  models.WebhookProviderRazorpay,
		EventID:   eventID,
		EventType: "unreadable",
		Payload:   payload,
		Status:    models.WebhookIgnored,
	}
	inserted, err := r.webhooks.Record(ctx, record)
	if err != nil {
		return "", fmt.Errorf("failed to record webhook: %w", err)
	}
	if !inserted {
		return models.WebhookSkipped, nil
	}
	return models.WebhookIgnored, nil
}

func (r *Reconciler) forget(ctx context.Context, key string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, key); err != nil {
		r.loggerFromContext(ctx).Warn("failed to clear webhook dedupe key", "error", err)
	}
}
