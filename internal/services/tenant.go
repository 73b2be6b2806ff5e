package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storekit/storefront/internal/db"
	"github.com/storekit/storefront/internal/logging"
	"github.com/storekit/storefront/internal/models"
)

type tenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetByOwnerID(ctx context.Context, ownerID string) (*models.Tenant, error)
	UpdateIntegrations(ctx context.Context, tenantID uuid.UUID, settings db.IntegrationSettings) error
}

// TenantService resolves the tenant a request acts on.
type TenantService struct {
	store  tenantStore
	now    func() time.Time
	logger *slog.Logger
}

func NewTenantService(store tenantStore, logger *slog.Logger) *TenantService {
	return &TenantService{store: store, now: time.Now, logger: logger}
}

func (s *TenantService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// ResolveStorefront returns the tenant for a public storefront slug. Suspended
// stores and stores whose trial has ended return ErrStoreUnavailable.
func (s *TenantService) ResolveStorefront(ctx context.Context, slug string) (*models.Tenant, error) {
	span := sentry.StartSpan(
		ctx,
		"service.tenant.resolve_storefront",
		sentry.WithOpName("service.tenant"),
		sentry.WithDescription("ResolveStorefront"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, ErrTenantNotFound
	}

	tenant, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to load store %q: %w", slug, err)
	}
	if !tenant.IsOpen(s.now()) {
		s.loggerFromContext(ctx).Info("storefront closed", "tenant_id", tenant.ID, "status", tenant.Status)
		return nil, ErrStoreUnavailable
	}
	return tenant, nil
}

// ResolveOwner returns the tenant owned by the authenticated user.
func (s *TenantService) ResolveOwner(ctx context.Context, ownerID string) (*models.Tenant, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrTenantNotFound
	}
	tenant, err := s.store.GetByOwnerID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to load owner store: %w", err)
	}
	return tenant, nil
}

// Get loads a tenant by id regardless of its status. Webhooks use it: a
// gateway may still report on orders of a suspended store.
func (s *TenantService) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	tenant, err := s.store.GetByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to load store: %w", err)
	}
	return tenant, nil
}

// IntegrationsInput carries owner-supplied gateway credentials. Empty fields
// keep the stored value.
type IntegrationsInput struct {
	RazorpayKeyID         string `json:"razorpay_key_id"`
	RazorpayKeySecret     string `json:"razorpay_key_secret"`
	RazorpayWebhookSecret string `json:"razorpay_webhook_secret"`
	ShiprocketToken       string `json:"shiprocket_token"`
}

// IntegrationsStatus reports which integrations are configured without
// exposing secrets.
type IntegrationsStatus struct {
	RazorpayKeyID        string `json:"razorpay_key_id"`
	RazorpayConfigured   bool   `json:"razorpay_configured"`
	WebhookConfigured    bool   `json:"razorpay_webhook_configured"`
	ShiprocketConfigured bool   `json:"shiprocket_configured"`
}

func (s *TenantService) UpdateIntegrations(ctx context.Context, tenant *models.Tenant, input IntegrationsInput) (*IntegrationsStatus, error) {
	keyID := strings.TrimSpace(input.RazorpayKeyID)
	if keyID != "" && !strings.HasPrefix(keyID, "rzp_") {
		return nil, fmt.Errorf("%w: razorpay key id must start with rzp_", ErrInvalidSettings)
	}
	if keyID == "" && tenant.RazorpayKeyID == "" && input.RazorpayKeySecret != "" {
		return nil, fmt.Errorf("%w: razorpay key secret requires a key id", ErrInvalidSettings)
	}

	settings := db.IntegrationSettings{
		RazorpayKeyID:         keyID,
		RazorpayKeySecret:     strings.TrimSpace(input.RazorpayKeySecret),
		RazorpayWebhookSecret: strings.TrimSpace(input.RazorpayWebhookSecret),
		ShiprocketToken:       strings.TrimSpace(input.ShiprocketToken),
	}
	if err := s.store.UpdateIntegrations(ctx, tenant.ID, settings); err != nil {
		return nil, fmt.Errorf("failed to update integrations: %w", err)
	}
	s.loggerFromContext(ctx).Info("store integrations updated", "tenant_id", tenant.ID)

	updated, err := s.Get(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}
	return IntegrationsStatusOf(updated), nil
}

func IntegrationsStatusOf(tenant *models.Tenant) *IntegrationsStatus {
	return &IntegrationsStatus{
		RazorpayKeyID:        tenant.RazorpayKeyID,
		RazorpayConfigured:   tenant.HasRazorpay(),
		WebhookConfigured:    tenant.RazorpayWebhookSecret != "",
		ShiprocketConfigured: tenant.ShiprocketToken != "",
	}
}
