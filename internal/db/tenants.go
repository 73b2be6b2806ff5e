package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storekit/storefront/internal/crypto"
	"github.com/storekit/storefront/internal/models"
)

type TenantStore struct {
	pool   *pgxpool.Pool
	crypto crypto.Encryptor
}

func NewTenantStore(pool *pgxpool.Pool, encryptor crypto.Encryptor) (*TenantStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	return &TenantStore{pool: pool, crypto: encryptor}, nil
}

const tenantColumns = `
	id, slug, name, owner_id, status, trial_ends_at, currency, notification_email,
	razorpay_key_id, razorpay_key_secret_enc, razorpay_webhook_secret_enc, shiprocket_token_enc,
	created_at, updated_at`

func (s *TenantStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
}

func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return s.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
}

func (s *TenantStore) GetByOwnerID(ctx context.Context, ownerID string) (*models.Tenant, error) {
	return s.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE owner_id = $1`, ownerID)
}

// IntegrationSettings are the tenant's gateway and shipping credentials. Empty
// fields keep the stored value.
type IntegrationSettings struct {
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	ShiprocketToken       string
}

func (s *TenantStore) UpdateIntegrations(ctx context.Context, tenantID uuid.UUID, settings IntegrationSettings) error {
	scope := tenantID.String()
	keySecret, err := s.sealOptional(scope, settings.RazorpayKeySecret)
	if err != nil {
		return err
	}
	webhookSecret, err := s.sealOptional(scope, settings.RazorpayWebhookSecret)
	if err != nil {
		return err
	}
	shiprocketToken, err := s.sealOptional(scope, settings.ShiprocketToken)
	if err != nil {
		return err
	}

	query := `
		UPDATE tenants
		SET razorpay_key_id = COALESCE(NULLIF($2, ''), razorpay_key_id),
		    razorpay_key_secret_enc = COALESCE(NULLIF($3, ''), razorpay_key_secret_enc),
		    razorpay_webhook_secret_enc = COALESCE(NULLIF($4, ''), razorpay_webhook_secret_enc),
		    shiprocket_token_enc = COALESCE(NULLIF($5, ''), shiprocket_token_enc),
		    updated_at = NOW()
		WHERE id = $1
	`
	cmdTag, err := s.pool.Exec(ctx, query, tenantID, settings.RazorpayKeyID, keySecret, webhookSecret, shiprocketToken)
	if err != nil {
		return fmt.Errorf("failed to update tenant integrations: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *TenantStore) sealOptional(scope, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	sealed, err := s.crypto.Seal(scope, value)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt tenant secret: %w", err)
	}
	return sealed, nil
}

func (s *TenantStore) getOne(ctx context.Context, query string, arg any) (*models.Tenant, error) {
	var tenant models.Tenant
	var status string
	var trialEndsAt *time.Time
	var keySecretEnc, webhookSecretEnc, shiprocketEnc string
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&tenant.ID,
		&tenant.Slug,
		&tenant.Name,
		&tenant.OwnerID,
		&status,
		&trialEndsAt,
		&tenant.Currency,
		&tenant.NotificationEmail,
		&tenant.RazorpayKeyID,
		&keySecretEnc,
		&webhookSecretEnc,
		&shiprocketEnc,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tenant.Status = models.TenantStatus(status)
	if trialEndsAt != nil {
		tenant.TrialEndsAt = *trialEndsAt
	}

	scope := tenant.ID.String()
	if tenant.RazorpayKeySecret, err = crypto.OpenOptional(s.crypto, scope, keySecretEnc); err != nil {
		return nil, fmt.Errorf("failed to decrypt razorpay key secret: %w", err)
	}
	if tenant.RazorpayWebhookSecret, err = crypto.OpenOptional(s.crypto, scope, webhookSecretEnc); err != nil {
		return nil, fmt.Errorf("failed to decrypt razorpay webhook secret: %w", err)
	}
	if tenant.ShiprocketToken, err = crypto.OpenOptional(s.crypto, scope, shiprocketEnc); err != nil {
		return nil, fmt.Errorf("failed to decrypt shiprocket token: %w", err)
	}

	return &tenant, nil
}
