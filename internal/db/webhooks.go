package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storekit/storefront/internal/models"
)

type WebhookStore struct {
	pool *pgxpool.Pool
}

func NewWebhookStore(pool *pgxpool.Pool) *WebhookStore {
	return &WebhookStore{pool: pool}
}

// Record inserts the delivery and reports false when the same event id was
// already stored for the tenant and provider.
func (s *WebhookStore) Record(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO payment_webhooks (tenant_id, provider, event_id, event_type, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, provider, event_id) DO NOTHING
		RETURNING id, created_at, updated_at`,
		event.TenantID, event.Provider, event.EventID, event.EventType, []byte(event.Payload), event.Status,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record webhook: %w", err)
	}
	return true, nil
}

func (s *WebhookStore) SetStatus(ctx context.Context, id uuid.UUID, status models.WebhookStatus, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE payment_webhooks
		SET status = $2, last_error = $3, next_attempt_at = NULL, updated_at = NOW()
		WHERE id = $1`, id, status, lastError)
	if err != nil {
		return fmt.Errorf("failed to update webhook status: %w", err)
	}
	return nil
}

// ScheduleRetry marks the delivery retry_pending with its attempt count and
// the earliest time the retry worker may pick it up.
func (s *WebhookStore) ScheduleRetry(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE payment_webhooks
		SET status = 'retry_pending', attempts = $2, next_attempt_at = $3, last_error = $4, updated_at = NOW()
		WHERE id = $1`, id, attempts, nextAttemptAt, lastError)
	if err != nil {
		return fmt.Errorf("failed to schedule webhook retry: %w", err)
	}
	return nil
}

// ClaimDue returns up to limit retry_pending deliveries whose next attempt
// time has passed and pushes their next_attempt_at forward by lease, so other
// workers skip them while this one processes them.
func (s *WebhookStore) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]models.WebhookEvent, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE payment_webhooks
		SET next_attempt_at = NOW() + $2::interval, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM payment_webhooks
			WHERE status = 'retry_pending' AND next_attempt_at <= NOW()
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, provider, event_id, event_type, payload, status, attempts,
		          last_error, next_attempt_at, created_at, updated_at`, limit, lease)
	if err != nil {
		return nil, fmt.Errorf("failed to claim webhook retries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.WebhookEvent, error) {
		var event models.WebhookEvent
		var status string
		var payload []byte
		err := row.Scan(
			&event.ID,
			&event.TenantID,
			&event.Provider,
			&event.EventID,
			&event.EventType,
			&payload,
			&status,
			&event.Attempts,
			&event.LastError,
			&event.NextAttemptAt,
			&event.CreatedAt,
			&event.UpdatedAt,
		)
		event.Payload = payload
		event.Status = models.WebhookStatus(status)
		return event, err
	})
}
