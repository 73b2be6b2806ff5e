package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storekit/storefront/internal/layout"
)

type LayoutStore struct {
	pool *pgxpool.Pool
}

func NewLayoutStore(pool *pgxpool.Pool) *LayoutStore {
	return &LayoutStore{pool: pool}
}

// Get returns pgx.ErrNoRows when the tenant has never saved a layout.
func (s *LayoutStore) Get(ctx context.Context, tenantID uuid.UUID) (layout.Layout, error) {
	var raw []byte
	if err := s.pool.QueryRow(ctx, `SELECT layout FROM homepage_layouts WHERE tenant_id = $1`, tenantID).Scan(&raw); err != nil {
		return layout.Layout{}, err
	}

	var doc layout.Layout
	if err := json.Unmarshal(raw, &doc); err != nil {
		return layout.Layout{}, fmt.Errorf("failed to decode stored layout: %w", err)
	}
	if doc.Sections == nil {
		doc.Sections = []layout.Block{}
	}
	return doc, nil
}

// Upsert replaces the tenant's layout document. Concurrent saves are last
// writer wins.
func (s *LayoutStore) Upsert(ctx context.Context, tenantID uuid.UUID, doc layout.Layout) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO homepage_layouts (tenant_id, layout, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tenant_id) DO UPDATE
		SET layout = EXCLUDED.layout, updated_at = EXCLUDED.updated_at`, tenantID, raw)
	if err != nil {
		return fmt.Errorf("failed to save layout: %w", err)
	}
	return nil
}
