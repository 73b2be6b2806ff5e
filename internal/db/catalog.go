package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storekit/storefront/internal/models"
)

// Product collections a homepage section can display.
const (
	CollectionFeatured = "featured"
	CollectionNew      = "new"
	CollectionAll      = "all"
)

type CatalogStore struct {
	pool *pgxpool.Pool
}

func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

const productColumns = `id, tenant_id, name, image_url, price_paise, stock, active, featured, brand_id, category_id, created_at`

func (s *CatalogStore) GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (*models.Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id = $1 AND id = $2`, tenantID, productID)
	product, err := scanProduct(row)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *CatalogStore) ListProducts(ctx context.Context, tenantID uuid.UUID, collection string, limit int) ([]models.Product, error) {
	var query string
	switch collection {
	case CollectionFeatured, "":
		query = `SELECT ` + productColumns + ` FROM products
			WHERE tenant_id = $1 AND active AND featured
			ORDER BY created_at DESC LIMIT $2`
	case CollectionNew:
		query = `SELECT ` + productColumns + ` FROM products
			WHERE tenant_id = $1 AND active
			ORDER BY created_at DESC LIMIT $2`
	case CollectionAll:
		query = `SELECT ` + productColumns + ` FROM products
			WHERE tenant_id = $1 AND active
			ORDER BY name ASC LIMIT $2`
	default:
		return nil, fmt.Errorf("unknown product collection %q", collection)
	}

	rows, err := s.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]models.Product, 0, limit)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (s *CatalogStore) ListCategories(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.Category, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, slug, image_url
		FROM categories WHERE tenant_id = $1
		ORDER BY name ASC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Category, error) {
		var c models.Category
		err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Slug, &c.ImageURL)
		return c, err
	})
}

func (s *CatalogStore) ListBrands(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.Brand, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, slug, logo_url
		FROM brands WHERE tenant_id = $1
		ORDER BY name ASC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Brand, error) {
		var b models.Brand
		err := row.Scan(&b.ID, &b.TenantID, &b.Name, &b.Slug, &b.LogoURL)
		return b, err
	})
}

func scanProduct(row pgx.Row) (models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.Name,
		&p.ImageURL,
		&p.PricePaise,
		&p.Stock,
		&p.Active,
		&p.Featured,
		&p.BrandID,
		&p.CategoryID,
		&p.CreatedAt,
	)
	return p, err
}
