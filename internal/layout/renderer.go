package layout

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/storekit/storefront/internal/logging"
	"github.com/storekit/storefront/internal/models"
	"github.com/storekit/storefront/internal/money"
)

// Catalog supplies the live data that dynamic sections display.
type Catalog interface {
	ListProducts(ctx context.Context, tenantID uuid.UUID, collection string, limit int) ([]models.Product, error)
	ListCategories(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.Category, error)
	ListBrands(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.Brand, error)
}

type Page struct {
	Sections []Section `json:"sections"`
}

type Section struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Order      int               `json:"order"`
	Styles     *Styles           `json:"styles,omitempty"`
	Data       Data              `json:"data"`
	Products   []ProductCard     `json:"products,omitempty"`
	Categories []models.Category `json:"categories,omitempty"`
	Brands     []models.Brand    `json:"brands,omitempty"`
}

type ProductCard struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	ImageURL string    `json:"image_url"`
	Price    string    `json:"price"`
	InStock  bool      `json:"in_stock"`
}

const maxSectionItems = 48

type Renderer struct {
	catalog Catalog
	logger  *slog.Logger
}

func NewRenderer(catalog Catalog, logger *slog.Logger) *Renderer {
	return &Renderer{catalog: catalog, logger: logger}
}

// Render resolves dynamic sections against the catalog. A section whose data
// cannot be loaded renders with no items.
func (r *Renderer) Render(ctx context.Context, tenantID uuid.UUID, l Layout) Page {
	logger := logging.FromContext(ctx, r.logger)
	page := Page{Sections: make([]Section, 0, len(l.Sections))}

	for i, block := range l.Sections {
		section := Section{
			ID:     block.ID,
			Type:   block.Type,
			Order:  i,
			Styles: block.Styles,
			Data:   block.Data,
		}

		switch data := block.Data.(type) {
		case *ProductsData:
			products, err := r.catalog.ListProducts(ctx, tenantID, data.Collection, clampLimit(data.Limit))
			if err != nil {
				logger.Warn("failed to load products section", "error", err, "block_id", block.ID, "collection", data.Collection)
				break
			}
			section.Products = productCards(products)
		case *CategoriesData:
			categories, err := r.catalog.ListCategories(ctx, tenantID, clampLimit(data.Limit))
			if err != nil {
				logger.Warn("failed to load categories section", "error", err, "block_id", block.ID)
				break
			}
			section.Categories = categories
		case *BrandsData:
			brands, err := r.catalog.ListBrands(ctx, tenantID, clampLimit(data.Limit))
			if err != nil {
				logger.Warn("failed to load brands section", "error", err, "block_id", block.ID)
				break
			}
			section.Brands = brands
		}

		page.Sections = append(page.Sections, section)
	}

	return page
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 1
	}
	if limit > maxSectionItems {
		return maxSectionItems
	}
	return limit
}

func productCards(products []models.Product) []ProductCard {
	cards := make([]ProductCard, 0, len(products))
	for _, p := range products {
		cards = append(cards, ProductCard{
			ID:       p.ID,
			Name:     p.Name,
			ImageURL: p.ImageURL,
			Price:    money.Format(p.PricePaise),
			InStock:  p.Stock > 0,
		})
	}
	return cards
}
