package models

import (
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	Name       string     `json:"name"`
	ImageURL   string     `json:"image_url"`
	PricePaise int64      `json:"price_paise"`
	Stock      int        `json:"stock"`
	Active     bool       `json:"active"`
	Featured   bool       `json:"featured"`
	BrandID    *uuid.UUID `json:"brand_id,omitempty"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type Category struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Name     string    `json:"name"`
	Slug     string    `json:"slug"`
	ImageURL string    `json:"image_url"`
}

type Brand struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Name     string    `json:"name"`
	Slug     string    `json:"slug"`
	LogoURL  string    `json:"logo_url"`
}
