package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storekit/storefront/internal/cache"
	"github.com/storekit/storefront/internal/layout"
	"github.com/storekit/storefront/internal/logging"
	"github.com/storekit/storefront/internal/observability"
)

type layoutStore interface {
	Get(ctx context.Context, tenantID uuid.UUID) (layout.Layout, error)
	Upsert(ctx context.Context, tenantID uuid.UUID, doc layout.Layout) error
}

type pageRenderer interface {
	Render(ctx context.Context, tenantID uuid.UUID, l layout.Layout) layout.Page
}

// LayoutService loads and saves a tenant's homepage layout and serves the
// rendered homepage from cache.
type LayoutService struct {
	store    layoutStore
	renderer pageRenderer
	cache    cache.Provider
	logger   *slog.Logger
}

func NewLayoutService(store layoutStore, renderer pageRenderer, cacheProvider cache.Provider, logger *slog.Logger) *LayoutService {
	return &LayoutService{
		store:    store,
		renderer: renderer,
		cache:    cacheProvider,
		logger:   logger,
	}
}

func (s *LayoutService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// Load returns the stored layout, or an empty one when the tenant has never
// saved.
func (s *LayoutService) Load(ctx context.Context, tenantID uuid.UUID) (layout.Layout, error) {
	doc, err := s.store.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return layout.Empty(), nil
		}
		return layout.Layout{}, fmt.Errorf("failed to load layout: %w", err)
	}
	if doc.Sections == nil {
		doc.Sections = []layout.Block{}
	}
	return doc, nil
}

// Save normalizes doc and overwrites the stored layout. Concurrent editors
// are not detected; the last save wins.
func (s *LayoutService) Save(ctx context.Context, tenantID uuid.UUID, doc layout.Layout) (layout.Layout, error) {
	span := sentry.StartSpan(
		ctx,
		"service.layout.save",
		sentry.WithOpName("service.layout"),
		sentry.WithDescription("Save"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	clean, err := layout.Sanitize(doc)
	if err != nil {
		observability.CountReason(ctx, "layout.save.failed", "invalid")
		return layout.Layout{}, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}
	if err := s.store.Upsert(ctx, tenantID, clean); err != nil {
		observability.CountReason(ctx, "layout.save.failed", "store")
		span.Status = sentry.SpanStatusInternalError
		return layout.Layout{}, fmt.Errorf("failed to save layout: %w", err)
	}

	s.invalidateHomepage(ctx, tenantID)
	observability.MeterFromContext(ctx).Count("layout.save.succeeded", 1)
	s.loggerFromContext(ctx).Info("layout saved", "tenant_id", tenantID, "sections", len(clean.Sections))
	return clean, nil
}

// ApplyOps runs editor ops against the stored layout and saves the result.
// Nothing is saved if any op fails.
func (s *LayoutService) ApplyOps(ctx context.Context, tenantID uuid.UUID, ops []layout.Op) (layout.Layout, error) {
	current, err := s.Load(ctx, tenantID)
	if err != nil {
		return layout.Layout{}, err
	}

	editor := layout.NewEditor(current)
	if err := editor.Apply(ops); err != nil {
		return layout.Layout{}, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}
	return s.Save(ctx, tenantID, editor.Layout())
}

// Homepage returns the rendered homepage as JSON.
func (s *LayoutService) Homepage(ctx context.Context, tenantID uuid.UUID) ([]byte, error) {
	span := sentry.StartSpan(
		ctx,
		"service.layout.homepage",
		sentry.WithOpName("service.layout"),
		sentry.WithDescription("Homepage"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	key := cache.HomepageKey(tenantID)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err == nil {
			meter.Count("homepage.cache.hit", 1)
			return cached, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("homepage cache read failed", "error", err, "tenant_id", tenantID)
		}
	}
	meter.Count("homepage.cache.miss", 1)

	doc, err := s.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(s.renderer.Render(ctx, tenantID, doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode homepage: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, body, cache.HomepageTTL); err != nil {
			logger.Warn("homepage cache write failed", "error", err, "tenant_id", tenantID)
		}
	}
	return body, nil
}

func (s *LayoutService) invalidateHomepage(ctx context.Context, tenantID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.HomepageKey(tenantID)); err != nil {
		s.loggerFromContext(ctx).Warn("failed to invalidate homepage cache", "error", err, "tenant_id", tenantID)
	}
}
