package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/storekit/storefront/internal/email"
	"github.com/storekit/storefront/internal/logging"
	"github.com/storekit/storefront/internal/models"
)

// OrderNotifier emails shoppers about their order. Orders without a customer
// email are skipped.
type OrderNotifier struct {
	provider email.Provider
	renderer *email.Renderer
	baseURL  string
	logger   *slog.Logger
}

func NewOrderNotifier(provider email.Provider, renderer *email.Renderer, baseURL string, logger *slog.Logger) *OrderNotifier {
	if provider == nil {
		provider = email.NoopProvider{}
	}
	return &OrderNotifier{
		provider: provider,
		renderer: renderer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

func (n *OrderNotifier) Notify(ctx context.Context, tenant *models.Tenant, order *models.Order, kind email.Kind) error {
	if order == nil || strings.TrimSpace(order.CustomerEmail) == "" {
		return nil
	}

	info := email.NewOrderInfo(order, tenant.Name, n.storeURL(tenant))
	msg, err := n.renderer.Render(kind, info)
	if err != nil {
		return err
	}
	if err := n.provider.SendEmail(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	logging.FromContext(ctx, n.logger).Info("order email sent", "kind", kind, "order_number", order.OrderNumber, "tenant_id", tenant.ID)
	return nil
}

func (n *OrderNotifier) storeURL(tenant *models.Tenant) string {
	if n.baseURL == "" {
		return ""
	}
	return n.baseURL + "/s/" + tenant.Slug
}
