package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/storekit/storefront/internal/auth"
	"github.com/storekit/storefront/internal/config"
	"github.com/storekit/storefront/internal/layout"
	"github.com/storekit/storefront/internal/logging"
	"github.com/storekit/storefront/internal/models"
	"github.com/storekit/storefront/internal/services"
	"github.com/storekit/storefront/internal/session"
)

const (
	maxWebhookBodyBytes = 1 << 20 // 1 MB
	maxJSONBodyBytes    = 256 << 10
)

type pinger interface {
	Ping(ctx context.Context) error
}

type tenantService interface {
	ResolveStorefront(ctx context.Context, slug string) (*models.Tenant, error)
	ResolveOwner(ctx context.Context, ownerID string) (*models.Tenant, error)
	Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)
	UpdateIntegrations(ctx context.Context, tenant *models.Tenant, input services.IntegrationsInput) (*services.IntegrationsStatus, error)
}

type layoutService interface {
	Load(ctx context.Context, tenantID uuid.UUID) (layout.Layout, error)
	Save(ctx context.Context, tenantID uuid.UUID, doc layout.Layout) (layout.Layout, error)
	ApplyOps(ctx context.Context, tenantID uuid.UUID, ops []layout.Op) (layout.Layout, error)
	Homepage(ctx context.Context, tenantID uuid.UUID) ([]byte, error)
}

type cartService interface {
	Get(ctx context.Context, tenantID, cartID uuid.UUID) (*models.Cart, error)
	Add(ctx context.Context, tenantID, cartID, productID uuid.UUID, qty int) (*models.Cart, error)
	UpdateQty(ctx context.Context, tenantID, cartID, productID uuid.UUID, qty int) (*models.Cart, error)
	Remove(ctx context.Context, tenantID, cartID, productID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context, tenantID, cartID uuid.UUID) (*models.Cart, error)
}

type checkoutService interface {
	Submit(ctx context.Context, tenant *models.Tenant, cartID uuid.UUID, input services.CheckoutInput) (*services.CheckoutResult, error)
}

type paymentService interface {
	CreateRemoteOrder(ctx context.Context, tenant *models.Tenant, orderID uuid.UUID) (*services.RemoteOrder, error)
	VerifyPayment(ctx context.Context, tenant *models.Tenant, orderID uuid.UUID, confirmation services.PaymentConfirmation) (*models.Order, error)
	CancelPayment(ctx context.Context, tenant *models.Tenant, orderID uuid.UUID) (*models.Order, error)
}

type razorpayReconciler interface {
	HandleRazorpay(ctx context.Context, tenant *models.Tenant, eventID string, body []byte, signature string) (models.WebhookStatus, error)
}

type shipmentService interface {
	Apply(ctx context.Context, tenant *models.Tenant, token string, update services.ShipmentUpdate) (models.WebhookStatus, error)
}

type tokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Handlers provides the storefront, owner and webhook HTTP endpoints.
type Handlers struct {
	config         *config.Config
	db             pinger
	tenants        tenantService
	layouts        layoutService
	carts          cartService
	checkout       checkoutService
	payments       paymentService
	reconciler     razorpayReconciler
	shipping       shipmentService
	verifier       tokenVerifier
	sessionManager *session.Manager
	limiter        *ipRateLimiter
	logger         *slog.Logger
}

type Dependencies struct {
	Config         *config.Config
	DB             pinger
	Tenants        tenantService
	Layouts        layoutService
	Carts          cartService
	Checkout       checkoutService
	Payments       paymentService
	Reconciler     razorpayReconciler
	Shipping       shipmentService
	Verifier       tokenVerifier
	SessionManager *session.Manager
	Logger         *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.Tenants == nil {
		return nil, fmt.Errorf("handlers dependencies: tenants is required")
	}
	if deps.Layouts == nil {
		return nil, fmt.Errorf("handlers dependencies: layouts is required")
	}
	if deps.Carts == nil {
		return nil, fmt.Errorf("handlers dependencies: carts is required")
	}
	if deps.Checkout == nil {
		return nil, fmt.Errorf("handlers dependencies: checkout is required")
	}
	if deps.Payments == nil {
		return nil, fmt.Errorf("handlers dependencies: payments is required")
	}
	if deps.Reconciler == nil {
		return nil, fmt.Errorf("handlers dependencies: reconciler is required")
	}
	if deps.Shipping == nil {
		return nil, fmt.Errorf("handlers dependencies: shipping is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("handlers dependencies: verifier is required")
	}
	if deps.SessionManager == nil {
		return nil, fmt.Errorf("handlers dependencies: sessionManager is required")
	}

	limiter, err := newIPRateLimiter(deps.Config.RateLimitRPS, deps.Config.RateLimitBurst)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	return &Handlers{
		config:         deps.Config,
		db:             deps.DB,
		tenants:        deps.Tenants,
		layouts:        deps.Layouts,
		carts:          deps.Carts,
		checkout:       deps.Checkout,
		payments:       deps.Payments,
		reconciler:     deps.Reconciler,
		shipping:       deps.Shipping,
		verifier:       deps.Verifier,
		sessionManager: deps.SessionManager,
		limiter:        limiter,
		logger:         logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

// SecureCookiesFromConfig reports whether cookies should carry the Secure
// flag, based on the public base URL.
func SecureCookiesFromConfig(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		if parsed, err := url.Parse(baseURL); err == nil {
			return strings.EqualFold(parsed.Scheme, "https")
		}
	}

	return cfg.Port == "443" || cfg.Port == "8443"
}
