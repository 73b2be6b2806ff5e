package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/storekit/storefront/internal/auth"
	"github.com/storekit/storefront/internal/logging"
	"github.com/storekit/storefront/internal/models"
	"github.com/storekit/storefront/internal/observability"
)

type tenantContextKey struct{}

func withTenant(ctx context.Context, tenant *models.Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenant)
}

func tenantFromContext(ctx context.Context) (*models.Tenant, bool) {
	tenant, ok := ctx.Value(tenantContextKey{}).(*models.Tenant)
	return tenant, ok && tenant != nil
}

// StorefrontTenant resolves the store named by the {slug} path variable and
// rejects requests for stores that cannot take orders.
func (h *Handlers) StorefrontTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenant, err := h.tenants.ResolveStorefront(ctx, mux.Vars(r)["slug"])
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(h.scopeToTenant(ctx, tenant)))
	})
}

// RequireOwner verifies the bearer token and loads the store it owns.
func (h *Handlers) RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			observability.CountReason(ctx, "auth.owner.rejected", "missing_token")
			h.writeError(w, r, err)
			return
		}
		claims, err := h.verifier.Verify(token)
		if err != nil {
			observability.CountReason(ctx, "auth.owner.rejected", "invalid_token")
			h.loggerFromContext(ctx).Warn("rejected owner token", "error", err)
			h.writeError(w, r, auth.ErrInvalidToken)
			return
		}

		tenant, err := h.tenants.ResolveOwner(ctx, claims.OwnerID())
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		ctx = auth.WithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(h.scopeToTenant(ctx, tenant)))
	})
}

func (h *Handlers) scopeToTenant(ctx context.Context, tenant *models.Tenant) context.Context {
	ctx = withTenant(ctx, tenant)
	ctx = logging.With(ctx, h.logger, "tenant_id", tenant.ID, "tenant_slug", tenant.Slug)
	observability.ScopeTenant(ctx, tenant.ID, tenant.Slug)
	return ctx
}
