package handlers

import (
	"net/http"

	"github.com/storekit/storefront/internal/layout"
	"github.com/storekit/storefront/internal/services"
)

type layoutOpsRequest struct {
	Ops []layout.Op `json:"ops"`
}

func (h *Handlers) GetLayout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := tenantFromContext(ctx)

	doc, err := h.layouts.Load(ctx, tenant.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// PutLayout replaces the whole layout document.
func (h *Handlers) PutLayout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := tenantFromContext(ctx)

	var doc layout.Layout
	if err := decodeJSON(w, r, &doc); err != nil {
		h.writeError(w, r, err)
		return
	}
	saved, err := h.layouts.Save(ctx, tenant.ID, doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// ApplyLayoutOps runs editor ops against the stored layout and saves the
// result. A failing op saves nothing.
func (h *Handlers) ApplyLayoutOps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := tenantFromContext(ctx)

	var req layoutOpsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	saved, err := h.layouts.ApplyOps(ctx, tenant.ID, req.Ops)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handlers) GetIntegrations(w http.ResponseWriter, r *http.Request) {
	tenant, _ := tenantFromContext(r.Context())
	writeJSON(w, http.StatusOK, services.IntegrationsStatusOf(tenant))
}

// PutIntegrations stores gateway and courier credentials. Secrets are never
// echoed back.
func (h *Handlers) PutIntegrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := tenantFromContext(ctx)

	var input services.IntegrationsInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}
	status, err := h.tenants.UpdateIntegrations(ctx, tenant, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
