package handlers

import (
	"net/http"
)

// Home serves the rendered homepage sections for the store.
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := tenantFromContext(ctx)

	page, err := h.layouts.Homepage(ctx, tenant.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(page); err != nil {
		h.loggerFromContext(ctx).Warn("failed to write homepage", "error", err)
	}
}
