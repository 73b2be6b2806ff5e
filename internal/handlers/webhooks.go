package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/storekit/storefront/internal/models"
	"github.com/storekit/storefront/internal/services"
)

type webhookResponse struct {
	Status models.WebhookStatus `json:"status"`
}

// webhookTenant loads the store named by the {tenantID} path variable.
// Webhooks reach suspended stores too so that payments already taken are
// still recorded.
func (h *Handlers) webhookTenant(r *http.Request) (*http.Request, *models.Tenant, error) {
	tenantID, err := pathUUID(r, "tenantID")
	if err != nil {
		return r, nil, err
	}
	tenant, err := h.tenants.Get(r.Context(), tenantID)
	if err != nil {
		return r, nil, err
	}
	return r.WithContext(h.scopeToTenant(r.Context(), tenant)), tenant, nil
}

// RazorpayWebhook verifies and records a Razorpay event. Any delivery with a
// valid signature is acknowledged with 200, including ones whose processing
// was deferred for retry, so Razorpay does not redeliver them.
func (h *Handlers) RazorpayWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	r, tenant, err := h.webhookTenant(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read Razorpay webhook payload", "error", err)
		h.writeError(w, r, fmt.Errorf("%w: unreadable body", errBadRequest))
		return
	}

	status, err := h.reconciler.HandleRazorpay(
		ctx,
		tenant,
		r.Header.Get("X-Razorpay-Event-Id"),
		body,
		r.Header.Get("X-Razorpay-Signature"),
	)
	if err != nil {
		if errors.Is(err, services.ErrGatewayNotConfigured) {
			// Without a webhook secret the delivery cannot be authenticated.
			h.writeError(w, r, services.ErrInvalidSignature)
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Status: status})
}

// ShiprocketWebhook applies a courier status push authenticated by the
// store's token in the x-api-key header.
func (h *Handlers) ShiprocketWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	r, tenant, err := h.webhookTenant(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	var update services.ShipmentUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid shipment payload", errBadRequest))
		return
	}

	status, err := h.shipping.Apply(ctx, tenant, r.Header.Get("X-Api-Key"), update)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Status: status})
}
