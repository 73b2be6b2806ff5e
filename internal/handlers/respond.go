package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/storekit/storefront/internal/auth"
	"github.com/storekit/storefront/internal/observability"
	"github.com/storekit/storefront/internal/services"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusForError is the single mapping from service errors to HTTP status
// codes. Unknown errors are internal.
func statusForError(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrInvalidLayout),
		errors.Is(err, services.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCheckout),
		errors.Is(err, services.ErrCartEmpty),
		errors.Is(err, services.ErrGatewayNotConfigured):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, services.ErrInvalidSignature),
		errors.Is(err, services.ErrInvalidWebhookToken):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrStoreUnavailable):
		return http.StatusForbidden
	case errors.Is(err, services.ErrTenantNotFound),
		errors.Is(err, services.ErrCartNotFound),
		errors.Is(err, services.ErrCartItemNotFound),
		errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrCartNotActive),
		errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrProductInactive),
		errors.Is(err, services.ErrAlreadyPaid),
		errors.Is(err, services.ErrNotOnlinePayment),
		errors.Is(err, services.ErrInvalidStatusTransition):
		return http.StatusConflict
	case errors.Is(err, services.ErrOrderNumberExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the mapped status. Internal errors are logged and
// reported without their message.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.loggerFromContext(r.Context()).Error("request failed", "error", err)
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
		message = "internal error"
	}

	observability.MeterFromContext(r.Context()).Count("http.server.error_responses", 1, sentry.WithAttributes(
		attribute.Int("http.status_code", status),
	))
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON body", errBadRequest)
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}
