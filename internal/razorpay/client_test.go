package razorpay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClient_CreateOrder(t *testing.T) {
	t.Parallel()

	var got CreateOrderRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "rzp_test_secret" {
			t.Errorf("unexpected basic auth %q/%q", user, pass)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_Abc123","entity":"order","amount":20000,"amount_paid":0,"currency":"INR","receipt":"SF-1","status":"created"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", server.Client())
	order, err := client.CreateOrder(context.Background(), Credentials{KeyID: "rzp_test_key", KeySecret: "rzp_test_secret"}, CreateOrderRequest{
		Amount:   20000,
		Currency: "INR",
		Receipt:  "SF-1",
		Notes:    map[string]string{"order_id": "o-1"},
	})
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}

	wantReq := CreateOrderRequest{Amount: 20000, Currency: "INR", Receipt: "SF-1", Notes: map[string]string{"order_id": "o-1"}}
	if diff := cmp.Diff(wantReq, got); diff != "" {
		t.Fatalf("unexpected request body (-want +got):\n%s", diff)
	}
	if order.ID != "order_Abc123" || order.Amount != 20000 {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestClient_CreateOrderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		unavailable bool
		code        string
	}{
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   `{"error":{"code":"BAD_REQUEST_ERROR","description":"amount exceeds maximum"}}`,
			code:   "BAD_REQUEST_ERROR",
		},
		{
			name:   "unauthorized without body",
			status: http.StatusUnauthorized,
			code:   "Unauthorized",
		},
		{
			name:        "server error",
			status:      http.StatusBadGateway,
			unavailable: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, server.Client()).CreateOrder(context.Background(), Credentials{KeyID: "k", KeySecret: "s"}, CreateOrderRequest{Amount: 100, Currency: "INR"})
			if tc.unavailable {
				if !errors.Is(err, ErrUnavailable) {
					t.Fatalf("expected ErrUnavailable, got %v", err)
				}
				return
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Code != tc.code || apiErr.StatusCode != tc.status {
				t.Fatalf("unexpected api error: %+v", apiErr)
			}
		})
	}
}

func TestClient_CreateOrderNetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url, nil).CreateOrder(context.Background(), Credentials{}, CreateOrderRequest{Amount: 100})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestWebhookEvent_Identifiers(t *testing.T) {
	t.Parallel()

	raw := `{
		"event": "refund.processed",
		"payload": {
			"refund": {"entity": {"id": "rfnd_1", "payment_id": "pay_1", "amount": 5000, "status": "processed"}},
			"payment": {"entity": {"id": "pay_1", "order_id": "order_1", "amount": 20000, "status": "captured"}}
		}
	}`
	var event WebhookEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.RemoteOrderID() != "order_1" || event.PaymentID() != "pay_1" {
		t.Fatalf("unexpected identifiers: order=%q payment=%q", event.RemoteOrderID(), event.PaymentID())
	}
	if event.Payload.Refund.Entity.Amount != 5000 {
		t.Fatalf("unexpected refund amount %d", event.Payload.Refund.Entity.Amount)
	}
}
