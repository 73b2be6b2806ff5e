package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/storekit/storefront/internal/email"
	"github.com/storekit/storefront/internal/models"
)

func TestMapShipmentStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   models.OrderStatus
		wantOK bool
	}{
		{in: "DELIVERED", want: models.StatusDelivered, wantOK: true},
		{in: "Out For Delivery", want: models.StatusShipped, wantOK: true},
		{in: "in-transit", want: models.StatusShipped, wantOK: true},
		{in: "RTO", want: models.StatusCancelled, wantOK: true},
		{in: "RTO Delivered", want: models.StatusCancelled, wantOK: true},
		{in: "pickup scheduled", wantOK: false},
		{in: "", wantOK: false},
	}

	for _, tc := range tests {
		got, ok := MapShipmentStatus(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("MapShipmentStatus(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestShippingService_Apply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		token      string
		start      models.OrderStatus
		status     string
		orderRef   string
		want       models.WebhookStatus
		wantErr    error
		wantStatus models.OrderStatus
		wantEmails []email.Kind
	}{
		{
			name:       "shipped",
			token:      "ship-token",
			start:      models.StatusConfirmed,
			status:     "In Transit",
			want:       models.WebhookProcessed,
			wantStatus: models.StatusShipped,
			wantEmails: []email.Kind{email.KindOrderShipped},
		},
		{
			name:       "delivered",
			token:      "ship-token",
			start:      models.StatusShipped,
			status:     "Delivered",
			want:       models.WebhookProcessed,
			wantStatus: models.StatusDelivered,
			wantEmails: []email.Kind{email.KindOrderDelivered},
		},
		{
			name:       "return to origin cancels without email",
			token:      "ship-token",
			start:      models.StatusShipped,
			status:     "RTO Initiated",
			want:       models.WebhookProcessed,
			wantStatus: models.StatusCancelled,
		},
		{
			name:       "delivered order stays delivered",
			token:      "ship-token",
			start:      models.StatusDelivered,
			status:     "RTO Initiated",
			want:       models.WebhookSkipped,
			wantStatus: models.StatusDelivered,
		},
		{
			name:       "repeated status",
			token:      "ship-token",
			start:      models.StatusShipped,
			status:     "out_for_delivery",
			want:       models.WebhookSkipped,
			wantStatus: models.StatusShipped,
		},
		{
			name:       "unmapped status",
			token:      "ship-token",
			start:      models.StatusConfirmed,
			status:     "Pickup Scheduled",
			want:       models.WebhookIgnored,
			wantStatus: models.StatusConfirmed,
		},
		{
			name:       "unknown order",
			token:      "ship-token",
			start:      models.StatusConfirmed,
			status:     "Delivered",
			orderRef:   "ORD-NOPE",
			want:       models.WebhookIgnored,
			wantStatus: models.StatusConfirmed,
		},
		{
			name:       "wrong token",
			token:      "guess",
			start:      models.StatusConfirmed,
			status:     "Delivered",
			wantErr:    ErrInvalidWebhookToken,
			wantStatus: models.StatusConfirmed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeCommerce()
			notifier := &fakeNotifier{}
			tenant := &models.Tenant{ID: uuid.New(), Slug: "shop", ShiprocketToken: "ship-token"}
			order := seedOrder(store, tenant.ID, models.PaymentMethodCOD, "")
			order.Status = tc.start
			webhooks := newFakeWebhookStore()
			svc := NewShippingService(store, webhooks, newFakeTenantStore(tenant), notifier, RetryPolicy{}, nil)

			ref := tc.orderRef
			if ref == "" {
				ref = order.OrderNumber
			}
			got, err := svc.Apply(context.Background(), tenant, tc.token, ShipmentUpdate{
				AWB:           "AWB123",
				OrderID:       ref,
				CurrentStatus: tc.status,
			})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
			if status := store.order(order.ID).Status; status != tc.wantStatus {
				t.Fatalf("expected order %s, got %s", tc.wantStatus, status)
			}
			if diff := cmp.Diff(tc.wantEmails, notifier.kinds); diff != "" {
				t.Fatalf("emails mismatch (-want +got):\n%s", diff)
			}
			if tc.wantErr != nil {
				if webhooks.count() != 0 {
					t.Fatalf("expected nothing recorded, got %d", webhooks.count())
				}
				return
			}
			if stored := webhooks.only(); stored.Status != tc.want || stored.Provider != models.WebhookProviderShiprocket {
				t.Fatalf("expected stored %s delivery, got %s/%s", tc.want, stored.Provider, stored.Status)
			}
		})
	}
}

func TestShippingService_RequiresConfiguredToken(t *testing.T) {
	t.Parallel()

	store := newFakeCommerce()
	tenant := &models.Tenant{ID: uuid.New(), Slug: "shop"}
	svc := NewShippingService(store, newFakeWebhookStore(), newFakeTenantStore(tenant), &fakeNotifier{}, RetryPolicy{}, nil)

	if _, err := svc.Apply(context.Background(), tenant, "", ShipmentUpdate{CurrentStatus: "Delivered"}); !errors.Is(err, ErrInvalidWebhookToken) {
		t.Fatalf("expected ErrInvalidWebhookToken, got %v", err)
	}
}

func TestShippingService_SkipsRepeatedPush(t *testing.T) {
	t.Parallel()

	store := newFakeCommerce()
	notifier := &fakeNotifier{}
	tenant := &models.Tenant{ID: uuid.New(), Slug: "shop", ShiprocketToken: "ship-token"}
	order := seedOrder(store, tenant.ID, models.PaymentMethodCOD, "")
	webhooks := newFakeWebhookStore()
	svc := NewShippingService(store, webhooks, newFakeTenantStore(tenant), notifier, RetryPolicy{}, nil)
	update := ShipmentUpdate{AWB: "AWB9", OrderID: order.OrderNumber, CurrentStatus: "Delivered"}

	var statuses []models.WebhookStatus
	for i := 0; i < 2; i++ {
		status, err := svc.Apply(context.Background(), tenant, "ship-token", update)
		if err != nil {
			t.Fatalf("Apply %d: %v", i, err)
		}
		statuses = append(statuses, status)
	}

	if diff := cmp.Diff([]models.WebhookStatus{models.WebhookProcessed, models.WebhookSkipped}, statuses); diff != "" {
		t.Fatalf("statuses mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]email.Kind{email.KindOrderDelivered}, notifier.kinds); diff != "" {
		t.Fatalf("emails mismatch (-want +got):\n%s", diff)
	}
	if got := webhooks.only().EventID; got != "AWB9:delivered" {
		t.Fatalf("unexpected event id %q", got)
	}
}

func TestShippingService_RetriesTransientFailure(t *testing.T) {
	t.Parallel()

	store := newFakeCommerce()
	notifier := &fakeNotifier{}
	tenant := &models.Tenant{ID: uuid.New(), Slug: "shop", ShiprocketToken: "ship-token"}
	order := seedOrder(store, tenant.ID, models.PaymentMethodCOD, "")
	order.Status = models.StatusConfirmed
	webhooks := newFakeWebhookStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Minute}

	shipping := NewShippingService(store, webhooks, newFakeTenantStore(tenant), notifier, policy, nil)
	shipping.now = func() time.Time { return now }
	reconciler := NewReconciler(store, webhooks, shipping, nil, policy, nil)
	reconciler.now = shipping.now

	store.fulfillErr = errors.New("connection reset")
	status, err := shipping.Apply(context.Background(), tenant, "ship-token", ShipmentUpdate{
		AWB:           "AWB7",
		OrderID:       order.OrderNumber,
		CurrentStatus: "In Transit",
	})
	if err != nil || status != models.WebhookRetryPending {
		t.Fatalf("expected retry_pending acknowledgement, got %s %v", status, err)
	}
	stored := webhooks.only()
	if stored.Attempts != 1 || !stored.NextAttemptAt.Equal(now.Add(time.Minute)) || stored.LastError != "connection reset" {
		t.Fatalf("unexpected retry schedule: %+v", stored)
	}

	store.fulfillErr = nil
	claimed, err := reconciler.ProcessDue(context.Background(), 10, time.Minute)
	if err != nil || claimed != 1 {
		t.Fatalf("ProcessDue: claimed %d err %v", claimed, err)
	}
	if got := webhooks.only().Status; got != models.WebhookProcessed {
		t.Fatalf("expected processed, got %s", got)
	}
	if got := store.order(order.ID).Status; got != models.StatusShipped {
		t.Fatalf("expected shipped, got %s", got)
	}
	if diff := cmp.Diff([]email.Kind{email.KindOrderShipped}, notifier.kinds); diff != "" {
		t.Fatalf("emails mismatch (-want +got):\n%s", diff)
	}
}
