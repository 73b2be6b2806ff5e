package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/storekit/storefront/internal/models"
)

func TestCartService_AddAccumulatesAndKeepsFirstPrice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tenantID := uuid.New()
	store := newFakeCommerce()
	product := store.addProduct(tenantID, "Mug", 25000, 10)
	svc := NewCartService(store, store, nil)

	cart, err := svc.Add(ctx, tenantID, uuid.Nil, product.ID, 1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	product.PricePaise = 30000

	cart, err = svc.Add(ctx, tenantID, cart.ID, product.ID, 2)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	want := []models.CartItem{{ProductID: product.ID, ProductName: "Mug", Qty: 3, UnitPricePaise: 25000}}
	if diff := cmp.Diff(want, cart.Items); diff != "" {
		t.Fatalf("cart items mismatch (-want +got):\n%s", diff)
	}
	if got := cart.SubtotalPaise(); got != 75000 {
		t.Fatalf("expected subtotal 75000, got %d", got)
	}
}

func TestCartService_ConcurrentAddsAccumulate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tenantID := uuid.New()
	store := newFakeCommerce()
	product := store.addProduct(tenantID, "Mug", 25000, 100)
	svc := NewCartService(store, store, nil)

	cart, err := svc.Add(ctx, tenantID, uuid.Nil, product.ID, 1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	const adders = 50
	var wg sync.WaitGroup
	errs := make(chan error, adders)
	for i := 0; i < adders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Add(ctx, tenantID, cart.ID, product.ID, 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Add: %v", err)
	}

	got, err := svc.Get(ctx, tenantID, cart.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].Qty != adders+1 {
		t.Fatalf("expected one line with qty %d, got %+v", adders+1, got.Items)
	}
}

func TestCartService_AddStopsAtLineLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tenantID := uuid.New()
	store := newFakeCommerce()
	product := store.addProduct(tenantID, "Mug", 100, 5000)
	svc := NewCartService(store, store, nil)

	cart, err := svc.Add(ctx, tenantID, uuid.Nil, product.ID, maxLineQty-1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := svc.Add(ctx, tenantID, cart.ID, product.ID, 2); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	got, err := svc.Get(ctx, tenantID, cart.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Items[0].Qty != maxLineQty-1 {
		t.Fatalf("expected line untouched at %d, got %d", maxLineQty-1, got.Items[0].Qty)
	}
}

func TestCartService_AddRejects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tenantID := uuid.New()
	store := newFakeCommerce()
	active := store.addProduct(tenantID, "Active", 1000, 5)
	inactive := store.addProduct(tenantID, "Hidden", 1000, 5)
	inactive.Active = false
	otherTenant := store.addProduct(uuid.New(), "Elsewhere", 1000, 5)
	svc := NewCartService(store, store, nil)

	tests := []struct {
		name      string
		productID uuid.UUID
		qty       int
		wantErr   error
	}{
		{name: "zero qty", productID: active.ID, qty: 0, wantErr: ErrInvalidQuantity},
		{name: "negative qty", productID: active.ID, qty: -1, wantErr: ErrInvalidQuantity},
		{name: "huge qty", productID: active.ID, qty: maxLineQty + 1, wantErr: ErrInvalidQuantity},
		{name: "unknown product", productID: uuid.New(), qty: 1, wantErr: ErrProductNotFound},
		{name: "other tenant product", productID: otherTenant.ID, qty: 1, wantErr: ErrProductNotFound},
		{name: "inactive product", productID: inactive.ID, qty: 1, wantErr: ErrProductInactive},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := svc.Add(ctx, tenantID, uuid.Nil, tc.productID, tc.qty); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCartService_UpdateRemoveClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tenantID := uuid.New()
	store := newFakeCommerce()
	mug := store.addProduct(tenantID, "Mug", 1000, 5)
	tee := store.addProduct(tenantID, "Tee", 2000, 5)
	svc := NewCartService(store, store, nil)

	cart, err := svc.Add(ctx, tenantID, uuid.Nil, mug.ID, 1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := svc.Add(ctx, tenantID, cart.ID, tee.ID, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}

	cart, err = svc.UpdateQty(ctx, tenantID, cart.ID, mug.ID, 4)
	if err != nil {
		t.Fatalf("UpdateQty: %v", err)
	}
	if item, _ := cart.Item(mug.ID); item.Qty != 4 {
		t.Fatalf("expected qty 4, got %d", item.Qty)
	}

	if _, err := svc.UpdateQty(ctx, tenantID, cart.ID, uuid.New(), 2); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}

	cart, err = svc.UpdateQty(ctx, tenantID, cart.ID, mug.ID, 0)
	if err != nil {
		t.Fatalf("UpdateQty to zero: %v", err)
	}
	if _, ok := cart.Item(mug.ID); ok {
		t.Fatalf("qty 0 should remove the line")
	}

	cart, err = svc.Remove(ctx, tenantID, cart.ID, uuid.New())
	if err != nil || len(cart.Items) != 1 {
		t.Fatalf("removing an absent product should be a no-op, got %v, %d items", err, len(cart.Items))
	}

	cart, err = svc.Clear(ctx, tenantID, cart.ID)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(cart.Items))
	}
}

func TestCartService_ConvertedCartIsReadOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tenantID := uuid.New()
	store := newFakeCommerce()
	mug := store.addProduct(tenantID, "Mug", 1000, 5)
	svc := NewCartService(store, store, nil)

	cart, err := svc.Add(ctx, tenantID, uuid.Nil, mug.ID, 1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	store.carts[cart.ID].Status = models.CartStatusConverted

	if _, err := svc.Add(ctx, tenantID, cart.ID, mug.ID, 1); !errors.Is(err, ErrCartNotActive) {
		t.Fatalf("Add: expected ErrCartNotActive, got %v", err)
	}
	if _, err := svc.UpdateQty(ctx, tenantID, cart.ID, mug.ID, 2); !errors.Is(err, ErrCartNotActive) {
		t.Fatalf("UpdateQty: expected ErrCartNotActive, got %v", err)
	}
	if _, err := svc.Clear(ctx, tenantID, cart.ID); !errors.Is(err, ErrCartNotActive) {
		t.Fatalf("Clear: expected ErrCartNotActive, got %v", err)
	}
}

func TestCartService_GetUnknownCart(t *testing.T) {
	t.Parallel()

	svc := NewCartService(newFakeCommerce(), newFakeCommerce(), nil)
	if _, err := svc.Get(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
	if _, err := svc.Get(context.Background(), uuid.New(), uuid.Nil); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound for nil id, got %v", err)
	}
}
