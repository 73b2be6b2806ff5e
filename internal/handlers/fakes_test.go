package handlers

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/storekit/storefront/internal/auth"
	"github.com/storekit/storefront/internal/config"
	"github.com/storekit/storefront/internal/layout"
	"github.com/storekit/storefront/internal/models"
	"github.com/storekit/storefront/internal/services"
	"github.com/storekit/storefront/internal/session"
)

var testJWTSecret = strings.Repeat("k", 32)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeTenants struct {
	mu      sync.Mutex
	tenants []*models.Tenant
	inputs  []services.IntegrationsInput
}

func (f *fakeTenants) ResolveStorefront(_ context.Context, slug string) (*models.Tenant, error) {
	for _, t := range f.tenants {
		if t.Slug == slug {
			if t.Status != models.TenantStatusActive {
				return nil, services.ErrStoreUnavailable
			}
			return t, nil
		}
	}
	return nil, services.ErrTenantNotFound
}

func (f *fakeTenants) ResolveOwner(_ context.Context, ownerID string) (*models.Tenant, error) {
	for _, t := range f.tenants {
		if t.OwnerID == ownerID {
			return t, nil
		}
	}
	return nil, services.ErrTenantNotFound
}

func (f *fakeTenants) Get(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	for _, t := range f.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, services.ErrTenantNotFound
}

func (f *fakeTenants) UpdateIntegrations(_ context.Context, tenant *models.Tenant, input services.IntegrationsInput) (*services.IntegrationsStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if input.RazorpayKeyID != "" && !strings.HasPrefix(input.RazorpayKeyID, "rzp_") {
		return nil, services.ErrInvalidSettings
	}
	f.inputs = append(f.inputs, input)
	updated := *tenant
	updated.RazorpayKeyID = input.RazorpayKeyID
	updated.RazorpayKeySecret = input.RazorpayKeySecret
	return services.IntegrationsStatusOf(&updated), nil
}

type fakeLayouts struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]layout.Layout
	homepage []byte
	err      error
}

func (f *fakeLayouts) Load(_ context.Context, tenantID uuid.UUID) (layout.Layout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[tenantID]; ok {
		return doc, nil
	}
	return layout.Empty(), nil
}

func (f *fakeLayouts) Save(_ context.Context, tenantID uuid.UUID, doc layout.Layout) (layout.Layout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return layout.Layout{}, f.err
	}
	f.docs[tenantID] = doc
	return doc, nil
}

func (f *fakeLayouts) ApplyOps(ctx context.Context, tenantID uuid.UUID, ops []layout.Op) (layout.Layout, error) {
	doc, _ := f.Load(ctx, tenantID)
	editor := layout.NewEditor(doc)
	if err := editor.Apply(ops); err != nil {
		return layout.Layout{}, services.ErrInvalidLayout
	}
	return f.Save(ctx, tenantID, editor.Layout())
}

func (f *fakeLayouts) Homepage(context.Context, uuid.UUID) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.homepage, nil
}

type fakeCarts struct {
	mu    sync.Mutex
	carts map[uuid.UUID]*models.Cart
}

func (f *fakeCarts) find(tenantID, cartID uuid.UUID) (*models.Cart, error) {
	cart, ok := f.carts[cartID]
	if !ok || cart.TenantID != tenantID {
		return nil, services.ErrCartNotFound
	}
	return cart, nil
}

func (f *fakeCarts) snapshot(cart *models.Cart) *models.Cart {
	copied := *cart
	copied.Items = append([]models.CartItem{}, cart.Items...)
	return &copied
}

func (f *fakeCarts) Get(_ context.Context, tenantID, cartID uuid.UUID) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, err := f.find(tenantID, cartID)
	if err != nil {
		return nil, err
	}
	return f.snapshot(cart), nil
}

func (f *fakeCarts) Add(_ context.Context, tenantID, cartID, productID uuid.UUID, qty int) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if qty <= 0 {
		return nil, services.ErrInvalidQuantity
	}
	cart, err := f.find(tenantID, cartID)
	if err != nil {
		cart = &models.Cart{ID: uuid.New(), TenantID: tenantID, Status: models.CartStatusActive}
		f.carts[cart.ID] = cart
	}
	if !cart.IsActive() {
		return nil, services.ErrCartNotActive
	}
	cart.Items = append(cart.Items, models.CartItem{ProductID: productID, ProductName: "Item", Qty: qty, UnitPricePaise: 10000})
	return f.snapshot(cart), nil
}

func (f *fakeCarts) UpdateQty(_ context.Context, tenantID, cartID, productID uuid.UUID, qty int) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, err := f.find(tenantID, cartID)
	if err != nil {
		return nil, err
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Qty = qty
			return f.snapshot(cart), nil
		}
	}
	return nil, services.ErrCartItemNotFound
}

func (f *fakeCarts) Remove(_ context.Context, tenantID, cartID, productID uuid.UUID) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, err := f.find(tenantID, cartID)
	if err != nil {
		return nil, err
	}
	kept := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	cart.Items = kept
	return f.snapshot(cart), nil
}

func (f *fakeCarts) Clear(_ context.Context, tenantID, cartID uuid.UUID) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, err := f.find(tenantID, cartID)
	if err != nil {
		return nil, err
	}
	cart.Items = nil
	return f.snapshot(cart), nil
}

// fakeCheckout converts the cart it is given, like the real service.
type fakeCheckout struct {
	carts *fakeCarts
	err   error
}

func (f *fakeCheckout) Submit(_ context.Context, tenant *models.Tenant, cartID uuid.UUID, input services.CheckoutInput) (*services.CheckoutResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.carts.mu.Lock()
	defer f.carts.mu.Unlock()
	cart, err := f.carts.find(tenant.ID, cartID)
	if err != nil || len(cart.Items) == 0 {
		return nil, services.ErrCartEmpty
	}
	if !cart.IsActive() {
		return nil, services.ErrCartNotActive
	}
	cart.Status = models.CartStatusConverted
	return &services.CheckoutResult{Order: &models.Order{
		ID:            uuid.New(),
		TenantID:      tenant.ID,
		CartID:        cart.ID,
		OrderNumber:   "ORD-TEST-AAAA",
		CustomerName:  input.CustomerName,
		TotalPaise:    cart.SubtotalPaise(),
		SubtotalPaise: cart.SubtotalPaise(),
		PaymentMethod: input.PaymentMethod,
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentUnpaid,
	}}, nil
}

type fakePayments struct {
	err           error
	confirmations []services.PaymentConfirmation
}

func (f *fakePayments) CreateRemoteOrder(_ context.Context, tenant *models.Tenant, orderID uuid.UUID) (*services.RemoteOrder, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.RemoteOrder{KeyID: tenant.RazorpayKeyID, RazorpayOrderID: "order_1", Amount: 100, Currency: "INR", OrderID: orderID}, nil
}

func (f *fakePayments) VerifyPayment(_ context.Context, _ *models.Tenant, orderID uuid.UUID, confirmation services.PaymentConfirmation) (*models.Order, error) {
	f.confirmations = append(f.confirmations, confirmation)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: orderID, Status: models.StatusConfirmed, PaymentStatus: models.PaymentPaid}, nil
}

func (f *fakePayments) CancelPayment(_ context.Context, _ *models.Tenant, orderID uuid.UUID) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: orderID, Status: models.StatusPending, PaymentStatus: models.PaymentFailed}, nil
}

type razorpayDelivery struct {
	eventID   string
	body      string
	signature string
}

type fakeReconciler struct {
	status     models.WebhookStatus
	err        error
	deliveries []razorpayDelivery
}

func (f *fakeReconciler) HandleRazorpay(_ context.Context, _ *models.Tenant, eventID string, body []byte, signature string) (models.WebhookStatus, error) {
	f.deliveries = append(f.deliveries, razorpayDelivery{eventID: eventID, body: string(body), signature: signature})
	return f.status, f.err
}

type fakeShipping struct {
	tokens  []string
	updates []services.ShipmentUpdate
}

func (f *fakeShipping) Apply(_ context.Context, tenant *models.Tenant, token string, update services.ShipmentUpdate) (models.WebhookStatus, error) {
	if token != tenant.ShiprocketToken {
		return "", services.ErrInvalidWebhookToken
	}
	f.tokens = append(f.tokens, token)
	f.updates = append(f.updates, update)
	return models.WebhookProcessed, nil
}

type testEnv struct {
	h          *Handlers
	tenant     *models.Tenant
	tenants    *fakeTenants
	layouts    *fakeLayouts
	carts      *fakeCarts
	checkout   *fakeCheckout
	payments   *fakePayments
	reconciler *fakeReconciler
	shipping   *fakeShipping
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tenant := &models.Tenant{
		ID:                uuid.New(),
		Slug:              "chai-co",
		Name:              "Chai Co",
		OwnerID:           "owner_1",
		Status:            models.TenantStatusActive,
		RazorpayKeyID:     "rzp_test_1",
		RazorpayKeySecret: "secret",
		ShiprocketToken:   "ship-token",
	}
	suspended := &models.Tenant{ID: uuid.New(), Slug: "closed", Status: models.TenantStatusSuspended}

	carts := &fakeCarts{carts: make(map[uuid.UUID]*models.Cart)}
	env := &testEnv{
		tenant:     tenant,
		tenants:    &fakeTenants{tenants: []*models.Tenant{tenant, suspended}},
		layouts:    &fakeLayouts{docs: make(map[uuid.UUID]layout.Layout), homepage: []byte(`{"sections":[]}`)},
		carts:      carts,
		checkout:   &fakeCheckout{carts: carts},
		payments:   &fakePayments{},
		reconciler: &fakeReconciler{status: models.WebhookProcessed},
		shipping:   &fakeShipping{},
	}

	h, err := New(Dependencies{
		Config:         &config.Config{BaseURL: "https://shop.example.com", RateLimitRPS: 1000, RateLimitBurst: 1000},
		DB:             fakePinger{},
		Tenants:        env.tenants,
		Layouts:        env.layouts,
		Carts:          env.carts,
		Checkout:       env.checkout,
		Payments:       env.payments,
		Reconciler:     env.reconciler,
		Shipping:       env.shipping,
		Verifier:       auth.NewVerifier(testJWTSecret),
		SessionManager: session.NewManager(session.NewMemoryStore(), true),
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.h = h
	return env
}

