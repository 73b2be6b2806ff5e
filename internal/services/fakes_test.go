package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storekit/storefront/internal/db"
	"github.com/storekit/storefront/internal/email"
	"github.com/storekit/storefront/internal/layout"
	"github.com/storekit/storefront/internal/models"
	"github.com/storekit/storefront/internal/razorpay"
)

type fakeTenantStore struct {
	tenants  map[uuid.UUID]*models.Tenant
	settings []db.IntegrationSettings
}

func newFakeTenantStore(tenants ...*models.Tenant) *fakeTenantStore {
	s := &fakeTenantStore{tenants: make(map[uuid.UUID]*models.Tenant)}
	for _, t := range tenants {
		s.tenants[t.ID] = t
	}
	return s
}

func (s *fakeTenantStore) GetByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	if t, ok := s.tenants[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeTenantStore) GetBySlug(_ context.Context, slug string) (*models.Tenant, error) {
	for _, t := range s.tenants {
		if t.Slug == slug {
			copied := *t
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeTenantStore) GetByOwnerID(_ context.Context, ownerID string) (*models.Tenant, error) {
	for _, t := range s.tenants {
		if t.OwnerID == ownerID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeTenantStore) UpdateIntegrations(_ context.Context, tenantID uuid.UUID, settings db.IntegrationSettings) error {
	t, ok := s.tenants[tenantID]
	if !ok {
		return pgx.ErrNoRows
	}
	s.settings = append(s.settings, settings)
	keep := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	keep(&t.RazorpayKeyID, settings.RazorpayKeyID)
	keep(&t.RazorpayKeySecret, settings.RazorpayKeySecret)
	keep(&t.RazorpayWebhookSecret, settings.RazorpayWebhookSecret)
	keep(&t.ShiprocketToken, settings.ShiprocketToken)
	return nil
}

type fakeLayoutStore struct {
	docs      map[uuid.UUID]layout.Layout
	upsertErr error
	getErr    error
	upserts   int
}

func newFakeLayoutStore() *fakeLayoutStore {
	return &fakeLayoutStore{docs: make(map[uuid.UUID]layout.Layout)}
}

func (s *fakeLayoutStore) Get(_ context.Context, tenantID uuid.UUID) (layout.Layout, error) {
	if s.getErr != nil {
		return layout.Layout{}, s.getErr
	}
	doc, ok := s.docs[tenantID]
	if !ok {
		return layout.Layout{}, pgx.ErrNoRows
	}
	return doc, nil
}

func (s *fakeLayoutStore) Upsert(_ context.Context, tenantID uuid.UUID, doc layout.Layout) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts++
	s.docs[tenantID] = doc
	return nil
}

type fakeRenderer struct {
	calls int
}

func (r *fakeRenderer) Render(_ context.Context, _ uuid.UUID, l layout.Layout) layout.Page {
	r.calls++
	page := layout.Page{Sections: []layout.Section{}}
	for _, b := range l.Sections {
		page.Sections = append(page.Sections, layout.Section{ID: b.ID, Type: b.Type, Order: b.Order, Data: b.Data})
	}
	return page
}

// fakeCommerce stands in for the cart, catalog and order stores. It shares
// one product table so checkout can observe stock changes.
type fakeCommerce struct {
	mu       sync.Mutex
	policy   db.StockPolicy
	products map[uuid.UUID]*models.Product
	carts    map[uuid.UUID]*models.Cart
	orders   map[uuid.UUID]*models.Order
	intents  []models.PaymentIntent
	refunds  map[string]models.Refund

	paidAttempts []string
	takenNumbers map[string]bool
	placeErr     error
	markPaidErr  error
	fulfillErr   error
}

func newFakeCommerce() *fakeCommerce {
	return &fakeCommerce{
		policy:       db.StockClamp,
		products:     make(map[uuid.UUID]*models.Product),
		carts:        make(map[uuid.UUID]*models.Cart),
		orders:       make(map[uuid.UUID]*models.Order),
		refunds:      make(map[string]models.Refund),
		takenNumbers: make(map[string]bool),
	}
}

func (f *fakeCommerce) addProduct(tenantID uuid.UUID, name string, pricePaise int64, stock int) *models.Product {
	p := &models.Product{ID: uuid.New(), TenantID: tenantID, Name: name, PricePaise: pricePaise, Stock: stock, Active: true}
	f.products[p.ID] = p
	return p
}

func (f *fakeCommerce) GetProduct(_ context.Context, tenantID, productID uuid.UUID) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok || p.TenantID != tenantID {
		return nil, pgx.ErrNoRows
	}
	copied := *p
	return &copied, nil
}

func (f *fakeCommerce) Create(_ context.Context, tenantID uuid.UUID) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart := &models.Cart{ID: uuid.New(), TenantID: tenantID, Status: models.CartStatusActive, Items: []models.CartItem{}}
	f.carts[cart.ID] = cart
	copied := *cart
	return &copied, nil
}

func (f *fakeCommerce) Get(_ context.Context, tenantID, cartID uuid.UUID) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[cartID]
	if !ok || cart.TenantID != tenantID {
		return nil, pgx.ErrNoRows
	}
	copied := *cart
	copied.Items = append([]models.CartItem(nil), cart.Items...)
	return &copied, nil
}

func (f *fakeCommerce) activeCart(cartID uuid.UUID) (*models.Cart, error) {
	cart, ok := f.carts[cartID]
	if !ok || cart.Status != models.CartStatusActive {
		return nil, db.ErrCartNotActive
	}
	return cart, nil
}

func (f *fakeCommerce) AddItem(_ context.Context, cartID uuid.UUID, item models.CartItem, maxQty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, err := f.activeCart(cartID)
	if err != nil {
		return err
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID != item.ProductID {
			continue
		}
		if cart.Items[i].Qty+item.Qty > maxQty {
			return db.ErrLineQtyExceeded
		}
		cart.Items[i].Qty += item.Qty
		return nil
	}
	cart.Items = append(cart.Items, item)
	return nil
}

func (f *fakeCommerce) UpdateItemQty(_ context.Context, cartID, productID uuid.UUID, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, err := f.activeCart(cartID)
	if err != nil {
		return err
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Qty = qty
		}
	}
	return nil
}

func (f *fakeCommerce) DeleteItem(_ context.Context, cartID, productID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, err := f.activeCart(cartID)
	if err != nil {
		return err
	}
	kept := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	cart.Items = kept
	return nil
}

func (f *fakeCommerce) Clear(_ context.Context, cartID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, err := f.activeCart(cartID)
	if err != nil {
		return err
	}
	cart.Items = []models.CartItem{}
	return nil
}

// PlaceOrder mirrors the store transaction: everything or nothing.
func (f *fakeCommerce) PlaceOrder(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return f.placeErr
	}
	if f.takenNumbers[order.OrderNumber] {
		return db.ErrOrderNumberTaken
	}

	stock := make(map[uuid.UUID]int)
	for _, item := range order.Items {
		p, ok := f.products[item.ProductID]
		if !ok {
			return errors.New("product no longer exists")
		}
		current, seen := stock[p.ID]
		if !seen {
			current = p.Stock
		}
		switch {
		case f.policy == db.StockReject && current < item.Qty:
			return db.ErrInsufficientStock
		case current < item.Qty:
			current = 0
		default:
			current -= item.Qty
		}
		stock[p.ID] = current
	}

	cart, err := f.activeCart(order.CartID)
	if err != nil {
		return err
	}

	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	for id, s := range stock {
		f.products[id].Stock = s
	}
	cart.Status = models.CartStatusConverted
	f.takenNumbers[order.OrderNumber] = true
	copied := *order
	copied.Items = append([]models.OrderItem(nil), order.Items...)
	f.orders[order.ID] = &copied
	return nil
}

func (f *fakeCommerce) findOrder(match func(*models.Order) bool) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if match(o) {
			copied := *o
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeCommerce) GetByID(_ context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	return f.findOrder(func(o *models.Order) bool { return o.TenantID == tenantID && o.ID == orderID })
}

func (f *fakeCommerce) GetByNumber(_ context.Context, tenantID uuid.UUID, number string) (*models.Order, error) {
	return f.findOrder(func(o *models.Order) bool { return o.TenantID == tenantID && o.OrderNumber == number })
}

// GetByRazorpayOrderID resolves through the recorded payment attempts, like
// the store's join on payment_intents.
func (f *fakeCommerce) GetByRazorpayOrderID(_ context.Context, tenantID uuid.UUID, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, intent := range f.intents {
		if intent.TenantID != tenantID || intent.RazorpayOrderID != id {
			continue
		}
		if o, ok := f.orders[intent.OrderID]; ok {
			copied := *o
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeCommerce) GetByRazorpayPaymentID(_ context.Context, tenantID uuid.UUID, id string) (*models.Order, error) {
	return f.findOrder(func(o *models.Order) bool { return o.TenantID == tenantID && o.RazorpayPaymentID == id })
}

func (f *fakeCommerce) AttachRazorpayOrder(_ context.Context, intent *models.PaymentIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[intent.OrderID]
	if !ok || o.PaymentStatus == models.PaymentPaid {
		return db.ErrInvalidStatusTransition
	}
	o.RazorpayOrderID = intent.RazorpayOrderID
	o.PaymentStatus = models.PaymentUnpaid
	intent.ID = uuid.New()
	f.intents = append(f.intents, *intent)
	return nil
}

func (f *fakeCommerce) MarkPaid(_ context.Context, tenantID, orderID uuid.UUID, razorpayOrderID, paymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markPaidErr != nil {
		return f.markPaidErr
	}
	o, ok := f.orders[orderID]
	if !ok || o.TenantID != tenantID || o.PaymentStatus == models.PaymentPaid {
		return db.ErrInvalidStatusTransition
	}
	o.PaymentStatus = models.PaymentPaid
	if o.Status == models.StatusPending {
		o.Status = models.StatusConfirmed
	}
	o.RazorpayPaymentID = paymentID
	f.paidAttempts = append(f.paidAttempts, razorpayOrderID)
	return nil
}

func (f *fakeCommerce) MarkPaymentFailed(_ context.Context, tenantID, orderID uuid.UUID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.TenantID != tenantID || o.PaymentStatus != models.PaymentUnpaid {
		return db.ErrInvalidStatusTransition
	}
	o.PaymentStatus = models.PaymentFailed
	return nil
}

func (f *fakeCommerce) UpdateFulfillmentStatus(_ context.Context, tenantID, orderID uuid.UUID, status models.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fulfillErr != nil {
		return f.fulfillErr
	}
	o, ok := f.orders[orderID]
	if !ok || o.TenantID != tenantID || o.Status == models.StatusDelivered || o.Status == models.StatusCancelled {
		return db.ErrInvalidStatusTransition
	}
	o.Status = status
	return nil
}

func (f *fakeCommerce) RecordRefund(_ context.Context, refund *models.Refund) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.refunds[refund.RazorpayRefundID]; ok {
		return false, nil
	}
	f.refunds[refund.RazorpayRefundID] = *refund
	f.orders[refund.OrderID].RefundedPaise += refund.AmountPaise
	return true, nil
}

func (f *fakeCommerce) order(id uuid.UUID) models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.orders[id]
}

type fakeGateway struct {
	err   error
	calls []razorpay.CreateOrderRequest
}

func (g *fakeGateway) CreateOrder(_ context.Context, _ razorpay.Credentials, req razorpay.CreateOrderRequest) (*razorpay.Order, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &razorpay.Order{ID: "order_" + uuid.NewString()[:8], Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	kinds []email.Kind
}

func (n *fakeNotifier) Notify(_ context.Context, _ *models.Tenant, _ *models.Order, kind email.Kind) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	return n.err
}

type fakeWebhookStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*models.WebhookEvent
	keys   map[string]uuid.UUID
}

func newFakeWebhookStore() *fakeWebhookStore {
	return &fakeWebhookStore{events: make(map[uuid.UUID]*models.WebhookEvent), keys: make(map[string]uuid.UUID)}
}

func (s *fakeWebhookStore) Record(_ context.Context, event *models.WebhookEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := event.TenantID.String() + "|" + event.Provider + "|" + event.EventID
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	event.ID = uuid.New()
	copied := *event
	s.events[event.ID] = &copied
	s.keys[key] = event.ID
	return true, nil
}

func (s *fakeWebhookStore) SetStatus(_ context.Context, id uuid.UUID, status models.WebhookStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.events[id]
	e.Status = status
	e.LastError = lastError
	e.NextAttemptAt = time.Time{}
	return nil
}

func (s *fakeWebhookStore) ScheduleRetry(_ context.Context, id uuid.UUID, attempts int, next time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.events[id]
	e.Status = models.WebhookRetryPending
	e.Attempts = attempts
	e.NextAttemptAt = next
	e.LastError = lastError
	return nil
}

func (s *fakeWebhookStore) ClaimDue(_ context.Context, limit int, _ time.Duration) ([]models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.WebhookEvent
	for _, e := range s.events {
		if e.Status == models.WebhookRetryPending && len(due) < limit {
			due = append(due, *e)
		}
	}
	return due, nil
}

func (s *fakeWebhookStore) only() models.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		return *e
	}
	return models.WebhookEvent{}
}

func (s *fakeWebhookStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
