package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider string
		wantErr  bool
	}{
		{name: "default provider", provider: ""},
		{name: "memory provider", provider: "memory"},
		{name: "redis without client", provider: "redis", wantErr: true},
		{name: "unsupported provider", provider: "unsupported", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store, err := NewStore(Config{Provider: tt.provider})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if err := store.Close(); err != nil {
				t.Fatalf("expected close without error, got %v", err)
			}
		})
	}
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatalf("expected %s cookie to be set", cookieName)
	return nil
}

func TestManagerRemembersCartPerTenant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewManager(NewMemoryStore(), true)
	tenantA, tenantB := uuid.New(), uuid.New()
	cartA, cartB := uuid.New(), uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/cart/items", nil)
	if _, ok := m.CartID(ctx, req, tenantA); ok {
		t.Fatalf("expected no cart without a cookie")
	}

	rec := httptest.NewRecorder()
	if err := m.SetCartID(ctx, rec, req, tenantA, cartA); err != nil {
		t.Fatalf("SetCartID: %v", err)
	}
	cookie := sessionCookie(t, rec)
	if !cookie.HttpOnly || !cookie.Secure {
		t.Fatalf("expected HttpOnly secure cookie, got %+v", cookie)
	}

	next := httptest.NewRequest(http.MethodGet, "/cart", nil)
	next.AddCookie(cookie)
	if err := m.SetCartID(ctx, httptest.NewRecorder(), next, tenantB, cartB); err != nil {
		t.Fatalf("SetCartID: %v", err)
	}

	if got, ok := m.CartID(ctx, next, tenantA); !ok || got != cartA {
		t.Fatalf("tenant A cart = %v, %v; want %v", got, ok, cartA)
	}
	if got, ok := m.CartID(ctx, next, tenantB); !ok || got != cartB {
		t.Fatalf("tenant B cart = %v, %v; want %v", got, ok, cartB)
	}

	m.ForgetCart(ctx, next, tenantA)
	if _, ok := m.CartID(ctx, next, tenantA); ok {
		t.Fatalf("expected tenant A cart to be forgotten")
	}
	if got, ok := m.CartID(ctx, next, tenantB); !ok || got != cartB {
		t.Fatalf("expected tenant B cart to survive, got %v, %v", got, ok)
	}
}

func TestManagerRejectsNilIDs(t *testing.T) {
	t.Parallel()

	m := NewManager(NewMemoryStore(), false)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := m.SetCartID(context.Background(), httptest.NewRecorder(), req, uuid.Nil, uuid.New()); err == nil {
		t.Fatalf("expected error for nil tenant id")
	}
}

func TestManagerExpiresOldSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, false)
	tenantID, cartID := uuid.New(), uuid.New()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := m.SetCartID(ctx, rec, req, tenantID, cartID); err != nil {
		t.Fatalf("SetCartID: %v", err)
	}

	later := time.Now().Add(ttl + time.Hour)
	m.now = func() time.Time { return later }

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(sessionCookie(t, rec))
	if _, ok := m.CartID(ctx, next, tenantID); ok {
		t.Fatalf("expected expired session to be ignored")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	tenantID := uuid.New()
	store.Set(ctx, "k", &Data{Carts: map[uuid.UUID]uuid.UUID{tenantID: uuid.New()}}, time.Hour)

	got, ok := store.Get(ctx, "k")
	if !ok {
		t.Fatalf("expected session")
	}
	delete(got.Carts, tenantID)

	again, _ := store.Get(ctx, "k")
	if _, ok := again.Carts[tenantID]; !ok {
		t.Fatalf("mutating a returned session changed the stored one")
	}
}
