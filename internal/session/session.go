// Package session tracks which cart belongs to a storefront visitor. A single
// cookie carries an opaque session id; the store maps it to one cart per
// tenant.
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	cookieName = "storefront_session"
	ttl        = 30 * 24 * time.Hour
)

// Data is what a visitor session remembers between requests.
type Data struct {
	Carts     map[uuid.UUID]uuid.UUID `json:"carts"`
	CreatedAt int64                   `json:"created_at"`
}

type Manager struct {
	store  Store
	secure bool
	now    func() time.Time
}

type Store interface {
	Get(ctx context.Context, key string) (*Data, bool)
	Set(ctx context.Context, key string, data *Data, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

func NewManager(store Store, secure bool) *Manager {
	return &Manager{
		store:  store,
		secure: secure,
		now:    time.Now,
	}
}

func (m *Manager) Close() error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Close()
}

// CartID returns the cart remembered for tenantID, if any.
func (m *Manager) CartID(ctx context.Context, r *http.Request, tenantID uuid.UUID) (uuid.UUID, bool) {
	_, data, err := m.load(ctx, r)
	if err != nil {
		return uuid.Nil, false
	}
	cartID, ok := data.Carts[tenantID]
	return cartID, ok && cartID != uuid.Nil
}

// SetCartID remembers cartID for tenantID, creating the session and its
// cookie when the request has none.
func (m *Manager) SetCartID(ctx context.Context, w http.ResponseWriter, r *http.Request, tenantID, cartID uuid.UUID) error {
	if tenantID == uuid.Nil || cartID == uuid.Nil {
		return fmt.Errorf("tenant and cart ids are required")
	}

	sessionID, data, err := m.load(ctx, r)
	if err != nil {
		sessionID = uuid.NewString()
		data = &Data{CreatedAt: m.now().Unix()}
	}
	if data.Carts == nil {
		data.Carts = make(map[uuid.UUID]uuid.UUID)
	}
	data.Carts[tenantID] = cartID

	m.store.Set(ctx, sessionID, data, ttl)
	m.writeCookie(w, sessionID, int(ttl.Seconds()))
	return nil
}

// ForgetCart drops the cart for tenantID, typically after checkout converts
// it into an order. Other tenants' carts are left alone.
func (m *Manager) ForgetCart(ctx context.Context, r *http.Request, tenantID uuid.UUID) {
	sessionID, data, err := m.load(ctx, r)
	if err != nil {
		return
	}
	if _, ok := data.Carts[tenantID]; !ok {
		return
	}
	delete(data.Carts, tenantID)
	m.store.Set(ctx, sessionID, data, ttl)
}

func (m *Manager) load(ctx context.Context, r *http.Request) (string, *Data, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return "", nil, fmt.Errorf("no session cookie found: %w", err)
	}
	if ctx == nil {
		ctx = r.Context()
	}

	data, ok := m.store.Get(ctx, cookie.Value)
	if !ok {
		return "", nil, fmt.Errorf("session not found or expired")
	}
	if m.now().Unix()-data.CreatedAt > int64(ttl.Seconds()) {
		m.store.Delete(ctx, cookie.Value)
		return "", nil, fmt.Errorf("session expired")
	}
	return cookie.Value, data, nil
}

func (m *Manager) writeCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cloneData(data *Data) *Data {
	if data == nil {
		return nil
	}
	cloned := *data
	if data.Carts != nil {
		cloned.Carts = make(map[uuid.UUID]uuid.UUID, len(data.Carts))
		for k, v := range data.Carts {
			cloned.Carts[k] = v
		}
	}
	return &cloned
}
