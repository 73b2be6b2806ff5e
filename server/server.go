package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/storekit/storefront/internal/config"
	"github.com/storekit/storefront/internal/handlers"
)

// Server is the storefront HTTP server.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	// WriteTimeout leaves room for checkout's payment gateway call (15s).
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
		MaxHeaderBytes:    64 << 10,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// route is one endpoint; name doubles as the metrics and log label.
type route struct {
	name    string
	method  string
	path    string
	handler http.HandlerFunc
}

// routeGroup shares a path prefix and middleware chain.
type routeGroup struct {
	prefix     string
	middleware []mux.MiddlewareFunc
	routes     []route
}

func routeGroups(h *handlers.Handlers) []routeGroup {
	return []routeGroup{
		{
			// Public storefront, scoped to one store by slug. Writes are
			// authenticated by the cart cookie alone.
			prefix:     "/s/{slug}",
			middleware: []mux.MiddlewareFunc{h.RateLimit, h.StorefrontTenant, h.RequireSameOrigin},
			routes: []route{
				{"storefront.home", http.MethodGet, "/home", h.Home},
				{"storefront.cart", http.MethodGet, "/cart", h.GetCart},
				{"storefront.cart.clear", http.MethodDelete, "/cart", h.ClearCart},
				{"storefront.cart.add", http.MethodPost, "/cart/items", h.AddCartItem},
				{"storefront.cart.update", http.MethodPatch, "/cart/items/{productID}", h.UpdateCartItem},
				{"storefront.cart.remove", http.MethodDelete, "/cart/items/{productID}", h.RemoveCartItem},
				{"storefront.checkout", http.MethodPost, "/checkout", h.Checkout},
				{"storefront.payments.retry", http.MethodPost, "/payments/{orderID}/retry", h.RetryPayment},
				{"storefront.payments.verify", http.MethodPost, "/payments/{orderID}/verify", h.VerifyPayment},
				{"storefront.payments.cancel", http.MethodPost, "/payments/{orderID}/cancel", h.CancelPayment},
			},
		},
		{
			prefix:     "/api/owner",
			middleware: []mux.MiddlewareFunc{h.RequireOwner},
			routes: []route{
				{"owner.layout", http.MethodGet, "/layout", h.GetLayout},
				{"owner.layout.save", http.MethodPut, "/layout", h.PutLayout},
				{"owner.layout.ops", http.MethodPost, "/layout/ops", h.ApplyLayoutOps},
				{"owner.integrations", http.MethodGet, "/integrations", h.GetIntegrations},
				{"owner.integrations.save", http.MethodPut, "/integrations", h.PutIntegrations},
			},
		},
		{
			// Authenticated per delivery by signature or token, not by origin.
			prefix:     "/webhooks",
			middleware: []mux.MiddlewareFunc{h.RateLimit},
			routes: []route{
				{"webhooks.razorpay", http.MethodPost, "/razorpay/{tenantID}", h.RazorpayWebhook},
				{"webhooks.shiprocket", http.MethodPost, "/shiprocket/{tenantID}", h.ShiprocketWebhook},
			},
		},
	}
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestScope, h.SecurityHeaders)
	r.NotFoundHandler = http.HandlerFunc(jsonStatus(http.StatusNotFound, "not found"))
	r.MethodNotAllowedHandler = http.HandlerFunc(jsonStatus(http.StatusMethodNotAllowed, "method not allowed"))
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet).Name("health")

	for _, group := range routeGroups(h) {
		sub := r.PathPrefix(group.prefix).Subrouter()
		sub.Use(group.middleware...)
		for _, rt := range group.routes {
			sub.HandleFunc(rt.path, rt.handler).Methods(rt.method).Name(rt.name)
		}
	}
	return r
}

// jsonStatus answers requests that matched no route. Router middleware does
// not run for them.
func jsonStatus(status int, message string) func(http.ResponseWriter, *http.Request) {
	body := fmt.Sprintf("{\"error\":%q}\n", message)
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}
