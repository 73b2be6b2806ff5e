package handlers

import (
	"net/http"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/storekit/storefront/internal/observability"
)

const rateLimiterClients = 10_000

// ipRateLimiter keeps a token bucket per client IP. The least recently seen
// clients are evicted once the table is full.
type ipRateLimiter struct {
	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

func newIPRateLimiter(rps float64, burst int) (*ipRateLimiter, error) {
	clients, err := lru.New[string, *rate.Limiter](rateLimiterClients)
	if err != nil {
		return nil, err
	}
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &ipRateLimiter{clients: clients, limit: limit, burst: burst}, nil
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	limiter, ok := l.clients.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.clients.Add(ip, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// RateLimit throttles storefront and webhook traffic per client IP.
func (h *Handlers) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter == nil || h.limiter.allow(clientIP(r)) {
			next.ServeHTTP(w, r)
			return
		}

		observability.MeterFromContext(r.Context()).Count("http.server.rate_limited", 1, sentry.WithAttributes(
			attribute.String("http.route", routeLabel(r)),
		))
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
	})
}
