package handlers

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/storekit/storefront/internal/observability"
)

var apiSecurityHeaders = map[string]string{
	"X-Content-Type-Options":       "nosniff",
	"X-Frame-Options":              "DENY",
	"Referrer-Policy":              "strict-origin-when-cross-origin",
	"Cross-Origin-Opener-Policy":   "same-origin",
	"Cross-Origin-Resource-Policy": "same-origin",
	"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
	"Cache-Control":                "no-store",
}

// SecurityHeaders sets the headers every JSON response carries. Handlers may
// override Cache-Control for cacheable content.
func (h *Handlers) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for name, value := range apiSecurityHeaders {
			w.Header().Set(name, value)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSameOrigin rejects cart, checkout and payment writes that do not
// come from the storefront's own pages. Those routes authenticate by cookie
// alone, so a present Origin or Referer must name this host or BASE_URL's,
// and at least one of them must be present.
func (h *Handlers) RequireSameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requestMutatesState(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		if reason := h.crossOriginReason(r); reason != "" {
			observability.CountReason(r.Context(), "security.same_origin.blocked", reason)
			h.loggerFromContext(r.Context()).Warn("blocked cross-origin storefront write",
				"reason", reason,
				"origin", r.Header.Get("Origin"),
				"referer", r.Header.Get("Referer"),
			)
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "cross-origin request rejected"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// crossOriginReason returns why r fails the same-origin check, or "" if it
// passes.
func (h *Handlers) crossOriginReason(r *http.Request) string {
	allowed := map[string]bool{hostOnly(r.Host): true}
	if h.config != nil {
		if base, err := url.Parse(strings.TrimSpace(h.config.BaseURL)); err == nil && base.Hostname() != "" {
			allowed[strings.ToLower(base.Hostname())] = true
		}
	}

	seen := false
	for _, header := range []string{"Origin", "Referer"} {
		value := strings.TrimSpace(r.Header.Get(header))
		if value == "" {
			continue
		}
		seen = true
		parsed, err := url.Parse(value)
		if err != nil || parsed.Hostname() == "" || !allowed[strings.ToLower(parsed.Hostname())] {
			return "invalid_" + strings.ToLower(header)
		}
	}
	if !seen {
		return "missing_origin_and_referer"
	}
	return ""
}

func requestMutatesState(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

func hostOnly(hostport string) string {
	hostport = strings.ToLower(strings.TrimSpace(hostport))
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}
