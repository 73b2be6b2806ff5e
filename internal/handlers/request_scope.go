package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/storekit/storefront/internal/logging"
	"github.com/storekit/storefront/internal/observability"
)

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// requestScope is what one request carries from arrival to the final log line.
type requestScope struct {
	id     string
	route  string
	start  time.Time
	logger *slog.Logger
}

func newRequestScope(r *http.Request, base *slog.Logger) requestScope {
	scope := requestScope{
		id:    requestIDFromRequest(r),
		route: routeLabel(r),
		start: time.Now(),
	}
	scope.logger = base.With(
		"request_id", scope.id,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_ip", clientIP(r),
	)
	if scope.route != "" {
		scope.logger = scope.logger.With("route", scope.route)
	}
	return scope
}

func (s requestScope) metricRoute() string {
	if s.route == "" {
		return "unknown"
	}
	return s.route
}

func (s requestScope) meterAttributes(r *http.Request) []attribute.Builder {
	attrs := []attribute.Builder{
		attribute.String("http.request_id", s.id),
		attribute.String("http.method", r.Method),
		attribute.String("http.route", s.metricRoute()),
		attribute.String("network.client.ip", clientIP(r)),
	}
	if userAgent := strings.TrimSpace(r.UserAgent()); userAgent != "" {
		attrs = append(attrs, attribute.String("http.user_agent", userAgent))
	}
	if r.ContentLength >= 0 {
		attrs = append(attrs, attribute.Int64("http.request_content_length", r.ContentLength))
	}
	return attrs
}

// RequestScope assigns the request id and puts a logger, a Sentry hub and a
// pre-attributed meter on the context. Tenant middleware adds tenant labels
// later. One log line and the request metrics are emitted on the way out.
func (h *Handlers) RequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := newRequestScope(r, h.logger)
		w.Header().Set(requestIDHeader, scope.id)
		r.Header.Set(requestIDHeader, scope.id)

		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetTag("request_id", scope.id)
		hub.Scope().SetRequest(r)

		ctx := sentry.SetHubOnContext(r.Context(), hub)
		ctx = logging.WithLogger(ctx, scope.logger)
		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.SetAttributes(scope.meterAttributes(r)...)
		ctx = observability.WithMeter(ctx, meter)

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		scope.finish(ctx, r, recorder)
	})
}

func (s requestScope) finish(ctx context.Context, r *http.Request, recorder *statusRecorder) {
	status := recorder.code()
	elapsed := time.Since(s.start)

	attrs := sentry.WithAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.route", s.metricRoute()),
		attribute.Int("http.status_code", status),
	)
	meter := sentry.NewMeter(ctx).WithCtx(ctx)
	meter.Count("http.server.requests", 1, attrs)
	meter.Distribution(
		"http.server.duration",
		float64(elapsed.Milliseconds()),
		sentry.WithUnit(sentry.UnitMillisecond),
		sentry.WithAttributes(
			attribute.String("http.route", s.metricRoute()),
			attribute.String("http.status_class", fmt.Sprintf("%dxx", status/100)),
		),
	)
	if status >= http.StatusInternalServerError {
		meter.Count("http.server.errors", 1, attrs)
	}

	level := slog.LevelInfo
	if r.URL.Path == "/health" {
		level = slog.LevelDebug
	}
	s.logger.Log(ctx, level, "request completed",
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
		"bytes", recorder.bytes,
	)
}

func requestIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(requestIDHeader)); id != "" {
		return id
	}
	return uuid.NewString()
}

// clientIP prefers the proxy headers set by the load balancer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// routeLabel is the mux route name, or its template for unnamed routes.
func routeLabel(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	if name := route.GetName(); name != "" {
		return name
	}
	template, _ := route.GetPathTemplate()
	return template
}
