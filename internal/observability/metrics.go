// Package observability carries the request-scoped Sentry meter and the
// traced outbound HTTP client.
package observability

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
)

type meterContextKey struct{}

// WithMeter stores meter on ctx. A nil meter is replaced with a fresh one
// bound to ctx.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	ctx = orBackground(ctx)
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterContextKey{}, meter.WithCtx(ctx))
}

// MeterFromContext returns the meter stored by WithMeter, bound to ctx, or a
// new unscoped meter for background work such as the retry worker.
func MeterFromContext(ctx context.Context) sentry.Meter {
	ctx = orBackground(ctx)
	meter, _ := ctx.Value(meterContextKey{}).(sentry.Meter)
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return meter.WithCtx(ctx)
}

// ScopeTenant labels every later metric and captured error on ctx with the
// store they belong to.
func ScopeTenant(ctx context.Context, tenantID uuid.UUID, slug string) {
	MeterFromContext(ctx).SetAttributes(attribute.String("tenant.id", tenantID.String()))
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.Scope().SetTag("tenant.slug", slug)
	}
}

// CountReason increments name once, split by reason.
func CountReason(ctx context.Context, name, reason string) {
	MeterFromContext(ctx).Count(name, 1, sentry.WithAttributes(attribute.String("reason", reason)))
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
