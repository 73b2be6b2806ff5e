package db

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"

	"github.com/storekit/storefront/internal/logging"
)

const slowQueryThreshold = 250 * time.Millisecond

type queryTraceKey struct{}

type queryTrace struct {
	span    *sentry.Span
	sql     string
	started time.Time
}

// queryTracer opens a sentry span per statement when the caller is already
// traced, and logs statements slower than slowQueryThreshold.
type queryTracer struct {
	logger *slog.Logger
	slow   time.Duration
}

func newQueryTracer(logger *slog.Logger) *queryTracer {
	return &queryTracer{logger: logger, slow: slowQueryThreshold}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	trace := &queryTrace{sql: normalizeQuery(data.SQL), started: time.Now()}

	if sentry.SpanFromContext(ctx) != nil {
		span := sentry.StartSpan(
			ctx,
			"db.sql.query",
			sentry.WithDescription(trace.sql),
			sentry.WithSpanOrigin(sentry.SpanOriginManual),
		)
		span.SetData("db.system", "postgresql")
		if operation := queryOperation(trace.sql); operation != "" {
			span.SetData("db.operation", operation)
		}
		trace.span = span
		ctx = span.Context()
	}

	return context.WithValue(ctx, queryTraceKey{}, trace)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	trace, _ := ctx.Value(queryTraceKey{}).(*queryTrace)
	if trace == nil {
		return
	}

	if elapsed := time.Since(trace.started); t.slow > 0 && elapsed >= t.slow {
		logging.FromContext(ctx, t.logger).Warn("slow query",
			"duration", elapsed,
			"operation", queryOperation(trace.sql),
			"sql", trace.sql,
		)
	}

	if trace.span == nil {
		return
	}
	if data.Err != nil {
		trace.span.Status = sentry.SpanStatusInternalError
		trace.span.SetData("db.error", data.Err.Error())
	} else {
		trace.span.Status = sentry.SpanStatusOK
	}
	if rows := data.CommandTag.RowsAffected(); rows >= 0 {
		trace.span.SetData("db.rows_affected", rows)
	}
	trace.span.Finish()
}

func normalizeQuery(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if normalized == "" {
		return "sql.query"
	}

	const maxLen = 512
	if len(normalized) > maxLen {
		return normalized[:maxLen]
	}
	return normalized
}

func queryOperation(query string) string {
	operation, _, _ := strings.Cut(query, " ")
	if operation == "sql.query" {
		return ""
	}
	return strings.ToUpper(operation)
}
