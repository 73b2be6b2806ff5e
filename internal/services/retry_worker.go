package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/storekit/storefront/internal/logging"
)

const (
	retryBatchSize = 25
	retryLease     = 5 * time.Minute
)

type dueProcessor interface {
	ProcessDue(ctx context.Context, limit int, lease time.Duration) (int, error)
}

// RetryWorker polls for webhook deliveries waiting to be retried.
type RetryWorker struct {
	processor dueProcessor
	interval  time.Duration
	logger    *slog.Logger
}

func NewRetryWorker(processor dueProcessor, interval time.Duration, logger *slog.Logger) *RetryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RetryWorker{processor: processor, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another poll so a backlog drains without waiting for the next tick.
func (w *RetryWorker) Run(ctx context.Context) {
	logger := logging.FromContext(ctx, w.logger)
	logger.Info("webhook retry worker started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("webhook retry worker stopped")
			return
		case <-ticker.C:
		}

		for w.runOnce(ctx) == retryBatchSize {
			if ctx.Err() != nil {
				break
			}
		}
	}
}

func (w *RetryWorker) runOnce(ctx context.Context) int {
	hub := sentry.CurrentHub().Clone()
	ctx = sentry.SetHubOnContext(ctx, hub)
	span := sentry.StartSpan(
		ctx,
		"worker.webhook_retry",
		sentry.WithOpName("worker.webhook_retry"),
		sentry.WithDescription("ProcessDue"),
		sentry.WithTransactionSource(sentry.SourceTask),
	)
	defer span.Finish()

	claimed, err := w.processor.ProcessDue(span.Context(), retryBatchSize, retryLease)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		logging.FromContext(ctx, w.logger).Error("webhook retry poll failed", "error", err)
		return 0
	}
	if claimed > 0 {
		logging.FromContext(ctx, w.logger).Info("webhook retries processed", "count", claimed)
	}
	span.Status = sentry.SpanStatusOK
	return claimed
}
