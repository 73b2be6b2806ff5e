package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/lmittmann/tint"
)

// New builds the process logger. Text output goes through tint; "json"
// selects slog's JSON handler. When withSentry is set, records are also
// forwarded to the current Sentry hub.
func New(w io.Writer, format string, level slog.Leveler, withSentry bool) *slog.Logger {
	var console slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		console = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		console = tint.NewHandler(w, &tint.Options{Level: level})
	}
	if !withSentry {
		return slog.New(console)
	}
	return slog.New(fanout{console, newSentryHandler(level)})
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (h fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs error
	for _, handler := range h {
		if handler.Enabled(ctx, record.Level) {
			errs = errors.Join(errs, handler.Handle(ctx, record.Clone()))
		}
	}
	return errs
}

func (h fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(handler slog.Handler) slog.Handler { return handler.WithAttrs(attrs) })
}

func (h fanout) WithGroup(name string) slog.Handler {
	return h.each(func(handler slog.Handler) slog.Handler { return handler.WithGroup(name) })
}

func (h fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	next := make(fanout, 0, len(h))
	for _, handler := range h {
		next = append(next, fn(handler))
	}
	return next
}

// sentryHandler turns warnings and below into breadcrumbs and reports errors
// as events, so an error arrives with the log trail that led to it.
type sentryHandler struct {
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

func newSentryHandler(level slog.Leveler) *sentryHandler {
	return &sentryHandler{level: level}
}

func (h *sentryHandler) Enabled(_ context.Context, level slog.Level) bool {
	threshold := slog.LevelInfo
	if h.level != nil {
		threshold = h.level.Level()
	}
	return level >= threshold
}

func (h *sentryHandler) Handle(ctx context.Context, record slog.Record) error {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	data := make(map[string]any, len(h.attrs)+record.NumAttrs())
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Resolve().Any()
	}
	record.Attrs(func(attr slog.Attr) bool {
		data[h.prefix+attr.Key] = attr.Value.Resolve().Any()
		return true
	})

	if record.Level < slog.LevelError {
		hub.AddBreadcrumb(&sentry.Breadcrumb{
			Category:  "log",
			Message:   record.Message,
			Level:     sentryLevel(record.Level),
			Data:      data,
			Timestamp: record.Time,
		}, nil)
		return nil
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetContext("log", data)
		if err, ok := data["error"].(error); ok {
			hub.CaptureException(fmt.Errorf("%s: %w", record.Message, err))
			return
		}
		hub.CaptureMessage(record.Message)
	})
	return nil
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, attr := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.prefix + attr.Key, Value: attr.Value})
	}
	return &next
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func sentryLevel(level slog.Level) sentry.Level {
	switch {
	case level >= slog.LevelError:
		return sentry.LevelError
	case level >= slog.LevelWarn:
		return sentry.LevelWarning
	case level >= slog.LevelInfo:
		return sentry.LevelInfo
	default:
		return sentry.LevelDebug
	}
}
