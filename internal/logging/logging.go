// Package logging provides the ambient structured logger shared across the
// hub, the delivery engine, and the HTTP API.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

type ctxKey int

const (
	ctxKeyOrgID ctxKey = iota
	ctxKeyConnectionID
	ctxKeyEventID
	ctxKeyWebhookID
)

// Config controls the global logger's format and destination.
type Config struct {
	Level      string // debug|info|warn|error
	Production bool   // true => json handler, false => text handler
	Output     io.Writer
}

var (
	mu            sync.RWMutex
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

// Init (re)configures the global logger. Safe to call once at startup.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if cfg.Production {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}

	mu.Lock()
	defaultLogger = slog.New(h)
	mu.Unlock()
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// ContextWithOrgID, ContextWithConnectionID, ContextWithEventID, and
// ContextWithWebhookID attach domain identifiers that With(ctx) will
// surface as structured fields.
func ContextWithOrgID(ctx context.Context, orgID int64) context.Context {
	return context.WithValue(ctx, ctxKeyOrgID, orgID)
}

func ContextWithConnectionID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, ctxKeyConnectionID, connID)
}

func ContextWithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, ctxKeyEventID, eventID)
}

func ContextWithWebhookID(ctx context.Context, webhookID int64) context.Context {
	return context.WithValue(ctx, ctxKeyWebhookID, webhookID)
}

// With returns a logger enriched with whichever domain identifiers are
// present on ctx.
func With(ctx context.Context) *slog.Logger {
	l := logger()
	if v, ok := ctx.Value(ctxKeyOrgID).(int64); ok {
		l = l.With("org_id", v)
	}
	if v, ok := ctx.Value(ctxKeyConnectionID).(string); ok {
		l = l.With("connection_id", v)
	}
	if v, ok := ctx.Value(ctxKeyEventID).(string); ok {
		l = l.With("event_id", v)
	}
	if v, ok := ctx.Value(ctxKeyWebhookID).(int64); ok {
		l = l.With("webhook_id", v)
	}
	return l
}

// WithComponent tags all records from the returned logger with component.
func WithComponent(component string) *slog.Logger {
	return logger().With("component", component)
}

func Debug(msg string, args ...any) { logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { logger().Warn(msg, args...) }
func Error(msg string, args ...any) { logger().Error(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) { With(ctx).Debug(msg, args...) }
func InfoContext(ctx context.Context, msg string, args ...any)  { With(ctx).Info(msg, args...) }
func WarnContext(ctx context.Context, msg string, args ...any)  { With(ctx).Warn(msg, args...) }
func ErrorContext(ctx context.Context, msg string, args ...any) { With(ctx).Error(msg, args...) }
