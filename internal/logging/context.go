package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	cycleIDKey ctxKey = iota
	componentKey
	sessionIDKey
)

// WithCycleID returns a context with the cycle ID set.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey, id)
}

// WithComponent returns a context with the stage name set.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// WithSessionID returns a context with the session ID set.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// CycleID extracts the cycle ID from the context, or "" if absent.
func CycleID(ctx context.Context) string {
	v, _ := ctx.Value(cycleIDKey).(string)
	return v
}

// Component extracts the stage name from the context, or "" if absent.
func Component(ctx context.Context) string {
	v, _ := ctx.Value(componentKey).(string)
	return v
}

// SessionID extracts the session ID from the context, or "" if absent.
func SessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// WithIDs sets all three correlation values on the context at once.
func WithIDs(ctx context.Context, cycleID, component, sessionID string) context.Context {
	ctx = WithCycleID(ctx, cycleID)
	ctx = WithComponent(ctx, component)
	ctx = WithSessionID(ctx, sessionID)
	return ctx
}

// correlationAttrs returns the non-empty correlation values of ctx, plus the
// active trace and span IDs when a span is recording.
func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := CycleID(ctx); v != "" {
		attrs = append(attrs, slog.String("cycle_id", v))
	}
	if v := Component(ctx); v != "" {
		attrs = append(attrs, slog.String("component", v))
	}
	if v := SessionID(ctx); v != "" {
		attrs = append(attrs, slog.String("session_id", v))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()))
	}
	return attrs
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range correlationAttrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
