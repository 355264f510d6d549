package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", CycleID(ctx))
	assert.Equal(t, "", Component(ctx))
	assert.Equal(t, "", SessionID(ctx))

	ctx = WithCycleID(ctx, "c-123")
	ctx = WithComponent(ctx, "objectives")
	ctx = WithSessionID(ctx, "s-42")

	assert.Equal(t, "c-123", CycleID(ctx))
	assert.Equal(t, "objectives", Component(ctx))
	assert.Equal(t, "s-42", SessionID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithIDs(context.Background(), "c-abc", "alternatives", "s-7")
	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "cycle_id=c-abc")
	assert.Contains(t, output, "component=alternatives")
	assert.Contains(t, output, "session_id=s-7")
	assert.Contains(t, output, "test message")
}

func TestLogWithPartialContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	LogWith(WithCycleID(context.Background(), "c-only"), logger).Info("partial")

	output := buf.String()
	assert.Contains(t, output, "cycle_id=c-only")
	assert.NotContains(t, output, "component=")
	assert.NotContains(t, output, "session_id")
}

func TestLogWithEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	LogWith(context.Background(), logger).Info("no context")

	output := buf.String()
	assert.NotContains(t, output, "cycle_id")
	assert.NotContains(t, output, "trace_id")
	assert.Contains(t, output, "no context")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithIDs(context.Background(), "c-auto", "tradeoffs", "s-auto")
	logger.InfoContext(ctx, "auto inject")

	output := buf.String()
	assert.Contains(t, output, `"cycle_id":"c-auto"`)
	assert.Contains(t, output, `"component":"tradeoffs"`)
	assert.Contains(t, output, `"session_id":"s-auto"`)
}

func TestCorrelationHandlerTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	logger.InfoContext(ctx, "traced")

	output := buf.String()
	assert.Contains(t, output, `"trace_id":"`+sc.TraceID().String()+`"`)
	assert.Contains(t, output, `"span_id":"`+sc.SpanID().String()+`"`)
}

func TestCorrelationHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "bare log")

	output := buf.String()
	assert.NotContains(t, output, "cycle_id")
	assert.Contains(t, output, "bare log")
}

func TestCorrelationHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("subsystem", "engine")}))

	logger.InfoContext(WithCycleID(context.Background(), "c-attr"), "with attrs")

	output := buf.String()
	assert.Contains(t, output, `"cycle_id":"c-attr"`)
	assert.Contains(t, output, `"subsystem":"engine"`)
}

func TestCorrelationHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler.WithGroup("engine"))

	logger.InfoContext(WithCycleID(context.Background(), "c-grp"), "grouped", "key", "val")

	output := buf.String()
	assert.Contains(t, output, "c-grp")
	assert.Contains(t, output, "grouped")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "text")
	require.NoError(t, err)

	logger.InfoContext(context.Background(), "hidden")
	logger.WarnContext(WithCycleID(context.Background(), "c-1"), "shown")

	output := buf.String()
	assert.NotContains(t, output, "hidden")
	assert.Contains(t, output, "cycle_id=c-1")

	_, err = NewLogger(&buf, "loud", "json")
	assert.Error(t, err)
	_, err = NewLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
