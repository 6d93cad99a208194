//go:build unit

package zap

import (
	"context"
	"errors"
	"testing"
	"time"

	logpkg "github.com/menumetrics/lib-resilience/resilience/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(level)

	return &Logger{
		logger:      zap.New(core),
		atomicLevel: zap.NewAtomicLevelAt(level),
	}, observed
}

func TestLogger_NilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var nilLogger *Logger

	assert.NotPanics(t, func() {
		nilLogger.Log(context.Background(), logpkg.LevelInfo, "message")
		nilLogger.With(logpkg.String("k", "v")).Log(context.Background(), logpkg.LevelInfo, "child")
		nilLogger.SetLevel(logpkg.LevelDebug)
	})

	assert.False(t, nilLogger.Enabled(logpkg.LevelError))
	assert.NoError(t, nilLogger.Sync(context.Background()))
}

func TestLogger_LevelRouting(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.DebugLevel)
	ctx := context.Background()

	logger.Log(ctx, logpkg.LevelDebug, "debug message")
	logger.Log(ctx, logpkg.LevelInfo, "info message", logpkg.String("request_id", "req-1"))
	logger.Log(ctx, logpkg.LevelWarn, "warn message")
	logger.Log(ctx, logpkg.LevelError, "error message", logpkg.Err(errors.New("boom")))

	entries := observed.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "req-1", entries[1].ContextMap()["request_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}

func TestLogger_WithDoesNotMutateParent(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.DebugLevel)
	child := logger.With(logpkg.String("platform", "wolt"))

	ctx := context.Background()
	logger.Log(ctx, logpkg.LevelInfo, "parent")
	child.Log(ctx, logpkg.LevelInfo, "child")

	entries := observed.All()
	require.Len(t, entries, 2)

	_, parentHasPlatform := entries[0].ContextMap()["platform"]
	assert.False(t, parentHasPlatform)
	assert.Equal(t, "wolt", entries[1].ContextMap()["platform"])
}

func TestLogger_TypedFieldMapping(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.DebugLevel)

	logger.Log(context.Background(), logpkg.LevelInfo, "fields",
		logpkg.String("s", "value"),
		logpkg.Int("i", 42),
		logpkg.Float64("f", 0.5),
		logpkg.Bool("b", true),
		logpkg.Duration("d", 2*time.Second),
	)

	entries := observed.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "value", fields["s"])
	assert.EqualValues(t, 42, fields["i"])
	assert.Equal(t, 0.5, fields["f"])
	assert.Equal(t, true, fields["b"])
	assert.Equal(t, 2*time.Second, fields["d"])
}

func TestLogger_SanitizesControlCharacters(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.DebugLevel)

	logger.Log(context.Background(), logpkg.LevelInfo, "line one\nline two",
		logpkg.String("input", "a\r\nb"))

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, `line one\nline two`, entries[0].Message)
	assert.Equal(t, `a\r\nb`, entries[0].ContextMap()["input"])
}

func TestLogger_AppendsTraceCorrelation(t *testing.T) {
	t.Parallel()

	logger, observed := newObservedLogger(zapcore.DebugLevel)

	traceID := trace.TraceID{0x01}
	spanID := trace.SpanID{0x02}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.Log(ctx, logpkg.LevelInfo, "traced")

	entries := observed.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, traceID.String(), fields["trace_id"])
	assert.Equal(t, spanID.String(), fields["span_id"])
}

func TestLogger_EnabledFollowsSetLevel(t *testing.T) {
	t.Parallel()

	logger := New(logpkg.LevelInfo)

	assert.True(t, logger.Enabled(logpkg.LevelError))
	assert.True(t, logger.Enabled(logpkg.LevelInfo))
	assert.False(t, logger.Enabled(logpkg.LevelDebug))

	logger.SetLevel(logpkg.LevelDebug)
	assert.True(t, logger.Enabled(logpkg.LevelDebug))
}
