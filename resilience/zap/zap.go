// Package zap provides the production implementation of the resilience log
// contract, backed by go.uber.org/zap with OpenTelemetry trace correlation.
package zap

import (
	"context"
	"os"
	"strings"
	"time"

	logpkg "github.com/menumetrics/lib-resilience/resilience/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a structured logger that implements log.Logger.
type Logger struct {
	logger      *zap.Logger
	atomicLevel zap.AtomicLevel
}

// Compile-time assertion: *Logger implements logpkg.Logger.
var _ logpkg.Logger = (*Logger)(nil)

// New creates a JSON-encoded logger writing to stderr at the given level.
func New(level logpkg.Level) *Logger {
	atomicLevel := zap.NewAtomicLevelAt(toZapLevel(level))

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		atomicLevel,
	)

	return &Logger{
		logger:      zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		atomicLevel: atomicLevel,
	}
}

// NewWithZap wraps an existing zap logger, keeping level control with the caller.
func NewWithZap(logger *zap.Logger) *Logger {
	return &Logger{
		logger:      logger,
		atomicLevel: zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

func (l *Logger) must() *zap.Logger {
	if l == nil || l.logger == nil {
		return zap.NewNop()
	}

	return l.logger
}

// Log implements log.Logger. If ctx carries an active OpenTelemetry span,
// trace_id and span_id are appended so logs correlate with distributed traces.
func (l *Logger) Log(ctx context.Context, level logpkg.Level, msg string, fields ...logpkg.Field) {
	zapFields := toZapFields(fields)

	if ctx != nil {
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
			zapFields = append(zapFields,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
	}

	switch level {
	case logpkg.LevelDebug:
		l.must().Debug(sanitize(msg), zapFields...)
	case logpkg.LevelInfo:
		l.must().Info(sanitize(msg), zapFields...)
	case logpkg.LevelWarn:
		l.must().Warn(sanitize(msg), zapFields...)
	case logpkg.LevelError:
		l.must().Error(sanitize(msg), zapFields...)
	default:
		l.must().Info(sanitize(msg), zapFields...)
	}
}

// With returns a child logger with additional structured fields.
//
//nolint:ireturn
func (l *Logger) With(fields ...logpkg.Field) logpkg.Logger {
	child := &Logger{
		logger:      l.must().With(toZapFields(fields)...),
		atomicLevel: zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
	if l != nil {
		child.atomicLevel = l.atomicLevel
	}

	return child
}

// Enabled reports whether the given level would be emitted.
func (l *Logger) Enabled(level logpkg.Level) bool {
	if l == nil || l.logger == nil {
		return false
	}

	// A hand-constructed Logger has no atomic level; assume everything passes.
	if l.atomicLevel == (zap.AtomicLevel{}) {
		return true
	}

	return l.atomicLevel.Enabled(toZapLevel(level))
}

// Sync flushes buffered log entries.
func (l *Logger) Sync(_ context.Context) error {
	return l.must().Sync()
}

// SetLevel changes the logger's verbosity at runtime.
func (l *Logger) SetLevel(level logpkg.Level) {
	if l == nil || l.atomicLevel == (zap.AtomicLevel{}) {
		return
	}

	l.atomicLevel.SetLevel(toZapLevel(level))
}

func toZapLevel(level logpkg.Level) zapcore.Level {
	switch level {
	case logpkg.LevelDebug:
		return zapcore.DebugLevel
	case logpkg.LevelInfo:
		return zapcore.InfoLevel
	case logpkg.LevelWarn:
		return zapcore.WarnLevel
	case logpkg.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func toZapFields(fields []logpkg.Field) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields))

	for _, field := range fields {
		switch value := field.Value.(type) {
		case string:
			zapFields = append(zapFields, zap.String(field.Key, sanitize(value)))
		case int:
			zapFields = append(zapFields, zap.Int(field.Key, value))
		case int64:
			zapFields = append(zapFields, zap.Int64(field.Key, value))
		case float64:
			zapFields = append(zapFields, zap.Float64(field.Key, value))
		case bool:
			zapFields = append(zapFields, zap.Bool(field.Key, value))
		case time.Duration:
			zapFields = append(zapFields, zap.Duration(field.Key, value))
		case time.Time:
			zapFields = append(zapFields, zap.Time(field.Key, value))
		case error:
			zapFields = append(zapFields, zap.NamedError(field.Key, value))
		default:
			zapFields = append(zapFields, zap.Any(field.Key, value))
		}
	}

	return zapFields
}

// sanitizeReplacer escapes control characters that can be used for log
// injection (CWE-117): newlines and carriage returns in attacker-influenced
// strings can forge fake log entries.
var sanitizeReplacer = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func sanitize(s string) string {
	return sanitizeReplacer.Replace(s)
}
