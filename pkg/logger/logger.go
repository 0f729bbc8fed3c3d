package logger

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stargate-gql/stargate/internal/build"
)

const (
	traceIDKey = "trace_id"
	spanIDKey  = "span_id"

	spanEventLevelKey = "log.severity"
)

// Format selects how log entries are rendered. Both formats share the same
// level filter and the same trace correlation.
type Format int

const (
	// FormatPlain renders human-readable console lines.
	FormatPlain Format = iota
	// FormatStructured renders one JSON object per entry.
	FormatStructured
)

func (f Format) String() string {
	switch f {
	case FormatStructured:
		return "json"
	default:
		return "text"
	}
}

// ParseFormat maps the configured log format ("text" or "json") to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "plain", "":
		return FormatPlain, nil
	case "json", "structured":
		return FormatStructured, nil
	default:
		return FormatPlain, fmt.Errorf("unknown log format: %s", s)
	}
}

type Logger interface {
	With(...zap.Field) Logger

	// These are ops that call directly to the actual zap implementation
	Debug(string, ...zap.Field)
	Info(string, ...zap.Field)
	Warn(string, ...zap.Field)
	Error(string, ...zap.Field)
	Panic(string, ...zap.Field)
	Fatal(string, ...zap.Field)

	// These are the equivalent logger function but with context provided.
	// When the context carries a valid span, the entry is annotated with the
	// trace and span IDs and recorded as an event on that span.
	DebugWithContext(context.Context, string, ...zap.Field)
	InfoWithContext(context.Context, string, ...zap.Field)
	WarnWithContext(context.Context, string, ...zap.Field)
	ErrorWithContext(context.Context, string, ...zap.Field)
	PanicWithContext(context.Context, string, ...zap.Field)
	FatalWithContext(context.Context, string, ...zap.Field)
}

// ZapLogger is an implementation of Logger that uses the uber/zap logger underneath.
// It provides additional methods such as ones that logs based on context.
type ZapLogger struct {
	*zap.Logger
}

var _ Logger = (*ZapLogger)(nil)

// With returns a child logger carrying fields. The receiver is unchanged.
func (l *ZapLogger) With(fields ...zap.Field) Logger {
	return &ZapLogger{l.Logger.With(fields...)}
}

func (l *ZapLogger) Debug(msg string, fields ...zap.Field) {
	l.Logger.Debug(msg, fields...)
}

func (l *ZapLogger) Info(msg string, fields ...zap.Field) {
	l.Logger.Info(msg, fields...)
}

func (l *ZapLogger) Warn(msg string, fields ...zap.Field) {
	l.Logger.Warn(msg, fields...)
}

func (l *ZapLogger) Error(msg string, fields ...zap.Field) {
	l.Logger.Error(msg, fields...)
}

func (l *ZapLogger) Panic(msg string, fields ...zap.Field) {
	l.Logger.Panic(msg, fields...)
}

func (l *ZapLogger) Fatal(msg string, fields ...zap.Field) {
	l.Logger.Fatal(msg, fields...)
}

func (l *ZapLogger) DebugWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Debug(msg, l.spanFields(ctx, zapcore.DebugLevel, msg, fields)...)
}

func (l *ZapLogger) InfoWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Info(msg, l.spanFields(ctx, zapcore.InfoLevel, msg, fields)...)
}

func (l *ZapLogger) WarnWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Warn(msg, l.spanFields(ctx, zapcore.WarnLevel, msg, fields)...)
}

func (l *ZapLogger) ErrorWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Error(msg, l.spanFields(ctx, zapcore.ErrorLevel, msg, fields)...)
}

func (l *ZapLogger) PanicWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Panic(msg, l.spanFields(ctx, zapcore.PanicLevel, msg, fields)...)
}

func (l *ZapLogger) FatalWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Fatal(msg, l.spanFields(ctx, zapcore.FatalLevel, msg, fields)...)
}

// spanFields appends the trace correlation fields for the span in ctx and
// mirrors the entry onto that span as an event. Entries below the configured
// level are dropped from both sinks.
func (l *ZapLogger) spanFields(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) []zap.Field {
	span := trace.SpanFromContext(ctx)
	spanCtx := span.SpanContext()
	if !spanCtx.IsValid() || !l.Core().Enabled(level) {
		return fields
	}

	if span.IsRecording() {
		span.AddEvent(msg, trace.WithAttributes(attribute.String(spanEventLevelKey, level.String())))
	}

	out := make([]zap.Field, 0, len(fields)+2)
	out = append(out, fields...)
	return append(out,
		zap.String(traceIDKey, spanCtx.TraceID().String()),
		zap.String(spanIDKey, spanCtx.SpanID().String()),
	)
}

// NewNoopLogger provides noop logger that satisfies the logger interface.
func NewNoopLogger() *ZapLogger {
	return &ZapLogger{
		zap.NewNop(),
	}
}

// ParseLevel maps a configured level name to a zap level.
func ParseLevel(logLevel string) (zapcore.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return zap.DebugLevel, nil
	case "info", "":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	case "panic":
		return zap.PanicLevel, nil
	case "fatal":
		return zap.FatalLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("unknown log level: %s", logLevel)
	}
}

func NewLogger(format Format, logLevel string) (*ZapLogger, error) {
	if logLevel == "none" {
		return NewNoopLogger(), nil
	}

	level, err := ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.CallerKey = "" // remove the "caller" field
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == FormatPlain {
		cfg.Encoding = "console"
		cfg.DisableCaller = true
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	if format == FormatStructured {
		log = log.With(zap.String("build.version", build.Version), zap.String("build.commit", build.Commit))
	}

	return &ZapLogger{log}, nil
}

func MustNewLogger(format Format, logLevel string) *ZapLogger {
	logger, err := NewLogger(format, logLevel)
	if err != nil {
		panic(err)
	}

	return logger
}
