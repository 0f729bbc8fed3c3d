package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithoutContext(t *testing.T) {
	for _, tc := range []struct {
		name          string
		expectedLevel zapcore.Level
	}{
		{
			name:          "Info",
			expectedLevel: zapcore.InfoLevel,
		},
		{
			name:          "Debug",
			expectedLevel: zapcore.DebugLevel,
		},
		{
			name:          "Warn",
			expectedLevel: zapcore.WarnLevel,
		},
		{
			name:          "Error",
			expectedLevel: zapcore.ErrorLevel,
		},
	} {
		observerLogger, logs := observer.New(zap.DebugLevel)
		dut := ZapLogger{zap.New(observerLogger)}
		const testMessage = "ABC"
		switch tc.name {
		case "Info":
			dut.Info(testMessage)
		case "Debug":
			dut.Debug(testMessage)
		case "Warn":
			dut.Warn(testMessage)
		case "Error":
			dut.Error(testMessage)
		default:
			t.Errorf("%s: Unknown name", tc.name)
		}
		require.Equal(t, 1, logs.Len())

		actualMessage := logs.All()[0]
		require.Equal(t, testMessage, actualMessage.Message)

		expectedZapFields := map[string]interface{}{}
		require.Equal(t, expectedZapFields, actualMessage.ContextMap())
		require.Equal(t, tc.expectedLevel, actualMessage.Level)
	}
}

func TestWithContext(t *testing.T) {
	for _, tc := range []struct {
		name          string
		expectedLevel zapcore.Level
	}{
		{
			name:          "InfoWithContext",
			expectedLevel: zapcore.InfoLevel,
		},
		{
			name:          "DebugWithContext",
			expectedLevel: zapcore.DebugLevel,
		},
		{
			name:          "WarnWithContext",
			expectedLevel: zapcore.WarnLevel,
		},
		{
			name:          "ErrorWithContext",
			expectedLevel: zapcore.ErrorLevel,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			observerLogger, logs := observer.New(zap.DebugLevel)
			dut := ZapLogger{zap.New(observerLogger)}
			const testMessage = "ABC"
			switch tc.name {
			case "InfoWithContext":
				dut.InfoWithContext(context.Background(), testMessage)
			case "DebugWithContext":
				dut.DebugWithContext(context.Background(), testMessage)
			case "WarnWithContext":
				dut.WarnWithContext(context.Background(), testMessage)
			case "ErrorWithContext":
				dut.ErrorWithContext(context.Background(), testMessage)
			default:
				t.Errorf("%s: Unknown name", tc.name)
			}
			require.Equal(t, 1, logs.Len())

			actualMessage := logs.All()[0]
			require.Equal(t, testMessage, actualMessage.Message)

			expectedZapFields := map[string]interface{}{}
			require.Equal(t, expectedZapFields, actualMessage.ContextMap())
			require.Equal(t, tc.expectedLevel, actualMessage.Level)
		})
	}
}

func TestWithFields(t *testing.T) {
	observerLogger, logs := observer.New(zap.DebugLevel)
	logger := ZapLogger{zap.New(observerLogger)}

	const testMessage = "ABC"

	newLogger := logger.With(
		zap.String("TestOption", "Message"),
	)

	newLogger.Info(testMessage)

	// Check that child message carries the context fields
	expectedZapFields := map[string]interface{}{
		"TestOption": "Message",
	}
	childMessage := logs.All()[0]
	require.Equal(t, expectedZapFields, childMessage.ContextMap())

	// Check that parent message does not carry the context fields
	logger.Info(testMessage)
	parentMessage := logs.All()[1]
	require.Empty(t, parentMessage.ContextMap())
}

func TestParseFormat(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected Format
		wantErr  bool
	}{
		{input: "text", expected: FormatPlain},
		{input: "", expected: FormatPlain},
		{input: "JSON", expected: FormatStructured},
		{input: "structured", expected: FormatStructured},
		{input: "yaml", wantErr: true},
	} {
		t.Run(tc.input, func(t *testing.T) {
			format, err := ParseFormat(tc.input)
			if tc.wantErr {
				require.ErrorContains(t, err, "unknown log format")
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, format)
		})
	}

	require.Equal(t, "json", FormatStructured.String())
	require.Equal(t, "text", FormatPlain.String())
}

func TestNewLogger(t *testing.T) {
	for _, format := range []Format{FormatPlain, FormatStructured} {
		t.Run(format.String(), func(t *testing.T) {
			logger, err := NewLogger(format, "warn")
			require.NoError(t, err)
			require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
			require.True(t, logger.Core().Enabled(zapcore.WarnLevel))
		})
	}

	_, err := NewLogger(FormatPlain, "chatty")
	require.ErrorContains(t, err, "unknown log level: chatty")
	require.Panics(t, func() { MustNewLogger(FormatStructured, "chatty") })

	noop, err := NewLogger(FormatStructured, "none")
	require.NoError(t, err)
	require.False(t, noop.Core().Enabled(zapcore.FatalLevel))
}

func TestWithContextAddsSpanFields(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := tp.Tracer("test").Start(context.Background(), "request")

	logger, logs := NewObserverLogger("info")
	logger.InfoWithContext(ctx, "visible", zap.String("k", "v"))
	logger.DebugWithContext(ctx, "filtered")
	span.End()

	require.Equal(t, 1, logs.Len())
	require.Equal(t, map[string]interface{}{
		"k":        "v",
		"trace_id": span.SpanContext().TraceID().String(),
		"span_id":  span.SpanContext().SpanID().String(),
	}, logs.All()[0].ContextMap())

	_, other := tp.Tracer("test").Start(context.Background(), "other")
	logger.InfoWithContext(trace.ContextWithSpan(context.Background(), other), "elsewhere")
	logger.Info("no trace")
	other.End()

	correlated := logs.ForTrace(span.SpanContext().TraceID())
	require.Len(t, correlated, 1)
	require.Equal(t, "visible", correlated[0].Message)
	require.Empty(t, logs.ForTrace(trace.TraceID{}))

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	require.Len(t, ended[0].Events(), 1)
	require.Equal(t, "visible", ended[0].Events()[0].Name)
	require.Contains(t, ended[0].Events()[0].Attributes, attribute.String("log.severity", "info"))
}
