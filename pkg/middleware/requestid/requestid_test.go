package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitID(t *testing.T) {
	t.Run("without_span_uses_ulid", func(t *testing.T) {
		id := InitID(context.Background())
		_, err := ulid.Parse(id)
		require.NoError(t, err)
		require.NotEqual(t, id, InitID(context.Background()))
	})

	t.Run("with_span_uses_trace_id", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		ctx, span := tp.Tracer("test").Start(context.Background(), "request")
		defer span.End()

		require.Equal(t, span.SpanContext().TraceID().String(), InitID(ctx))
	})
}

func TestNewHTTPHandler(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	var seen string
	handler := NewHTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = id
	}))

	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	req := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(ctx)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	span.End()

	traceID := span.SpanContext().TraceID().String()
	require.Equal(t, traceID, seen)
	require.Equal(t, traceID, resp.Header().Get(RequestIDHeader))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Contains(t, spans[0].Attributes(), attribute.String("request_id", traceID))
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)
}
