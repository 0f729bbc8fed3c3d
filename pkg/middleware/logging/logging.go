package logging

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stargate-gql/stargate/pkg/logger"
	"github.com/stargate-gql/stargate/pkg/middleware/requestid"
)

const (
	httpMethodKey      = "http_method"
	httpPathKey        = "http_path"
	httpCodeKey        = "http_code"
	requestIDKey       = "request_id"
	traceIDKey         = "trace_id"
	internalErrorKey   = "internal_error"
	httpReqCompleteKey = "http_req_complete"
	userAgentKey       = "user_agent"
	queryDurationKey   = "query_duration_ms"
	bytesWrittenKey    = "bytes_written"
)

type ctxKey struct{}

// annotations collects what the handlers want added to the access log line.
type annotations struct {
	mu            sync.Mutex
	internalError error
	fields        []zap.Field
}

// SetInternalError records the cause of a failed request. The cause is logged
// but never written to the response.
func SetInternalError(ctx context.Context, err error) {
	if a, ok := ctx.Value(ctxKey{}).(*annotations); ok && err != nil {
		a.mu.Lock()
		a.internalError = err
		a.mu.Unlock()
	}
}

// AddFields adds fields to the access log line of the request.
func AddFields(ctx context.Context, fields ...zap.Field) {
	if a, ok := ctx.Value(ctxKey{}).(*annotations); ok {
		a.mu.Lock()
		a.fields = append(a.fields, fields...)
		a.mu.Unlock()
	}
}

// NewHTTPLoggingHandler writes one log line per completed request. Responses
// with a 5xx status are logged at error level.
func NewHTTPLoggingHandler(l logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := &annotations{}
		ctx := context.WithValue(r.Context(), ctxKey{}, a)

		m := httpsnoop.CaptureMetrics(next, w, r.WithContext(ctx))

		fields := []zap.Field{
			zap.String(httpMethodKey, r.Method),
			zap.String(httpPathKey, r.URL.Path),
			zap.Int(httpCodeKey, m.Code),
			zap.String(queryDurationKey, strconv.FormatInt(m.Duration.Milliseconds(), 10)),
			zap.Int64(bytesWrittenKey, m.Written),
		}

		if requestID, ok := requestid.FromContext(ctx); ok {
			fields = append(fields, zap.String(requestIDKey, requestID))
		}

		spanCtx := trace.SpanContextFromContext(ctx)
		if spanCtx.HasTraceID() {
			fields = append(fields, zap.String(traceIDKey, spanCtx.TraceID().String()))
		}

		if userAgent := r.UserAgent(); userAgent != "" {
			fields = append(fields, zap.String(userAgentKey, userAgent))
		}

		a.mu.Lock()
		fields = append(fields, a.fields...)
		internalError := a.internalError
		a.mu.Unlock()

		if m.Code >= http.StatusInternalServerError {
			if internalError != nil {
				fields = append(fields, zap.String(internalErrorKey, internalError.Error()))
			}
			l.Error(httpReqCompleteKey, fields...)
			return
		}

		if internalError != nil {
			fields = append(fields, zap.Error(internalError))
		}
		l.Info(httpReqCompleteKey, fields...)
	})
}
