package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stargate-gql/stargate/pkg/logger"
	"github.com/stargate-gql/stargate/pkg/middleware/requestid"
)

type outputCapture struct {
	Level           string  `json:"level"`
	Ts              float64 `json:"ts"`
	Msg             string  `json:"msg"`
	HTTPMethod      string  `json:"http_method"`
	HTTPPath        string  `json:"http_path"`
	HTTPCode        int     `json:"http_code"`
	UserAgent       string  `json:"user_agent"`
	QueryDurationMs string  `json:"query_duration_ms"`
	RequestID       string  `json:"request_id"`
	InternalError   string  `json:"internal_error"`
	OperationName   string  `json:"operation_name"`
}

func newBufferLogger() (*logger.ZapLogger, *bytes.Buffer) {
	gotBuffer := new(bytes.Buffer)

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(gotBuffer),
		zap.InfoLevel,
	)
	return &logger.ZapLogger{Logger: zap.New(core)}, gotBuffer
}

func TestNewHTTPLoggingHandler_concrete(t *testing.T) {
	argLogger, gotBuffer := newBufferLogger()

	handler := requestid.NewHTTPHandler(NewHTTPLoggingHandler(argLogger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddFields(r.Context(), zap.String("operation_name", "Hello"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"hello":null}}`))
	})))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"{ hello }"}`))
	req.Header.Set("User-Agent", "test-user-agent")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	var actualOutput outputCapture
	err := json.Unmarshal(gotBuffer.Bytes(), &actualOutput)
	require.NoError(t, err)

	assert.Equal(t, "info", actualOutput.Level)
	assert.Equal(t, "http_req_complete", actualOutput.Msg)
	assert.Equal(t, http.MethodPost, actualOutput.HTTPMethod)
	assert.Equal(t, "/", actualOutput.HTTPPath)
	assert.Equal(t, http.StatusOK, actualOutput.HTTPCode)
	assert.Equal(t, "test-user-agent", actualOutput.UserAgent)
	assert.Equal(t, "Hello", actualOutput.OperationName)
	assert.Equal(t, resp.Header().Get(requestid.RequestIDHeader), actualOutput.RequestID)
	assert.NotEmpty(t, actualOutput.RequestID)
	assert.NotEmpty(t, actualOutput.QueryDurationMs)
	assert.Empty(t, actualOutput.InternalError)
}

func TestNewHTTPLoggingHandler_internalError(t *testing.T) {
	argLogger, gotBuffer := newBufferLogger()

	handler := NewHTTPLoggingHandler(argLogger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetInternalError(r.Context(), errors.New("engine exploded"))
		w.WriteHeader(http.StatusInternalServerError)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))

	var actualOutput outputCapture
	require.NoError(t, json.Unmarshal(gotBuffer.Bytes(), &actualOutput))

	assert.Equal(t, "error", actualOutput.Level)
	assert.Equal(t, "http_req_complete", actualOutput.Msg)
	assert.Equal(t, http.StatusInternalServerError, actualOutput.HTTPCode)
	assert.Equal(t, "engine exploded", actualOutput.InternalError)
}

func TestNewHTTPLoggingHandler_clientError(t *testing.T) {
	log, logs := logger.NewObserverLogger("info")

	handler := NewHTTPLoggingHandler(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))

	entries := logs.FilterMessage("http_req_complete").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.EqualValues(t, http.StatusBadRequest, entries[0].ContextMap()["http_code"])
}

func TestAnnotationsWithoutHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NotPanics(t, func() {
		SetInternalError(req.Context(), errors.New("ignored"))
		AddFields(req.Context(), zap.String("ignored", "true"))
	})
}
