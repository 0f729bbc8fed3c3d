package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stargate-gql/stargate/pkg/logger"
)

func TestNewHTTPTimeoutHandler(t *testing.T) {
	log, logs := logger.NewObserverLogger("debug")
	timeoutHandler := NewTimeoutHandler(5*time.Millisecond, log)

	handler := timeoutHandler.NewHTTPTimeoutHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		require.True(t, ok)
		require.WithinDuration(t, time.Now().Add(5*time.Millisecond), deadline, 100*time.Millisecond)

		select {
		case <-r.Context().Done():
			w.WriteHeader(http.StatusGatewayTimeout)
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusOK)
		}
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusGatewayTimeout, resp.Code)
	require.Equal(t, 1, logs.FilterMessage("request exceeded timeout").Len())
}

func TestNewHTTPTimeoutHandlerFastRequest(t *testing.T) {
	log, logs := logger.NewObserverLogger("debug")
	handler := NewTimeoutHandler(time.Second, log).NewHTTPTimeoutHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 0, logs.Len())
}
