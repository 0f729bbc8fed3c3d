package testutils

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteManifest(t *testing.T) {
	path := WriteManifest(t, HelloManifest)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, HelloManifest, string(b))
}

func TestMustDefaultConfigWithRandomPorts(t *testing.T) {
	cfg := MustDefaultConfigWithRandomPorts(t)

	require.NoError(t, cfg.Verify())
	require.FileExists(t, cfg.Manifest.Path)
	require.False(t, cfg.Trace.Enabled)
}

func TestEnsureServiceHealthyAndPostQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			w.WriteHeader(http.StatusOK)
		case "/":
			require.Equal(t, "yes", r.Header.Get("X-Test"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"hello":null}}`))
		}
	}))
	t.Cleanup(srv.Close)

	EnsureServiceHealthy(t, strings.TrimPrefix(srv.URL, "http://"))

	resp, body := PostQuery(t, srv.URL, `{"query":"{ hello }"}`, map[string]string{"X-Test": "yes"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"data":{"hello":null}}`, body)
}

func TestCreateRandomString(t *testing.T) {
	s := CreateRandomString(12)
	require.Len(t, s, 12)
	for _, r := range s {
		require.Contains(t, AllChars, string(r))
	}
}
