// Package testutils contains code that is useful in tests.
package testutils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/require"

	serverconfig "github.com/stargate-gql/stargate/pkg/server/config"
)

const (
	AllChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// HelloManifest is the smallest useful supergraph: a single nullable field.
	HelloManifest = "type Query { hello: String }\n"
)

func CreateRandomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = AllChars[rand.Intn(len(AllChars))]
	}
	return string(b)
}

// WriteManifest writes body into a fresh temporary directory and returns the
// path of the file.
func WriteManifest(t testing.TB, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "supergraph.graphql")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

// MustDefaultConfigWithRandomPorts returns default server config but with a random port for the http address,
// tracing and metrics turned off, and the manifest pointing at a temporary hello manifest.
// This function may panic if somehow a random port cannot be chosen.
func MustDefaultConfigWithRandomPorts(t testing.TB) *serverconfig.Config {
	t.Helper()

	config := serverconfig.MustDefaultConfigWithRandomPorts()
	config.Manifest.Path = WriteManifest(t, HelloManifest)

	return config
}

// TCPRandomPort tries to find a random TCP Port. If it can't find one, it panics. Else, it returns the port and a function that releases the port.
// It is the responsibility of the caller to call the release function right before trying to listen on the given port.
func TCPRandomPort() (int, func()) {
	return serverconfig.TCPRandomPort()
}

// EnsureServiceHealthy waits until the gateway listening on httpAddr reports
// itself as serving.
func EnsureServiceHealthy(t testing.TB, httpAddr string) {
	t.Helper()

	client := &http.Client{Timeout: time.Second}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		resp, err := client.Get(fmt.Sprintf("http://%s/healthz", httpAddr))
		if err != nil {
			t.Log(time.Now(), "not serving yet at address", httpAddr, err)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Log(time.Now(), resp.Status)
			return errors.New("not serving")
		}

		return nil
	}, policy)
	require.NoError(t, err, "server did not reach healthy status")
}

// PostQuery sends a GraphQL request body to the gateway root, retrying on
// connection errors, and returns the response with its body read.
func PostQuery(t testing.TB, baseURL string, body string, headers map[string]string) (*http.Response, string) {
	t.Helper()

	req, err := retryablehttp.NewRequest(http.MethodPost, baseURL+"/", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 3
	client.CheckRetry = func(ctx context.Context, _ *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(b)
}
