package server

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newPersistedQueryServer(t *testing.T) *Server {
	t.Helper()

	cache, err := NewInMemoryPersistedQueryCache(100)
	require.NoError(t, err)

	e, text := newHelloEngine(t)
	s, err := New(&Dependencies{Engine: e, Manifest: text, PersistedQueries: cache}, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

func apqBody(query, hash string) string {
	ext := fmt.Sprintf(`"extensions":{"persistedQuery":{"version":1,"sha256Hash":%q}}`, hash)
	if query == "" {
		return "{" + ext + "}"
	}
	return fmt.Sprintf(`{"query":%q,%s}`, query, ext)
}

func TestDocumentHash(t *testing.T) {
	require.Equal(t, "ecf4edb46db40b5132295c0291d62fb65d6759a9eedfa4d5d612dd5ec54a6b38", DocumentHash("{__typename}"))
}

func TestPersistedQueries(t *testing.T) {
	s := newPersistedQueryServer(t)
	query := "{ hello }"
	hash := DocumentHash(query)

	t.Run("unknown_hash", func(t *testing.T) {
		resp := doRequest(t, s, http.MethodPost, "/", apqBody("", hash))

		require.Equal(t, http.StatusOK, resp.Code)
		body := resp.Body.String()
		require.Equal(t, "null", gjson.Get(body, "data").Raw)
		require.Equal(t, PersistedQueryNotFound, gjson.Get(body, "errors.0.message").String())
		require.Equal(t, "PERSISTED_QUERY_NOT_FOUND", gjson.Get(body, "errors.0.extensions.code").String())
	})

	t.Run("register", func(t *testing.T) {
		resp := doRequest(t, s, http.MethodPost, "/", apqBody(query, hash))

		require.Equal(t, http.StatusOK, resp.Code)
		require.JSONEq(t, `{"data":{"hello":null}}`, resp.Body.String())
	})

	t.Run("hash_only_after_register", func(t *testing.T) {
		resp := doRequest(t, s, http.MethodPost, "/", apqBody("", hash))

		require.Equal(t, http.StatusOK, resp.Code)
		require.JSONEq(t, `{"data":{"hello":null}}`, resp.Body.String())
	})

	t.Run("hash_mismatch", func(t *testing.T) {
		resp := doRequest(t, s, http.MethodPost, "/", apqBody("{ __typename }", hash))

		require.Equal(t, http.StatusBadRequest, resp.Code)
		require.Equal(t, "malformed_request", gjson.Get(resp.Body.String(), "code").String())
		require.Equal(t, "provided sha does not match query", gjson.Get(resp.Body.String(), "message").String())
	})

	t.Run("unsupported_version", func(t *testing.T) {
		resp := doRequest(t, s, http.MethodPost, "/",
			`{"extensions":{"persistedQuery":{"version":2,"sha256Hash":"abc"}}}`)

		require.Equal(t, http.StatusBadRequest, resp.Code)
		require.Equal(t, "unsupported persistedQuery version", gjson.Get(resp.Body.String(), "message").String())
	})

	t.Run("invalid_extension", func(t *testing.T) {
		resp := doRequest(t, s, http.MethodPost, "/", `{"extensions":{"persistedQuery":"yes"}}`)

		require.Equal(t, http.StatusBadRequest, resp.Code)
		require.Equal(t, "invalid persistedQuery extension", gjson.Get(resp.Body.String(), "message").String())
	})
}

func TestPersistedMutationOverGet(t *testing.T) {
	s := newPersistedQueryServer(t)
	mutation := `mutation { setHello(value: "hi") }`
	hash := DocumentHash(mutation)

	resp := doRequest(t, s, http.MethodPost, "/", apqBody(mutation, hash))
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"data":{"setHello":null}}`, resp.Body.String())

	q := url.Values{}
	q.Set("extensions", fmt.Sprintf(`{"persistedQuery":{"version":1,"sha256Hash":%q}}`, hash))
	resp = doRequest(t, s, http.MethodGet, "/?"+q.Encode(), "")

	require.Equal(t, http.StatusMethodNotAllowed, resp.Code)
	require.Equal(t, "operation_not_allowed", gjson.Get(resp.Body.String(), "code").String())

	t.Run("hash_only_query_over_get", func(t *testing.T) {
		query := "{ hello }"
		resp := doRequest(t, s, http.MethodPost, "/", apqBody(query, DocumentHash(query)))
		require.Equal(t, http.StatusOK, resp.Code)

		q := url.Values{}
		q.Set("extensions", fmt.Sprintf(`{"persistedQuery":{"version":1,"sha256Hash":%q}}`, DocumentHash(query)))
		resp = doRequest(t, s, http.MethodGet, "/?"+q.Encode(), "")
		require.Equal(t, http.StatusOK, resp.Code)
		require.JSONEq(t, `{"data":{"hello":null}}`, resp.Body.String())
	})
}

func TestPersistedQueriesDisabled(t *testing.T) {
	s := newHelloServer(t, nil)

	resp := doRequest(t, s, http.MethodPost, "/", apqBody("", DocumentHash("{ hello }")))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, PersistedQueryNotSupported, gjson.Get(resp.Body.String(), "errors.0.message").String())
	require.Equal(t, "PERSISTED_QUERY_NOT_SUPPORTED", gjson.Get(resp.Body.String(), "errors.0.extensions.code").String())
}

func TestInMemoryPersistedQueryCache(t *testing.T) {
	cache, err := NewInMemoryPersistedQueryCache(10)
	require.NoError(t, err)
	defer cache.Stop()

	_, ok := cache.Get("missing")
	require.False(t, ok)

	cache.Set("h", "{ hello }")
	query, ok := cache.Get("h")
	require.True(t, ok)
	require.Equal(t, "{ hello }", query)

	cache.Stop()
	require.NotPanics(t, cache.Stop)
}
