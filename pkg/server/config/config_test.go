package config

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifyConfig(t *testing.T) {
	t.Run("defaults_are_valid", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Verify())
		require.NoError(t, MustDefaultConfig().Verify())
	})

	t.Run("manifest_path_required", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Manifest.Path = ""

		err := cfg.Verify()
		require.EqualError(t, err, "config 'manifest.path' must be set")
	})

	t.Run("request_timeout_must_be_positive", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RequestTimeout = 0

		err := cfg.Verify()
		require.EqualError(t, err, "config 'requestTimeout' (0s) must be greater than zero")
	})

	t.Run("max_request_body_must_be_positive", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.HTTP.MaxRequestBodyBytes = 0

		err := cfg.Verify()
		require.EqualError(t, err, "config 'http.maxRequestBodyBytes' must be greater than zero")
	})

	t.Run("failing_to_set_http_cert_path_will_not_allow_server_to_start", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.HTTP.TLS = &TLSConfig{
			Enabled: true,
			KeyPath: "some/path",
		}

		err := cfg.Verify()
		require.EqualError(t, err, "'http.tls.cert' and 'http.tls.key' configs must be set")
	})

	t.Run("failing_to_set_http_key_path_will_not_allow_server_to_start", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.HTTP.TLS = &TLSConfig{
			Enabled:  true,
			CertPath: "some/path",
		}

		err := cfg.Verify()
		require.EqualError(t, err, "'http.tls.cert' and 'http.tls.key' configs must be set")
	})

	t.Run("non_log_format", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Log.Format = "notaformat"

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("non_log_level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Log.Level = "notalevel"

		err := cfg.Verify()
		require.Error(t, err)
	})

	t.Run("unknown_otlp_protocol", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Trace.OTLP.Protocol = "udp"

		err := cfg.Verify()
		require.EqualError(t, err, "config 'trace.otlp.protocol' must be one of ['grpc', 'http']")

		cfg.Trace.Enabled = false
		require.NoError(t, cfg.Verify())
	})

	t.Run("persisted_query_cache_size", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PersistedQueries.CacheSize = 0

		err := cfg.Verify()
		require.EqualError(t, err, "config 'persistedQueries.cacheSize' must be greater than zero")

		cfg.PersistedQueries.Enabled = false
		require.NoError(t, cfg.Verify())
	})

	t.Run("negative_max_depth", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Engine.MaxDepth = -1

		err := cfg.Verify()
		require.EqualError(t, err, "config 'engine.maxDepth' cannot be negative")
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, "127.0.0.1:8080", cfg.HTTP.Addr)
	require.Equal(t, []string{"https://studio.apollographql.com"}, cfg.HTTP.CORSAllowedOrigins)
	require.Equal(t, 10*time.Second, cfg.RequestTimeout)
	require.True(t, cfg.Trace.Enabled)
	require.Equal(t, "localhost:4317", cfg.Trace.OTLP.Endpoint)
	require.Equal(t, "stargate", cfg.Trace.ServiceName)
	require.Equal(t, "info", cfg.Log.Level)

	test := MustDefaultConfig()
	require.False(t, test.Trace.Enabled)
	require.False(t, test.Metrics.Enabled)
}

func TestMustDefaultConfigWithRandomPorts(t *testing.T) {
	cfg := MustDefaultConfigWithRandomPorts()

	host, port, err := net.SplitHostPort(cfg.HTTP.Addr)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", host)
	require.NotEqual(t, "8080", port)
}
