package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/stargate-gql/stargate/pkg/testutils"
)

func TestEnvNames(t *testing.T) {
	tests := []struct {
		key      string
		expected []string
	}{
		{key: "log.level", expected: []string{"STARGATE_LOG_LEVEL"}},
		{key: "trace.otlp.tls.enabled", expected: []string{"STARGATE_TRACE_OTLP_TLS_ENABLED"}},
		{key: "requestTimeout", expected: []string{"STARGATE_REQUEST_TIMEOUT", "STARGATE_REQUESTTIMEOUT"}},
		{key: "http.corsAllowedOrigins", expected: []string{"STARGATE_HTTP_CORS_ALLOWED_ORIGINS", "STARGATE_HTTP_CORSALLOWEDORIGINS"}},
		{key: "persistedQueries.cacheSize", expected: []string{"STARGATE_PERSISTED_QUERIES_CACHE_SIZE", "STARGATE_PERSISTEDQUERIES_CACHESIZE"}},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			require.Equal(t, test.expected, EnvNames(test.key))
		})
	}
}

func TestMustBindPFlag(t *testing.T) {
	t.Cleanup(viper.Reset)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	MustBindPFlag("log.level", flags.Lookup("log-level"))
	require.Equal(t, "info", viper.GetString("log.level"))

	require.NoError(t, flags.Set("log-level", "debug"))
	require.Equal(t, "debug", viper.GetString("log.level"))

	require.Panics(t, func() {
		MustBindPFlag("missing", nil)
	})
}

func TestMustBindEnv(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Setenv("STARGATE_LOG_LEVEL", "warn")
	MustBindEnv("log.level", "STARGATE_LOG_LEVEL")
	require.Equal(t, "warn", viper.GetString("log.level"))

	require.Panics(t, func() {
		MustBindEnv()
	})
}

func TestMustBindKey(t *testing.T) {
	newFlags := func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.Int64("persisted-queries-cache-size", 10000, "")
		return flags
	}

	t.Run("flag_default", func(t *testing.T) {
		t.Cleanup(viper.Reset)
		MustBindKey(newFlags(), "persistedQueries.cacheSize", "persisted-queries-cache-size")
		require.Equal(t, int64(10000), viper.GetInt64("persistedQueries.cacheSize"))
	})

	t.Run("underscored_env", func(t *testing.T) {
		t.Cleanup(viper.Reset)
		t.Setenv("STARGATE_PERSISTED_QUERIES_CACHE_SIZE", "42")
		MustBindKey(newFlags(), "persistedQueries.cacheSize", "persisted-queries-cache-size")
		require.Equal(t, int64(42), viper.GetInt64("persistedQueries.cacheSize"))
	})

	t.Run("plain_env", func(t *testing.T) {
		t.Cleanup(viper.Reset)
		t.Setenv("STARGATE_PERSISTEDQUERIES_CACHESIZE", "7")
		MustBindKey(newFlags(), "persistedQueries.cacheSize", "persisted-queries-cache-size")
		require.Equal(t, int64(7), viper.GetInt64("persistedQueries.cacheSize"))
	})

	t.Run("unknown_flag", func(t *testing.T) {
		t.Cleanup(viper.Reset)
		require.Panics(t, func() {
			MustBindKey(newFlags(), "log.level", "log-level")
		})
	})
}

func TestPrepareTempConfigFile(t *testing.T) {
	t.Run("manifest_is_seeded", func(t *testing.T) {
		path := PrepareTempConfigFile(t, "log:\n  level: debug")
		require.Equal(t, filepath.Join(os.Getenv("HOME"), ".stargate", ConfigFileName), path)

		v := viper.New()
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())
		require.Equal(t, "debug", v.GetString("log.level"))

		manifest, err := os.ReadFile(v.GetString("manifest.path"))
		require.NoError(t, err)
		require.Equal(t, testutils.HelloManifest, string(manifest))
	})

	t.Run("explicit_manifest_is_kept", func(t *testing.T) {
		config := "manifest:\n    path: /srv/stargate/supergraph.graphql\n"
		path := PrepareTempConfigFile(t, config)

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, config, string(b))
	})
}
