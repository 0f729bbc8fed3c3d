package run

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/stargate-gql/stargate/cmd/util"
)

// bindRunFlagsFunc binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags. Every key is also
// read from the environment, see util.EnvNames.
func bindRunFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		util.MustBindKey(flags, "manifest.path", "manifest-path")
		util.MustBindKey(flags, "requestTimeout", "request-timeout")
		util.MustBindKey(flags, "http.addr", "http-addr")
		util.MustBindKey(flags, "http.tls.enabled", "http-tls-enabled")
		util.MustBindKey(flags, "http.tls.cert", "http-tls-cert")
		util.MustBindKey(flags, "http.tls.key", "http-tls-key")
		util.MustBindKey(flags, "http.corsAllowedOrigins", "http-cors-allowed-origins")
		util.MustBindKey(flags, "http.corsAllowedHeaders", "http-cors-allowed-headers")
		util.MustBindKey(flags, "http.maxRequestBodyBytes", "http-max-request-body-bytes")
		util.MustBindKey(flags, "log.format", "log-format")
		util.MustBindKey(flags, "log.level", "log-level")
		util.MustBindKey(flags, "trace.enabled", "trace-enabled")
		util.MustBindKey(flags, "trace.otlp.endpoint", "trace-otlp-endpoint")
		util.MustBindKey(flags, "trace.otlp.protocol", "trace-otlp-protocol")
		util.MustBindKey(flags, "trace.otlp.tls.enabled", "trace-otlp-tls-enabled")
		util.MustBindKey(flags, "trace.serviceName", "trace-service-name")
		util.MustBindKey(flags, "metrics.enabled", "metrics-enabled")
		util.MustBindKey(flags, "metrics.addr", "metrics-addr")
		util.MustBindKey(flags, "profiler.enabled", "profiler-enabled")
		util.MustBindKey(flags, "profiler.addr", "profiler-addr")
		util.MustBindKey(flags, "persistedQueries.enabled", "persisted-queries-enabled")
		util.MustBindKey(flags, "persistedQueries.cacheSize", "persisted-queries-cache-size")
		util.MustBindKey(flags, "engine.maxDepth", "engine-max-depth")
		util.MustBindKey(flags, "engine.introspection", "engine-introspection")
	}
}
