// Package config contains all knobs and defaults used to configure features of
// Stargate when running as a standalone gateway.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	DefaultRequestTimeout          = 10 * time.Second
	DefaultMaxRequestBodyBytes     = 1 << 20 // 1 MiB
	DefaultPersistedQueryCacheSize = 10_000
	DefaultManifestPath            = "supergraph.graphql"
	DefaultCORSAllowedOrigin       = "https://studio.apollographql.com"
)

// HTTPConfig defines Stargate configurations for HTTP server specific settings.
type HTTPConfig struct {
	Addr string
	TLS  *TLSConfig

	CORSAllowedOrigins []string
	CORSAllowedHeaders []string

	// MaxRequestBodyBytes bounds the size of a POST body.
	MaxRequestBodyBytes int64
}

// TLSConfig defines configuration specific to Transport Layer Security (TLS) settings.
type TLSConfig struct {
	Enabled  bool
	CertPath string `mapstructure:"cert"`
	KeyPath  string `mapstructure:"key"`
}

// ManifestConfig points at the supergraph schema loaded at startup.
type ManifestConfig struct {
	Path string
}

// LogConfig defines Stargate configurations for log specific settings. For production we
// recommend using the 'json' log format.
type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig `mapstructure:"otlp"`
	ServiceName string
}

type OTLPTraceConfig struct {
	Endpoint string
	// Protocol is the OTLP transport, 'grpc' or 'http'.
	Protocol string
	TLS      OTLPTraceTLSConfig
}

type OTLPTraceTLSConfig struct {
	Enabled bool
}

// ProfilerConfig defines server configurations specific to pprof profiling.
type ProfilerConfig struct {
	Enabled bool
	Addr    string
}

// MetricConfig defines configurations for serving custom metrics from Stargate.
type MetricConfig struct {
	Enabled bool
	Addr    string
}

// PersistedQueriesConfig configures automatic persisted queries.
type PersistedQueriesConfig struct {
	Enabled bool
	// CacheSize is the maximum number of query documents kept in memory.
	CacheSize int64
}

// EngineConfig defines the limits applied by the query engine.
type EngineConfig struct {
	// MaxDepth is the deepest selection set nesting accepted. 0 disables the limit.
	MaxDepth int
	// Introspection allows __schema and __type queries.
	Introspection bool
}

type Config struct {
	// RequestTimeout bounds the time spent executing a single request.
	RequestTimeout time.Duration

	Manifest         ManifestConfig
	HTTP             HTTPConfig
	Log              LogConfig
	Trace            TraceConfig
	Profiler         ProfilerConfig
	Metrics          MetricConfig
	PersistedQueries PersistedQueriesConfig
	Engine           EngineConfig
}

func (cfg *Config) Verify() error {
	if cfg.Manifest.Path == "" {
		return errors.New("config 'manifest.path' must be set")
	}

	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("config 'requestTimeout' (%s) must be greater than zero", cfg.RequestTimeout)
	}

	if cfg.HTTP.MaxRequestBodyBytes <= 0 {
		return errors.New("config 'http.maxRequestBodyBytes' must be greater than zero")
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	if cfg.Log.Level != "none" &&
		cfg.Log.Level != "debug" &&
		cfg.Log.Level != "info" &&
		cfg.Log.Level != "warn" &&
		cfg.Log.Level != "error" &&
		cfg.Log.Level != "panic" &&
		cfg.Log.Level != "fatal" {
		return fmt.Errorf(
			"config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']",
		)
	}

	if cfg.Trace.Enabled && cfg.Trace.OTLP.Protocol != "grpc" && cfg.Trace.OTLP.Protocol != "http" {
		return fmt.Errorf("config 'trace.otlp.protocol' must be one of ['grpc', 'http']")
	}

	if cfg.HTTP.TLS != nil && cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.CertPath == "" || cfg.HTTP.TLS.KeyPath == "" {
			return errors.New("'http.tls.cert' and 'http.tls.key' configs must be set")
		}
	}

	if cfg.PersistedQueries.Enabled && cfg.PersistedQueries.CacheSize <= 0 {
		return errors.New("config 'persistedQueries.cacheSize' must be greater than zero")
	}

	if cfg.Engine.MaxDepth < 0 {
		return errors.New("config 'engine.maxDepth' cannot be negative")
	}

	return nil
}

// DefaultConfig is the Stargate default configuration.
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout: DefaultRequestTimeout,
		Manifest: ManifestConfig{
			Path: DefaultManifestPath,
		},
		HTTP: HTTPConfig{
			Addr:                "127.0.0.1:8080",
			TLS:                 &TLSConfig{Enabled: false},
			CORSAllowedOrigins:  []string{DefaultCORSAllowedOrigin},
			CORSAllowedHeaders:  []string{"*"},
			MaxRequestBodyBytes: DefaultMaxRequestBodyBytes,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Trace: TraceConfig{
			Enabled: true,
			OTLP: OTLPTraceConfig{
				Endpoint: "localhost:4317",
				Protocol: "grpc",
				TLS: OTLPTraceTLSConfig{
					Enabled: false,
				},
			},
			ServiceName: "stargate",
		},
		Profiler: ProfilerConfig{
			Enabled: false,
			Addr:    ":3001",
		},
		Metrics: MetricConfig{
			Enabled: true,
			Addr:    "0.0.0.0:2112",
		},
		PersistedQueries: PersistedQueriesConfig{
			Enabled:   true,
			CacheSize: DefaultPersistedQueryCacheSize,
		},
		Engine: EngineConfig{
			MaxDepth:      0,
			Introspection: true,
		},
	}
}

// MustDefaultConfig returns default server config with tracing and metrics turned off.
func MustDefaultConfig() *Config {
	config := DefaultConfig()

	config.Trace.Enabled = false
	config.Metrics.Enabled = false

	return config
}

// MustDefaultConfigWithRandomPorts returns default server config but with a random port for the http address
// and with tracing and metrics turned off.
// This function may panic if somehow a random port cannot be chosen.
func MustDefaultConfigWithRandomPorts() *Config {
	config := MustDefaultConfig()

	httpPort, httpPortReleaser := TCPRandomPort()
	defer httpPortReleaser()

	config.HTTP.Addr = fmt.Sprintf("127.0.0.1:%d", httpPort)

	return config
}

// TCPRandomPort tries to find a random TCP Port. If it can't find one, it panics. Else, it returns the port and a function that releases the port.
// It is the responsibility of the caller to call the release function right before trying to listen on the given port.
func TCPRandomPort() (int, func()) {
	l, err := net.Listen("tcp", "")
	if err != nil {
		panic(err)
	}
	return l.Addr().(*net.TCPAddr).Port, func() {
		l.Close()
	}
}
