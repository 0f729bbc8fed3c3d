// Package run contains the command to run a Stargate gateway.
package run

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"sigs.k8s.io/controller-runtime/pkg/certwatcher"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/stargate-gql/stargate/internal/manifest"
	"github.com/stargate-gql/stargate/pkg/engine"
	"github.com/stargate-gql/stargate/pkg/logger"
	"github.com/stargate-gql/stargate/pkg/middleware"
	"github.com/stargate-gql/stargate/pkg/middleware/logging"
	"github.com/stargate-gql/stargate/pkg/middleware/recovery"
	"github.com/stargate-gql/stargate/pkg/middleware/requestid"
	"github.com/stargate-gql/stargate/pkg/server"
	serverconfig "github.com/stargate-gql/stargate/pkg/server/config"
	"github.com/stargate-gql/stargate/pkg/telemetry"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Stargate gateway",
		Long:  "Run the Stargate gateway.",
		Run:   run,
		Args:  cobra.NoArgs,
	}

	defaultConfig := serverconfig.DefaultConfig()
	flags := cmd.Flags()

	flags.String("manifest-path", defaultConfig.Manifest.Path, "the file path of the supergraph schema to serve")

	flags.Duration("request-timeout", defaultConfig.RequestTimeout, "the maximum time spent executing a single GraphQL request")

	flags.String("http-addr", defaultConfig.HTTP.Addr, "the host:port address to serve the HTTP server on")

	flags.Bool("http-tls-enabled", defaultConfig.HTTP.TLS.Enabled, "enable/disable transport layer security (TLS)")

	flags.String("http-tls-cert", defaultConfig.HTTP.TLS.CertPath, "the (absolute) file path of the certificate to use for the TLS connection")

	flags.String("http-tls-key", defaultConfig.HTTP.TLS.KeyPath, "the (absolute) file path of the TLS key that should be used for the TLS connection")

	cmd.MarkFlagsRequiredTogether("http-tls-enabled", "http-tls-cert", "http-tls-key")

	flags.StringSlice("http-cors-allowed-origins", defaultConfig.HTTP.CORSAllowedOrigins, "specifies the CORS allowed origins")

	flags.StringSlice("http-cors-allowed-headers", defaultConfig.HTTP.CORSAllowedHeaders, "specifies the CORS allowed headers")

	flags.Int64("http-max-request-body-bytes", defaultConfig.HTTP.MaxRequestBodyBytes, "the maximum size in bytes of a POST request body")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")

	flags.String("trace-otlp-protocol", defaultConfig.Trace.OTLP.Protocol, "the protocol used to export traces ('grpc' or 'http')")

	flags.Bool("trace-otlp-tls-enabled", defaultConfig.Trace.OTLP.TLS.Enabled, "use TLS connection for trace collector")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable prometheus metrics on the '/metrics' endpoint")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")

	flags.Bool("profiler-enabled", defaultConfig.Profiler.Enabled, "enable/disable pprof profiling")

	flags.String("profiler-addr", defaultConfig.Profiler.Addr, "the host:port address to serve the pprof profiler server on")

	flags.Bool("persisted-queries-enabled", defaultConfig.PersistedQueries.Enabled, "enable/disable automatic persisted queries")

	flags.Int64("persisted-queries-cache-size", defaultConfig.PersistedQueries.CacheSize, "the maximum number of persisted query documents kept in memory")

	flags.Int("engine-max-depth", defaultConfig.Engine.MaxDepth, "the deepest selection set nesting accepted by the engine (0 disables the limit)")

	flags.Bool("engine-introspection", defaultConfig.Engine.Introspection, "enable/disable schema introspection queries")

	// NOTE: if you add a new flag here, update the function below, too

	cmd.PreRun = bindRunFlagsFunc(flags)

	return cmd
}

// ReadConfig returns the Stargate server configuration based on the values provided in the server's 'config.yaml' file.
// The 'config.yaml' file is loaded from '/etc/stargate', '$HOME/.stargate', or the current working directory. If no configuration
// file is present, the default values are returned.
func ReadConfig() (*serverconfig.Config, error) {
	config := serverconfig.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load server config: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server config: %w", err)
	}

	return config, nil
}

func run(_ *cobra.Command, _ []string) {
	config, err := ReadConfig()
	if err != nil {
		panic(err)
	}

	if err := config.Verify(); err != nil {
		panic(err)
	}

	serverCtx := &ServerContext{}
	if err := serverCtx.Run(context.Background(), config); err != nil {
		panic(err)
	}
}

// EngineConstructor builds the engine for a published manifest.
type EngineConstructor func(text *manifest.Text, opts ...engine.Option) (engine.Engine, error)

type ServerContext struct {
	// Logger replaces the logger built from the 'log' config.
	Logger logger.Logger

	// Fs is the filesystem the manifest is read from. Defaults to the OS filesystem.
	Fs afero.Fs

	// NewEngine defaults to engine.New.
	NewEngine EngineConstructor

	// TracerOptions are appended to the options derived from the 'trace' config.
	TracerOptions []telemetry.TracerOption

	manifest manifest.Cell
}

func newSchemaEngine(text *manifest.Text, opts ...engine.Option) (engine.Engine, error) {
	e, err := engine.New(text, opts...)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// telemetryConfig builds and installs the logging and tracing pipeline. The
// returned pipeline must be closed to flush pending spans.
func (s *ServerContext) telemetryConfig(ctx context.Context, config *serverconfig.Config) (*telemetry.Pipeline, error) {
	format, err := logger.ParseFormat(config.Log.Format)
	if err != nil {
		return nil, err
	}

	options := make([]telemetry.TracerOption, 0, len(s.TracerOptions))
	options = append(options, s.TracerOptions...)

	pipelineConfig := telemetry.PipelineConfig{
		LogFormat: format,
		LogLevel:  config.Log.Level,
		Trace: telemetry.TraceConfig{
			Enabled:     config.Trace.Enabled,
			ServiceName: config.Trace.ServiceName,
			Endpoint:    config.Trace.OTLP.Endpoint,
			Protocol:    config.Trace.OTLP.Protocol,
			Insecure:    !config.Trace.OTLP.TLS.Enabled,
			Options:     options,
		},
	}
	if zapLogger, ok := s.Logger.(*logger.ZapLogger); ok {
		pipelineConfig.Logger = zapLogger
	}

	pipeline, err := telemetry.NewPipeline(ctx, pipelineConfig)
	if err != nil {
		return nil, err
	}

	if err := pipeline.Install(); err != nil {
		_ = pipeline.Close(ctx)
		return nil, err
	}

	if s.Logger == nil {
		s.Logger = pipeline.Logger
	}

	if exporter := pipeline.TracerProvider.Exporter(); exporter != telemetry.ExporterNone {
		s.Logger.Info(fmt.Sprintf("🕵 tracing enabled: sending traces to '%s' via %s, tls: %t", config.Trace.OTLP.Endpoint, exporter, config.Trace.OTLP.TLS.Enabled))
	}

	return pipeline, nil
}

func (s *ServerContext) manifestConfig(config *serverconfig.Config) (*manifest.Text, error) {
	text, err := s.manifest.LoadAndPublish(manifest.NewLoader(s.Fs), config.Manifest.Path)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("📜 manifest loaded",
		zap.String("path", text.Path()),
		zap.Int("bytes", text.Len()),
		zap.String("digest", text.Digest()),
	)

	return text, nil
}

func (s *ServerContext) engineConfig(text *manifest.Text, config *serverconfig.Config) (engine.Engine, error) {
	newEngine := s.NewEngine
	if newEngine == nil {
		newEngine = newSchemaEngine
	}

	return newEngine(text,
		engine.WithMaxDepth(config.Engine.MaxDepth),
		engine.WithIntrospection(config.Engine.Introspection),
	)
}

func (s *ServerContext) buildServer(config *serverconfig.Config, text *manifest.Text, e engine.Engine) (*server.Server, error) {
	deps := &server.Dependencies{
		Engine:   e,
		Logger:   s.Logger,
		Manifest: text,
	}

	if config.PersistedQueries.Enabled {
		cache, err := server.NewInMemoryPersistedQueryCache(config.PersistedQueries.CacheSize)
		if err != nil {
			return nil, err
		}
		deps.PersistedQueries = cache
	}

	return server.New(deps, &server.Config{
		RequestTimeout:      config.RequestTimeout,
		MaxRequestBodyBytes: config.HTTP.MaxRequestBodyBytes,
	})
}

// buildHTTPHandler wraps the gateway router with the middlewares every
// request goes through, outermost first: panic recovery, CORS, compression,
// tracing, request id, access log and the request deadline.
func (s *ServerContext) buildHTTPHandler(config *serverconfig.Config, next http.Handler) http.Handler {
	handler := middleware.NewTimeoutHandler(config.RequestTimeout, s.Logger).NewHTTPTimeoutHandler(next)
	handler = logging.NewHTTPLoggingHandler(s.Logger, handler)
	handler = requestid.NewHTTPHandler(handler)
	handler = otelhttp.NewHandler(handler, "stargate",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	handler = gzhttp.GzipHandler(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins:   config.HTTP.CORSAllowedOrigins,
		AllowCredentials: true,
		AllowedHeaders:   config.HTTP.CORSAllowedHeaders,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodOptions,
		},
	}).Handler(handler)

	return recovery.HTTPPanicRecoveryHandler(handler, s.Logger)
}

func (s *ServerContext) runHTTPServer(ctx context.Context, config *serverconfig.Config, handler http.Handler) (*http.Server, error) {
	httpServer := &http.Server{
		Addr:    config.HTTP.Addr,
		Handler: handler,
	}

	listener, err := net.Listen("tcp", config.HTTP.Addr)
	if err != nil {
		return nil, err
	}

	if config.HTTP.TLS != nil && config.HTTP.TLS.Enabled {
		if config.HTTP.TLS.CertPath == "" || config.HTTP.TLS.KeyPath == "" {
			_ = listener.Close()
			return nil, errors.New("'http.tls.cert' and 'http.tls.key' configs must be set")
		}
		httpGetCertificate, err := watchAndLoadCertificateWithCertWatcher(ctx, config.HTTP.TLS.CertPath, config.HTTP.TLS.KeyPath, s.Logger)
		if err != nil {
			_ = listener.Close()
			return nil, err
		}
		listener = tls.NewListener(listener, &tls.Config{
			GetCertificate: httpGetCertificate,
		})

		s.Logger.Info("HTTP TLS is enabled, serving connections using the provided certificate")
	} else {
		s.Logger.Warn("HTTP TLS is disabled, serving connections using insecure plaintext")
	}

	go func() {
		s.Logger.Info(fmt.Sprintf("🚀 starting HTTP server on '%s'...", httpServer.Addr))
		if err := httpServer.Serve(listener); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Fatal("HTTP server closed with unexpected error", zap.Error(err))
			}
		}
		s.Logger.Info("HTTP server shut down.")
	}()
	return httpServer, nil
}

// Run starts the gateway and blocks until ctx is cancelled or the process is
// signalled. Observability, the manifest and the engine are set up in that
// order before any connection is accepted; a failure in any of them is
// returned and nothing is served.
func (s *ServerContext) Run(ctx context.Context, config *serverconfig.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, os.Kill, syscall.SIGTERM)
	defer stop()

	pipeline, err := s.telemetryConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("initialize observability: %w", err)
	}
	defer func() {
		// can take up to 5 seconds to complete (https://github.com/open-telemetry/opentelemetry-go/blob/aebcbfcbc2962957a578e9cb3e25dc834125e318/sdk/trace/batch_span_processor.go#L97)
		ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
		defer cancel()
		if err := pipeline.Close(ctx); err != nil {
			s.Logger.Error("failed to shutdown tracing", zap.Error(err))
		}
	}()

	text, err := s.manifestConfig(config)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	gatewayEngine, err := s.engineConfig(text, config)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	svr, err := s.buildServer(config, text, gatewayEngine)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	defer svr.Close()

	var profilerServer *http.Server
	if config.Profiler.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		profilerServer = &http.Server{Addr: config.Profiler.Addr, Handler: mux}

		go func() {
			s.Logger.Info(fmt.Sprintf("🔬 starting pprof profiler on '%s'", config.Profiler.Addr))

			if err := profilerServer.ListenAndServe(); err != nil {
				if !errors.Is(err, http.ErrServerClosed) {
					s.Logger.Fatal("failed to start pprof profiler", zap.Error(err))
				}
			}
			s.Logger.Info("profiler shut down.")
		}()
	}

	var metricsServer *http.Server
	if config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		metricsServer = &http.Server{Addr: config.Metrics.Addr, Handler: mux}

		go func() {
			s.Logger.Info(fmt.Sprintf("📈 starting prometheus metrics server on '%s'", config.Metrics.Addr))
			if err := metricsServer.ListenAndServe(); err != nil {
				if !errors.Is(err, http.ErrServerClosed) {
					s.Logger.Fatal("failed to start prometheus metrics server", zap.Error(err))
				}
			}
			s.Logger.Info("metrics server shut down.")
		}()
	}

	httpServer, err := s.runHTTPServer(ctx, config, s.buildHTTPHandler(config, svr))
	if err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	// wait for cancellation signal
	<-ctx.Done()
	s.Logger.Info("attempting to shutdown gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		s.Logger.Info("failed to shutdown the http server", zap.Error(err))
	}

	if profilerServer != nil {
		if err := profilerServer.Shutdown(ctx); err != nil {
			s.Logger.Info("failed to shutdown the profiler", zap.Error(err))
		}
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			s.Logger.Info("failed to shutdown the prometheus metrics server", zap.Error(err))
		}
	}

	s.Logger.Info("server exited. goodbye 👋")

	return nil
}

func certwatcherLogger(l logger.Logger) logr.Logger {
	if zapLogger, ok := l.(*logger.ZapLogger); ok {
		return zapr.NewLogger(zapLogger.Logger.Named("certwatcher"))
	}
	return logr.Discard()
}

func watchAndLoadCertificateWithCertWatcher(ctx context.Context, certPath, keyPath string, logger logger.Logger) (func(*tls.ClientHelloInfo) (*tls.Certificate, error), error) {
	crlog.SetLogger(certwatcherLogger(logger))

	watcher, err := certwatcher.New(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create certwatcher: %w", err)
	}

	if err := watcher.ReadCertificate(); err != nil {
		return nil, fmt.Errorf("failed to load initial certificate: %w", err)
	}
	logger.Info("Initial TLS certificate loaded.", zap.String("certPath", certPath), zap.String("keyPath", keyPath))

	go func() {
		logger.Info("Starting certificate watcher...", zap.String("certPath", certPath), zap.String("keyPath", keyPath))
		if err := watcher.Start(ctx); err != nil {
			logger.Error("Certwatcher encountered an error", zap.Error(err))
		}
	}()

	getCertificate := func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		return watcher.GetCertificate(nil)
	}

	return getCertificate, nil
}
