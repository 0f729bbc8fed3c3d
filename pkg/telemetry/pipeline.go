package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/stargate-gql/stargate/pkg/logger"
)

var ErrPipelineAlreadyInstalled = errors.New("an observability pipeline is already installed")

// installed holds the pipeline that currently owns the process-wide globals.
var installed atomic.Pointer[Pipeline]

type TraceConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Protocol    string
	Insecure    bool

	// Options are appended after the ones derived from the fields above.
	Options []TracerOption
}

type PipelineConfig struct {
	LogFormat logger.Format
	LogLevel  string

	// Logger replaces the logger built from LogFormat and LogLevel.
	Logger *logger.ZapLogger

	Trace TraceConfig
}

// Pipeline is the process's logging and tracing setup. Build it with
// NewPipeline, make it global with Install and tear it down with Close.
type Pipeline struct {
	Logger         *logger.ZapLogger
	TracerProvider TracerProvider

	propagator propagation.TextMapPropagator
	restore    []func()
}

// NewPipeline builds the logger and the tracer provider. Nothing global is
// modified until Install.
func NewPipeline(ctx context.Context, cfg PipelineConfig) (*Pipeline, error) {
	log := cfg.Logger
	if log == nil {
		var err error
		log, err = logger.NewLogger(cfg.LogFormat, cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("configure logger: %w", err)
		}
	}

	tp := Noop()
	if cfg.Trace.Enabled {
		opts := []TracerOption{
			WithOTLPProtocol(cfg.Trace.Protocol),
		}
		if cfg.Trace.Endpoint != "" {
			opts = append(opts, WithOTLPEndpoint(cfg.Trace.Endpoint))
		}
		if cfg.Trace.ServiceName != "" {
			opts = append(opts, WithServiceName(cfg.Trace.ServiceName))
		}
		if cfg.Trace.Insecure {
			opts = append(opts, WithOTLPInsecure())
		}
		opts = append(opts, cfg.Trace.Options...)

		var err error
		tp, err = NewTracerProvider(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("configure trace exporter: %w", err)
		}
	}

	return &Pipeline{
		Logger:         log,
		TracerProvider: tp,
		propagator:     propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	}, nil
}

// Install makes the pipeline the process-wide default: the standard library
// logger and OpenTelemetry's internal logger write to Logger, zap's global
// logger is replaced and TracerProvider becomes the global tracer provider.
// Only one pipeline can be installed at a time.
func (p *Pipeline) Install() error {
	if !installed.CompareAndSwap(nil, p) {
		return ErrPipelineAlreadyInstalled
	}

	base := p.Logger.Logger

	p.restore = append(p.restore, zap.RedirectStdLog(base))

	otel.SetLogger(zapr.NewLogger(base.Named("otel")))
	prevHandler := otel.GetErrorHandler()
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		p.Logger.Warn("opentelemetry error", zap.Error(err))
	}))
	p.restore = append(p.restore, func() {
		otel.SetLogger(logr.Discard())
		otel.SetErrorHandler(prevHandler)
	})

	p.restore = append(p.restore, zap.ReplaceGlobals(base))

	otel.SetTracerProvider(p.TracerProvider)
	otel.SetTextMapPropagator(p.propagator)
	p.restore = append(p.restore, func() {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
	})

	return nil
}

// Installed reports whether p currently owns the globals.
func (p *Pipeline) Installed() bool {
	return installed.Load() == p
}

// Close flushes pending spans, shuts the tracer provider down and, when p is
// installed, restores the globals it replaced.
func (p *Pipeline) Close(ctx context.Context) error {
	if p.Installed() {
		for i := len(p.restore) - 1; i >= 0; i-- {
			p.restore[i]()
		}
		p.restore = nil
		installed.CompareAndSwap(p, nil)
	}

	err := p.TracerProvider.Close(ctx)
	_ = p.Logger.Sync()

	return err
}
