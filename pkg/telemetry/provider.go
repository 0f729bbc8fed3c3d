package telemetry

import (
	"context"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// ExporterNone is reported by the provider installed when tracing is off.
	ExporterNone = "none"
	// ExporterCustom is reported when spans go to an exporter passed with
	// WithSpanExporter.
	ExporterCustom = "custom"
)

// TracerProvider is the provider owned by a Pipeline.
type TracerProvider interface {
	trace.TracerProvider

	// Exporter names where finished spans are sent: "otlp/grpc", "otlp/http",
	// ExporterCustom or ExporterNone.
	Exporter() string

	// Close flushes buffered spans and shuts the provider down. It is safe to
	// call more than once; afterwards the provider hands out noop tracers.
	Close(context.Context) error
	RegisterSpanProcessor(sdktrace.SpanProcessor)
}

// tracerProvider wraps an SDK provider. A nil tp means nothing is exported,
// either because tracing is disabled or because the provider was closed.
type tracerProvider struct {
	embedded.TracerProvider

	exporter string

	mu sync.RWMutex
	tp *sdktrace.TracerProvider
}

var noopProvider = noop.NewTracerProvider()

// Noop returns the provider used when tracing is disabled. Its spans are
// never recorded.
func Noop() TracerProvider {
	return &tracerProvider{exporter: ExporterNone}
}

func (t *tracerProvider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.tp == nil {
		return noopProvider.Tracer(name, options...)
	}
	return t.tp.Tracer(name, options...)
}

func (t *tracerProvider) Exporter() string {
	return t.exporter
}

func (t *tracerProvider) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tp == nil {
		return nil
	}

	if err := t.tp.ForceFlush(ctx); err != nil {
		return err
	}
	if err := t.tp.Shutdown(ctx); err != nil {
		return err
	}

	t.tp = nil
	return nil
}

func (t *tracerProvider) RegisterSpanProcessor(spanProcessor sdktrace.SpanProcessor) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.tp != nil {
		t.tp.RegisterSpanProcessor(spanProcessor)
	}
}
