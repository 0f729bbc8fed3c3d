package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/stargate-gql/stargate/internal/build"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"

	DefaultOTLPEndpoint = "localhost:4317"
	DefaultServiceName  = "stargate"
)

type TracerOption func(d *CustomTracer)

func WithOTLPEndpoint(endpoint string) TracerOption {
	return func(d *CustomTracer) {
		d.endpoint = endpoint
	}
}

// WithOTLPProtocol selects the OTLP transport, "grpc" or "http".
func WithOTLPProtocol(protocol string) TracerOption {
	return func(d *CustomTracer) {
		d.protocol = protocol
	}
}

func WithOTLPInsecure() TracerOption {
	return func(d *CustomTracer) {
		d.insecure = true
	}
}

func WithServiceName(serviceName string) TracerOption {
	return func(d *CustomTracer) {
		d.serviceName = serviceName
	}
}

func WithAttributes(attributes ...attribute.KeyValue) TracerOption {
	return func(d *CustomTracer) {
		d.attributes = append(d.attributes, attributes...)
	}
}

// WithSpanExporter bypasses OTLP and sends finished spans to exporter.
func WithSpanExporter(exporter sdktrace.SpanExporter) TracerOption {
	return func(d *CustomTracer) {
		d.exporter = exporter
	}
}

type CustomTracer struct {
	endpoint    string
	protocol    string
	insecure    bool
	serviceName string
	attributes  []attribute.KeyValue

	exporter sdktrace.SpanExporter
}

// NewTracerProvider builds a provider that samples every span and exports
// them in batches. It does not touch the process-wide globals; see
// Pipeline.Install for that.
func NewTracerProvider(ctx context.Context, opts ...TracerOption) (TracerProvider, error) {
	tracer := &CustomTracer{
		endpoint:    DefaultOTLPEndpoint,
		protocol:    ProtocolGRPC,
		serviceName: DefaultServiceName,
	}

	for _, opt := range opts {
		opt(tracer)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(tracer.serviceName),
		semconv.ServiceVersionKey.String(build.Version),
		attribute.String("exporter", "otlp"),
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(append(attrs, tracer.attributes...)...),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	exporterName := ExporterCustom
	exp := tracer.exporter
	if exp == nil {
		exp, err = newOTLPExporter(ctx, tracer)
		if err != nil {
			return nil, err
		}
		exporterName = "otlp/" + otlpProtocol(tracer.protocol)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exp)),
	)

	return &tracerProvider{exporter: exporterName, tp: tp}, nil
}

// otlpProtocol normalizes the configured protocol; empty means gRPC.
func otlpProtocol(protocol string) string {
	protocol = strings.ToLower(protocol)
	if protocol == "" {
		return ProtocolGRPC
	}
	return protocol
}

func newOTLPExporter(ctx context.Context, tracer *CustomTracer) (sdktrace.SpanExporter, error) {
	switch otlpProtocol(tracer.protocol) {
	case ProtocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(tracer.endpoint)}
		if tracer.insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create the otlp grpc exporter: %w", err)
		}
		return exp, nil
	case ProtocolHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(tracer.endpoint)}
		if tracer.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create the otlp http exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unsupported otlp protocol '%s'", tracer.protocol)
	}
}

func TraceError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
