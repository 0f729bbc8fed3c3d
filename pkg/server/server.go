// Package server contains the HTTP dispatcher of the gateway: it decodes
// GraphQL-over-HTTP requests, hands them to the engine and encodes the result
// or the failure.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stargate-gql/stargate/internal/manifest"
	"github.com/stargate-gql/stargate/pkg/engine"
	"github.com/stargate-gql/stargate/pkg/logger"
	"github.com/stargate-gql/stargate/pkg/server/config"
	serverErrors "github.com/stargate-gql/stargate/pkg/server/errors"
	"github.com/stargate-gql/stargate/pkg/telemetry"
)

const (
	tracerName = "stargate/pkg/server"

	OperationNameTraceTag  = "graphql.operation.name"
	DocumentHashTraceTag   = "graphql.document.hash"
	ManifestDigestTraceTag = "manifest.digest"
)

// ErrEngineRequired is returned by New when no engine is supplied.
var ErrEngineRequired = errors.New("an engine is required")

// A Server dispatches GraphQL requests received over HTTP to the engine.
type Server struct {
	engine           engine.Engine
	logger           logger.Logger
	manifest         *manifest.Text
	persistedQueries PersistedQueryCache
	config           *Config
	router           http.Handler
}

type Dependencies struct {
	Engine engine.Engine
	Logger logger.Logger

	// Manifest is the schema text the engine was built from. Optional; when
	// set its digest is attached to every request span.
	Manifest *manifest.Text

	// PersistedQueries enables automatic persisted queries when set.
	PersistedQueries PersistedQueryCache
}

type Config struct {
	RequestTimeout      time.Duration
	MaxRequestBodyBytes int64
}

// RequestContext is the per-request state handed from the HTTP layer to the
// engine. It is owned by the goroutine serving the request.
type RequestContext struct {
	Request *engine.Request
	Span    trace.Span

	// Method is the HTTP method the request arrived with. Mutations are
	// rejected for GET.
	Method string
}

// New creates a new Server which dispatches into the supplied engine.
func New(dependencies *Dependencies, cfg *Config) (*Server, error) {
	if dependencies == nil || dependencies.Engine == nil {
		return nil, ErrEngineRequired
	}

	l := dependencies.Logger
	if l == nil {
		l = logger.NewNoopLogger()
	}

	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = config.DefaultRequestTimeout
	}
	if cfg.MaxRequestBodyBytes <= 0 {
		cfg.MaxRequestBodyBytes = config.DefaultMaxRequestBodyBytes
	}

	s := &Server{
		engine:           dependencies.Engine,
		logger:           l,
		manifest:         dependencies.Manifest,
		persistedQueries: dependencies.PersistedQueries,
		config:           cfg,
	}
	s.router = s.Routes()

	return s, nil
}

// MustNew is like New but panics on error.
func MustNew(dependencies *Dependencies, cfg *Config) *Server {
	s, err := New(dependencies, cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Close releases the resources held by the server. The engine is not closed.
func (s *Server) Close() {
	if s.persistedQueries != nil {
		s.persistedQueries.Stop()
	}
}

// Execute runs a single request against the engine under the request
// timeout. The request span is always ended, and a request level failure is
// recorded on it before Execute returns. Requests are treated as arriving
// over POST, so mutations are allowed.
func (s *Server) Execute(ctx context.Context, req *engine.Request) (*engine.Response, error) {
	return s.execute(ctx, req, http.MethodPost)
}

func (s *Server) execute(ctx context.Context, req *engine.Request, method string) (*engine.Response, error) {
	if req == nil {
		req = &engine.Request{}
	}

	attrs := []attribute.KeyValue{
		attribute.String(OperationNameTraceTag, req.OperationName),
	}
	if s.manifest != nil {
		attrs = append(attrs, attribute.String(ManifestDigestTraceTag, s.manifest.Digest()))
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "stargate.Execute", trace.WithAttributes(attrs...))
	defer span.End()

	rc := &RequestContext{Request: req, Span: span, Method: method}

	resp, err := s.dispatch(ctx, rc)
	if err != nil {
		var apqErr *persistedQueryError
		if errors.As(err, &apqErr) {
			span.SetAttributes(attribute.String("graphql.persisted_query.error", apqErr.code))
			return apqErr.response(), nil
		}

		telemetry.TraceError(span, err)
		return nil, err
	}

	return resp, nil
}

func (s *Server) dispatch(ctx context.Context, rc *RequestContext) (*engine.Response, error) {
	if err := s.resolvePersistedQuery(rc.Request); err != nil {
		return nil, err
	}

	if rc.Method == http.MethodGet && isMutation(rc.Request) {
		return nil, serverErrors.NewEncodedError(serverErrors.OperationNotAllowed, "mutations are not allowed over GET")
	}

	if rc.Request.Query != "" {
		rc.Span.SetAttributes(attribute.String(DocumentHashTraceTag, DocumentHash(rc.Request.Query)))
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	type result struct {
		resp *engine.Response
		err  error
	}

	// buffered so a late engine result never blocks the goroutine
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: engine.NewExecutionError(fmt.Errorf("panic: %v", r))}
			}
		}()

		resp, err := s.engine.Execute(ctx, rc.Request)
		done <- result{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		s.logger.WarnWithContext(ctx, "request abandoned before the engine answered",
			zap.String("operation_name", rc.Request.OperationName),
			zap.Error(ctx.Err()),
		)
		return nil, engine.NewTimeoutError(ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.resp == nil {
			return nil, serverErrors.NewInternalError("", errors.New("engine returned no response"))
		}
		return r.resp, nil
	}
}

// IsReady reports whether the engine answers a trivial query.
func (s *Server) IsReady(ctx context.Context) (bool, error) {
	resp, err := s.Execute(ctx, &engine.Request{Query: "{ __typename }"})
	if err != nil {
		return false, err
	}

	return len(resp.Errors) == 0, nil
}

var _ http.Handler = (*Server)(nil)
