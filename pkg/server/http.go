package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stargate-gql/stargate/pkg/engine"
	httpmiddleware "github.com/stargate-gql/stargate/pkg/middleware/http"
	"github.com/stargate-gql/stargate/pkg/middleware/logging"
	serverErrors "github.com/stargate-gql/stargate/pkg/server/errors"
	"github.com/stargate-gql/stargate/pkg/server/health"
	"github.com/stargate-gql/stargate/pkg/telemetry"
)

const (
	queryParam         = "query"
	operationNameParam = "operationName"
	variablesParam     = "variables"
	extensionsParam    = "extensions"

	HealthPath = "/healthz"
)

// Routes returns the router serving the GraphQL endpoint at "/" and the
// health check.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", s.HandleQuery)
	r.Post("/", s.HandleQuery)
	r.Method(http.MethodGet, HealthPath, &health.Checker{TargetService: s, TargetServiceName: "stargate"})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		s.writeError(w, req, time.Now(), serverErrors.NewEncodedError(serverErrors.OperationNotAllowed,
			fmt.Sprintf("method %s is not allowed", req.Method)))
	})
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		s.writeError(w, req, time.Now(), serverErrors.NewEncodedError(serverErrors.UndefinedEndpoint,
			fmt.Sprintf("no endpoint at %s", req.URL.Path)))
	})

	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HandleQuery decodes a GraphQL request from a POST body or from GET query
// parameters, executes it, and writes the JSON result.
func (s *Server) HandleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	req, err := s.decodeRequest(w, r)
	if err != nil {
		telemetry.TraceError(trace.SpanFromContext(ctx), err)
		s.writeError(w, r, start, err)
		return
	}

	logging.AddFields(ctx, zap.String("operation_name", req.OperationName))

	resp, err := s.execute(ctx, req, r.Method)
	if err != nil {
		s.writeError(w, r, start, err)
		return
	}

	httpmiddleware.WriteJSON(w, r, http.StatusOK, resp)
	observeRequest(http.StatusOK, start)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	encoded := serverErrors.HandleError(err)
	if encoded.HTTPStatus() >= http.StatusInternalServerError {
		logging.SetInternalError(r.Context(), err)
		s.logger.ErrorWithContext(r.Context(), "request failed",
			zap.String("code", encoded.Code()),
			zap.Error(err),
		)
	}

	httpmiddleware.CustomHTTPErrorHandler(w, r, encoded)
	observeRequest(encoded.HTTPStatus(), start)
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (*engine.Request, error) {
	if r.Method == http.MethodGet {
		return decodeGetRequest(r)
	}

	body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestBodyBytes)
	defer body.Close()

	dec := json.NewDecoder(body)

	var req engine.Request
	if err := dec.Decode(&req); err != nil {
		return nil, decodeError(err)
	}

	// the body must hold exactly one JSON value
	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, serverErrors.NewEncodedError(serverErrors.MalformedRequest, "unexpected data after the request object")
		}
		return nil, decodeError(err)
	}

	return &req, nil
}

func decodeError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return serverErrors.NewEncodedError(serverErrors.RequestTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit))
	}
	return serverErrors.NewEncodedError(serverErrors.MalformedRequest, err.Error())
}

func decodeGetRequest(r *http.Request) (*engine.Request, error) {
	values := r.URL.Query()

	req := &engine.Request{
		Query:         values.Get(queryParam),
		OperationName: values.Get(operationNameParam),
	}

	if v := values.Get(variablesParam); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
			return nil, serverErrors.NewEncodedError(serverErrors.MalformedRequest,
				fmt.Sprintf("invalid '%s' parameter: %s", variablesParam, err))
		}
	}

	if v := values.Get(extensionsParam); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Extensions); err != nil {
			return nil, serverErrors.NewEncodedError(serverErrors.MalformedRequest,
				fmt.Sprintf("invalid '%s' parameter: %s", extensionsParam, err))
		}
	}

	return req, nil
}

// isMutation reports whether the operation selected by the request is a
// mutation. Documents that do not parse are left for the engine to reject.
// Persisted queries must be resolved first, or a hash-only request is never
// recognized as a mutation.
func isMutation(req *engine.Request) bool {
	if req.Query == "" {
		return false
	}

	doc, err := parser.ParseQuery(&ast.Source{Input: req.Query})
	if err != nil {
		return false
	}

	var op *ast.OperationDefinition
	switch {
	case req.OperationName != "":
		op = doc.Operations.ForName(req.OperationName)
	case len(doc.Operations) == 1:
		op = doc.Operations[0]
	}

	return op != nil && op.Operation == ast.Mutation
}
