package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stargate-gql/stargate/internal/manifest"
	"github.com/stargate-gql/stargate/pkg/telemetry"
)

// tracerName is resolved against the global provider on every call so that a
// provider installed after package init is picked up.
const tracerName = "stargate/pkg/engine"

// ResolveInfo describes the field being resolved.
type ResolveInfo struct {
	ParentType string
	FieldName  string
	Args       map[string]any
	Path       ast.Path
	// Source is the value the parent field resolved to, nil at the root.
	Source any
}

// Resolver produces the value of a non-introspection field. A returned error
// becomes a GraphQL field error and the field resolves to null.
type Resolver func(ctx context.Context, info ResolveInfo) (any, error)

func nullResolver(context.Context, ResolveInfo) (any, error) {
	return nil, nil
}

type Option func(*SchemaEngine)

// WithMaxDepth rejects queries whose selection sets nest deeper than depth.
// Zero disables the check.
func WithMaxDepth(depth int) Option {
	return func(e *SchemaEngine) {
		e.maxDepth = depth
	}
}

// WithIntrospection toggles __schema and __type queries.
func WithIntrospection(enabled bool) Option {
	return func(e *SchemaEngine) {
		e.introspection = enabled
	}
}

// WithResolver replaces the default resolver, which resolves every field to null.
func WithResolver(r Resolver) Option {
	return func(e *SchemaEngine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// SchemaEngine validates requests against the schema parsed from the
// manifest and executes them. It is immutable after New returns.
type SchemaEngine struct {
	manifest *manifest.Text
	schema   *ast.Schema

	maxDepth      int
	introspection bool
	resolver      Resolver
}

var _ Engine = (*SchemaEngine)(nil)

// New parses the schema in text. The engine keeps a reference to text for its
// whole lifetime.
func New(text *manifest.Text, opts ...Option) (*SchemaEngine, error) {
	if text == nil {
		return nil, manifest.ErrEmptyManifest
	}

	schema, err := gqlparser.LoadSchema(&ast.Source{
		Name:  text.Path(),
		Input: text.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schema in manifest '%s': %w", text.Path(), err)
	}

	e := &SchemaEngine{
		manifest:      text,
		schema:        schema,
		introspection: true,
		resolver:      nullResolver,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

func (e *SchemaEngine) Schema() *ast.Schema {
	return e.schema
}

func (e *SchemaEngine) Manifest() *manifest.Text {
	return e.manifest
}

func (e *SchemaEngine) Execute(ctx context.Context, req *Request) (resp *Response, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.Execute", trace.WithAttributes(
		attribute.String("graphql.operation.name", req.GetOperationName()),
	))
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = NewExecutionError(fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			telemetry.TraceError(span, err)
		}
		span.End()
	}()

	if req == nil || strings.TrimSpace(req.Query) == "" {
		return nil, NewMalformedRequestError("request has no query")
	}

	if err := ctx.Err(); err != nil {
		return nil, NewTimeoutError(err)
	}

	doc, errs := gqlparser.LoadQuery(e.schema, req.Query)
	if len(errs) > 0 {
		return nil, NewValidationError(errs)
	}

	op, err := e.selectOperation(doc, req.OperationName)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("graphql.operation.type", string(op.Operation)))

	if err := e.checkLimits(doc, op); err != nil {
		return nil, err
	}

	vars, verr := validator.VariableValues(e.schema, op, req.Variables)
	if verr != nil {
		return nil, NewValidationError(gqlerror.List{asGQLError(verr)})
	}

	ex := &executor{
		ctx:      ctx,
		schema:   e.schema,
		doc:      doc,
		vars:     vars,
		resolver: e.resolver,
	}

	return ex.run(op)
}

func (e *SchemaEngine) selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if name == "" && len(doc.Operations) > 1 {
		return nil, NewValidationError(gqlerror.List{
			gqlerror.Errorf("operation name is required when the document contains more than one operation"),
		})
	}

	op := doc.Operations.ForName(name)
	if op == nil {
		return nil, NewValidationError(gqlerror.List{gqlerror.Errorf("unknown operation named '%s'", name)})
	}

	if op.Operation == ast.Subscription {
		return nil, NewValidationError(gqlerror.List{
			gqlerror.ErrorPosf(op.Position, "subscriptions are not supported"),
		})
	}

	return op, nil
}

func (e *SchemaEngine) checkLimits(doc *ast.QueryDocument, op *ast.OperationDefinition) error {
	if !e.introspection {
		if f := findIntrospectionField(doc, op.SelectionSet); f != nil {
			return NewValidationError(gqlerror.List{
				gqlerror.ErrorPosf(f.Position, "introspection is disabled"),
			})
		}
	}

	if e.maxDepth > 0 {
		if depth := selectionDepth(doc, op.SelectionSet); depth > e.maxDepth {
			return NewValidationError(gqlerror.List{
				gqlerror.ErrorPosf(op.Position, "query depth %d exceeds the maximum of %d", depth, e.maxDepth),
			})
		}
	}

	return nil
}

// GetOperationName is nil safe.
func (r *Request) GetOperationName() string {
	if r == nil {
		return ""
	}
	return r.OperationName
}

func asGQLError(err error) *gqlerror.Error {
	var gerr *gqlerror.Error
	if errors.As(err, &gerr) {
		return gerr
	}
	return &gqlerror.Error{Message: err.Error(), Err: err}
}

func findIntrospectionField(doc *ast.QueryDocument, set ast.SelectionSet) *ast.Field {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *ast.Field:
			if sel.Name == "__schema" || sel.Name == "__type" {
				return sel
			}
		case *ast.InlineFragment:
			if f := findIntrospectionField(doc, sel.SelectionSet); f != nil {
				return f
			}
		case *ast.FragmentSpread:
			if frag := doc.Fragments.ForName(sel.Name); frag != nil {
				if f := findIntrospectionField(doc, frag.SelectionSet); f != nil {
					return f
				}
			}
		}
	}
	return nil
}

// selectionDepth counts nested field levels. Fragments do not add a level.
func selectionDepth(doc *ast.QueryDocument, set ast.SelectionSet) int {
	deepest := 0
	for _, sel := range set {
		var depth int
		switch sel := sel.(type) {
		case *ast.Field:
			depth = 1 + selectionDepth(doc, sel.SelectionSet)
		case *ast.InlineFragment:
			depth = selectionDepth(doc, sel.SelectionSet)
		case *ast.FragmentSpread:
			if frag := doc.Fragments.ForName(sel.Name); frag != nil {
				depth = selectionDepth(doc, frag.SelectionSet)
			}
		}
		if depth > deepest {
			deepest = depth
		}
	}
	return deepest
}
