package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// errNullPropagated signals that a non-null position resolved to null and its
// field error has been recorded. The nearest nullable ancestor becomes null.
var errNullPropagated = errors.New("null propagated to parent")

// executor holds the state of one Execute call. It is never shared between
// goroutines.
type executor struct {
	ctx    context.Context
	schema *ast.Schema
	doc    *ast.QueryDocument
	vars   map[string]any

	resolver Resolver

	errs gqlerror.List
}

type fieldGroup struct {
	key    string
	fields []*ast.Field
}

func (e *executor) run(op *ast.OperationDefinition) (*Response, error) {
	root := e.schema.Query
	if op.Operation == ast.Mutation {
		root = e.schema.Mutation
	}
	if root == nil {
		return nil, NewValidationError(gqlerror.List{
			gqlerror.ErrorPosf(op.Position, "schema does not support %s operations", op.Operation),
		})
	}

	data, err := e.executeSelectionSet(root, nil, op.SelectionSet, nil)
	switch {
	case errors.Is(err, errNullPropagated):
		data = nil
	case err != nil:
		return nil, err
	}

	return &Response{Data: data, Errors: e.errs}, nil
}

func (e *executor) executeSelectionSet(objDef *ast.Definition, source any, set ast.SelectionSet, path ast.Path) (*Object, error) {
	return e.executeGroups(objDef, source, e.collectFields(objDef, set), path)
}

func (e *executor) executeGroups(objDef *ast.Definition, source any, groups []*fieldGroup, path ast.Path) (*Object, error) {
	out := &Object{Fields: make([]Field, 0, len(groups))}
	for _, g := range groups {
		value, err := e.executeField(objDef, source, g, appendPath(path, ast.PathName(g.key)))
		if err != nil {
			return nil, err
		}
		out.Fields = append(out.Fields, Field{Name: g.key, Value: value})
	}
	return out, nil
}

func (e *executor) executeField(objDef *ast.Definition, source any, g *fieldGroup, path ast.Path) (any, error) {
	if err := e.ctx.Err(); err != nil {
		return nil, NewTimeoutError(err)
	}

	field := g.fields[0]
	if field.Name == "__typename" {
		return objDef.Name, nil
	}

	def := field.Definition
	if def == nil {
		def = objDef.Fields.ForName(field.Name)
	}
	if def == nil {
		return nil, NewExecutionError(fmt.Errorf("field '%s' is not defined on type '%s'", field.Name, objDef.Name))
	}

	var args map[string]any
	if field.Definition != nil {
		args = field.ArgumentMap(e.vars)
	}

	var result any
	if isIntrospectionField(objDef, field) {
		result = e.resolveIntrospection(source, field.Name, args)
	} else {
		var err error
		result, err = e.resolver(e.ctx, ResolveInfo{
			ParentType: objDef.Name,
			FieldName:  field.Name,
			Args:       args,
			Path:       path,
			Source:     source,
		})
		if err != nil {
			if ctxErr := e.ctx.Err(); ctxErr != nil {
				return nil, NewTimeoutError(ctxErr)
			}
			e.addError(path, field, err)
			if def.Type.NonNull {
				return nil, errNullPropagated
			}
			return nil, nil
		}
	}

	return e.completeValue(def.Type, g.fields, result, path)
}

func (e *executor) completeValue(typ *ast.Type, fields []*ast.Field, result any, path ast.Path) (any, error) {
	if !typ.NonNull {
		value, err := e.completeNullable(typ, fields, result, path)
		if errors.Is(err, errNullPropagated) {
			return nil, nil
		}
		return value, err
	}

	nullable := *typ
	nullable.NonNull = false
	value, err := e.completeNullable(&nullable, fields, result, path)
	if err != nil {
		return nil, err
	}
	if value == nil {
		e.addError(path, fields[0], errors.New("must not be null"))
		return nil, errNullPropagated
	}
	return value, nil
}

func (e *executor) completeNullable(typ *ast.Type, fields []*ast.Field, result any, path ast.Path) (any, error) {
	if isNil(result) {
		return nil, nil
	}

	if typ.Elem != nil {
		items, ok := toList(result)
		if !ok {
			e.addError(path, fields[0], fmt.Errorf("expected a list, got %T", result))
			return nil, errNullPropagated
		}
		out := make([]any, len(items))
		for i, item := range items {
			value, err := e.completeValue(typ.Elem, fields, item, appendPath(path, ast.PathIndex(i)))
			if err != nil {
				return nil, err
			}
			out[i] = value
		}
		return out, nil
	}

	def := e.schema.Types[typ.NamedType]
	if def == nil {
		return nil, NewExecutionError(fmt.Errorf("unknown type '%s'", typ.NamedType))
	}

	switch def.Kind {
	case ast.Scalar, ast.Enum:
		value, err := completeLeaf(def, result)
		if err != nil {
			e.addError(path, fields[0], err)
			return nil, errNullPropagated
		}
		return value, nil
	case ast.Interface, ast.Union:
		concrete := e.resolveAbstractType(def, result)
		if concrete == nil {
			e.addError(path, fields[0], fmt.Errorf("could not resolve the concrete type of '%s'", def.Name))
			return nil, errNullPropagated
		}
		def = concrete
	}

	obj, err := e.executeGroups(def, result, e.collectSubfields(def, fields), path)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (e *executor) resolveAbstractType(abstract *ast.Definition, result any) *ast.Definition {
	m, ok := result.(map[string]any)
	if !ok {
		return nil
	}
	name, _ := m["__typename"].(string)
	for _, possible := range e.schema.GetPossibleTypes(abstract) {
		if possible.Name == name {
			return possible
		}
	}
	return nil
}

func completeLeaf(def *ast.Definition, result any) (any, error) {
	if def.Kind == ast.Enum {
		name, ok := result.(string)
		if !ok {
			if s, isStringer := result.(fmt.Stringer); isStringer {
				name = s.String()
			}
		}
		if def.EnumValues.ForName(name) == nil {
			return nil, fmt.Errorf("'%v' is not a value of enum '%s'", result, def.Name)
		}
		return name, nil
	}

	switch v := result.(type) {
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return nil, fmt.Errorf("cannot serialize %T as scalar '%s'", result, def.Name)
	}
}

type fieldCollector struct {
	e       *executor
	objDef  *ast.Definition
	groups  []*fieldGroup
	index   map[string]*fieldGroup
	visited map[string]bool
}

func (e *executor) collectFields(objDef *ast.Definition, sets ...ast.SelectionSet) []*fieldGroup {
	c := &fieldCollector{
		e:       e,
		objDef:  objDef,
		index:   map[string]*fieldGroup{},
		visited: map[string]bool{},
	}
	for _, set := range sets {
		c.collect(set)
	}
	return c.groups
}

// collectSubfields merges the selection sets of every field sharing a response key.
func (e *executor) collectSubfields(objDef *ast.Definition, fields []*ast.Field) []*fieldGroup {
	sets := make([]ast.SelectionSet, 0, len(fields))
	for _, f := range fields {
		sets = append(sets, f.SelectionSet)
	}
	return e.collectFields(objDef, sets...)
}

func (c *fieldCollector) collect(set ast.SelectionSet) {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *ast.Field:
			if !c.e.shouldInclude(sel.Directives) {
				continue
			}
			key := sel.Alias
			if key == "" {
				key = sel.Name
			}
			if g, ok := c.index[key]; ok {
				g.fields = append(g.fields, sel)
				continue
			}
			g := &fieldGroup{key: key, fields: []*ast.Field{sel}}
			c.index[key] = g
			c.groups = append(c.groups, g)
		case *ast.InlineFragment:
			if !c.e.shouldInclude(sel.Directives) || !c.e.typeApplies(c.objDef, sel.TypeCondition) {
				continue
			}
			c.collect(sel.SelectionSet)
		case *ast.FragmentSpread:
			if c.visited[sel.Name] || !c.e.shouldInclude(sel.Directives) {
				continue
			}
			c.visited[sel.Name] = true

			frag := c.e.doc.Fragments.ForName(sel.Name)
			if frag == nil || !c.e.typeApplies(c.objDef, frag.TypeCondition) {
				continue
			}
			c.collect(frag.SelectionSet)
		}
	}
}

func (e *executor) typeApplies(objDef *ast.Definition, condition string) bool {
	if condition == "" || condition == objDef.Name {
		return true
	}
	cond := e.schema.Types[condition]
	if cond == nil || !cond.IsAbstractType() {
		return false
	}
	for _, possible := range e.schema.GetPossibleTypes(cond) {
		if possible.Name == objDef.Name {
			return true
		}
	}
	return false
}

func (e *executor) shouldInclude(directives ast.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil && e.directiveCondition(d) {
		return false
	}
	if d := directives.ForName("include"); d != nil && !e.directiveCondition(d) {
		return false
	}
	return true
}

func (e *executor) directiveCondition(d *ast.Directive) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil || arg.Value == nil {
		return false
	}
	v, err := arg.Value.Value(e.vars)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (e *executor) addError(path ast.Path, field *ast.Field, err error) {
	var gerr *gqlerror.Error
	if errors.As(err, &gerr) {
		cp := *gerr
		gerr = &cp
	} else {
		gerr = &gqlerror.Error{Message: err.Error(), Err: err}
	}
	gerr.Path = path
	if field.Position != nil && len(gerr.Locations) == 0 {
		gerr.Locations = []gqlerror.Location{{Line: field.Position.Line, Column: field.Position.Column}}
	}
	e.errs = append(e.errs, gerr)
}

func isIntrospectionField(objDef *ast.Definition, field *ast.Field) bool {
	return field.Name == "__schema" || field.Name == "__type" || strings.HasPrefix(objDef.Name, "__")
}

func appendPath(path ast.Path, el ast.PathElement) ast.Path {
	out := make(ast.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, el)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func toList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
