package engine

import (
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

// introType is the source value of a __Type. Named types carry def, list and
// non-null wrappers carry typ.
type introType struct {
	def *ast.Definition
	typ *ast.Type
}

// inputValue is the source value of an __InputValue, built from either an
// argument definition or an input object field.
type inputValue struct {
	name         string
	description  string
	typ          *ast.Type
	defaultValue *ast.Value
	directives   ast.DirectiveList
}

func (e *executor) resolveIntrospection(source any, fieldName string, args map[string]any) any {
	if source == nil {
		switch fieldName {
		case "__schema":
			return e.schema
		case "__type":
			name, _ := args["name"].(string)
			if def := e.schema.Types[name]; def != nil {
				return &introType{def: def}
			}
		}
		return nil
	}

	includeDeprecated, _ := args["includeDeprecated"].(bool)

	switch src := source.(type) {
	case *ast.Schema:
		return e.schemaField(src, fieldName)
	case *introType:
		if src.typ != nil {
			return e.wrapperTypeField(src.typ, fieldName)
		}
		return e.namedTypeField(src.def, fieldName, includeDeprecated)
	case *ast.FieldDefinition:
		return e.fieldField(src, fieldName, includeDeprecated)
	case *inputValue:
		return e.inputValueField(src, fieldName)
	case *ast.EnumValueDefinition:
		return enumValueField(src, fieldName)
	case *ast.DirectiveDefinition:
		return e.directiveField(src, fieldName, includeDeprecated)
	}
	return nil
}

func (e *executor) schemaField(s *ast.Schema, name string) any {
	switch name {
	case "types":
		names := make([]string, 0, len(s.Types))
		for n := range s.Types {
			names = append(names, n)
		}
		sort.Strings(names)
		out := make([]any, 0, len(names))
		for _, n := range names {
			out = append(out, &introType{def: s.Types[n]})
		}
		return out
	case "queryType":
		return namedType(s.Query)
	case "mutationType":
		return namedType(s.Mutation)
	case "subscriptionType":
		return namedType(s.Subscription)
	case "directives":
		names := make([]string, 0, len(s.Directives))
		for n := range s.Directives {
			names = append(names, n)
		}
		sort.Strings(names)
		out := make([]any, 0, len(names))
		for _, n := range names {
			out = append(out, s.Directives[n])
		}
		return out
	}
	return nil
}

func (e *executor) wrapperTypeField(t *ast.Type, name string) any {
	switch name {
	case "kind":
		if t.NonNull {
			return "NON_NULL"
		}
		return "LIST"
	case "ofType":
		if t.NonNull {
			inner := *t
			inner.NonNull = false
			return e.typeRef(&inner)
		}
		return e.typeRef(t.Elem)
	}
	return nil
}

func (e *executor) namedTypeField(def *ast.Definition, name string, includeDeprecated bool) any {
	switch name {
	case "kind":
		return string(def.Kind)
	case "name":
		return def.Name
	case "description":
		return nilIfEmpty(def.Description)
	case "specifiedByURL":
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				return arg.Value.Raw
			}
		}
		return nil
	case "fields":
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			return nil
		}
		out := make([]any, 0, len(def.Fields))
		for _, f := range def.Fields {
			if strings.HasPrefix(f.Name, "__") {
				continue
			}
			if !includeDeprecated && f.Directives.ForName("deprecated") != nil {
				continue
			}
			out = append(out, f)
		}
		return out
	case "interfaces":
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			return nil
		}
		out := make([]any, 0, len(def.Interfaces))
		for _, n := range def.Interfaces {
			if iface := e.schema.Types[n]; iface != nil {
				out = append(out, &introType{def: iface})
			}
		}
		return out
	case "possibleTypes":
		if !def.IsAbstractType() {
			return nil
		}
		possible := append([]*ast.Definition(nil), e.schema.GetPossibleTypes(def)...)
		sort.Slice(possible, func(i, j int) bool { return possible[i].Name < possible[j].Name })
		out := make([]any, 0, len(possible))
		for _, p := range possible {
			out = append(out, &introType{def: p})
		}
		return out
	case "enumValues":
		if def.Kind != ast.Enum {
			return nil
		}
		out := make([]any, 0, len(def.EnumValues))
		for _, v := range def.EnumValues {
			if !includeDeprecated && v.Directives.ForName("deprecated") != nil {
				continue
			}
			out = append(out, v)
		}
		return out
	case "inputFields":
		if def.Kind != ast.InputObject {
			return nil
		}
		out := make([]any, 0, len(def.Fields))
		for _, f := range def.Fields {
			if !includeDeprecated && f.Directives.ForName("deprecated") != nil {
				continue
			}
			out = append(out, &inputValue{
				name:         f.Name,
				description:  f.Description,
				typ:          f.Type,
				defaultValue: f.DefaultValue,
				directives:   f.Directives,
			})
		}
		return out
	case "isOneOf":
		if def.Kind != ast.InputObject {
			return nil
		}
		return def.Directives.ForName("oneOf") != nil
	}
	return nil
}

func (e *executor) fieldField(f *ast.FieldDefinition, name string, includeDeprecated bool) any {
	switch name {
	case "name":
		return f.Name
	case "description":
		return nilIfEmpty(f.Description)
	case "args":
		return argumentValues(f.Arguments, includeDeprecated)
	case "type":
		return e.typeRef(f.Type)
	case "isDeprecated":
		return f.Directives.ForName("deprecated") != nil
	case "deprecationReason":
		return deprecationReason(f.Directives)
	}
	return nil
}

func (e *executor) inputValueField(v *inputValue, name string) any {
	switch name {
	case "name":
		return v.name
	case "description":
		return nilIfEmpty(v.description)
	case "type":
		return e.typeRef(v.typ)
	case "defaultValue":
		if v.defaultValue == nil {
			return nil
		}
		return v.defaultValue.String()
	case "isDeprecated":
		return v.directives.ForName("deprecated") != nil
	case "deprecationReason":
		return deprecationReason(v.directives)
	}
	return nil
}

func enumValueField(v *ast.EnumValueDefinition, name string) any {
	switch name {
	case "name":
		return v.Name
	case "description":
		return nilIfEmpty(v.Description)
	case "isDeprecated":
		return v.Directives.ForName("deprecated") != nil
	case "deprecationReason":
		return deprecationReason(v.Directives)
	}
	return nil
}

func (e *executor) directiveField(d *ast.DirectiveDefinition, name string, includeDeprecated bool) any {
	switch name {
	case "name":
		return d.Name
	case "description":
		return nilIfEmpty(d.Description)
	case "locations":
		out := make([]any, 0, len(d.Locations))
		for _, l := range d.Locations {
			out = append(out, string(l))
		}
		return out
	case "args":
		return argumentValues(d.Arguments, includeDeprecated)
	case "isRepeatable":
		return d.IsRepeatable
	}
	return nil
}

func (e *executor) typeRef(t *ast.Type) any {
	if t == nil {
		return nil
	}
	if t.NonNull || t.Elem != nil {
		return &introType{typ: t}
	}
	def := e.schema.Types[t.NamedType]
	if def == nil {
		return nil
	}
	return &introType{def: def}
}

func namedType(def *ast.Definition) any {
	if def == nil {
		return nil
	}
	return &introType{def: def}
}

func argumentValues(args ast.ArgumentDefinitionList, includeDeprecated bool) any {
	out := make([]any, 0, len(args))
	for _, a := range args {
		if !includeDeprecated && a.Directives.ForName("deprecated") != nil {
			continue
		}
		out = append(out, &inputValue{
			name:         a.Name,
			description:  a.Description,
			typ:          a.Type,
			defaultValue: a.DefaultValue,
			directives:   a.Directives,
		})
	}
	return out
}

func deprecationReason(directives ast.DirectiveList) any {
	d := directives.ForName("deprecated")
	if d == nil {
		return nil
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw
	}
	return "No longer supported"
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
