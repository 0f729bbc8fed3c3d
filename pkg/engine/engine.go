//go:generate mockgen -source engine.go -destination ../../internal/mocks/mock_engine.go -package mocks Engine

// Package engine defines the query-execution contract the gateway dispatches
// into, plus SchemaEngine, the default implementation backed by the
// supergraph manifest.
package engine

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Engine executes a single request. Implementations are built once at startup
// and must be safe for concurrent use by any number of goroutines without
// additional synchronization.
//
// A nil error means the request was executed and the Response is what the
// client sees, field errors included. Request level failures are returned as
// *Error.
type Engine interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request is a GraphQL-over-HTTP request.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

type Response struct {
	Data       *Object        `json:"data"`
	Errors     gqlerror.List  `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Field is one key of an Object.
type Field struct {
	Name  string
	Value any
}

// Object is a JSON object that keeps its keys in insertion order, which for
// execution results is the order of the selection set.
type Object struct {
	Fields []Field
}

func NewObject(fields ...Field) *Object {
	return &Object{Fields: fields}
}

func (o *Object) Set(name string, value any) {
	for i := range o.Fields {
		if o.Fields[i].Name == name {
			o.Fields[i].Value = value
			return
		}
	}
	o.Fields = append(o.Fields, Field{Name: name, Value: value})
}

func (o *Object) Get(name string) (any, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (o *Object) Len() int {
	return len(o.Fields)
}

func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}
