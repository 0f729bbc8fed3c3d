package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Kind classifies request level failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindMalformedRequest is a request the engine could not interpret at all.
	KindMalformedRequest
	// KindValidation is a query that does not parse or does not validate
	// against the schema.
	KindValidation
	// KindExecution is a failure while executing a valid query.
	KindExecution
	// KindTimeout is a request that ran past its deadline or was cancelled.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindMalformedRequest:
		return "malformed_request"
	case KindValidation:
		return "validation_error"
	case KindExecution:
		return "execution_error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the request level failure returned by Engine.Execute.
type Error struct {
	Kind    Kind
	Message string

	// Errors carries the GraphQL errors behind a validation failure.
	Errors gqlerror.List

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so callers can
// write errors.Is(err, &engine.Error{Kind: engine.KindTimeout}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func NewMalformedRequestError(msg string) *Error {
	return &Error{Kind: KindMalformedRequest, Message: msg}
}

func NewValidationError(list gqlerror.List) *Error {
	msg := "query failed validation"
	if len(list) > 0 {
		msg = list[0].Message
	}
	return &Error{Kind: KindValidation, Message: msg, Errors: list}
}

func NewExecutionError(err error) *Error {
	return &Error{Kind: KindExecution, Message: "query execution failed", Err: err}
}

// NewTimeoutError builds the error for a context that ended before execution
// finished. Cancellation and deadline expiry are both reported as timeouts.
func NewTimeoutError(err error) *Error {
	msg := "request timed out"
	if errors.Is(err, context.Canceled) {
		msg = "request cancelled"
	}
	return &Error{Kind: KindTimeout, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
