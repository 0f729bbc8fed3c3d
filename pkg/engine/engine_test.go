package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

func TestObjectMarshalKeepsOrder(t *testing.T) {
	obj := NewObject(Field{Name: "zeta", Value: 1}, Field{Name: "alpha", Value: nil})
	obj.Set("mid", NewObject(Field{Name: "b", Value: "x"}, Field{Name: "a", Value: []any{true, nil}}))
	obj.Set("zeta", 2)

	b, err := json.Marshal(obj)
	require.NoError(t, err)
	require.Equal(t, `{"zeta":2,"alpha":null,"mid":{"b":"x","a":[true,null]}}`, string(b))

	v, ok := obj.Get("zeta")
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.Equal(t, 3, obj.Len())

	_, ok = obj.Get("missing")
	require.False(t, ok)
}

func TestResponseMarshal(t *testing.T) {
	b, err := json.Marshal(&Response{})
	require.NoError(t, err)
	require.Equal(t, `{"data":null}`, string(b))

	b, err = json.Marshal(&Response{Errors: gqlerror.List{gqlerror.Errorf("nope")}})
	require.NoError(t, err)
	require.JSONEq(t, `{"data":null,"errors":[{"message":"nope"}]}`, string(b))
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  *Error
		kind Kind
		name string
	}{
		{NewMalformedRequestError("bad"), KindMalformedRequest, "malformed_request"},
		{NewValidationError(gqlerror.List{gqlerror.Errorf("no such field")}), KindValidation, "validation_error"},
		{NewExecutionError(errors.New("boom")), KindExecution, "execution_error"},
		{NewTimeoutError(context.DeadlineExceeded), KindTimeout, "timeout"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			wrapped := fmt.Errorf("dispatch: %w", test.err)

			require.Equal(t, test.kind, KindOf(wrapped))
			require.Equal(t, test.name, test.kind.String())
			require.ErrorIs(t, wrapped, &Error{Kind: test.kind})
			require.NotErrorIs(t, wrapped, &Error{Kind: KindUnknown})
		})
	}

	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	require.Equal(t, "no such field", NewValidationError(gqlerror.List{gqlerror.Errorf("no such field")}).Message)
	require.Equal(t, "request cancelled", NewTimeoutError(context.Canceled).Message)
}
