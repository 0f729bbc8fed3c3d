// Package http contains helpers shared by the HTTP handlers of the gateway.
package http

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/stargate-gql/stargate/pkg/server/errors"
)

const contentTypeJSON = "application/json"

// encode marshals v without escaping '<', '>' and '&', so error messages
// quoting the request keep their original characters.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CustomHTTPErrorHandler writes the encoded error as the JSON response body
// with the status code matching its error code.
func CustomHTTPErrorHandler(w http.ResponseWriter, _ *http.Request, err *errors.EncodedError) {
	w.Header().Del("Trailer")
	w.Header().Set("Content-Type", contentTypeJSON)

	buf, merr := encode(err.ActualError)
	if merr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"internal_error","message":"` + errors.InternalServerErrorMsg + `"}`))
		return
	}

	w.WriteHeader(err.HTTPStatus())
	_, _ = w.Write(buf)
}

// WriteJSON writes v as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	buf, err := encode(v)
	if err != nil {
		CustomHTTPErrorHandler(w, r, errors.NewEncodedError(errors.InternalErrorCode, errors.InternalServerErrorMsg))
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}
