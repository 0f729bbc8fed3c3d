// Package errors maps request failures to the JSON error bodies and HTTP
// status codes returned by the gateway.
package errors

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/stargate-gql/stargate/pkg/engine"
)

const InternalServerErrorMsg = "Internal Server Error"

const (
	cFirstClientErrorCode   int32 = 2000
	cFirstInternalErrorCode int32 = 4000
	cFirstNotFoundErrorCode int32 = 5000
)

type ErrorCode int32

const (
	MalformedRequest ErrorCode = ErrorCode(cFirstClientErrorCode) + iota
	ValidationError
	OperationNotAllowed
	RequestTooLarge
)

const (
	InternalErrorCode ErrorCode = ErrorCode(cFirstInternalErrorCode) + iota
	ExecutionError
	Timeout
)

const (
	UndefinedEndpoint ErrorCode = ErrorCode(cFirstNotFoundErrorCode) + iota
)

var codeNames = map[ErrorCode]string{
	MalformedRequest:    "malformed_request",
	ValidationError:     "validation_error",
	OperationNotAllowed: "operation_not_allowed",
	RequestTooLarge:     "request_too_large",
	InternalErrorCode:   "internal_error",
	ExecutionError:      "execution_error",
	Timeout:             "timeout",
	UndefinedEndpoint:   "undefined_endpoint",
}

var codeStatus = map[ErrorCode]int{
	MalformedRequest:    http.StatusBadRequest,
	ValidationError:     http.StatusBadRequest,
	OperationNotAllowed: http.StatusMethodNotAllowed,
	RequestTooLarge:     http.StatusRequestEntityTooLarge,
	InternalErrorCode:   http.StatusInternalServerError,
	ExecutionError:      http.StatusInternalServerError,
	Timeout:             http.StatusGatewayTimeout,
	UndefinedEndpoint:   http.StatusNotFound,
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return strconv.Itoa(int(c))
}

type ErrorResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Errors  gqlerror.List `json:"errors,omitempty"`
	codeInt int32
}

// EncodedError allows customized error with code in string and specified http status field
type EncodedError struct {
	HTTPStatusCode int
	ActualError    ErrorResponse
}

// Error returns the encoded message
func (e *EncodedError) Error() string {
	return e.ActualError.Message
}

// CodeValue returns the encoded code in integer
func (e *EncodedError) CodeValue() int32 {
	return e.ActualError.codeInt
}

// HTTPStatus returns the HTTP Status code
func (e *EncodedError) HTTPStatus() int {
	return e.HTTPStatusCode
}

// Code returns the encoded code in string
func (e *EncodedError) Code() string {
	return e.ActualError.Code
}

// WithErrors attaches GraphQL errors to the response body.
func (e *EncodedError) WithErrors(list gqlerror.List) *EncodedError {
	e.ActualError.Errors = list
	return e
}

var (
	unexpectedEOF = regexp.MustCompile(`unexpected EOF`)
	jsonPrefix    = regexp.MustCompile(`^json: `)
)

func sanitizedMessage(message string) string {
	parsedMessages := strings.Split(message, "| caused by:")
	lastMessage := parsedMessages[len(parsedMessages)-1]
	lastMessage = strings.TrimSpace(lastMessage)

	sanitizedErrorMessage := unexpectedEOF.ReplaceAllString(lastMessage, "malformed JSON")
	sanitizedErrorMessage = jsonPrefix.ReplaceAllString(sanitizedErrorMessage, "")
	return strings.TrimSpace(sanitizedErrorMessage)
}

// NewEncodedError returns the encoded error with the correct http status code etc.
func NewEncodedError(errorCode ErrorCode, message string) *EncodedError {
	httpStatusCode, ok := codeStatus[errorCode]
	if !ok {
		httpStatusCode = http.StatusInternalServerError
	}

	return &EncodedError{
		HTTPStatusCode: httpStatusCode,
		ActualError: ErrorResponse{
			Code:    errorCode.String(),
			Message: sanitizedMessage(message),
			codeInt: int32(errorCode),
		},
	}
}

// IsValidEncodedError returns whether the error code is a valid encoded error
func IsValidEncodedError(errorCode int32) bool {
	_, ok := codeNames[ErrorCode(errorCode)]
	return ok
}

type InternalError struct {
	public   string
	internal error
}

func (e InternalError) Error() string {
	return e.public
}

func (e InternalError) Internal() error {
	return e.internal
}

func (e InternalError) Unwrap() error {
	return e.internal
}

func NewInternalError(public string, internal error) InternalError {
	if public == "" {
		public = InternalServerErrorMsg
	}

	return InternalError{
		public:   public,
		internal: internal,
	}
}

// HandleError is used to hide internal errors from users. Engine failures are
// encoded by kind; anything else becomes an internal error whose cause is
// kept for logging only.
func HandleError(err error) *EncodedError {
	var encoded *EncodedError
	if errors.As(err, &encoded) {
		return encoded
	}

	var engineErr *engine.Error
	if errors.As(err, &engineErr) {
		switch engineErr.Kind {
		case engine.KindMalformedRequest:
			return NewEncodedError(MalformedRequest, engineErr.Message)
		case engine.KindValidation:
			return NewEncodedError(ValidationError, engineErr.Message).WithErrors(engineErr.Errors)
		case engine.KindExecution:
			return NewEncodedError(ExecutionError, engineErr.Message)
		case engine.KindTimeout:
			return NewEncodedError(Timeout, engineErr.Message)
		}
	}

	var internal InternalError
	if errors.As(err, &internal) {
		return NewEncodedError(InternalErrorCode, internal.Error())
	}

	return NewEncodedError(InternalErrorCode, InternalServerErrorMsg)
}
