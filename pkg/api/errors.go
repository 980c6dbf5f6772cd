package api

import "fmt"

// ErrorType classifies an APIError. The HTTP status is derived from it.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeConflict        ErrorType = "conflict"
	ErrorTypeModelError      ErrorType = "model_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
	ErrorTypeForbidden       ErrorType = "forbidden"
)

// APIError is the error body returned by every endpoint. Code carries the
// upstream vendor code when the failure came from a chat backend.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
}

// Is matches another *APIError of the same type, so callers can write
// errors.Is(err, &api.APIError{Type: api.ErrorTypeNotFound}).
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Type == e.Type
}

// ErrorResponse is the {"error": {...}} envelope.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

func newError(t ErrorType, message string) *APIError {
	return &APIError{Type: t, Message: message}
}

// NewInvalidRequestError reports a bad request field, named by its JSON key.
func NewInvalidRequestError(param, message string) *APIError {
	e := newError(ErrorTypeInvalidRequest, message)
	e.Param = param
	return e
}

func NewNotFoundError(message string) *APIError {
	return newError(ErrorTypeNotFound, message)
}

func NewServerError(message string) *APIError {
	return newError(ErrorTypeServerError, message)
}

// NewModelError reports a failure of the chat backend.
func NewModelError(message string) *APIError {
	return newError(ErrorTypeModelError, message)
}

func NewTooManyRequestsError(message string) *APIError {
	return newError(ErrorTypeTooManyRequests, message)
}

func NewConflictError(message string) *APIError {
	return newError(ErrorTypeConflict, message)
}

func NewUnauthorizedError(message string) *APIError {
	return newError(ErrorTypeUnauthorized, message)
}

// NewForbiddenError is for authenticated callers missing a scope.
func NewForbiddenError(message string) *APIError {
	return newError(ErrorTypeForbidden, message)
}
