package transport

import (
	"encoding/json"
	"net/http"

	"github.com/kikaiken/kikaiken/pkg/api"
)

var statusByType = map[api.ErrorType]int{
	api.ErrorTypeInvalidRequest:  http.StatusBadRequest,
	api.ErrorTypeUnauthorized:    http.StatusUnauthorized,
	api.ErrorTypeForbidden:       http.StatusForbidden,
	api.ErrorTypeNotFound:        http.StatusNotFound,
	api.ErrorTypeConflict:        http.StatusConflict,
	api.ErrorTypeTooManyRequests: http.StatusTooManyRequests,
	api.ErrorTypeModelError:      http.StatusBadGateway,
}

// HTTPStatusFromError returns the status for an error type. Unknown types
// and server_error map to 500.
func HTTPStatusFromError(err *api.APIError) int {
	if status, ok := statusByType[err.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse writes apiErr in the error envelope with an explicit
// status, for failures that have no error type of their own (413, 415, 503).
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes apiErr with the status of its type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
