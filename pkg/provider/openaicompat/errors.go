package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"

	"github.com/kikaiken/kikaiken/pkg/api"
	"github.com/kikaiken/kikaiken/pkg/provider"
)

// ErrConfiguration is matched by every ConfigurationError.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a credential that cannot be used. It is raised
// once, when the adapter is constructed.
type ConfigurationError struct {
	Provider provider.ProviderType
	Variable string
	Message  string
}

func (e *ConfigurationError) Error() string {
	if e.Provider == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Is makes errors.Is(err, ErrConfiguration) hold.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// MapError converts an adapter error into an APIError for HTTP callers. The
// adapter itself returns transport errors unchanged; this is only applied at
// the API boundary.
func MapError(err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, ErrConfiguration) {
		return api.NewServerError(err.Error())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return api.NewServerError("backend request timed out")
	}

	var oaiErr *openai.Error
	if !errors.As(err, &oaiErr) {
		return api.NewServerError(fmt.Sprintf("backend connection error: %s", err.Error()))
	}

	message := oaiErr.Message
	switch {
	case oaiErr.StatusCode == http.StatusBadRequest:
		if message == "" {
			message = "invalid request to backend"
		}
		return api.NewInvalidRequestError(oaiErr.Param, message)

	case oaiErr.StatusCode == http.StatusUnauthorized || oaiErr.StatusCode == http.StatusForbidden:
		if message == "" {
			message = "backend authentication failed"
		}
		return api.NewServerError(message)

	case oaiErr.StatusCode == http.StatusNotFound:
		if message == "" {
			message = "backend resource not found"
		}
		return api.NewNotFoundError(message)

	case oaiErr.StatusCode == http.StatusTooManyRequests:
		if message == "" {
			message = "backend rate limit exceeded"
		}
		return api.NewTooManyRequestsError(message)

	case oaiErr.StatusCode >= http.StatusInternalServerError:
		if message == "" {
			message = fmt.Sprintf("backend server error (HTTP %d)", oaiErr.StatusCode)
		}
		return api.NewModelError(message)

	default:
		if message == "" {
			message = fmt.Sprintf("unexpected backend error (HTTP %d)", oaiErr.StatusCode)
		}
		return api.NewServerError(message)
	}
}
