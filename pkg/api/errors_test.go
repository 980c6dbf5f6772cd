package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestAPIErrorMessage(t *testing.T) {
	if got := NewInvalidRequestError("uid", "is required").Error(); got != "invalid_request: is required (param: uid)" {
		t.Errorf("with param: %q", got)
	}
	if got := NewModelError("backend timed out").Error(); got != "model_error: backend timed out" {
		t.Errorf("without param: %q", got)
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		err  *APIError
		want ErrorType
	}{
		{NewNotFoundError("api key #3 not found"), ErrorTypeNotFound},
		{NewServerError("store unavailable"), ErrorTypeServerError},
		{NewModelError("deepseek returned 500"), ErrorTypeModelError},
		{NewTooManyRequestsError("slow down"), ErrorTypeTooManyRequests},
		{NewConflictError("key already exists"), ErrorTypeConflict},
		{NewUnauthorizedError("missing credentials"), ErrorTypeUnauthorized},
		{NewForbiddenError("scope superuser required"), ErrorTypeForbidden},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			if tt.err.Type != tt.want || tt.err.Param != "" || tt.err.Message == "" {
				t.Errorf("got %+v", tt.err)
			}
		})
	}
}

func TestAPIErrorIsMatchesType(t *testing.T) {
	wrapped := fmt.Errorf("delete key: %w", NewNotFoundError("api key #3 not found"))

	if !errors.Is(wrapped, &APIError{Type: ErrorTypeNotFound}) {
		t.Error("wrapped not_found should match by type")
	}
	if errors.Is(wrapped, &APIError{Type: ErrorTypeConflict}) {
		t.Error("different type must not match")
	}

	var apiErr *APIError
	if !errors.As(wrapped, &apiErr) || apiErr.Message != "api key #3 not found" {
		t.Errorf("errors.As = %+v", apiErr)
	}
}

func TestErrorResponseEnvelope(t *testing.T) {
	data, err := json.Marshal(ErrorResponse{Error: &APIError{Type: ErrorTypeModelError, Code: "insufficient_quota", Message: "quota exceeded"}})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"error":{"type":"model_error","code":"insufficient_quota","message":"quota exceeded"}}`
	if string(data) != want {
		t.Errorf("envelope = %s, want %s", data, want)
	}

	data, _ = json.Marshal(ErrorResponse{Error: NewServerError("fail")})
	if string(data) != `{"error":{"type":"server_error","message":"fail"}}` {
		t.Errorf("empty code and param should be omitted: %s", data)
	}
}
