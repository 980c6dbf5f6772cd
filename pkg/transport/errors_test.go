package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kikaiken/kikaiken/pkg/api"
)

func TestHTTPStatusFromError(t *testing.T) {
	want := map[api.ErrorType]int{
		api.ErrorTypeInvalidRequest:  400,
		api.ErrorTypeUnauthorized:    401,
		api.ErrorTypeForbidden:       403,
		api.ErrorTypeNotFound:        404,
		api.ErrorTypeConflict:        409,
		api.ErrorTypeTooManyRequests: 429,
		api.ErrorTypeServerError:     500,
		api.ErrorTypeModelError:      502,
		"something_new":              500,
	}
	for typ, status := range want {
		if got := HTTPStatusFromError(&api.APIError{Type: typ}); got != status {
			t.Errorf("%s: status = %d, want %d", typ, got, status)
		}
	}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) *api.APIError {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("missing error object")
	}
	return resp.Error
}

func TestWriteAPIErrorDerivesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAPIError(rec, api.NewConflictError("api key already exists"))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if got := decodeEnvelope(t, rec); got.Type != api.ErrorTypeConflict || got.Message != "api key already exists" {
		t.Errorf("error = %+v", got)
	}
}

func TestWriteErrorResponseExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, api.NewInvalidRequestError("content", "body too large"), http.StatusRequestEntityTooLarge)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if got := decodeEnvelope(t, rec); got.Param != "content" {
		t.Errorf("param = %q", got.Param)
	}
}
