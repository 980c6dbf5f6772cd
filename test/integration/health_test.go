package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestHealthEndpoints(t *testing.T) {
	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		resp := getURL(t, testEnv.BaseURL()+path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
		if body := readBody(t, resp); !strings.Contains(body, want) {
			t.Errorf("%s: body = %q, want to contain %q", path, body, want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	readBody(t, postJSON(t, testEnv.BaseURL()+"/v1/talk", map[string]string{"uid": "50001", "content": "Hello"}))

	body := readBody(t, getURL(t, testEnv.BaseURL()+"/metrics"))
	for _, metric := range []string{
		"kikaiken_requests_total",
		"kikaiken_provider_requests_total",
		"kikaiken_talk_messages_total",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics missing %s", metric)
		}
	}
}
