package openaicompat

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/kikaiken/kikaiken/pkg/provider"
)

const testDefaultURL = "https://api.vendor.test/v1"

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func testInput(apiKey, baseURL string, env map[string]string) CredentialInput {
	return CredentialInput{
		Provider:       provider.ProviderSiliconFlow,
		Model:          "deepseek-ai/DeepSeek-V3",
		APIKey:         apiKey,
		BaseURL:        baseURL,
		DefaultBaseURL: testDefaultURL,
		Env:            EnvNames{APIKey: "VENDOR_API_KEY", BaseURL: "VENDOR_API_BASE"},
		LookupEnv:      envMap(env),
	}
}

func TestResolveCredential(t *testing.T) {
	tests := []struct {
		name        string
		apiKey      string
		baseURL     string
		env         map[string]string
		wantKey     string
		wantURL     string
		wantDefault bool
		wantErr     bool
	}{
		{
			name:        "explicit key with default endpoint",
			apiKey:      "sk-explicit",
			wantKey:     "sk-explicit",
			wantURL:     testDefaultURL,
			wantDefault: true,
		},
		{
			name:        "env key with default endpoint",
			env:         map[string]string{"VENDOR_API_KEY": "sk-env"},
			wantKey:     "sk-env",
			wantURL:     testDefaultURL,
			wantDefault: true,
		},
		{
			name:    "explicit values win over env",
			apiKey:  "sk-explicit",
			baseURL: "https://proxy.test/v1",
			env: map[string]string{
				"VENDOR_API_KEY":  "sk-env",
				"VENDOR_API_BASE": "https://env.test/v1",
			},
			wantKey: "sk-explicit",
			wantURL: "https://proxy.test/v1",
		},
		{
			name:    "env base url without key",
			env:     map[string]string{"VENDOR_API_BASE": "http://localhost:8000/v1"},
			wantKey: "",
			wantURL: "http://localhost:8000/v1",
		},
		{
			name:    "explicit non-default base url without key",
			baseURL: "http://localhost:8000/v1",
			wantURL: "http://localhost:8000/v1",
		},
		{
			name:    "default endpoint without key",
			wantErr: true,
		},
		{
			name:    "empty env key counts as absent",
			env:     map[string]string{"VENDOR_API_KEY": ""},
			wantErr: true,
		},
		{
			name:    "explicit default base url without key",
			baseURL: testDefaultURL,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := ResolveCredential(testInput(tt.apiKey, tt.baseURL, tt.env))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected configuration error, got nil")
				}
				if !errors.Is(err, ErrConfiguration) {
					t.Errorf("expected ErrConfiguration, got %v", err)
				}
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected *ConfigurationError, got %T", err)
				}
				if cfgErr.Variable != "VENDOR_API_KEY" {
					t.Errorf("expected variable VENDOR_API_KEY, got %q", cfgErr.Variable)
				}
				if !strings.Contains(err.Error(), "VENDOR_API_KEY must be set") {
					t.Errorf("error should name the variable, got %q", err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cred.APIKey() != tt.wantKey {
				t.Errorf("api key = %q, want %q", cred.APIKey(), tt.wantKey)
			}
			if cred.BaseURL() != tt.wantURL {
				t.Errorf("base url = %q, want %q", cred.BaseURL(), tt.wantURL)
			}
			if cred.UsesDefaultBaseURL() != tt.wantDefault {
				t.Errorf("uses default = %v, want %v", cred.UsesDefaultBaseURL(), tt.wantDefault)
			}
			if cred.Provider() != provider.ProviderSiliconFlow {
				t.Errorf("provider = %q", cred.Provider())
			}
			if cred.Model() != "deepseek-ai/DeepSeek-V3" {
				t.Errorf("model = %q", cred.Model())
			}
		})
	}
}

func TestResolveCredential_ProcessEnvironment(t *testing.T) {
	t.Setenv("VENDOR_API_KEY", "sk-process")

	in := testInput("", "", nil)
	in.LookupEnv = nil

	cred, err := ResolveCredential(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.APIKey() != "sk-process" {
		t.Errorf("expected key from process env, got %q", cred.APIKey())
	}
}

func TestCredential_LogValueRedactsKey(t *testing.T) {
	cred, err := ResolveCredential(testInput("sk-secret-value", "", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sb strings.Builder
	logger := slog.New(slog.NewTextHandler(&sb, nil))
	logger.Info("resolved", "credential", cred)

	out := sb.String()
	if strings.Contains(out, "sk-secret-value") {
		t.Errorf("log output leaked the api key: %s", out)
	}
	if !strings.Contains(out, "<redacted>") {
		t.Errorf("expected redaction marker in %s", out)
	}
	if strings.Contains(fmt.Sprint(cred.LogValue()), "sk-secret") {
		t.Error("LogValue leaked the api key")
	}
}
