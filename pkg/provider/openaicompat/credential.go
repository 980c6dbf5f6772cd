package openaicompat

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kikaiken/kikaiken/pkg/provider"
)

// EnvNames names the environment variables consulted when an explicit key or
// base URL is not supplied.
type EnvNames struct {
	APIKey  string
	BaseURL string
}

// CredentialInput is everything ResolveCredential needs. Empty strings mean
// "not supplied".
type CredentialInput struct {
	Provider       provider.ProviderType
	Model          string
	APIKey         string
	BaseURL        string
	DefaultBaseURL string
	Env            EnvNames

	// LookupEnv reads the environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Credential is the resolved, immutable connection identity of one adapter.
type Credential struct {
	provider provider.ProviderType
	model    string
	apiKey   string
	baseURL  string
	fallback bool
}

func (c Credential) Provider() provider.ProviderType { return c.provider }
func (c Credential) Model() string                   { return c.model }
func (c Credential) APIKey() string                  { return c.apiKey }
func (c Credential) BaseURL() string                 { return c.baseURL }

// UsesDefaultBaseURL reports whether the base URL fell back to the
// provider's default endpoint.
func (c Credential) UsesDefaultBaseURL() bool { return c.fallback }

// LogValue keeps the API key out of structured logs.
func (c Credential) LogValue() slog.Value {
	key := "<empty>"
	if c.apiKey != "" {
		key = "<redacted>"
	}
	return slog.GroupValue(
		slog.String("provider", string(c.provider)),
		slog.String("model", c.model),
		slog.String("base_url", c.baseURL),
		slog.String("api_key", key),
	)
}

// ResolveCredential picks the API key and base URL from the explicit input,
// then the environment, then the provider default. Using the default
// endpoint without a key is a ConfigurationError.
func ResolveCredential(in CredentialInput) (Credential, error) {
	lookup := in.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	apiKey := firstNonEmpty(in.APIKey, envValue(lookup, in.Env.APIKey))
	baseURL := firstNonEmpty(in.BaseURL, envValue(lookup, in.Env.BaseURL), in.DefaultBaseURL)

	isDefault := baseURL == in.DefaultBaseURL
	if isDefault && apiKey == "" {
		return Credential{}, &ConfigurationError{
			Provider: in.Provider,
			Variable: in.Env.APIKey,
			Message:  fmt.Sprintf("if using default api base, %s must be set", in.Env.APIKey),
		}
	}

	return Credential{
		provider: in.Provider,
		model:    in.Model,
		apiKey:   apiKey,
		baseURL:  baseURL,
		fallback: isDefault,
	}, nil
}

func envValue(lookup func(string) (string, bool), name string) string {
	if name == "" {
		return ""
	}
	v, _ := lookup(name)
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
