package openaicompat

import (
	"time"

	"github.com/openai/openai-go/option"
)

// ClientOptions configures the transport clients. Nil and empty fields are
// unset and leave the openai-go defaults in place.
type ClientOptions struct {
	// Timeout bounds each request attempt.
	Timeout *time.Duration

	// MaxRetries overrides the SDK retry count. Zero disables retries.
	MaxRetries *int

	DefaultHeaders map[string]string
	DefaultQuery   map[string]string

	// HTTPClient is used by the synchronous client, AsyncHTTPClient by the
	// asynchronous one.
	HTTPClient      option.HTTPClient
	AsyncHTTPClient option.HTTPClient

	// Client and AsyncClient are pre-built handles. Each one that is set is
	// used as is instead of being constructed.
	Client      CompletionsClient
	AsyncClient AsyncCompletionsClient
}

// ClientParams are the resolved, filtered constructor arguments handed to
// the client constructors.
type ClientParams struct {
	BaseURL    string
	HTTPClient option.HTTPClient

	// Set lists the names of the options that were supplied, in order.
	Set     []string
	Options []option.RequestOption
}

// Has reports whether the named option was supplied.
func (p ClientParams) Has(name string) bool {
	for _, n := range p.Set {
		if n == name {
			return true
		}
	}
	return false
}

// Factory builds the synchronous and asynchronous clients of an adapter.
// The constructor fields are replaceable for tests and custom transports.
type Factory struct {
	NewClient      func(ClientParams) (CompletionsClient, error)
	NewAsyncClient func(ClientParams) (AsyncCompletionsClient, error)
}

// DefaultFactory builds openai-go backed clients.
func DefaultFactory() *Factory {
	return &Factory{
		NewClient: func(p ClientParams) (CompletionsClient, error) {
			return NewSDKClient(p.BaseURL, p.HTTPClient, p.Options...)
		},
		NewAsyncClient: func(p ClientParams) (AsyncCompletionsClient, error) {
			c, err := NewSDKClient(p.BaseURL, p.HTTPClient, p.Options...)
			if err != nil {
				return nil, err
			}
			return NewAsyncClient(c), nil
		},
	}
}

// Build returns the client pair for cred. Pre-supplied handles are reused
// and never rebuilt; the missing ones are constructed from the filtered
// options. Constructor errors are returned as is.
func (f *Factory) Build(cred Credential, opts ClientOptions) (CompletionsClient, AsyncCompletionsClient, error) {
	client := opts.Client
	if client == nil {
		c, err := f.NewClient(buildParams(cred, opts, opts.HTTPClient))
		if err != nil {
			return nil, nil, err
		}
		client = c
	}

	async := opts.AsyncClient
	if async == nil {
		c, err := f.NewAsyncClient(buildParams(cred, opts, opts.AsyncHTTPClient))
		if err != nil {
			return nil, nil, err
		}
		async = c
	}

	return client, async, nil
}

func buildParams(cred Credential, opts ClientOptions, httpClient option.HTTPClient) ClientParams {
	p := ClientParams{
		BaseURL:    cred.BaseURL(),
		HTTPClient: httpClient,
		Set:        []string{"base_url"},
	}
	add := func(name string, opt option.RequestOption) {
		p.Set = append(p.Set, name)
		p.Options = append(p.Options, opt)
	}

	if cred.APIKey() != "" {
		add("api_key", option.WithAPIKey(cred.APIKey()))
	}
	if opts.Timeout != nil {
		add("timeout", option.WithRequestTimeout(*opts.Timeout))
	}
	if opts.MaxRetries != nil {
		add("max_retries", option.WithMaxRetries(*opts.MaxRetries))
	}
	if len(opts.DefaultHeaders) > 0 {
		for k, v := range opts.DefaultHeaders {
			p.Options = append(p.Options, option.WithHeader(k, v))
		}
		p.Set = append(p.Set, "default_headers")
	}
	if len(opts.DefaultQuery) > 0 {
		for k, v := range opts.DefaultQuery {
			p.Options = append(p.Options, option.WithQuery(k, v))
		}
		p.Set = append(p.Set, "default_query")
	}
	if httpClient != nil {
		p.Set = append(p.Set, "http_client")
	}

	return p
}
