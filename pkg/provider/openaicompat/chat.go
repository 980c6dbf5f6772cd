package openaicompat

import (
	"context"

	"github.com/kikaiken/kikaiken/pkg/debug"
	"github.com/kikaiken/kikaiken/pkg/observability"
	"github.com/kikaiken/kikaiken/pkg/provider"
)

// Profile describes one OpenAI-compatible vendor.
type Profile struct {
	Provider       provider.ProviderType
	LLMType        string
	DefaultBaseURL string
	DefaultModel   string
	Env            EnvNames
}

// Config configures a ChatModel. APIKey and BaseURL override the
// environment; empty values fall back to it.
type Config struct {
	Profile Profile
	Model   string
	APIKey  string
	BaseURL string
	Client  ClientOptions

	// Factory builds the transport clients. Defaults to DefaultFactory().
	Factory *Factory

	// LookupEnv reads the environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// ChatModel is a chat-completion adapter for an OpenAI-compatible backend
// that keeps the vendor reasoning_content field. It is immutable after New
// and safe for concurrent use.
type ChatModel struct {
	profile Profile
	cred    Credential
	client  CompletionsClient
	async   AsyncCompletionsClient
}

var _ provider.Provider = (*ChatModel)(nil)

// New resolves the credential and builds the clients. All configuration
// errors surface here.
func New(cfg Config) (*ChatModel, error) {
	model := cfg.Model
	if model == "" {
		model = cfg.Profile.DefaultModel
	}
	if model == "" {
		return nil, &ConfigurationError{
			Provider: cfg.Profile.Provider,
			Message:  "model name is required",
		}
	}

	cred, err := ResolveCredential(CredentialInput{
		Provider:       cfg.Profile.Provider,
		Model:          model,
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		DefaultBaseURL: cfg.Profile.DefaultBaseURL,
		Env:            cfg.Profile.Env,
		LookupEnv:      cfg.LookupEnv,
	})
	if err != nil {
		return nil, err
	}

	factory := cfg.Factory
	if factory == nil {
		factory = DefaultFactory()
	}
	client, async, err := factory.Build(cred, cfg.Client)
	if err != nil {
		return nil, err
	}

	debug.Log("providers", "chat model ready", "credential", cred, "llm_type", cfg.Profile.LLMType)

	return &ChatModel{
		profile: cfg.Profile,
		cred:    cred,
		client:  client,
		async:   async,
	}, nil
}

// Name returns the provider identifier.
func (m *ChatModel) Name() string { return string(m.profile.Provider) }

// LLMType returns the model family reported for tracing.
func (m *ChatModel) LLMType() string { return m.profile.LLMType }

// Model returns the configured model name.
func (m *ChatModel) Model() string { return m.cred.Model() }

// Credential returns the resolved credential.
func (m *ChatModel) Credential() Credential { return m.cred }

// Complete performs a non-streamed completion. Transport errors are
// returned unchanged.
func (m *ChatModel) Complete(ctx context.Context, messages []provider.ChatMessage, opts *provider.CallOptions) (*provider.ChatResult, error) {
	params := TranslateToChat(m.cred.Model(), messages, opts)
	raw, err := m.client.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	return m.result(raw), nil
}

// CompleteAsync performs a non-streamed completion on the asynchronous
// client. The channel delivers one outcome and is closed.
func (m *ChatModel) CompleteAsync(ctx context.Context, messages []provider.ChatMessage, opts *provider.CallOptions) <-chan provider.CompleteOutcome {
	params := TranslateToChat(m.cred.Model(), messages, opts)
	out := make(chan provider.CompleteOutcome, 1)
	go func() {
		defer close(out)
		var res CompletionResult
		select {
		case r, ok := <-m.async.CreateAsync(ctx, params):
			if !ok {
				res.Err = ctx.Err()
				break
			}
			res = r
		case <-ctx.Done():
			res.Err = ctx.Err()
		}
		if res.Err != nil {
			out <- provider.CompleteOutcome{Err: res.Err}
			return
		}
		out <- provider.CompleteOutcome{Result: m.result(res.Response)}
	}()
	return out
}

// Stream performs a streamed completion on the synchronous client.
func (m *ChatModel) Stream(ctx context.Context, messages []provider.ChatMessage, opts *provider.CallOptions) provider.ChunkIterator {
	params := TranslateToChat(m.cred.Model(), messages, opts)
	return &chunkIterator{
		ctx:     ctx,
		stream:  m.client.CreateStream(ctx, params),
		observe: m.observeChunk,
	}
}

// StreamAsync performs a streamed completion on the asynchronous client.
// Each chunk is handed over only when the caller receives it.
func (m *ChatModel) StreamAsync(ctx context.Context, messages []provider.ChatMessage, opts *provider.CallOptions) <-chan provider.ChunkEvent {
	params := TranslateToChat(m.cred.Model(), messages, opts)
	out := make(chan provider.ChunkEvent)
	go func() {
		defer close(out)
		send := func(ev provider.ChunkEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for r := range m.async.CreateStreamAsync(ctx, params) {
			if r.Err != nil {
				send(provider.ChunkEvent{Err: r.Err})
				return
			}
			chunk := TranslateChunk(r.Chunk, convertChunk(r.Chunk))
			if chunk == nil {
				continue
			}
			m.observeChunk(chunk)
			if !send(provider.ChunkEvent{Chunk: chunk}) {
				return
			}
		}

		if err := ctx.Err(); err != nil {
			send(provider.ChunkEvent{Err: err})
		}
	}()
	return out
}

// Close releases the transport clients.
func (m *ChatModel) Close() error {
	var firstErr error
	for _, c := range []any{m.client, m.async} {
		if closer, ok := c.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *ChatModel) result(raw RawResponse) *provider.ChatResult {
	result, copied := createChatResult(raw)
	switch {
	case raw.Shape == ShapeUntyped:
		observability.UntypedResponsesTotal.WithLabelValues(m.Name()).Inc()
		debug.Log("providers", "untyped completion response, vendor fields not extracted",
			"provider", m.Name(), "model", m.Model())
	case copied:
		observability.ReasoningFieldsTotal.WithLabelValues(m.Name(), "complete").Inc()
	}
	return result
}

func (m *ChatModel) observeChunk(chunk *provider.ChatGenerationChunk) {
	if _, ok := chunk.Message.AdditionalFields[provider.ReasoningContentKey]; ok {
		observability.ReasoningFieldsTotal.WithLabelValues(m.Name(), "stream").Inc()
	}
}
