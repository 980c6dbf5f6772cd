package talk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kikaiken/kikaiken/pkg/api"
	"github.com/kikaiken/kikaiken/pkg/debug"
	"github.com/kikaiken/kikaiken/pkg/observability"
	"github.com/kikaiken/kikaiken/pkg/provider"
	"github.com/kikaiken/kikaiken/pkg/provider/deepseek"
	"github.com/kikaiken/kikaiken/pkg/provider/openaicompat"
	"github.com/kikaiken/kikaiken/pkg/provider/siliconflow"
	"github.com/kikaiken/kikaiken/pkg/storage"
	"github.com/kikaiken/kikaiken/pkg/text"
	"github.com/kikaiken/kikaiken/pkg/transport"
)

// Settings consulted before the configured provider and model.
const (
	SettingProvider = "talk.provider"
	SettingModel    = "talk.model"
)

// Config holds the configured defaults of the service.
type Config struct {
	Provider     provider.ProviderType
	Model        string
	APIKey       string
	BaseURL      string
	SystemPrompt string
	Temperature  *float64
	Client       openaicompat.ClientOptions

	// LookupEnv is handed to the adapters. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// ModelFunc builds a chat adapter for a provider type.
type ModelFunc func(pt provider.ProviderType, cfg openaicompat.Config) (provider.Provider, error)

// NewModel builds the DeepSeek or SiliconFlow adapter.
func NewModel(pt provider.ProviderType, cfg openaicompat.Config) (provider.Provider, error) {
	var (
		m   *openaicompat.ChatModel
		err error
	)
	switch pt {
	case provider.ProviderDeepSeek:
		m, err = deepseek.New(cfg)
	case provider.ProviderSiliconFlow:
		m, err = siliconflow.New(cfg)
	default:
		return nil, fmt.Errorf("talk: unknown provider type %q", pt)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Service answers user messages through a chat provider.
type Service struct {
	store    storage.Store
	cfg      Config
	newModel ModelFunc
	logger   *slog.Logger

	mu     sync.Mutex
	models map[selection]provider.Provider
}

var (
	_ transport.ReplyCreator = (*Service)(nil)
	_ transport.KeyManager   = (*Service)(nil)
	_ transport.RecordReader = (*Service)(nil)
)

// Option configures a Service.
type Option func(*Service)

// WithModelFunc replaces the adapter constructor.
func WithModelFunc(f ModelFunc) Option {
	return func(s *Service) { s.newModel = f }
}

// WithLogger sets the logger used for non-fatal failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service. The provider defaults to DeepSeek.
func New(store storage.Store, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("talk: store must not be nil")
	}
	if cfg.Provider == "" {
		cfg.Provider = provider.ProviderDeepSeek
	}
	s := &Service{
		store:    store,
		cfg:      cfg,
		newModel: NewModel,
		logger:   slog.Default(),
		models:   make(map[selection]provider.Provider),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases every cached adapter.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropModelsLocked()
}

// Talk records content for uid and returns the bot's reply. On any failure
// it returns the generic exception text together with the error.
func (s *Service) Talk(ctx context.Context, uid, content string) (string, error) {
	resp, err := s.Reply(ctx, &api.TalkRequest{UID: uid, Content: content})
	if err != nil {
		return text.GlobalException(), err
	}
	return resp.Reply, nil
}

// Reply runs one non-streamed talk.
func (s *Service) Reply(ctx context.Context, req *api.TalkRequest) (*api.TalkResponse, error) {
	s.record(ctx, req.UID, req.Content)

	m, err := s.selectModel(ctx)
	if err != nil {
		observability.TalkMessagesTotal.WithLabelValues("sync", "error").Inc()
		return nil, err
	}

	start := time.Now()
	result, err := m.Complete(ctx, s.messages(req.Content), s.callOptions(req))
	in, out := tokenUsage(result)
	observability.RecordProviderCall(m.Name(), m.Model(), time.Since(start), err, in, out)
	if err != nil {
		observability.TalkMessagesTotal.WithLabelValues("sync", "error").Inc()
		return nil, err
	}
	if len(result.Generations) == 0 {
		observability.TalkMessagesTotal.WithLabelValues("sync", "error").Inc()
		return nil, api.NewModelError("backend produced no output")
	}
	observability.TalkMessagesTotal.WithLabelValues("sync", "success").Inc()

	resp := &api.TalkResponse{
		ID:       api.NewTalkID(),
		Reply:    result.Generations[0].Text(),
		Provider: m.Name(),
		Model:    m.Model(),
	}
	if name, ok := result.LLMOutput["model_name"].(string); ok && name != "" {
		resp.Model = name
	}
	if r, ok := result.ReasoningContent(); ok {
		resp.Reasoning = r
	}
	if in > 0 || out > 0 {
		resp.Usage = &api.Usage{InputTokens: int(in), OutputTokens: int(out), TotalTokens: int(in + out)}
	}
	return resp, nil
}

// StreamTalk records content for uid and streams the reply. The channel
// ends with exactly one Done or Error event.
func (s *Service) StreamTalk(ctx context.Context, uid, content string) (<-chan provider.StreamEvent, error) {
	events, _, err := s.stream(ctx, &api.TalkRequest{UID: uid, Content: content})
	return events, err
}

func (s *Service) stream(ctx context.Context, req *api.TalkRequest) (<-chan provider.StreamEvent, provider.Provider, error) {
	s.record(ctx, req.UID, req.Content)

	m, err := s.selectModel(ctx)
	if err != nil {
		observability.TalkMessagesTotal.WithLabelValues("stream", "error").Inc()
		return nil, nil, err
	}

	start := time.Now()
	events := provider.Events(ctx, m.StreamAsync(ctx, s.messages(req.Content), s.callOptions(req)))

	out := make(chan provider.StreamEvent)
	go func() {
		defer close(out)
		var streamErr error
		for ev := range events {
			if ev.Type == provider.StreamEventError {
				streamErr = ev.Err
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				if streamErr == nil {
					streamErr = ctx.Err()
				}
			}
		}
		outcome := "success"
		if streamErr != nil {
			outcome = "error"
		}
		observability.RecordProviderCall(m.Name(), m.Model(), time.Since(start), streamErr, 0, 0)
		observability.TalkMessagesTotal.WithLabelValues("stream", outcome).Inc()
	}()
	return out, m, nil
}

// CreateReply implements transport.ReplyCreator.
func (s *Service) CreateReply(ctx context.Context, req *api.TalkRequest, w transport.ReplyWriter) error {
	if !req.Stream {
		resp, err := s.Reply(ctx, req)
		if err != nil {
			return openaicompat.MapError(err)
		}
		return w.WriteReply(ctx, resp)
	}
	return s.streamReply(ctx, req, w)
}

func (s *Service) streamReply(ctx context.Context, req *api.TalkRequest, w transport.ReplyWriter) error {
	events, m, err := s.stream(ctx, req)
	if err != nil {
		return openaicompat.MapError(err)
	}

	id := api.NewTalkID()
	seq := 0
	emit := func(ev api.TalkStreamEvent) error {
		ev.ID = id
		ev.SequenceNumber = seq
		seq++
		return w.WriteEvent(ctx, ev)
	}

	if err := emit(api.TalkStreamEvent{Type: api.TalkEventCreated}); err != nil {
		drain(events)
		return err
	}

	reply := &api.TalkResponse{ID: id, Provider: m.Name(), Model: m.Model()}
	var content, reasoning []byte
	terminal := false
	for ev := range events {
		var werr error
		switch ev.Type {
		case provider.StreamEventReasoning:
			reasoning = append(reasoning, ev.Delta...)
			werr = emit(api.TalkStreamEvent{Type: api.TalkEventReasoning, Delta: ev.Delta})
		case provider.StreamEventDelta:
			content = append(content, ev.Delta...)
			werr = emit(api.TalkStreamEvent{Type: api.TalkEventDelta, Delta: ev.Delta})
		case provider.StreamEventDone:
			terminal = true
			reply.Reply = string(content)
			reply.Reasoning = string(reasoning)
			werr = emit(api.TalkStreamEvent{Type: api.TalkEventDone, FinishReason: ev.FinishReason, Reply: reply})
		case provider.StreamEventError:
			terminal = true
			if errors.Is(ev.Err, context.Canceled) {
				debug.Log("talk", "stream cancelled", "id", id)
				werr = emit(api.TalkStreamEvent{Type: api.TalkEventCancelled})
			} else {
				werr = emit(api.TalkStreamEvent{Type: api.TalkEventError, Error: openaicompat.MapError(ev.Err)})
			}
		}
		if werr != nil {
			drain(events)
			return werr
		}
	}
	if !terminal {
		debug.Log("talk", "stream cancelled", "id", id)
		return emit(api.TalkStreamEvent{Type: api.TalkEventCancelled})
	}
	return nil
}

func drain(events <-chan provider.StreamEvent) {
	go func() {
		for range events {
		}
	}()
}

// record stores the user's message. A failing store does not stop the talk.
func (s *Service) record(ctx context.Context, uid, content string) {
	if _, err := s.store.AddRecord(ctx, uid, content); err != nil {
		s.logger.Warn("failed to record user message", "uid", uid, "error", err)
	}
}

func (s *Service) messages(content string) []provider.ChatMessage {
	msgs := make([]provider.ChatMessage, 0, 2)
	if s.cfg.SystemPrompt != "" {
		msgs = append(msgs, provider.ChatMessage{Role: provider.RoleSystem, Content: s.cfg.SystemPrompt})
	}
	return append(msgs, provider.ChatMessage{Role: provider.RoleUser, Content: content})
}

func (s *Service) callOptions(req *api.TalkRequest) *provider.CallOptions {
	opts := &provider.CallOptions{
		Temperature: s.cfg.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		User:        req.UID,
	}
	if req.Temperature != nil {
		opts.Temperature = req.Temperature
	}
	return opts
}

// selection identifies one adapter configuration.
type selection struct {
	provider provider.ProviderType
	model    string
	apiKey   string
	baseURL  string
}

// selectModel resolves provider, model and key for the next talk and
// returns the matching adapter. A stored key wins over the configured one;
// without either the adapter falls back to the vendor environment.
func (s *Service) selectModel(ctx context.Context) (provider.Provider, error) {
	sel := selection{provider: s.cfg.Provider, model: s.cfg.Model}

	pt, err := s.setting(ctx, SettingProvider)
	if err != nil {
		return nil, err
	}
	if pt != "" && provider.ProviderType(pt) != s.cfg.Provider {
		sel.provider = provider.ProviderType(pt)
		sel.model = ""
	}
	model, err := s.setting(ctx, SettingModel)
	if err != nil {
		return nil, err
	}
	if model != "" {
		sel.model = model
	}
	if sel.provider == s.cfg.Provider {
		sel.apiKey = s.cfg.APIKey
		sel.baseURL = s.cfg.BaseURL
	}

	rec, err := s.store.FindKey(ctx, string(sel.provider), sel.model)
	switch {
	case err == nil:
		sel.apiKey = rec.Key
		if sel.model == "" {
			sel.model = rec.ModelName
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("talk: find api key: %w", err)
	}

	return s.model(sel)
}

func (s *Service) setting(ctx context.Context, key string) (string, error) {
	v, err := s.store.GetSetting(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("talk: read setting %s: %w", key, err)
	}
	return v, nil
}

func (s *Service) model(sel selection) (provider.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.models[sel]; ok {
		return m, nil
	}
	m, err := s.newModel(sel.provider, openaicompat.Config{
		Model:     sel.model,
		APIKey:    sel.apiKey,
		BaseURL:   sel.baseURL,
		Client:    s.cfg.Client,
		LookupEnv: s.cfg.LookupEnv,
	})
	if err != nil {
		return nil, err
	}
	debug.Log("talk", "adapter created", "provider", sel.provider, "model", m.Model())
	s.models[sel] = m
	return m, nil
}

// dropModelsLocked closes and forgets every cached adapter.
func (s *Service) dropModelsLocked() error {
	var errs []error
	for sel, m := range s.models {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.models, sel)
	}
	return errors.Join(errs...)
}

// tokenUsage reads the prompt and completion token counts of a result.
func tokenUsage(result *provider.ChatResult) (in, out int64) {
	if result == nil {
		return 0, 0
	}
	usage, ok := result.LLMOutput["token_usage"].(map[string]any)
	if !ok {
		return 0, 0
	}
	return toInt64(usage["prompt_tokens"]), toInt64(usage["completion_tokens"])
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
