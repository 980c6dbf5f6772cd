package providertest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go"

	"github.com/kikaiken/kikaiken/pkg/provider"
	"github.com/kikaiken/kikaiken/pkg/provider/deepseek"
	"github.com/kikaiken/kikaiken/pkg/provider/openaicompat"
	"github.com/kikaiken/kikaiken/pkg/provider/providertest"
)

func newModel(t *testing.T, backend *providertest.Backend, model, key string) *openaicompat.ChatModel {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	retries := 0
	m, err := deepseek.New(openaicompat.Config{
		Model:   model,
		APIKey:  key,
		BaseURL: srv.URL + "/v1",
		Client:  openaicompat.ClientOptions{MaxRetries: &retries},
	})
	if err != nil {
		t.Fatalf("deepseek.New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func user(content string) []provider.ChatMessage {
	return []provider.ChatMessage{{Role: provider.RoleUser, Content: content}}
}

func TestBackend_Complete(t *testing.T) {
	backend := providertest.New(providertest.Config{APIKey: "sk-mock"})
	m := newModel(t, backend, "deepseek-chat", "sk-mock")

	result, err := m.Complete(context.Background(), user("count from 1 to 5"), nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := result.Generations[0].Text(); got != "1, 2, 3, 4, 5" {
		t.Errorf("reply = %q", got)
	}
	if _, ok := result.ReasoningContent(); ok {
		t.Error("chat model should not reason")
	}

	reqs := backend.Requests()
	if len(reqs) != 1 || reqs[0].Model != "deepseek-chat" || reqs[0].Authorization != "Bearer sk-mock" {
		t.Errorf("requests = %+v", reqs)
	}
}

func TestBackend_Reasoning(t *testing.T) {
	m := newModel(t, providertest.New(providertest.Config{}), "deepseek-reasoner", "sk-any")

	result, err := m.Complete(context.Background(), user("hello"), nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if r, ok := result.ReasoningContent(); !ok || r != providertest.DefaultReasoning {
		t.Errorf("reasoning = %q, %v", r, ok)
	}
	if got := result.Generations[0].Text(); got != providertest.DefaultReply {
		t.Errorf("reply = %q", got)
	}
}

func TestBackend_Stream(t *testing.T) {
	m := newModel(t, providertest.New(providertest.Config{}), "deepseek-chat", "sk-any")

	var reasoning, content strings.Builder
	var finish string
	ctx := context.Background()
	for ev := range provider.Events(ctx, m.StreamAsync(ctx, user("please think"), nil)) {
		switch ev.Type {
		case provider.StreamEventReasoning:
			reasoning.WriteString(ev.Delta)
		case provider.StreamEventDelta:
			content.WriteString(ev.Delta)
		case provider.StreamEventDone:
			finish = ev.FinishReason
		case provider.StreamEventError:
			t.Fatalf("stream error: %v", ev.Err)
		}
	}
	if reasoning.String() != providertest.DefaultReasoning {
		t.Errorf("reasoning = %q", reasoning.String())
	}
	if content.String() != providertest.DefaultReply {
		t.Errorf("content = %q", content.String())
	}
	if finish != "stop" {
		t.Errorf("finish reason = %q", finish)
	}
}

func TestBackend_Errors(t *testing.T) {
	backend := providertest.New(providertest.Config{APIKey: "sk-mock"})

	tests := []struct {
		name    string
		key     string
		content string
		status  int
	}{
		{"wrong key", "sk-wrong", "hello", http.StatusUnauthorized},
		{"server error", "sk-mock", "trigger:error", http.StatusInternalServerError},
		{"rate limit", "sk-mock", "trigger:ratelimit", http.StatusTooManyRequests},
		{"bad request", "sk-mock", "trigger:badrequest", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newModel(t, backend, "deepseek-chat", tt.key)
			_, err := m.Complete(context.Background(), user(tt.content), nil)
			var apiErr *openai.Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *openai.Error, got %T: %v", err, err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", apiErr.StatusCode, tt.status)
			}
		})
	}
}
