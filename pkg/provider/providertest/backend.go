// Package providertest serves a deterministic OpenAI-compatible Chat
// Completions API for tests and local development.
//
// Replies depend only on the request:
//
//   - "count from 1 to 5" in the last user message answers "1, 2, 3, 4, 5"
//   - a model name containing "reasoner", or "think" in the last user
//     message, adds reasoning_content
//   - "trigger:error", "trigger:ratelimit" and "trigger:badrequest" answer
//     500, 429 and 400 with an OpenAI error body
//   - anything else answers "Hello, nice day!"
package providertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

const (
	DefaultModel     = "mock-model"
	DefaultReply     = "Hello, nice day!"
	DefaultReasoning = "Let me think about it."
)

// Config configures the mock backend.
type Config struct {
	// APIKey, when set, must be presented as a Bearer token.
	APIKey string
}

// Backend is the mock Chat Completions server.
type Backend struct {
	cfg Config
	mux *http.ServeMux

	mu       sync.Mutex
	requests []Request
}

// Request is a decoded chat completion request.
type Request struct {
	Model         string    `json:"model"`
	Messages      []Message `json:"messages"`
	Stream        bool      `json:"stream"`
	Temperature   *float64  `json:"temperature,omitempty"`
	User          string    `json:"user,omitempty"`
	Authorization string    `json:"-"`
}

// Message is one chat message of a Request.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// New creates a mock backend.
func New(cfg Config) *Backend {
	b := &Backend{cfg: cfg, mux: http.NewServeMux()}
	b.mux.HandleFunc("POST /v1/chat/completions", b.handleChatCompletions)
	b.mux.HandleFunc("GET /v1/models", handleModels)
	b.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return b
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

// Requests returns the chat completion requests received so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

func (b *Backend) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body")
		return
	}
	req.Authorization = r.Header.Get("Authorization")

	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()

	if b.cfg.APIKey != "" && req.Authorization != "Bearer "+b.cfg.APIKey {
		writeError(w, http.StatusUnauthorized, "authentication_error", "invalid api key")
		return
	}

	last := lastUserMessage(&req)
	switch {
	case strings.Contains(last, "trigger:error"):
		writeError(w, http.StatusInternalServerError, "server_error", "mock backend failure")
		return
	case strings.Contains(last, "trigger:ratelimit"):
		writeError(w, http.StatusTooManyRequests, "rate_limit_error", "mock rate limit")
		return
	case strings.Contains(last, "trigger:badrequest"):
		writeError(w, http.StatusBadRequest, "invalid_request_error", "mock bad request")
		return
	}

	if req.Model == "" {
		req.Model = DefaultModel
	}
	tokens := replyTokens(last)
	var reasoning []string
	if wantsReasoning(&req, last) {
		reasoning = []string{"Let me", " think", " about it."}
	}

	if req.Stream {
		stream(w, req.Model, reasoning, tokens)
		return
	}

	message := map[string]any{
		"role":    "assistant",
		"content": strings.Join(tokens, ""),
	}
	if reasoning != nil {
		message["reasoning_content"] = strings.Join(reasoning, "")
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   req.Model,
		"choices": []any{map[string]any{
			"index":         0,
			"message":       message,
			"finish_reason": "stop",
		}},
		"usage": usage(len(tokens)),
	})
}

// stream writes role, reasoning, content and finish chunks, a usage-only
// terminal chunk and the [DONE] sentinel.
func stream(w http.ResponseWriter, model string, reasoning, tokens []string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	send := func(chunk map[string]any) {
		chunk["id"] = "chatcmpl-mock-stream"
		chunk["object"] = "chat.completion.chunk"
		chunk["created"] = 1700000000
		chunk["model"] = model
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	delta := func(d map[string]any, finish any) map[string]any {
		return map[string]any{"choices": []any{map[string]any{
			"index":         0,
			"delta":         d,
			"finish_reason": finish,
		}}}
	}

	send(delta(map[string]any{"role": "assistant", "content": ""}, nil))
	for _, r := range reasoning {
		send(delta(map[string]any{"content": "", "reasoning_content": r}, nil))
	}
	for _, t := range tokens {
		send(delta(map[string]any{"content": t}, nil))
	}
	send(delta(map[string]any{}, "stop"))
	send(map[string]any{"choices": []any{}, "usage": usage(len(tokens))})

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func replyTokens(last string) []string {
	if strings.Contains(strings.ToLower(last), "count from 1 to 5") {
		return []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}
	}
	return []string{"Hello", ", ", "nice", " ", "day", "!"}
}

func wantsReasoning(req *Request, last string) bool {
	return strings.Contains(strings.ToLower(req.Model), "reasoner") ||
		strings.Contains(strings.ToLower(last), "think")
}

func usage(completion int) map[string]any {
	return map[string]any{
		"prompt_tokens":     10,
		"completion_tokens": completion,
		"total_tokens":      10 + completion,
	}
}

func lastUserMessage(req *Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		switch v := req.Messages[i].Content.(type) {
		case string:
			return v
		case []any:
			for _, part := range v {
				if m, ok := part.(map[string]any); ok && m["type"] == "text" {
					if text, ok := m["text"].(string); ok {
						return text
					}
				}
			}
		}
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, typ, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": typ, "param": nil, "code": nil},
	})
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": DefaultModel, "object": "model", "owned_by": "kikaiken-mock"},
			{"id": "deepseek-reasoner", "object": "model", "owned_by": "kikaiken-mock"},
		},
	})
}
