package api

import (
	"encoding/json"
	"time"
)

// TalkRequest is a single user utterance sent to the bot.
type TalkRequest struct {
	UID     string `json:"uid" validate:"required,max=64"`
	Content string `json:"content" validate:"required,max=4096"`

	// Optional sampling overrides. Nil means the provider default.
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	TopP        *float64 `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxTokens   *int     `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`

	// Stream selects server-sent events instead of a single JSON reply.
	Stream bool `json:"stream,omitempty"`
}

// TalkResponse is the bot's reply to a TalkRequest.
type TalkResponse struct {
	ID        string `json:"id"`
	Reply     string `json:"reply"`
	Reasoning string `json:"reasoning,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	Usage     *Usage `json:"usage,omitempty"`
}

// Usage reports token consumption for one provider call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// TalkStreamEventType names the SSE event kinds of a streamed talk.
type TalkStreamEventType string

const (
	TalkEventCreated   TalkStreamEventType = "talk.created"
	TalkEventReasoning TalkStreamEventType = "talk.reasoning"
	TalkEventDelta     TalkStreamEventType = "talk.delta"
	TalkEventDone      TalkStreamEventType = "talk.done"
	TalkEventCancelled TalkStreamEventType = "talk.cancelled"
	TalkEventError     TalkStreamEventType = "talk.error"
)

// Terminal reports whether t ends a stream. Exactly one terminal event is
// sent per streamed talk.
func (t TalkStreamEventType) Terminal() bool {
	switch t {
	case TalkEventDone, TalkEventCancelled, TalkEventError:
		return true
	}
	return false
}

// TalkStreamEvent is one server-sent event of a streamed talk.
type TalkStreamEvent struct {
	Type           TalkStreamEventType `json:"type"`
	SequenceNumber int                 `json:"sequence_number"`
	ID             string              `json:"id"`
	Delta          string              `json:"delta,omitempty"`
	FinishReason   string              `json:"finish_reason,omitempty"`

	// Reply is set on talk.done and carries the aggregated reply.
	Reply *TalkResponse `json:"reply,omitempty"`
	Error *APIError     `json:"error,omitempty"`
}

// APIKeyRequest registers a vendor API key.
type APIKeyRequest struct {
	ProviderType string `json:"provider_type" validate:"required,oneof=deepseek siliconflow"`
	ModelName    string `json:"model_name" validate:"max=255"`
	Key          string `json:"key" validate:"required,max=255"`
	Notice       string `json:"notice,omitempty" validate:"max=255"`
}

// APIKey is a stored vendor API key as returned by the API. Key is only
// populated when the caller explicitly asks for secrets.
type APIKey struct {
	ID           int64  `json:"id"`
	ProviderType string `json:"provider_type"`
	ModelName    string `json:"model_name"`
	Key          string `json:"key,omitempty"`
	Notice       string `json:"notice,omitempty"`
}

// APIKeyList is a page of stored API keys.
type APIKeyList struct {
	Object string   `json:"object"`
	Data   []APIKey `json:"data"`
	Page   int      `json:"page"`
	Pages  int      `json:"pages"`
	Total  int      `json:"total"`

	// Text is the paged listing rendered as bot text.
	Text string `json:"text"`
}

// Record is a user message captured by the bot.
type Record struct {
	ID        int64     `json:"id"`
	UID       string    `json:"uid"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordList is the newest-first list of a user's records.
type RecordList struct {
	Object string   `json:"object"`
	Data   []Record `json:"data"`
}

// MarshalJSON keeps Data an array when the list is empty.
func (l RecordList) MarshalJSON() ([]byte, error) {
	type alias RecordList
	if l.Data == nil {
		l.Data = []Record{}
	}
	if l.Object == "" {
		l.Object = "list"
	}
	return json.Marshal(alias(l))
}

// MarshalJSON keeps Data an array when the list is empty.
func (l APIKeyList) MarshalJSON() ([]byte, error) {
	type alias APIKeyList
	if l.Data == nil {
		l.Data = []APIKey{}
	}
	if l.Object == "" {
		l.Object = "list"
	}
	return json.Marshal(alias(l))
}

// CommandRequest carries one bot command line, e.g. "apikey list -s".
type CommandRequest struct {
	Command string `json:"command" validate:"required,max=1024"`
}

// CommandResponse is the bot's text answer to a command.
type CommandResponse struct {
	Text string `json:"text"`
}
