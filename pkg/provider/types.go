package provider

// ProviderType identifies a chat-completion vendor.
type ProviderType string

const (
	ProviderDeepSeek    ProviderType = "deepseek"
	ProviderSiliconFlow ProviderType = "siliconflow"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleFunction  Role = "function"
)

// ReasoningContentKey is the additional field that carries vendor reasoning
// text next to the regular message content.
const ReasoningContentKey = "reasoning_content"

// ChatMessage is one entry of the conversation handed to a provider.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CallOptions carries per-call sampling parameters. Nil fields are not sent
// to the backend.
type CallOptions struct {
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Stop        []string
	User        string
}

// Message is a complete message produced by a non-streamed call.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// AdditionalFields holds vendor extensions such as reasoning_content.
	AdditionalFields map[string]any `json:"additional_fields,omitempty"`
}

// Generation is one candidate answer of a ChatResult.
type Generation struct {
	Message        Message        `json:"message"`
	GenerationInfo map[string]any `json:"generation_info,omitempty"`
}

// Text returns the message content of the generation.
func (g Generation) Text() string {
	return g.Message.Content
}

// ChatResult is the normalized output of a non-streamed call.
type ChatResult struct {
	Generations []Generation   `json:"generations"`
	LLMOutput   map[string]any `json:"llm_output,omitempty"`
}

// ReasoningContent returns the reasoning text attached to the first
// generation, if any.
func (r *ChatResult) ReasoningContent() (string, bool) {
	if r == nil || len(r.Generations) == 0 {
		return "", false
	}
	s, ok := r.Generations[0].Message.AdditionalFields[ReasoningContentKey].(string)
	return s, ok
}

// ChunkKind discriminates the message type carried by a streamed chunk.
type ChunkKind int

const (
	// ChunkAssistant is the incremental assistant message kind. It is the
	// only kind that receives vendor extension fields.
	ChunkAssistant ChunkKind = iota
	ChunkUser
	ChunkSystem
	ChunkTool
	ChunkFunction
	ChunkGeneric
)

// String returns the chunk kind name.
func (k ChunkKind) String() string {
	switch k {
	case ChunkAssistant:
		return "assistant"
	case ChunkUser:
		return "user"
	case ChunkSystem:
		return "system"
	case ChunkTool:
		return "tool"
	case ChunkFunction:
		return "function"
	default:
		return "generic"
	}
}

// MessageChunk is an incremental fragment of a message.
type MessageChunk struct {
	Kind             ChunkKind      `json:"kind"`
	Role             Role           `json:"role,omitempty"`
	Content          string         `json:"content"`
	AdditionalFields map[string]any `json:"additional_fields,omitempty"`
}

// ChatGenerationChunk is one element of a streamed response.
type ChatGenerationChunk struct {
	Message        MessageChunk   `json:"message"`
	GenerationInfo map[string]any `json:"generation_info,omitempty"`
}

// ReasoningContent returns the reasoning delta carried by the chunk.
func (c *ChatGenerationChunk) ReasoningContent() (string, bool) {
	if c == nil {
		return "", false
	}
	s, ok := c.Message.AdditionalFields[ReasoningContentKey].(string)
	return s, ok
}

// CompleteOutcome is the single value delivered by an asynchronous
// completion.
type CompleteOutcome struct {
	Result *ChatResult
	Err    error
}

// ChunkEvent is one value delivered by an asynchronous stream. Exactly one
// of Chunk and Err is set.
type ChunkEvent struct {
	Chunk *ChatGenerationChunk
	Err   error
}

// StreamEventType classifies events produced for streaming consumers.
type StreamEventType int

const (
	StreamEventDelta     StreamEventType = iota // Incremental answer text
	StreamEventReasoning                        // Incremental reasoning text
	StreamEventDone                             // Stream finished
	StreamEventError                            // Stream error
)

// String returns the event name used on the wire.
func (t StreamEventType) String() string {
	switch t {
	case StreamEventDelta:
		return "delta"
	case StreamEventReasoning:
		return "reasoning"
	case StreamEventDone:
		return "done"
	default:
		return "error"
	}
}

// StreamEvent is a flattened view of a streamed chunk.
type StreamEvent struct {
	Type  StreamEventType
	Delta string

	// FinishReason is populated on the chunk that ends the answer.
	FinishReason string

	// Err is populated if the stream encountered an error.
	Err error
}
