package openaicompat

import (
	"context"
	"sync"

	"github.com/openai/openai-go"

	"github.com/kikaiken/kikaiken/pkg/provider"
)

// TranslateChunk augments derived with the reasoning_content delta of raw.
// It only touches assistant chunks and passes a nil derived chunk through.
// It keeps no state between calls.
func TranslateChunk(raw openai.ChatCompletionChunk, derived *provider.ChatGenerationChunk) *provider.ChatGenerationChunk {
	if derived == nil || len(raw.Choices) == 0 {
		return derived
	}

	value, ok := extraField(raw.Choices[0].Delta.JSON.ExtraFields, provider.ReasoningContentKey)
	if !ok || !truthy(value) {
		return derived
	}
	if derived.Message.Kind != provider.ChunkAssistant {
		return derived
	}

	if derived.Message.AdditionalFields == nil {
		derived.Message.AdditionalFields = map[string]any{}
	}
	derived.Message.AdditionalFields[provider.ReasoningContentKey] = value
	return derived
}

// convertChunk is the vendor-neutral chunk translation. It returns nil for
// chunks that carry nothing: no choices and no usage, or a null delta.
func convertChunk(raw openai.ChatCompletionChunk) *provider.ChatGenerationChunk {
	info := map[string]any{}
	if raw.Model != "" {
		info["model_name"] = raw.Model
	}
	if raw.JSON.Usage.Valid() {
		info["token_usage"] = map[string]any{
			"prompt_tokens":     raw.Usage.PromptTokens,
			"completion_tokens": raw.Usage.CompletionTokens,
			"total_tokens":      raw.Usage.TotalTokens,
		}
	}

	if len(raw.Choices) == 0 {
		// No choices and no usage: nothing to derive. Callers skip the chunk
		// rather than emit an empty assistant delta.
		if _, ok := info["token_usage"]; !ok {
			return nil
		}
		return &provider.ChatGenerationChunk{
			Message:        provider.MessageChunk{Kind: provider.ChunkAssistant, Role: provider.RoleAssistant},
			GenerationInfo: info,
		}
	}

	choice := raw.Choices[0]
	if d := choice.JSON.Delta.Raw(); d == "" || d == "null" {
		return nil
	}

	delta := choice.Delta
	kind, role := chunkKind(delta.Role)
	msg := provider.MessageChunk{
		Kind:             kind,
		Role:             role,
		Content:          delta.Content,
		AdditionalFields: map[string]any{},
	}
	if len(delta.ToolCalls) > 0 {
		calls := make([]map[string]any, 0, len(delta.ToolCalls))
		for _, tc := range delta.ToolCalls {
			calls = append(calls, map[string]any{
				"index": tc.Index,
				"id":    tc.ID,
				"type":  tc.Type,
				"function": map[string]any{
					"name":      tc.Function.Name,
					"arguments": tc.Function.Arguments,
				},
			})
		}
		msg.AdditionalFields["tool_calls"] = calls
	}
	if delta.Refusal != "" {
		msg.AdditionalFields["refusal"] = delta.Refusal
	}

	if choice.FinishReason != "" {
		info["finish_reason"] = choice.FinishReason
		if raw.SystemFingerprint != "" {
			info["system_fingerprint"] = raw.SystemFingerprint
		}
	}

	return &provider.ChatGenerationChunk{Message: msg, GenerationInfo: info}
}

// chunkKind maps a delta role to a chunk kind. Deltas without a role
// continue the assistant message.
func chunkKind(role string) (provider.ChunkKind, provider.Role) {
	switch provider.Role(role) {
	case "", provider.RoleAssistant:
		return provider.ChunkAssistant, provider.RoleAssistant
	case provider.RoleUser:
		return provider.ChunkUser, provider.RoleUser
	case provider.RoleSystem:
		return provider.ChunkSystem, provider.RoleSystem
	case provider.RoleTool:
		return provider.ChunkTool, provider.RoleTool
	case provider.RoleFunction:
		return provider.ChunkFunction, provider.RoleFunction
	default:
		return provider.ChunkGeneric, provider.Role(role)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// chunkIterator adapts a ChunkStream to provider.ChunkIterator.
type chunkIterator struct {
	ctx     context.Context
	stream  ChunkStream
	observe func(*provider.ChatGenerationChunk)

	current *provider.ChatGenerationChunk
	err     error
	done    bool
	once    sync.Once
}

var _ provider.ChunkIterator = (*chunkIterator)(nil)

func (it *chunkIterator) Next() bool {
	if it.done {
		return false
	}
	for {
		if err := it.ctx.Err(); err != nil {
			it.stop(err)
			return false
		}
		if !it.stream.Next() {
			err := it.stream.Err()
			if ctxErr := it.ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			it.stop(err)
			return false
		}

		raw := it.stream.Current()
		chunk := TranslateChunk(raw, convertChunk(raw))
		if chunk == nil {
			continue
		}
		if it.observe != nil {
			it.observe(chunk)
		}
		it.current = chunk
		return true
	}
}

func (it *chunkIterator) Chunk() *provider.ChatGenerationChunk { return it.current }

func (it *chunkIterator) Err() error { return it.err }

func (it *chunkIterator) Close() error {
	var err error
	it.once.Do(func() { err = it.stream.Close() })
	it.done = true
	return err
}

func (it *chunkIterator) stop(err error) {
	it.err = err
	it.current = nil
	it.Close()
}
