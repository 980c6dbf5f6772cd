package openaicompat

import (
	"encoding/json"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/respjson"

	"github.com/kikaiken/kikaiken/pkg/provider"
)

// ResponseShape tells how a completion response was decoded.
type ResponseShape int

const (
	// ShapeTyped is a response decoded into openai.ChatCompletion.
	ShapeTyped ResponseShape = iota
	// ShapeUntyped is bare JSON that did not match the typed schema.
	ShapeUntyped
)

func (s ResponseShape) String() string {
	if s == ShapeTyped {
		return "typed"
	}
	return "untyped"
}

// RawResponse is a completion response as returned by the transport.
type RawResponse struct {
	Shape      ResponseShape
	Completion *openai.ChatCompletion
	Fields     map[string]any
}

// TypedResponse wraps a decoded completion.
func TypedResponse(c *openai.ChatCompletion) RawResponse {
	return RawResponse{Shape: ShapeTyped, Completion: c}
}

// UntypedResponse wraps bare JSON fields.
func UntypedResponse(fields map[string]any) RawResponse {
	return RawResponse{Shape: ShapeUntyped, Fields: fields}
}

// createChatResult normalizes a raw response and, for typed responses only,
// copies reasoning_content of the first choice into the first generation.
// The second return value reports whether the field was copied.
func createChatResult(raw RawResponse) (*provider.ChatResult, bool) {
	if raw.Shape != ShapeTyped || raw.Completion == nil {
		return resultFromFields(raw.Fields), false
	}

	result := resultFromCompletion(raw.Completion)
	if len(raw.Completion.Choices) == 0 || len(result.Generations) == 0 {
		return result, false
	}

	value, ok := extraField(raw.Completion.Choices[0].Message.JSON.ExtraFields, provider.ReasoningContentKey)
	if !ok {
		return result, false
	}

	fields := result.Generations[0].Message.AdditionalFields
	if _, exists := fields[provider.ReasoningContentKey]; exists {
		return result, false
	}
	fields[provider.ReasoningContentKey] = value
	return result, true
}

func resultFromCompletion(c *openai.ChatCompletion) *provider.ChatResult {
	result := &provider.ChatResult{
		Generations: make([]provider.Generation, 0, len(c.Choices)),
		LLMOutput: map[string]any{
			"model_name": c.Model,
		},
	}
	if c.SystemFingerprint != "" {
		result.LLMOutput["system_fingerprint"] = c.SystemFingerprint
	}
	if c.JSON.Usage.Valid() {
		result.LLMOutput["token_usage"] = map[string]any{
			"prompt_tokens":     c.Usage.PromptTokens,
			"completion_tokens": c.Usage.CompletionTokens,
			"total_tokens":      c.Usage.TotalTokens,
		}
	}

	for _, choice := range c.Choices {
		msg := provider.Message{
			Role:             provider.RoleAssistant,
			Content:          choice.Message.Content,
			AdditionalFields: map[string]any{},
		}
		if choice.Message.Refusal != "" {
			msg.AdditionalFields["refusal"] = choice.Message.Refusal
		}
		if len(choice.Message.ToolCalls) > 0 {
			calls := make([]map[string]any, 0, len(choice.Message.ToolCalls))
			for _, tc := range choice.Message.ToolCalls {
				calls = append(calls, map[string]any{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]any{
						"name":      tc.Function.Name,
						"arguments": tc.Function.Arguments,
					},
				})
			}
			msg.AdditionalFields["tool_calls"] = calls
		}

		info := map[string]any{}
		if choice.FinishReason != "" {
			info["finish_reason"] = choice.FinishReason
		}
		result.Generations = append(result.Generations, provider.Generation{
			Message:        msg,
			GenerationInfo: info,
		})
	}
	return result
}

// resultFromFields normalizes a bare JSON completion. Vendor extension
// fields are not extracted on this path.
func resultFromFields(fields map[string]any) *provider.ChatResult {
	result := &provider.ChatResult{LLMOutput: map[string]any{}}
	if model, ok := fields["model"].(string); ok {
		result.LLMOutput["model_name"] = model
	}
	if usage, ok := fields["usage"].(map[string]any); ok {
		result.LLMOutput["token_usage"] = usage
	}

	choices, _ := fields["choices"].([]any)
	for _, c := range choices {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}
		m, _ := choice["message"].(map[string]any)

		msg := provider.Message{Role: provider.RoleAssistant, AdditionalFields: map[string]any{}}
		if role, ok := m["role"].(string); ok && role != "" {
			msg.Role = provider.Role(role)
		}
		if content, ok := m["content"].(string); ok {
			msg.Content = content
		}
		for _, key := range []string{"tool_calls", "function_call", "refusal"} {
			if v, ok := m[key]; ok && v != nil {
				msg.AdditionalFields[key] = v
			}
		}

		info := map[string]any{}
		if fr, ok := choice["finish_reason"].(string); ok && fr != "" {
			info["finish_reason"] = fr
		}
		result.Generations = append(result.Generations, provider.Generation{
			Message:        msg,
			GenerationInfo: info,
		})
	}
	return result
}

// extraField decodes an undeclared JSON field. Omitted and null values are
// reported as absent.
func extraField(fields map[string]respjson.Field, key string) (any, bool) {
	f, ok := fields[key]
	if !ok {
		return nil, false
	}
	raw := f.Raw()
	if raw == "" || raw == "null" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false
	}
	return v, true
}
