package openaicompat

import (
	"github.com/openai/openai-go"

	"github.com/kikaiken/kikaiken/pkg/provider"
)

// TranslateToChat builds the chat-completions request for messages. Nil
// option fields are left unset so the backend applies its own defaults.
func TranslateToChat(model string, messages []provider.ChatMessage, opts *provider.CallOptions) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}

	for _, msg := range messages {
		switch msg.Role {
		case provider.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case provider.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	if opts == nil {
		return params
	}

	if opts.Model != "" {
		params.Model = opts.Model
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = openai.Float(*opts.TopP)
	}
	if opts.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*opts.MaxTokens))
	}
	if len(opts.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.Stop}
	}
	if opts.User != "" {
		params.User = openai.String(opts.User)
	}
	return params
}
