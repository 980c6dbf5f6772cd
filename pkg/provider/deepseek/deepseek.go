// Package deepseek configures the chat adapter for the DeepSeek platform.
package deepseek

import (
	"github.com/kikaiken/kikaiken/pkg/provider"
	"github.com/kikaiken/kikaiken/pkg/provider/openaicompat"
)

const (
	// DefaultBaseURL is the public DeepSeek endpoint.
	DefaultBaseURL = "https://api.deepseek.com/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "deepseek-chat"

	EnvAPIKey  = "DEEPSEEK_API_KEY"
	EnvAPIBase = "DEEPSEEK_API_BASE"
)

// Profile describes the DeepSeek vendor.
var Profile = openaicompat.Profile{
	Provider:       provider.ProviderDeepSeek,
	LLMType:        "chat-deepseek",
	DefaultBaseURL: DefaultBaseURL,
	DefaultModel:   DefaultModel,
	Env: openaicompat.EnvNames{
		APIKey:  EnvAPIKey,
		BaseURL: EnvAPIBase,
	},
}

// New creates a DeepSeek chat model. Any Profile set in cfg is replaced.
func New(cfg openaicompat.Config) (*openaicompat.ChatModel, error) {
	cfg.Profile = Profile
	return openaicompat.New(cfg)
}
