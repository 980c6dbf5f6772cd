// Package siliconflow configures the chat adapter for models hosted on
// SiliconFlow. SiliconFlow serves many models, so a model name is required.
package siliconflow

import (
	"github.com/kikaiken/kikaiken/pkg/provider"
	"github.com/kikaiken/kikaiken/pkg/provider/openaicompat"
)

const (
	// DefaultBaseURL is the public SiliconFlow endpoint.
	DefaultBaseURL = "https://api.siliconflow.cn/v1"

	EnvAPIKey  = "SILICONFLOW_API_KEY"
	EnvAPIBase = "SILICONFLOW_API_BASE"
)

// Profile describes the SiliconFlow vendor.
var Profile = openaicompat.Profile{
	Provider:       provider.ProviderSiliconFlow,
	LLMType:        "deepseek-ai/DeepSeek-V3",
	DefaultBaseURL: DefaultBaseURL,
	Env: openaicompat.EnvNames{
		APIKey:  EnvAPIKey,
		BaseURL: EnvAPIBase,
	},
}

// New creates a SiliconFlow chat model. Any Profile set in cfg is replaced.
func New(cfg openaicompat.Config) (*openaicompat.ChatModel, error) {
	cfg.Profile = Profile
	return openaicompat.New(cfg)
}
