// Package provider defines the vendor-neutral interface for chat-completion
// backends. Adapters (see openaicompat) translate between the backend wire
// format and the types in this package (ChatMessage, ChatResult,
// ChatGenerationChunk), keeping protocol details invisible to the bot.
package provider
