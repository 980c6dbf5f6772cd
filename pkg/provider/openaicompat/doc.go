// Package openaicompat adapts OpenAI-compatible Chat Completions backends
// (DeepSeek, SiliconFlow and similar vendors) to the provider interface.
//
// The adapter resolves credentials once at construction, builds a
// synchronous and an asynchronous openai-go client, and carries the
// vendor-specific reasoning_content field into both non-streamed results
// and streamed chunks. Vendor packages only supply a Profile.
package openaicompat
