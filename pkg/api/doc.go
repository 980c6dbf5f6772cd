// Package api defines the wire types of the kikaiken HTTP API.
//
// Core types:
//   - [TalkRequest] / [TalkResponse]: a single bot conversation turn
//   - [TalkStreamEvent]: server-sent event for streamed replies
//   - [APIKeyRequest] / [APIKey]: vendor API key management
//   - [Record]: a stored user message
//   - [APIError]: structured error with type, code, param, and message
//
// Request payloads carry validate tags checked by [Validate]. The package
// performs no I/O.
package api
