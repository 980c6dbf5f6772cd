// Package transport defines the handler interfaces and middleware chain for
// the kikaiken HTTP/SSE transport layer.
//
// The HTTP adapter in the http subpackage decodes requests into pkg/api
// types and hands talks to a ReplyCreator. The ReplyWriter interface hides
// whether the reply goes out as one JSON document or as server-sent events.
// KeyManager and RecordReader back the administrative endpoints.
//
// # Middleware
//
// The middleware chain wraps ReplyCreator with panic recovery, request ID
// assignment (X-Request-ID, generated with github.com/google/uuid) and
// structured logging via log/slog.
package transport
