package transport

import (
	"context"

	"github.com/kikaiken/kikaiken/pkg/api"
)

// ReplyCreator handles the core talk operation. The implementation receives
// a validated request and writes the result (streaming events or a complete
// reply) to the ReplyWriter.
type ReplyCreator interface {
	CreateReply(ctx context.Context, req *api.TalkRequest, w ReplyWriter) error
}

// ReplyCreatorFunc is an adapter that allows using an ordinary function
// as a ReplyCreator.
type ReplyCreatorFunc func(ctx context.Context, req *api.TalkRequest, w ReplyWriter) error

// CreateReply calls f(ctx, req, w).
func (f ReplyCreatorFunc) CreateReply(ctx context.Context, req *api.TalkRequest, w ReplyWriter) error {
	return f(ctx, req, w)
}

// KeyManager administers stored vendor API keys.
type KeyManager interface {
	// ListKeys returns one page of keys. Secrets are only included when
	// show is set.
	ListKeys(ctx context.Context, show bool, page int) (*api.APIKeyList, error)

	// AddKey stores a key. Returns storage.ErrConflict for a duplicate.
	AddKey(ctx context.Context, req *api.APIKeyRequest) (*api.APIKey, error)

	// DeleteKey removes a key. Returns storage.ErrNotFound if it is unknown.
	DeleteKey(ctx context.Context, id int64) error
}

// RecordReader exposes the message history of a user.
type RecordReader interface {
	ListRecords(ctx context.Context, uid string, limit int) (*api.RecordList, error)
}

// CommandRunner executes bot commands and answers with bot text.
type CommandRunner interface {
	Command(ctx context.Context, line string) string
}

// HealthChecker reports whether a backing service is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReplyWriter abstracts streaming and non-streaming output for the handler.
//
// WriteEvent and WriteReply are mutually exclusive on a single writer
// instance. Calling WriteEvent after a terminal event (talk.done,
// talk.cancelled or talk.error) returns an error.
type ReplyWriter interface {
	// WriteEvent sends a single streaming event.
	WriteEvent(ctx context.Context, event api.TalkStreamEvent) error

	// WriteReply sends a complete non-streaming reply.
	WriteReply(ctx context.Context, resp *api.TalkResponse) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}
