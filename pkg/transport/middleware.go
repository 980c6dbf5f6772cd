package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/kikaiken/kikaiken/pkg/api"
)

// Middleware decorates a ReplyCreator.
type Middleware func(ReplyCreator) ReplyCreator

// Chain composes middleware so that the first argument runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next ReplyCreator) ReplyCreator {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type requestIDKey struct{}

// RequestIDFromContext returns the request ID, or "" when none is set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID attaches id to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// NewRequestID returns a random request ID.
func NewRequestID() string {
	return uuid.NewString()
}

// RequestID makes sure every talk carries a request ID. One set by the HTTP
// layer from X-Request-ID is kept.
func RequestID() Middleware {
	return func(next ReplyCreator) ReplyCreator {
		return ReplyCreatorFunc(func(ctx context.Context, req *api.TalkRequest, w ReplyWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.CreateReply(ctx, req, w)
		})
	}
}

// Recovery converts a panic in a talk into a server_error.
func Recovery() Middleware {
	return func(next ReplyCreator) ReplyCreator {
		return ReplyCreatorFunc(func(ctx context.Context, req *api.TalkRequest, w ReplyWriter) (err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in talk",
						"request_id", RequestIDFromContext(ctx),
						"uid", req.UID,
						"panic", r,
						"stack", string(debug.Stack()))
					err = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.CreateReply(ctx, req, w)
		})
	}
}

// Logging writes one line per talk. Failures caused by the caller or the
// upstream rate limit are logged at warn, everything else at error.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ReplyCreator) ReplyCreator {
		return ReplyCreatorFunc(func(ctx context.Context, req *api.TalkRequest, w ReplyWriter) error {
			start := time.Now()
			err := next.CreateReply(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("uid", req.UID),
				slog.Bool("stream", req.Stream),
				slog.Duration("duration", time.Since(start)),
			}
			if err == nil {
				logger.LogAttrs(ctx, slog.LevelInfo, "talk completed", attrs...)
				return nil
			}

			level := slog.LevelError
			var apiErr *api.APIError
			if errors.As(err, &apiErr) {
				attrs = append(attrs, slog.String("error_type", string(apiErr.Type)))
				if status := HTTPStatusFromError(apiErr); status >= 400 && status < 500 {
					level = slog.LevelWarn
				}
			}
			attrs = append(attrs, slog.String("error", err.Error()))
			logger.LogAttrs(ctx, level, "talk failed", attrs...)
			return err
		})
	}
}
