package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/kikaiken/kikaiken/pkg/api"
	"github.com/kikaiken/kikaiken/pkg/transport"
)

const sseDone = "data: [DONE]\n\n"

var (
	errWriterClosed  = errors.New("reply writer already completed")
	errStreamStarted = errors.New("cannot write a JSON reply after stream events")
)

// sseReplyWriter is the HTTP transport.ReplyWriter. Events go out as
// server-sent events and a reply as one JSON document; a response is one
// or the other.
type sseReplyWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu       sync.Mutex
	streamed bool // at least one event written
	closed   bool // terminal event or reply written

	// onCreated gets the talk ID from talk.created, once, so the stream can
	// be registered for cancellation.
	onCreated func(id string)
}

var _ transport.ReplyWriter = (*sseReplyWriter)(nil)

func newSSEReplyWriter(w http.ResponseWriter, onCreated func(id string)) *sseReplyWriter {
	return &sseReplyWriter{w: w, rc: http.NewResponseController(w), onCreated: onCreated}
}

// WriteEvent writes "event: <type>\ndata: <json>\n\n" and flushes. A
// terminal event is followed by the "data: [DONE]" sentinel and closes
// the writer.
func (s *sseReplyWriter) WriteEvent(_ context.Context, event api.TalkStreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errWriterClosed
	}

	if !s.streamed {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.streamed = true
	}
	if event.Type == api.TalkEventCreated && s.onCreated != nil {
		s.onCreated(event.ID)
		s.onCreated = nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	var frame bytes.Buffer
	fmt.Fprintf(&frame, "event: %s\ndata: %s\n\n", event.Type, data)
	if event.Type.Terminal() {
		frame.WriteString(sseDone)
		s.closed = true
	}

	if _, err := s.w.Write(frame.Bytes()); err != nil {
		return fmt.Errorf("write %s event: %w", event.Type, err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flush %s event: %w", event.Type, err)
	}
	return nil
}

// WriteReply encodes resp as the whole response body.
func (s *sseReplyWriter) WriteReply(_ context.Context, resp *api.TalkResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.streamed:
		return errStreamStarted
	case s.closed:
		return errWriterClosed
	}

	s.closed = true
	s.w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(s.w).Encode(resp); err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	return nil
}

func (s *sseReplyWriter) Flush() error {
	return s.rc.Flush()
}

func (s *sseReplyWriter) hasStartedStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamed
}

func (s *sseReplyWriter) isCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
