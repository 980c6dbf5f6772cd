package provider

import "context"

// Provider abstracts a chat-completion backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "deepseek").
	Name() string

	// Model returns the default model used when CallOptions leave it empty.
	Model() string

	// Complete performs non-streaming inference.
	Complete(ctx context.Context, messages []ChatMessage, opts *CallOptions) (*ChatResult, error)

	// CompleteAsync performs non-streaming inference on the asynchronous
	// client. The returned channel delivers exactly one outcome and is then
	// closed.
	CompleteAsync(ctx context.Context, messages []ChatMessage, opts *CallOptions) <-chan CompleteOutcome

	// Stream performs streaming inference and returns a pull iterator.
	// Callers must Close the iterator.
	Stream(ctx context.Context, messages []ChatMessage, opts *CallOptions) ChunkIterator

	// StreamAsync performs streaming inference on the asynchronous client.
	// The returned channel is unbuffered and closed when the stream ends,
	// fails, or the context is cancelled.
	StreamAsync(ctx context.Context, messages []ChatMessage, opts *CallOptions) <-chan ChunkEvent

	// Close releases provider resources.
	Close() error
}

// ChunkIterator yields streamed chunks one at a time.
//
//	it := p.Stream(ctx, msgs, nil)
//	defer it.Close()
//	for it.Next() {
//		chunk := it.Chunk()
//	}
//	if err := it.Err(); err != nil { ... }
type ChunkIterator interface {
	Next() bool
	Chunk() *ChatGenerationChunk
	Err() error
	Close() error
}

// Events flattens a ChunkEvent channel into StreamEvents. Empty deltas are
// skipped. A single Done or Error event is emitted before the returned
// channel is closed.
func Events(ctx context.Context, in <-chan ChunkEvent) <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		send := func(ev StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		var finish string
		for ev := range in {
			if ev.Err != nil {
				send(StreamEvent{Type: StreamEventError, Err: ev.Err})
				return
			}
			if r, ok := ev.Chunk.ReasoningContent(); ok && r != "" {
				if !send(StreamEvent{Type: StreamEventReasoning, Delta: r}) {
					return
				}
			}
			if c := ev.Chunk.Message.Content; c != "" {
				if !send(StreamEvent{Type: StreamEventDelta, Delta: c}) {
					return
				}
			}
			if fr, ok := ev.Chunk.GenerationInfo["finish_reason"].(string); ok && fr != "" {
				finish = fr
			}
		}
		if err := ctx.Err(); err != nil {
			send(StreamEvent{Type: StreamEventError, Err: err})
			return
		}
		send(StreamEvent{Type: StreamEventDone, FinishReason: finish})
	}()
	return out
}
