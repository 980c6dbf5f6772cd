package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ChunkStream is a pull-based stream of raw completion chunks.
// *ssestream.Stream[openai.ChatCompletionChunk] satisfies it.
type ChunkStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

// CompletionsClient is the synchronous chat-completions endpoint handle.
type CompletionsClient interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (RawResponse, error)
	CreateStream(ctx context.Context, params openai.ChatCompletionNewParams) ChunkStream
}

// CompletionResult is the single outcome of an asynchronous Create.
type CompletionResult struct {
	Response RawResponse
	Err      error
}

// StreamResult is one element of an asynchronous stream. Exactly one of
// Chunk and Err is meaningful.
type StreamResult struct {
	Chunk openai.ChatCompletionChunk
	Err   error
}

// AsyncCompletionsClient is the asynchronous chat-completions endpoint
// handle. Results are delivered on channels that are closed when done.
type AsyncCompletionsClient interface {
	CreateAsync(ctx context.Context, params openai.ChatCompletionNewParams) <-chan CompletionResult
	CreateStreamAsync(ctx context.Context, params openai.ChatCompletionNewParams) <-chan StreamResult
}

// SDKClient performs chat-completion requests through openai-go.
type SDKClient struct {
	svc        openai.ChatCompletionService
	httpClient option.HTTPClient
}

var _ CompletionsClient = (*SDKClient)(nil)

// NewSDKClient builds a client for baseURL. The service is created without
// the SDK's environment defaults so only the given options apply.
func NewSDKClient(baseURL string, httpClient option.HTTPClient, opts ...option.RequestOption) (*SDKClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", baseURL)
	}

	all := make([]option.RequestOption, 0, len(opts)+2)
	all = append(all, option.WithBaseURL(baseURL))
	if httpClient != nil {
		all = append(all, option.WithHTTPClient(httpClient))
	}
	all = append(all, opts...)

	return &SDKClient{
		svc:        openai.NewChatCompletionService(all...),
		httpClient: httpClient,
	}, nil
}

// Create performs a non-streaming completion. A body that does not decode
// into a chat completion object is returned as an untyped response.
func (c *SDKClient) Create(ctx context.Context, params openai.ChatCompletionNewParams) (RawResponse, error) {
	resp, err := c.svc.New(ctx, params)
	if err != nil {
		return RawResponse{}, err
	}

	if resp.JSON.Choices.Valid() {
		return TypedResponse(resp), nil
	}

	fields := map[string]any{}
	if raw := resp.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return RawResponse{}, fmt.Errorf("decoding untyped completion: %w", err)
		}
	}
	return UntypedResponse(fields), nil
}

// CreateStream opens a streaming completion.
func (c *SDKClient) CreateStream(ctx context.Context, params openai.ChatCompletionNewParams) ChunkStream {
	return c.svc.NewStreaming(ctx, params)
}

// Close releases idle connections of the underlying HTTP client.
func (c *SDKClient) Close() error {
	if hc, ok := c.httpClient.(*http.Client); ok {
		hc.CloseIdleConnections()
	}
	return nil
}

// AsyncClient runs a CompletionsClient on goroutines and reports results on
// channels.
type AsyncClient struct {
	client CompletionsClient
}

var _ AsyncCompletionsClient = (*AsyncClient)(nil)

// NewAsyncClient wraps client.
func NewAsyncClient(client CompletionsClient) *AsyncClient {
	return &AsyncClient{client: client}
}

// CreateAsync runs Create in the background. The channel holds one value so
// the goroutine finishes even if the caller walks away.
func (c *AsyncClient) CreateAsync(ctx context.Context, params openai.ChatCompletionNewParams) <-chan CompletionResult {
	out := make(chan CompletionResult, 1)
	go func() {
		defer close(out)
		resp, err := c.client.Create(ctx, params)
		out <- CompletionResult{Response: resp, Err: err}
	}()
	return out
}

// CreateStreamAsync forwards stream chunks on an unbuffered channel. The
// underlying stream is closed when it ends or ctx is cancelled.
func (c *AsyncClient) CreateStreamAsync(ctx context.Context, params openai.ChatCompletionNewParams) <-chan StreamResult {
	out := make(chan StreamResult)
	go func() {
		defer close(out)
		stream := c.client.CreateStream(ctx, params)
		defer stream.Close()

		for stream.Next() {
			select {
			case out <- StreamResult{Chunk: stream.Current()}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case out <- StreamResult{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

// Close closes the wrapped client if it holds resources.
func (c *AsyncClient) Close() error {
	if closer, ok := c.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
