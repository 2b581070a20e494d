// Package llm is a client for OpenAI-compatible chat completion endpoints.
package llm

import "context"

// LLMClient is the upstream surface the orchestrator and the config admin use.
type LLMClient interface {
	// CreateChatCompletionStream sends a streaming chat completion request.
	// The callback is called for each chunk received; returning an error from
	// it aborts the stream.
	CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error)

	// ListModels retrieves the models offered by the endpoint.
	ListModels(ctx context.Context) ([]Model, error)
}

var (
	_ LLMClient = (*Client)(nil)
	_ LLMClient = (*MockClient)(nil)
)
