// Package llm provides LLM client implementations.
package llm

import "context"

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	// tools is the set of tool schemas offered to the model for this
	// call; nil means the model must answer in text.
	//
	// Transport, authentication, and rate-limit failures are returned
	// as errors. Chat never converts them into response content.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
