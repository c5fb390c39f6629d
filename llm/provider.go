// Package llm provides LLM provider abstractions and the oracle the engine
// consults for decisions and text transformations.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - How structured output is requested from the vendor

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
// Implementations hide provider-specific details while exposing
// a consistent interface for chat completions.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the default model being used.
	Model() string

	// Chat sends a chat completion request. Retries are the caller's concern.
	Chat(ctx context.Context, req Request) (Response, error)
}
