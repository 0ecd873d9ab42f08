// Package llm provides abstractions for language-model provider integration.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := provider.Complete(ctx, []*llm.Message{
//	    llm.NewSystemMessage("You are a planner."),
//	    llm.NewUserMessage("Check the login page."),
//	})
package llm

import "context"

// ModelCloner is an optional interface that providers can implement to
// support lightweight per-role model overrides without constructing a full
// second provider. The returned provider shares credentials and transport with
// the original but directs calls to the given model.
type ModelCloner interface {
	CloneWithModel(model string) Provider
}

// Provider defines the interface for language-model integrations.
//
// Providers handle API communication and return StreamChunk values. They are
// not aware of planner/doer roles, transcripts or orchestration events; the
// agent layer converts their output into transcript parts.
type Provider interface {
	// StreamCompletion sends messages to the model and streams back response chunks.
	//
	// The channel is closed when streaming completes or an error occurs.
	// Stream-time errors are delivered as chunks with Error set; the returned
	// error is reserved for failures to start the request.
	StreamCompletion(ctx context.Context, messages []*Message) (<-chan *StreamChunk, error)

	// Complete sends messages to the model and returns the accumulated response.
	Complete(ctx context.Context, messages []*Message) (*Message, error)

	// GetModelInfo returns information about the model being used.
	GetModelInfo() *ModelInfo

	// GetModel returns the model name being used.
	GetModel() string

	// GetBaseURL returns the base URL being used for API requests.
	GetBaseURL() string

	// GetAPIKey returns the API key being used for authentication.
	GetAPIKey() string
}

// ModelInfo describes the model behind a provider.
type ModelInfo struct {
	Provider          string
	Name              string
	MaxTokens         int
	SupportsStreaming bool
	Metadata          map[string]interface{}
}
