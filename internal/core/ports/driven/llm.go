package driven

import "context"

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness. Nil means "do not send":
	// some scoring models reject the parameter outright, and the
	// caller resolves that from the model's capability descriptor
	// at configuration time rather than per call.
	Temperature *float64
}

// LLMService provides text generation. The reranker uses it as the
// fallback scoring model when no dedicated rerank endpoint is
// configured; the context assembled by retrieval is handed to the
// same service by the excluded answer-generation layer.
type LLMService interface {
	// Generate produces a completion for the prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable. Used at startup.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
