package driven

import "context"

// EmbeddingService generates vector embeddings from text.
//
// Note: this is separate from VectorSlotStore, which stores and
// searches vectors. EmbeddingService generates vectors; the slot store
// persists them into the slot matching (provider, dimension).
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Voyage (voyage-multimodal-3) for image-modality chunks
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently.
	// This is more efficient than calling Embed in a loop.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g. 1024, 1536).
	// This fixes the storage slot the provider writes to and must
	// match the slot configuration.
	Dimensions() int

	// ProviderName returns the provider identity used as the slot key.
	ProviderName() string

	// Ping validates the service is reachable with a lightweight
	// request. Used at startup.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
