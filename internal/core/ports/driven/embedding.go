package driven

import "context"

// EmbeddingService generates vector embeddings for text.
// Implementations map provider failures onto the domain taxonomy:
// domain.ErrRateLimited (via *domain.RateLimitError when the provider
// suggests a wait), domain.ErrInvalidRequest, domain.ErrUnavailable.
type EmbeddingService interface {
	// EmbedBatch generates one embedding per input text, in input
	// order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	// It is recorded as the model version of every produced record.
	ModelName() string

	// Close releases resources.
	Close() error
}
