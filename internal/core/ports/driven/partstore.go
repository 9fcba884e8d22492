package driven

import (
	"context"

	"github.com/custodia-labs/pearls-cli/internal/core/domain"
)

// PartStore persists document parts and their segment vectors as
// discrete files in an intermediate directory. It is the hand-off
// surface between the parser and the later stages, enabling each stage
// to be re-run independently.
type PartStore interface {
	// SavePart writes a part's content and metadata.
	SavePart(ctx context.Context, part domain.DocumentPart) error

	// ListPartIDs returns all stored part ids in deterministic order.
	ListPartIDs(ctx context.Context) ([]string, error)

	// GetPart loads a stored part. Returns domain.ErrNotFound when the
	// id is unknown.
	GetPart(ctx context.Context, id string) (*domain.DocumentPart, error)

	// SaveVector persists one embedding record. The first saved record
	// pins the store's model version; records from another model are
	// rejected with domain.ErrModelMismatch.
	SaveVector(ctx context.Context, rec domain.EmbeddingRecord) error

	// HasVector reports whether a vector already exists for the key.
	HasVector(ctx context.Context, key domain.SegmentKey) (bool, error)

	// GetVectors loads all embedding records stored for a part.
	GetVectors(ctx context.Context, partID string) ([]domain.EmbeddingRecord, error)

	// ModelVersion returns the model version pinned by the first saved
	// vector, or "" when no vector has been saved yet.
	ModelVersion(ctx context.Context) (string, error)
}
