package driven

import (
	"context"

	"github.com/custodia-labs/pearls-cli/internal/core/domain"
)

// CorpusParser reads an extracted corpus archive and streams document
// parts. Each archive format (StatPearls JATS, etc.) implements this
// interface.
type CorpusParser interface {
	// Parse walks the archive root and streams parts in deterministic
	// order. Per-document failures are sent on the error channel as
	// *domain.CorpusFormatError and do not stop the stream; structural
	// failures close both channels after a final structural error.
	// Both channels are closed when the walk completes.
	Parse(ctx context.Context) (<-chan domain.DocumentPart, <-chan error)
}
