package driven

import (
	"context"

	"github.com/custodia-labs/pearls-cli/internal/core/domain"
)

// Database manages versioned build outputs. Versions are append-only:
// creating a new version never touches a prior version's files.
type Database interface {
	// NewWriter opens a staging writer for a version. Returns
	// domain.ErrVersionConflict when the version already exists or
	// another writer holds its lock.
	NewWriter(ctx context.Context, version string) (DatabaseWriter, error)

	// Versions lists the finalized version labels.
	Versions(ctx context.Context) ([]string, error)

	// PartIDs returns the distinct part ids stored in a finalized
	// version, for deriving skip sets on incremental builds.
	PartIDs(ctx context.Context, version string) ([]string, error)
}

// DatabaseWriter stages entries for one version. Nothing becomes
// visible to readers until Finalize performs the single atomic rename;
// a crash mid-build leaves no partial version behind.
type DatabaseWriter interface {
	// AddEntry stages one merged entry. All entries of a version must
	// share one embedding model version.
	AddEntry(ctx context.Context, entry domain.Entry) error

	// MarkSkipped records part ids deliberately excluded from this
	// build, so later incremental builds can be audited.
	MarkSkipped(ctx context.Context, partIDs []string) error

	// SaveProjection stores the dimensionality-reduction matrix
	// applied to this version's vectors, so query-time vectors can be
	// projected identically. Optional; row-major, one row per input
	// dimension.
	SaveProjection(ctx context.Context, mapping [][]float32) error

	// Finalize atomically publishes the staged version.
	Finalize(ctx context.Context) error

	// Discard abandons the staged version and releases its lock.
	// Safe to call after Finalize (no-op).
	Discard() error
}
