// Package driving defines the inbound ports of the build pipeline:
// interfaces the CLI drives.
package driving

import (
	"context"

	"github.com/custodia-labs/pearls-cli/internal/core/domain"
)

// BuildOrchestrator coordinates the three pipeline stages. Stages can
// be driven individually (parse / embed / assemble) or end to end.
type BuildOrchestrator interface {
	// ParseCorpus decomposes the corpus archive into document parts
	// persisted in the part store.
	ParseCorpus(ctx context.Context) (domain.StageReport, error)

	// EmbedParts chunks stored parts and computes missing embeddings.
	// Failed segment keys are reported, not fatal.
	EmbedParts(ctx context.Context) (domain.StageReport, []domain.SegmentKey, error)

	// AssembleDatabase merges parts, segments and vectors into one
	// versioned database build. Part ids in skip are excluded.
	AssembleDatabase(ctx context.Context, version string, skip map[string]struct{}) (domain.StageReport, []string, error)

	// Run executes all three stages and returns the aggregate report.
	// Only one run may be active at a time.
	Run(ctx context.Context, version string, skip map[string]struct{}) (*domain.BuildReport, error)

	// SkipFromVersion derives a skip set from the part ids stored in a
	// prior finalized version.
	SkipFromVersion(ctx context.Context, version string) (map[string]struct{}, error)

	// Status returns progress of the active run, if any.
	Status(ctx context.Context) *BuildStatus
}

// BuildStatus is a point-in-time snapshot of a running build.
type BuildStatus struct {
	// RunID identifies the build run.
	RunID string

	// Running is true while a run is active.
	Running bool

	// Stage names the currently executing stage.
	Stage string

	// PartsProcessed counts parts handled so far in the current stage.
	PartsProcessed int

	// SegmentsEmbedded counts embedding records produced so far.
	SegmentsEmbedded int

	// ErrorCount counts non-fatal errors so far.
	ErrorCount int
}
