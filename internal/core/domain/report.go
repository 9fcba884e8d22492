package domain

// StageReport summarises one pipeline stage.
// A run with failures still completes; the report carries the damage.
type StageReport struct {
	// Total is the number of units offered to the stage.
	Total int

	// Succeeded is the number of units processed successfully.
	Succeeded int

	// Skipped is the number of units deliberately not processed
	// (skip sets, already-present artifacts, malformed documents).
	Skipped int

	// Failed is the number of units that errored.
	Failed int
}

// BuildReport aggregates the per-stage reports of one pipeline run.
type BuildReport struct {
	// Version is the database version label the run targeted.
	Version string

	Parse    StageReport
	Chunk    StageReport
	Embed    StageReport
	Assemble StageReport

	// FailedKeys lists segment keys whose embeddings could not be
	// computed, so a later run can retry exactly those.
	FailedKeys []SegmentKey

	// IncompleteParts lists parts excluded from the build because
	// some of their segments had no embedding record.
	IncompleteParts []string
}

// HasFailures reports whether any stage recorded a failure.
func (r *BuildReport) HasFailures() bool {
	return r.Parse.Failed > 0 || r.Chunk.Failed > 0 || r.Embed.Failed > 0 || r.Assemble.Failed > 0
}
