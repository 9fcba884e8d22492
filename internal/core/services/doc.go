// Package services implements the core pipeline logic: the embedding
// builder (batching, retry state machine, worker pool) and the build
// orchestrator that drives parse -> embed -> assemble.
package services
