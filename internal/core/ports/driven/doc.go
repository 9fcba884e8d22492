// Package driven defines the outbound ports of the build pipeline:
// interfaces the core depends on and adapters implement (corpus
// parsing, token counting, embedding provider, artifact storage,
// database output).
package driven
