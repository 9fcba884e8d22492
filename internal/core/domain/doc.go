// Package domain contains the core business entities of the pearls
// build pipeline: document parts, segments, embedding records, database
// entries, and the error taxonomy shared by all stages.
//
// The domain layer has no dependencies on adapters or infrastructure.
package domain
