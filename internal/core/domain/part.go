package domain

// DocumentPart is the canonical unit emitted by the corpus parser.
// It corresponds to one section of one StatPearls article and is
// immutable once created.
type DocumentPart struct {
	// ID is the stable identifier, derived from the article id and the
	// section id ("<articleID>#<sectionID>"). Ids never change across
	// repeated parses of the same archive.
	ID string

	// Title is the section title.
	Title string

	// ArticleID is the id of the owning article.
	ArticleID string

	// ArticleTitle is the title of the owning article.
	ArticleTitle string

	// Text is the plain-text content of the section.
	Text string

	// SourceRef points back to the originating archive entry
	// (the .nxml file path). Audit/debugging only.
	SourceRef string

	// URL is the canonical NCBI Bookshelf URL for this section.
	URL string

	// Copyright is the article's copyright statement, inherited by
	// every part of the article.
	Copyright string

	// License is the article's license terms, inherited by every part.
	License string
}

// Segment is an embedding-sized slice of a DocumentPart's text.
// Segments are produced by the chunker and never mutated.
type Segment struct {
	// PartID is the owning DocumentPart's id.
	PartID string

	// Index is the 0-based, contiguous position within the part.
	Index int

	// Title is the owning part's section title, carried so embedding
	// input can include it for context.
	Title string

	// Text is the slice of the part's text assigned to this segment.
	Text string

	// TokenCount is the length of Text under the embedding model's
	// tokenizer. Always <= the configured segment token budget.
	TokenCount int
}

// Key returns the (part id, index) key that joins a segment to its
// embedding record.
func (s Segment) Key() SegmentKey {
	return SegmentKey{PartID: s.PartID, Index: s.Index}
}

// SegmentKey identifies a segment and its embedding record.
type SegmentKey struct {
	PartID string
	Index  int
}

// EmbeddingRecord is the vector computed for one segment.
type EmbeddingRecord struct {
	// PartID and Index form the same key as the source Segment.
	PartID string
	Index  int

	// Vector is the embedding. Its length is fixed by the model.
	Vector []float32

	// ModelVersion identifies the embedding model. All records in one
	// database build share the same value.
	ModelVersion string
}

// Key returns the (part id, index) key for this record.
func (r EmbeddingRecord) Key() SegmentKey {
	return SegmentKey{PartID: r.PartID, Index: r.Index}
}

// Entry is one merged row of a database build: a segment joined with
// its embedding record and part-level metadata.
type Entry struct {
	Segment   Segment
	Embedding EmbeddingRecord

	// Part-level metadata denormalised into the entry so the database
	// is self-contained for the retrieval client.
	Title        string
	ArticleTitle string
	URL          string
	Copyright    string
	License      string

	// Section classification flags derived from section titles.
	IsIntroduction bool
	IsSymptoms     bool
	IsCondition    bool
}
