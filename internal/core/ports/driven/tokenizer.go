package driven

// Tokenizer counts and splits text under the embedding model's
// tokenizer. Segment token budgets are enforced against this count.
type Tokenizer interface {
	// Count returns the number of tokens in text.
	Count(text string) int

	// Truncate splits text at the given token budget, returning the
	// head (at most maxTokens tokens) and the remainder. A text within
	// budget comes back unchanged with an empty remainder.
	Truncate(text string, maxTokens int) (head, rest string)
}
