// Package tiktoken adapts the tiktoken BPE tokenizer to the Tokenizer
// port. OpenAI embedding models count tokens under cl100k_base, so
// segment budgets enforced here match what the provider bills and
// truncates on.
package tiktoken

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/custodia-labs/pearls-cli/internal/core/ports/driven"
)

// Ensure Tokenizer implements the interface.
var _ driven.Tokenizer = (*Tokenizer)(nil)

// DefaultEncoding is the encoding used by OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts and splits text with a tiktoken encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New creates a tokenizer for the named encoding. An empty name
// selects DefaultEncoding.
func New(encoding string) (*Tokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tiktoken: loading encoding %s: %w", encoding, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Count returns the number of BPE tokens in text.
func (t *Tokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Truncate splits text at maxTokens, returning the decoded head and
// the decoded remainder.
func (t *Tokenizer) Truncate(text string, maxTokens int) (string, string) {
	if maxTokens <= 0 {
		return "", text
	}
	ids := t.enc.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text, ""
	}
	return t.enc.Decode(ids[:maxTokens]), t.enc.Decode(ids[maxTokens:])
}
