// Package chunker splits document parts into embedding-sized segments
// under a token budget.
package chunker

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/pearls-cli/internal/core/domain"
	"github.com/custodia-labs/pearls-cli/internal/core/ports/driven"
)

// DefaultMaxSegmentTokens is the default per-segment token budget.
const DefaultMaxSegmentTokens = 512

// sentenceSplitter matches sentence-terminated spans of text.
var sentenceSplitter = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?]+)`)

// Splitter produces segments from a part's text. Natural boundaries
// are preferred: paragraphs first, sentences within an oversized
// paragraph, and a hard token cut only when a single sentence exceeds
// the budget.
type Splitter struct {
	tokenizer driven.Tokenizer
	maxTokens int
}

// Option configures the splitter.
type Option func(*Splitter)

// WithMaxTokens sets the per-segment token budget.
func WithMaxTokens(n int) Option {
	return func(s *Splitter) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// New creates a splitter using the given tokenizer.
func New(tokenizer driven.Tokenizer, opts ...Option) *Splitter {
	s := &Splitter{
		tokenizer: tokenizer,
		maxTokens: DefaultMaxSegmentTokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxTokens returns the configured budget.
func (s *Splitter) MaxTokens() int {
	return s.maxTokens
}

// Split chunks one part. An empty part yields no segments. Segment
// indexes are 0-based and contiguous, and the concatenation of segment
// texts reconstructs the part's text modulo boundary whitespace.
func (s *Splitter) Split(part domain.DocumentPart) []domain.Segment {
	text := strings.TrimSpace(part.Text)
	if text == "" {
		return nil
	}

	pieces := s.pack(paragraphs(text), "\n\n")

	segments := make([]domain.Segment, 0, len(pieces))
	for i, piece := range pieces {
		segments = append(segments, domain.Segment{
			PartID:     part.ID,
			Index:      i,
			Title:      part.Title,
			Text:       piece,
			TokenCount: s.tokenizer.Count(piece),
		})
	}
	return segments
}

// pack greedily joins units into budget-sized pieces, splitting any
// single over-budget unit at the next finer boundary.
func (s *Splitter) pack(units []string, sep string) []string {
	var pieces []string
	var current string

	flush := func() {
		if current != "" {
			pieces = append(pieces, current)
			current = ""
		}
	}

	for _, unit := range units {
		if s.tokenizer.Count(unit) > s.maxTokens {
			// Unit alone busts the budget: flush what we have and
			// break the unit down further.
			flush()
			pieces = append(pieces, s.breakDown(unit, sep)...)
			continue
		}

		if current == "" {
			current = unit
			continue
		}
		joined := current + sep + unit
		if s.tokenizer.Count(joined) <= s.maxTokens {
			current = joined
			continue
		}
		flush()
		current = unit
	}
	flush()

	return pieces
}

// breakDown splits an over-budget unit at the next finer boundary:
// paragraphs fall back to sentences, sentences to a hard token cut.
func (s *Splitter) breakDown(unit, sep string) []string {
	if sep == "\n\n" {
		return s.pack(sentences(unit), " ")
	}
	return s.hardCut(unit)
}

// hardCut slices text at the exact token budget. Last resort when no
// natural boundary fits.
func (s *Splitter) hardCut(text string) []string {
	var pieces []string
	rest := text
	for rest != "" {
		head, tail := s.tokenizer.Truncate(rest, s.maxTokens)
		if head == "" {
			// Tokenizer made no progress; emit the remainder rather
			// than loop forever.
			pieces = append(pieces, rest)
			break
		}
		pieces = append(pieces, head)
		rest = tail
	}
	return pieces
}

// paragraphs splits text on blank lines, dropping empty runs.
func paragraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sentences splits a paragraph into sentence-terminated spans. Any
// trailing text without a terminator is kept as a final span so no
// content is lost.
func sentences(text string) []string {
	idx := sentenceSplitter.FindAllStringIndex(text, -1)
	if len(idx) == 0 {
		return []string{strings.TrimSpace(text)}
	}

	var out []string
	last := 0
	for _, span := range idx {
		if m := strings.TrimSpace(text[span[0]:span[1]]); m != "" {
			out = append(out, m)
		}
		last = span[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}
