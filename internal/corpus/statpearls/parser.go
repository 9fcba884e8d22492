package statpearls

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/pearls-cli/internal/core/domain"
	"github.com/custodia-labs/pearls-cli/internal/core/ports/driven"
	"github.com/custodia-labs/pearls-cli/internal/logger"
)

// Ensure Parser implements the interface.
var _ driven.CorpusParser = (*Parser)(nil)

// bookBaseURL is the NCBI Bookshelf base for StatPearls.
const bookBaseURL = "https://www.ncbi.nlm.nih.gov/books/n/statpearls/"

// Parser streams document parts from an extracted StatPearls archive.
type Parser struct {
	root string
}

// New creates a parser for the archive rooted at root.
func New(root string) *Parser {
	return &Parser{root: root}
}

// Validate checks the archive root exists, is readable and contains at
// least one article file.
func (p *Parser) Validate() error {
	files, err := p.articleFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return &domain.CorpusFormatError{
			Path:       p.root,
			Reason:     "no .nxml article files found",
			Structural: true,
		}
	}
	return nil
}

// Parse walks the archive in sorted file order and streams one part
// per article section. Malformed documents are reported on the error
// channel and skipped; a structural failure ends the stream.
func (p *Parser) Parse(ctx context.Context) (<-chan domain.DocumentPart, <-chan error) {
	partsCh := make(chan domain.DocumentPart)
	errsCh := make(chan error, 1)

	go func() {
		defer close(partsCh)
		defer close(errsCh)

		files, err := p.articleFiles()
		if err != nil {
			errsCh <- err
			return
		}
		if len(files) == 0 {
			errsCh <- &domain.CorpusFormatError{
				Path:       p.root,
				Reason:     "no .nxml article files found",
				Structural: true,
			}
			return
		}

		for _, path := range files {
			if ctx.Err() != nil {
				return
			}
			if err := p.emitArticle(ctx, path, partsCh); err != nil {
				select {
				case errsCh <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return partsCh, errsCh
}

// articleFiles lists the .nxml files directly under the root, sorted
// by name so part ids are stable across runs.
func (p *Parser) articleFiles() ([]string, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, &domain.CorpusFormatError{
			Path:       p.root,
			Reason:     fmt.Sprintf("reading archive root: %v", err),
			Structural: true,
		}
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".nxml") {
			continue
		}
		files = append(files, filepath.Join(p.root, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// emitArticle decodes one article file and sends its sections.
func (p *Parser) emitArticle(ctx context.Context, path string, out chan<- domain.DocumentPart) error {
	f, err := os.Open(path)
	if err != nil {
		return &domain.CorpusFormatError{Path: path, Reason: fmt.Sprintf("opening: %v", err)}
	}
	art, err := decodeArticle(f)
	f.Close()
	if err != nil {
		return &domain.CorpusFormatError{Path: path, Reason: err.Error()}
	}
	if art == nil {
		return &domain.CorpusFormatError{Path: path, Reason: "not an accepted article (schema or license)"}
	}

	logger.Debug("Parsed article %s (%q): %d sections", art.ID, art.Title, len(art.Sections))

	for _, sec := range art.Sections {
		part := domain.DocumentPart{
			ID:           PartID(art.ID, sec.ID),
			Title:        sec.Title,
			ArticleID:    art.ID,
			ArticleTitle: art.Title,
			Text:         sec.Contents,
			SourceRef:    path,
			URL:          SectionURL(art.ID, sec.ID),
			Copyright:    art.Copyright,
			License:      art.License,
		}
		select {
		case out <- part:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// PartID derives the stable part id from archive position.
func PartID(articleID, sectionID string) string {
	return articleID + "#" + sectionID
}

// ArticleURL returns the Bookshelf URL of an article.
func ArticleURL(articleID string) string {
	return bookBaseURL + articleID + "/"
}

// SectionURL returns the Bookshelf URL of a section anchor.
func SectionURL(articleID, sectionID string) string {
	return ArticleURL(articleID) + "#" + sectionID
}
