package statpearls

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pearls-cli/internal/core/domain"
)

// collect drains both parser channels.
func collect(t *testing.T, p *Parser) ([]domain.DocumentPart, []error) {
	t.Helper()

	partsCh, errsCh := p.Parse(context.Background())
	var parts []domain.DocumentPart
	var errs []error
	for partsCh != nil || errsCh != nil {
		select {
		case part, ok := <-partsCh:
			if !ok {
				partsCh = nil
				continue
			}
			parts = append(parts, part)
		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			errs = append(errs, err)
		}
	}
	return parts, errs
}

func writeArchive(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func TestParser_Parse(t *testing.T) {
	dir := writeArchive(t, map[string]string{
		"article-100.nxml": sampleArticle,
		"notes.txt":        "ignored",
	})

	parts, errs := collect(t, New(dir))
	assert.Empty(t, errs)
	require.Len(t, parts, 2)

	assert.Equal(t, "article-100#s1", parts[0].ID)
	assert.Equal(t, "Introduction", parts[0].Title)
	assert.Equal(t, "article-100", parts[0].ArticleID)
	assert.Equal(t, "Anemia", parts[0].ArticleTitle)
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/books/n/statpearls/article-100/#s1", parts[0].URL)
	assert.Equal(t, licenseCCByNcNd4, parts[0].License)
	assert.Equal(t, filepath.Join(dir, "article-100.nxml"), parts[0].SourceRef)

	assert.Equal(t, "article-100#s2", parts[1].ID)
}

func TestParser_IDStability(t *testing.T) {
	dir := writeArchive(t, map[string]string{
		"article-100.nxml": sampleArticle,
	})

	first, _ := collect(t, New(dir))
	second, _ := collect(t, New(dir))
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestParser_MalformedDocumentIsolated(t *testing.T) {
	dir := writeArchive(t, map[string]string{
		"a-bad.nxml":       "<book-part-wrapper id=\"x\"><broken>",
		"article-100.nxml": sampleArticle,
	})

	parts, errs := collect(t, New(dir))

	// The malformed document is reported and skipped, the good one
	// still parses.
	require.Len(t, errs, 1)
	var formatErr *domain.CorpusFormatError
	require.ErrorAs(t, errs[0], &formatErr)
	assert.False(t, formatErr.Structural)
	assert.Len(t, parts, 2)
}

func TestParser_EmptyArchiveIsStructural(t *testing.T) {
	dir := t.TempDir()

	parts, errs := collect(t, New(dir))
	assert.Empty(t, parts)
	require.Len(t, errs, 1)
	var formatErr *domain.CorpusFormatError
	require.ErrorAs(t, errs[0], &formatErr)
	assert.True(t, formatErr.Structural)
}

func TestParser_Validate(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		err := New(filepath.Join(t.TempDir(), "nope")).Validate()
		var formatErr *domain.CorpusFormatError
		require.ErrorAs(t, err, &formatErr)
		assert.True(t, formatErr.Structural)
	})

	t.Run("valid archive", func(t *testing.T) {
		dir := writeArchive(t, map[string]string{"article-100.nxml": sampleArticle})
		assert.NoError(t, New(dir).Validate())
	})
}

func TestParser_Cancellation(t *testing.T) {
	dir := writeArchive(t, map[string]string{
		"article-100.nxml": sampleArticle,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	partsCh, errsCh := New(dir).Parse(ctx)
	var count int
	for range partsCh {
		count++
	}
	for range errsCh {
	}
	assert.Zero(t, count)
}
