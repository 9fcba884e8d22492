package parts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pearls-cli/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func samplePart() domain.DocumentPart {
	return domain.DocumentPart{
		ID:           "anemia#introduction",
		Title:        "Introduction",
		ArticleID:    "anemia",
		ArticleTitle: "Anemia",
		Text:         "Anemia is a reduction in red cells.\n\nIt has many causes.",
		SourceRef:    "anemia.nxml",
		URL:          "https://www.ncbi.nlm.nih.gov/books/n/statpearls/anemia/#introduction",
		Copyright:    "Copyright 2024, StatPearls Publishing LLC.",
		License:      "CC BY-NC-ND 4.0",
	}
}

func TestNewStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "parts")
	store, err := NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Root())
	assert.DirExists(t, dir)

	_, err = NewStore("")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSavePart_Roundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	part := samplePart()

	require.NoError(t, store.SavePart(ctx, part))

	got, err := store.GetPart(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, &part, got)

	// Content lands as a plain markdown file next to the metadata.
	text, err := os.ReadFile(filepath.Join(store.Root(), "anemia", "introduction.md"))
	require.NoError(t, err)
	assert.Equal(t, part.Text, string(text))
}

func TestSavePart_OverwriteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	part := samplePart()

	require.NoError(t, store.SavePart(ctx, part))
	part.Text = "Revised text."
	require.NoError(t, store.SavePart(ctx, part))

	got, err := store.GetPart(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, "Revised text.", got.Text)

	ids, err := store.ListPartIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{part.ID}, ids)
}

func TestGetPart_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetPart(context.Background(), "missing#section")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListPartIDs_Sorted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"sepsis#treatment", "anemia#introduction", "sepsis#introduction"} {
		part := samplePart()
		part.ID = id
		require.NoError(t, store.SavePart(ctx, part))
	}

	ids, err := store.ListPartIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"anemia#introduction", "sepsis#introduction", "sepsis#treatment"}, ids)
}

func TestMalformedPartID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"", "no-separator", "#section", "article#"} {
		err := store.SavePart(ctx, domain.DocumentPart{ID: id})
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "id %q", id)
	}
}

func TestVectors_Roundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SavePart(ctx, samplePart()))

	key := domain.SegmentKey{PartID: "anemia#introduction", Index: 0}
	ok, err := store.HasVector(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	// Out of order on purpose; reads come back sorted by index.
	for _, rec := range []domain.EmbeddingRecord{
		{PartID: key.PartID, Index: 1, Vector: []float32{3, 4}, ModelVersion: "m1"},
		{PartID: key.PartID, Index: 0, Vector: []float32{1, -2.5}, ModelVersion: "m1"},
	} {
		require.NoError(t, store.SaveVector(ctx, rec))
	}

	ok, err = store.HasVector(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	records, err := store.GetVectors(ctx, key.PartID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []float32{1, -2.5}, records[0].Vector)
	assert.Equal(t, 0, records[0].Index)
	assert.Equal(t, []float32{3, 4}, records[1].Vector)
	assert.Equal(t, "m1", records[1].ModelVersion)
}

func TestGetVectors_NoneStored(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SavePart(ctx, samplePart()))

	records, err := store.GetVectors(ctx, "anemia#introduction")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestModelPin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SavePart(ctx, samplePart()))

	model, err := store.ModelVersion(ctx)
	require.NoError(t, err)
	assert.Empty(t, model)

	rec := domain.EmbeddingRecord{PartID: "anemia#introduction", Index: 0, Vector: []float32{1}, ModelVersion: "m1"}
	require.NoError(t, store.SaveVector(ctx, rec))

	model, err = store.ModelVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m1", model)

	// A second vector from a different model is rejected; the pin
	// survives a store reopen.
	rec.Index = 1
	rec.ModelVersion = "m2"
	assert.ErrorIs(t, store.SaveVector(ctx, rec), domain.ErrModelMismatch)

	reopened, err := NewStore(store.Root())
	require.NoError(t, err)
	assert.ErrorIs(t, reopened.SaveVector(ctx, rec), domain.ErrModelMismatch)

	rec.ModelVersion = ""
	assert.ErrorIs(t, store.SaveVector(ctx, rec), domain.ErrInvalidInput)
}
