// Package parts is a filesystem store for the pipeline's intermediate
// artifacts: one content file and one metadata file per document part,
// plus one vector file per embedded segment. The layout is the
// hand-off surface between the parser and the later stages, so each
// stage can be re-run independently.
//
// Layout under the store root:
//
//	<articleID>/<sectionID>.md          part text
//	<articleID>/<sectionID>.meta.json   part metadata
//	<articleID>/<sectionID>.<index>.vec raw little-endian float32 vector
//	model.json                          embedding model pin
package parts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/custodia-labs/pearls-cli/internal/core/domain"
	"github.com/custodia-labs/pearls-cli/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.PartStore = (*Store)(nil)

const (
	contentSuffix = ".md"
	metaSuffix    = ".meta.json"
	vectorSuffix  = ".vec"
	modelFile     = "model.json"
)

// Store persists parts and vectors under a root directory.
type Store struct {
	root string

	// modelMu guards the model pin; vectors are written concurrently
	// by the embedding workers.
	modelMu sync.Mutex
}

// partMeta is the on-disk metadata format.
type partMeta struct {
	Title        string `json:"title"`
	ArticleTitle string `json:"article_title"`
	URL          string `json:"url"`
	Copyright    string `json:"copyright,omitempty"`
	License      string `json:"license,omitempty"`
	SourceRef    string `json:"source_ref,omitempty"`
}

// modelMeta pins the embedding model for all vectors in the store.
type modelMeta struct {
	Model string `json:"model"`
}

// NewStore creates a part store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("parts: %w: empty store directory", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("parts: creating store directory: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// SavePart writes a part's content and metadata files.
func (s *Store) SavePart(_ context.Context, part domain.DocumentPart) error {
	base, err := s.partBase(part.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(base), 0o700); err != nil {
		return fmt.Errorf("parts: creating article directory: %w", err)
	}

	if err := os.WriteFile(base+contentSuffix, []byte(part.Text), 0o600); err != nil {
		return fmt.Errorf("parts: writing content for %s: %w", part.ID, err)
	}

	meta := partMeta{
		Title:        part.Title,
		ArticleTitle: part.ArticleTitle,
		URL:          part.URL,
		Copyright:    part.Copyright,
		License:      part.License,
		SourceRef:    part.SourceRef,
	}
	data, err := json.MarshalIndent(meta, "", "\t")
	if err != nil {
		return fmt.Errorf("parts: encoding metadata for %s: %w", part.ID, err)
	}
	if err := os.WriteFile(base+metaSuffix, data, 0o600); err != nil {
		return fmt.Errorf("parts: writing metadata for %s: %w", part.ID, err)
	}
	return nil
}

// ListPartIDs returns all stored part ids, sorted.
func (s *Store) ListPartIDs(_ context.Context) ([]string, error) {
	articles, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("parts: reading store root: %w", err)
	}

	var ids []string
	for _, article := range articles {
		if !article.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, article.Name()))
		if err != nil {
			return nil, fmt.Errorf("parts: reading article %s: %w", article.Name(), err)
		}
		for _, f := range files {
			name := f.Name()
			if !strings.HasSuffix(name, metaSuffix) {
				continue
			}
			section := strings.TrimSuffix(name, metaSuffix)
			ids = append(ids, article.Name()+"#"+section)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetPart loads a stored part.
func (s *Store) GetPart(_ context.Context, id string) (*domain.DocumentPart, error) {
	base, err := s.partBase(id)
	if err != nil {
		return nil, err
	}

	metaData, err := os.ReadFile(base + metaSuffix)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("parts: part %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("parts: reading metadata for %s: %w", id, err)
	}
	var meta partMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("parts: decoding metadata for %s: %w", id, err)
	}

	text, err := os.ReadFile(base + contentSuffix)
	if err != nil {
		return nil, fmt.Errorf("parts: reading content for %s: %w", id, err)
	}

	articleID, _, _ := strings.Cut(id, "#")
	return &domain.DocumentPart{
		ID:           id,
		Title:        meta.Title,
		ArticleID:    articleID,
		ArticleTitle: meta.ArticleTitle,
		Text:         string(text),
		SourceRef:    meta.SourceRef,
		URL:          meta.URL,
		Copyright:    meta.Copyright,
		License:      meta.License,
	}, nil
}

// SaveVector persists one embedding record and pins the store's model
// version on first use.
func (s *Store) SaveVector(_ context.Context, rec domain.EmbeddingRecord) error {
	if err := s.pinModel(rec.ModelVersion); err != nil {
		return err
	}

	base, err := s.partBase(rec.PartID)
	if err != nil {
		return err
	}
	path := base + "." + strconv.Itoa(rec.Index) + vectorSuffix
	if err := os.WriteFile(path, encodeVector(rec.Vector), 0o600); err != nil {
		return fmt.Errorf("parts: writing vector for %s[%d]: %w", rec.PartID, rec.Index, err)
	}
	return nil
}

// HasVector reports whether a vector file exists for the key.
func (s *Store) HasVector(_ context.Context, key domain.SegmentKey) (bool, error) {
	base, err := s.partBase(key.PartID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(base + "." + strconv.Itoa(key.Index) + vectorSuffix)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("parts: stat vector for %s[%d]: %w", key.PartID, key.Index, err)
	}
	return true, nil
}

// GetVectors loads all embedding records stored for a part, ordered by
// segment index.
func (s *Store) GetVectors(ctx context.Context, partID string) ([]domain.EmbeddingRecord, error) {
	base, err := s.partBase(partID)
	if err != nil {
		return nil, err
	}
	model, err := s.ModelVersion(ctx)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(base)
	prefix := filepath.Base(base) + "."
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parts: reading article directory for %s: %w", partID, err)
	}

	var records []domain.EmbeddingRecord
	for _, f := range files {
		name := f.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, vectorSuffix) {
			continue
		}
		idxStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), vectorSuffix)
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("parts: reading vector %s: %w", name, err)
		}
		vec, err := decodeVector(data)
		if err != nil {
			return nil, fmt.Errorf("parts: vector %s: %w", name, err)
		}
		records = append(records, domain.EmbeddingRecord{
			PartID:       partID,
			Index:        idx,
			Vector:       vec,
			ModelVersion: model,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })
	return records, nil
}

// ModelVersion returns the pinned model version, or "" when no vector
// has been saved.
func (s *Store) ModelVersion(_ context.Context) (string, error) {
	s.modelMu.Lock()
	defer s.modelMu.Unlock()
	return s.readModel()
}

// pinModel records the model on first use and rejects mismatches.
func (s *Store) pinModel(model string) error {
	if model == "" {
		return fmt.Errorf("parts: %w: empty model version", domain.ErrInvalidInput)
	}
	s.modelMu.Lock()
	defer s.modelMu.Unlock()

	current, err := s.readModel()
	if err != nil {
		return err
	}
	if current == model {
		return nil
	}
	if current != "" {
		return fmt.Errorf("parts: store has model %s, got %s: %w", current, model, domain.ErrModelMismatch)
	}

	data, err := json.Marshal(modelMeta{Model: model})
	if err != nil {
		return fmt.Errorf("parts: encoding model pin: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.root, modelFile), data, 0o600); err != nil {
		return fmt.Errorf("parts: writing model pin: %w", err)
	}
	return nil
}

func (s *Store) readModel() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, modelFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("parts: reading model pin: %w", err)
	}
	var meta modelMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", fmt.Errorf("parts: decoding model pin: %w", err)
	}
	return meta.Model, nil
}

// partBase maps a part id onto its path prefix within the store.
func (s *Store) partBase(id string) (string, error) {
	articleID, sectionID, ok := strings.Cut(id, "#")
	if !ok || articleID == "" || sectionID == "" {
		return "", fmt.Errorf("parts: %w: malformed part id %q", domain.ErrInvalidInput, id)
	}
	// Ids come from archive attributes; keep path separators out.
	articleID = strings.ReplaceAll(articleID, string(filepath.Separator), "&")
	sectionID = strings.ReplaceAll(sectionID, string(filepath.Separator), "&")
	return filepath.Join(s.root, articleID, sectionID), nil
}

// encodeVector packs float32 values little-endian, four bytes each.
func encodeVector(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// decodeVector unpacks a buffer produced by encodeVector.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector length %d (not a multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
