// Package sqlite stores database builds as one SQLite file per
// version. A build is staged in a hidden directory and published with
// a single atomic rename, so readers never observe a partial version.
// A lock file makes the writer exclusive per version label.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/pearls-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/pearls-cli/internal/core/domain"
	"github.com/custodia-labs/pearls-cli/internal/core/ports/driven"
)

// Ensure the interfaces are implemented.
var (
	_ driven.Database       = (*Database)(nil)
	_ driven.DatabaseWriter = (*Writer)(nil)
)

const (
	dbFileName    = "entries.db"
	stagingPrefix = ".staging-"
	lockSuffix    = ".lock"
)

// Database manages versioned builds under a root directory.
type Database struct {
	root string
}

// NewDatabase creates (if needed) and opens the database root.
func NewDatabase(root string) (*Database, error) {
	if root == "" {
		return nil, fmt.Errorf("sqlite: %w: empty database directory", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("sqlite: creating database directory: %w", err)
	}
	return &Database{root: root}, nil
}

// Root returns the database root directory.
func (d *Database) Root() string {
	return d.root
}

// NewWriter opens a staging writer for a version.
func (d *Database) NewWriter(_ context.Context, version string) (driven.DatabaseWriter, error) {
	if err := validateVersion(version); err != nil {
		return nil, err
	}

	versionDir := filepath.Join(d.root, version)
	if _, err := os.Stat(versionDir); err == nil {
		return nil, fmt.Errorf("sqlite: version %s already exists: %w", version, domain.ErrVersionConflict)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("sqlite: checking version %s: %w", version, err)
	}

	// The lock file makes a second writer on the same label fatal
	// rather than racy. A crashed build leaves the lock behind; the
	// error message names it so the operator can clear it.
	lockPath := filepath.Join(d.root, version+lockSuffix)
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("sqlite: version %s is locked by another writer (remove %s if stale): %w",
				version, lockPath, domain.ErrVersionConflict)
		}
		return nil, fmt.Errorf("sqlite: creating lock for %s: %w", version, err)
	}
	lock.Close()

	stagingDir := filepath.Join(d.root, stagingPrefix+version)
	// A crashed earlier build may have left staging behind; it was
	// never published, so it is safe to restart from scratch.
	if err := os.RemoveAll(stagingDir); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("sqlite: clearing stale staging for %s: %w", version, err)
	}
	if err := os.MkdirAll(stagingDir, 0o700); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("sqlite: creating staging for %s: %w", version, err)
	}

	db, err := openDB(filepath.Join(stagingDir, dbFileName))
	if err != nil {
		os.RemoveAll(stagingDir)
		os.Remove(lockPath)
		return nil, err
	}
	if err := migrate(db, migrations.FS); err != nil {
		db.Close()
		os.RemoveAll(stagingDir)
		os.Remove(lockPath)
		return nil, err
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		os.RemoveAll(stagingDir)
		os.Remove(lockPath)
		return nil, fmt.Errorf("sqlite: beginning staging transaction: %w", err)
	}

	return &Writer{
		version:    version,
		versionDir: versionDir,
		stagingDir: stagingDir,
		lockPath:   lockPath,
		db:         db,
		tx:         tx,
	}, nil
}

// Versions lists finalized version labels, sorted.
func (d *Database) Versions(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading database root: %w", err)
	}
	var versions []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		versions = append(versions, entry.Name())
	}
	sort.Strings(versions)
	return versions, nil
}

// PartIDs returns the distinct part ids stored in a finalized version.
func (d *Database) PartIDs(ctx context.Context, version string) ([]string, error) {
	if err := validateVersion(version); err != nil {
		return nil, err
	}
	path := filepath.Join(d.root, version, dbFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("sqlite: version %s: %w", version, domain.ErrNotFound)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT DISTINCT part_id FROM entries ORDER BY part_id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying part ids of %s: %w", version, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning part id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating part ids: %w", err)
	}
	return ids, nil
}

// Writer stages entries for one version.
type Writer struct {
	version    string
	versionDir string
	stagingDir string
	lockPath   string

	db *sql.DB
	tx *sql.Tx

	model   string
	count   int
	done    bool
	skipped int
}

// AddEntry stages one merged entry.
func (w *Writer) AddEntry(ctx context.Context, entry domain.Entry) error {
	if w.done {
		return fmt.Errorf("sqlite: writer for %s is closed: %w", w.version, domain.ErrInvalidInput)
	}
	rec := entry.Embedding
	seg := entry.Segment
	if rec.PartID != seg.PartID || rec.Index != seg.Index {
		return fmt.Errorf("sqlite: %w: entry key mismatch %s[%d] vs %s[%d]",
			domain.ErrInvalidInput, seg.PartID, seg.Index, rec.PartID, rec.Index)
	}
	if w.model == "" {
		w.model = rec.ModelVersion
	} else if w.model != rec.ModelVersion {
		return fmt.Errorf("sqlite: build has model %s, got %s: %w",
			w.model, rec.ModelVersion, domain.ErrModelMismatch)
	}

	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO entries (
			part_id, idx, text, token_count, vector, model_version,
			title, article_title, url, copyright, license,
			is_introduction, is_symptoms, is_condition
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seg.PartID, seg.Index, seg.Text, seg.TokenCount,
		encodeVector(rec.Vector), rec.ModelVersion,
		entry.Title, entry.ArticleTitle, entry.URL, entry.Copyright, entry.License,
		boolToInt(entry.IsIntroduction), boolToInt(entry.IsSymptoms), boolToInt(entry.IsCondition),
	)
	if err != nil {
		return fmt.Errorf("sqlite: staging entry %s[%d]: %w", seg.PartID, seg.Index, err)
	}
	w.count++
	return nil
}

// MarkSkipped records deliberately excluded part ids.
func (w *Writer) MarkSkipped(ctx context.Context, partIDs []string) error {
	if w.done {
		return fmt.Errorf("sqlite: writer for %s is closed: %w", w.version, domain.ErrInvalidInput)
	}
	for _, id := range partIDs {
		if _, err := w.tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO skipped_parts (part_id) VALUES (?)", id); err != nil {
			return fmt.Errorf("sqlite: staging skipped part %s: %w", id, err)
		}
		w.skipped++
	}
	return nil
}

// SaveProjection stores the projection matrix row by row.
func (w *Writer) SaveProjection(ctx context.Context, mapping [][]float32) error {
	if w.done {
		return fmt.Errorf("sqlite: writer for %s is closed: %w", w.version, domain.ErrInvalidInput)
	}
	for i, row := range mapping {
		if _, err := w.tx.ExecContext(ctx,
			"INSERT INTO projection (dim, vector) VALUES (?, ?)", i, encodeVector(row)); err != nil {
			return fmt.Errorf("sqlite: staging projection row %d: %w", i, err)
		}
	}
	return nil
}

// Finalize publishes the staged version atomically.
func (w *Writer) Finalize(ctx context.Context) error {
	if w.done {
		return fmt.Errorf("sqlite: writer for %s is closed: %w", w.version, domain.ErrInvalidInput)
	}

	info := map[string]string{
		"version":       w.version,
		"model_version": w.model,
		"entry_count":   strconv.Itoa(w.count),
		"created_at":    time.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range info {
		if _, err := w.tx.ExecContext(ctx,
			"INSERT INTO build_info (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("sqlite: staging build info %s: %w", key, err)
		}
	}

	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing staged entries: %w", err)
	}
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("sqlite: closing staged database: %w", err)
	}

	// The single point where the version becomes visible.
	if err := os.Rename(w.stagingDir, w.versionDir); err != nil {
		return fmt.Errorf("sqlite: publishing version %s: %w", w.version, err)
	}
	w.done = true
	os.Remove(w.lockPath)
	return nil
}

// Discard abandons the staged version and releases the lock.
func (w *Writer) Discard() error {
	if w.done {
		return nil
	}
	w.done = true
	w.tx.Rollback()
	w.db.Close()
	if err := os.RemoveAll(w.stagingDir); err != nil {
		return fmt.Errorf("sqlite: removing staging for %s: %w", w.version, err)
	}
	os.Remove(w.lockPath)
	return nil
}

// openDB opens a SQLite file with the usual pragmas.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", path, err)
	}
	return db, nil
}

// migrate runs all .up.sql files in lexical order. Builds always start
// from an empty staging file, so there is no version bookkeeping here.
func migrate(db *sql.DB, fsys embed.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("sqlite: reading migrations: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("sqlite: reading migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(script)); err != nil {
			return fmt.Errorf("sqlite: executing migration %s: %w", name, err)
		}
	}
	return nil
}

// validateVersion rejects labels that would escape the root or collide
// with staging artifacts.
func validateVersion(version string) error {
	if version == "" {
		return fmt.Errorf("sqlite: %w: empty version label", domain.ErrInvalidInput)
	}
	if strings.HasPrefix(version, ".") || strings.ContainsAny(version, "/\\") {
		return fmt.Errorf("sqlite: %w: invalid version label %q", domain.ErrInvalidInput, version)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodeVector packs float32 values little-endian, four bytes each.
func encodeVector(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeVector unpacks a BLOB produced by encodeVector. Exported for
// readers of finalized builds.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("sqlite: invalid vector blob length %d (not a multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
