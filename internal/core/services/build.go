package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/pearls-cli/internal/chunker"
	"github.com/custodia-labs/pearls-cli/internal/core/domain"
	"github.com/custodia-labs/pearls-cli/internal/core/ports/driven"
	"github.com/custodia-labs/pearls-cli/internal/core/ports/driving"
	"github.com/custodia-labs/pearls-cli/internal/logger"
	"github.com/custodia-labs/pearls-cli/internal/pca"
)

// Ensure BuildOrchestrator implements the interface.
var _ driving.BuildOrchestrator = (*BuildOrchestrator)(nil)

// Section titles the original corpus classifies on.
const (
	introductionTitle = "Introduction"
	symptomsTitle     = "History and Physical"
)

// BuildOrchestrator coordinates the three pipeline stages:
// parse -> embed -> assemble.
type BuildOrchestrator struct {
	parser   driven.CorpusParser
	store    driven.PartStore
	splitter *chunker.Splitter
	embedder *EmbeddingBuilder
	database driven.Database

	// pcaDims > 0 enables vector projection at assembly.
	pcaDims int

	// Status tracking
	mu     sync.RWMutex
	active *driving.BuildStatus
}

// NewBuildOrchestrator creates a build orchestrator. The parser may be
// nil when only embed/assemble stages are driven.
func NewBuildOrchestrator(
	parser driven.CorpusParser,
	store driven.PartStore,
	splitter *chunker.Splitter,
	embedder *EmbeddingBuilder,
	database driven.Database,
	pcaDims int,
) *BuildOrchestrator {
	return &BuildOrchestrator{
		parser:   parser,
		store:    store,
		splitter: splitter,
		embedder: embedder,
		database: database,
		pcaDims:  pcaDims,
	}
}

// Run executes all three stages and returns the aggregate report.
func (o *BuildOrchestrator) Run(ctx context.Context, version string, skip map[string]struct{}) (*domain.BuildReport, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.end()

	report := &domain.BuildReport{Version: version}

	o.setStage("parse")
	parseReport, err := o.parseCorpus(ctx)
	report.Parse = parseReport
	if err != nil {
		return report, err
	}

	o.setStage("embed")
	chunkReport, embedReport, failedKeys, err := o.embedParts(ctx)
	report.Chunk = chunkReport
	report.Embed = embedReport
	report.FailedKeys = failedKeys
	if err != nil {
		return report, err
	}

	o.setStage("assemble")
	assembleReport, incomplete, err := o.assembleDatabase(ctx, version, skip)
	report.Assemble = assembleReport
	report.IncompleteParts = incomplete
	if err != nil {
		return report, err
	}

	logger.Info("Build %s complete: %d parts parsed, %d segments embedded, %d entries assembled",
		version, report.Parse.Succeeded, report.Embed.Succeeded, report.Assemble.Succeeded)
	return report, nil
}

// ParseCorpus runs the parse stage alone.
func (o *BuildOrchestrator) ParseCorpus(ctx context.Context) (domain.StageReport, error) {
	if err := o.begin(); err != nil {
		return domain.StageReport{}, err
	}
	defer o.end()
	o.setStage("parse")
	return o.parseCorpus(ctx)
}

// EmbedParts runs the embed stage alone.
func (o *BuildOrchestrator) EmbedParts(ctx context.Context) (domain.StageReport, []domain.SegmentKey, error) {
	if err := o.begin(); err != nil {
		return domain.StageReport{}, nil, err
	}
	defer o.end()
	o.setStage("embed")
	_, report, failedKeys, err := o.embedParts(ctx)
	return report, failedKeys, err
}

// AssembleDatabase runs the assemble stage alone.
func (o *BuildOrchestrator) AssembleDatabase(ctx context.Context, version string, skip map[string]struct{}) (domain.StageReport, []string, error) {
	if err := o.begin(); err != nil {
		return domain.StageReport{}, nil, err
	}
	defer o.end()
	o.setStage("assemble")
	return o.assembleDatabase(ctx, version, skip)
}

// SkipFromVersion derives a skip set from a prior finalized version.
func (o *BuildOrchestrator) SkipFromVersion(ctx context.Context, version string) (map[string]struct{}, error) {
	ids, err := o.database.PartIDs(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("derive skip set from %s: %w", version, err)
	}
	skip := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		skip[id] = struct{}{}
	}
	return skip, nil
}

// Status returns a snapshot of the active run, or an idle status.
func (o *BuildOrchestrator) Status(_ context.Context) *driving.BuildStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.active == nil {
		return &driving.BuildStatus{Running: false}
	}
	snapshot := *o.active
	return &snapshot
}

// parseCorpus streams parts from the parser into the part store.
// Per-document failures are counted as skipped; structural failures
// abort.
func (o *BuildOrchestrator) parseCorpus(ctx context.Context) (domain.StageReport, error) {
	var report domain.StageReport
	if o.parser == nil {
		return report, fmt.Errorf("parse: corpus parser not configured")
	}

	partsCh, errsCh := o.parser.Parse(ctx)
	for partsCh != nil || errsCh != nil {
		select {
		case part, ok := <-partsCh:
			if !ok {
				partsCh = nil
				continue
			}
			report.Total++
			if err := o.store.SavePart(ctx, part); err != nil {
				logger.Warn("Saving part %s: %v", part.ID, err)
				report.Failed++
				o.bumpErrors()
				continue
			}
			report.Succeeded++
			o.bumpParts()

		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			var formatErr *domain.CorpusFormatError
			if errors.As(err, &formatErr) && !formatErr.Structural {
				logger.Debug("Skipping document: %v", formatErr)
				report.Skipped++
				continue
			}
			return report, fmt.Errorf("parse: %w", err)

		case <-ctx.Done():
			return report, ctx.Err()
		}
	}

	logger.Info("Parse complete: %d parts stored, %d documents skipped, %d errors",
		report.Succeeded, report.Skipped, report.Failed)
	return report, nil
}

// embedParts chunks every stored part and embeds segments that have no
// vector yet. The chunk report counts parts as chunked; the embed
// report counts segments.
func (o *BuildOrchestrator) embedParts(ctx context.Context) (domain.StageReport, domain.StageReport, []domain.SegmentKey, error) {
	var chunk, embed domain.StageReport

	ids, err := o.store.ListPartIDs(ctx)
	if err != nil {
		return chunk, embed, nil, fmt.Errorf("embed: %w", err)
	}

	var pending []domain.Segment
	for _, id := range ids {
		part, err := o.store.GetPart(ctx, id)
		if err != nil {
			return chunk, embed, nil, fmt.Errorf("embed: %w", err)
		}
		chunk.Total++
		segments := o.splitter.Split(*part)
		if len(segments) == 0 {
			chunk.Skipped++
			continue
		}
		chunk.Succeeded++
		for _, seg := range segments {
			embed.Total++
			exists, err := o.store.HasVector(ctx, seg.Key())
			if err != nil {
				return chunk, embed, nil, fmt.Errorf("embed: %w", err)
			}
			if exists {
				embed.Skipped++
				continue
			}
			pending = append(pending, seg)
		}
	}

	logger.Info("Chunked %d parts into %d segments; embedding %d (%d already present)",
		chunk.Succeeded, embed.Total, len(pending), embed.Skipped)

	result, err := o.embedder.Embed(ctx, pending)
	embed.Succeeded = len(result.Records)
	embed.Failed = len(result.FailedKeys)
	o.addEmbedded(len(result.Records))
	if err != nil {
		return chunk, embed, result.FailedKeys, fmt.Errorf("embed: %w", err)
	}

	logger.Info("Embed complete: %d succeeded, %d failed, %d skipped",
		embed.Succeeded, embed.Failed, embed.Skipped)
	return chunk, embed, result.FailedKeys, nil
}

// assembleDatabase merges parts, segments and vectors into one
// versioned build. Parts in skip are excluded; parts with missing
// vectors are excluded and reported.
func (o *BuildOrchestrator) assembleDatabase(ctx context.Context, version string, skip map[string]struct{}) (domain.StageReport, []string, error) {
	var report domain.StageReport

	ids, err := o.store.ListPartIDs(ctx)
	if err != nil {
		return report, nil, fmt.Errorf("assemble: %w", err)
	}

	writer, err := o.database.NewWriter(ctx, version)
	if err != nil {
		return report, nil, fmt.Errorf("assemble: %w", err)
	}
	defer writer.Discard()

	// First pass: load parts and find condition articles (articles
	// carrying a "History and Physical" section).
	parts := make(map[string]*domain.DocumentPart, len(ids))
	conditionArticles := make(map[string]struct{})
	var skippedIDs []string
	for _, id := range ids {
		if _, skipped := skip[id]; skipped {
			skippedIDs = append(skippedIDs, id)
			continue
		}
		part, err := o.store.GetPart(ctx, id)
		if err != nil {
			return report, nil, fmt.Errorf("assemble: %w", err)
		}
		parts[id] = part
		if part.Title == symptomsTitle {
			conditionArticles[part.ArticleID] = struct{}{}
		}
	}

	// Second pass: stage entries per part, excluding incomplete parts.
	var entries []domain.Entry
	var incomplete []string
	for _, id := range ids {
		if ctx.Err() != nil {
			return report, incomplete, ctx.Err()
		}
		report.Total++
		if _, skipped := skip[id]; skipped {
			report.Skipped++
			continue
		}
		part := parts[id]

		segments := o.splitter.Split(*part)
		if len(segments) == 0 {
			// Empty part: valid, contributes no entries.
			report.Succeeded++
			continue
		}

		records, err := o.store.GetVectors(ctx, id)
		if err != nil {
			return report, incomplete, fmt.Errorf("assemble: %w", err)
		}
		byIndex := make(map[int]domain.EmbeddingRecord, len(records))
		for _, rec := range records {
			byIndex[rec.Index] = rec
		}

		var missing []int
		partEntries := make([]domain.Entry, 0, len(segments))
		for _, seg := range segments {
			rec, ok := byIndex[seg.Index]
			if !ok {
				missing = append(missing, seg.Index)
				continue
			}
			_, isCondition := conditionArticles[part.ArticleID]
			partEntries = append(partEntries, domain.Entry{
				Segment:        seg,
				Embedding:      rec,
				Title:          part.Title,
				ArticleTitle:   part.ArticleTitle,
				URL:            part.URL,
				Copyright:      part.Copyright,
				License:        part.License,
				IsIntroduction: part.Title == introductionTitle,
				IsSymptoms:     part.Title == symptomsTitle,
				IsCondition:    isCondition,
			})
		}
		if len(missing) > 0 {
			incErr := &domain.IncompletePartError{PartID: id, Missing: missing}
			logger.Warn("Excluding part: %v", incErr)
			incomplete = append(incomplete, id)
			report.Failed++
			o.bumpErrors()
			continue
		}

		entries = append(entries, partEntries...)
		report.Succeeded++
		o.bumpParts()
	}

	if o.pcaDims > 0 && len(entries) > 0 {
		if err := o.projectEntries(ctx, writer, entries); err != nil {
			return report, incomplete, fmt.Errorf("assemble: %w", err)
		}
	}

	for _, entry := range entries {
		if err := writer.AddEntry(ctx, entry); err != nil {
			return report, incomplete, fmt.Errorf("assemble: %w", err)
		}
	}
	sort.Strings(skippedIDs)
	if err := writer.MarkSkipped(ctx, skippedIDs); err != nil {
		return report, incomplete, fmt.Errorf("assemble: %w", err)
	}
	if err := writer.Finalize(ctx); err != nil {
		return report, incomplete, fmt.Errorf("assemble: %w", err)
	}

	sort.Strings(incomplete)
	logger.Info("Assemble complete: version %s, %d parts staged, %d skipped, %d incomplete",
		version, report.Succeeded, report.Skipped, report.Failed)
	return report, incomplete, nil
}

// projectEntries fits a PCA mapping over the staged vectors, persists
// it, and replaces each entry's vector with its projection.
func (o *BuildOrchestrator) projectEntries(ctx context.Context, writer driven.DatabaseWriter, entries []domain.Entry) error {
	if o.pcaDims >= len(entries[0].Embedding.Vector) {
		logger.Debug("Skipping projection: %d components >= %d dimensions", o.pcaDims, len(entries[0].Embedding.Vector))
		return nil
	}
	if o.pcaDims > len(entries) {
		logger.Debug("Skipping projection: %d components > %d vectors", o.pcaDims, len(entries))
		return nil
	}

	data := make([][]float32, len(entries))
	for i := range entries {
		data[i] = entries[i].Embedding.Vector
	}
	mapping, err := pca.Fit(data, o.pcaDims)
	if err != nil {
		return err
	}
	if err := writer.SaveProjection(ctx, mapping); err != nil {
		return err
	}
	for i := range entries {
		projected, err := pca.Project(entries[i].Embedding.Vector, mapping)
		if err != nil {
			return err
		}
		entries[i].Embedding.Vector = projected
	}
	logger.Info("Projected %d vectors to %d dimensions", len(entries), o.pcaDims)
	return nil
}

// begin claims the single active-run slot.
func (o *BuildOrchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		return domain.ErrBuildInProgress
	}
	o.active = &driving.BuildStatus{
		RunID:   uuid.New().String(),
		Running: true,
	}
	return nil
}

func (o *BuildOrchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = nil
}

func (o *BuildOrchestrator) setStage(stage string) {
	logger.Section(stage)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		o.active.Stage = stage
		o.active.PartsProcessed = 0
	}
}

func (o *BuildOrchestrator) bumpParts() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		o.active.PartsProcessed++
	}
}

func (o *BuildOrchestrator) addEmbedded(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		o.active.SegmentsEmbedded += n
	}
}

func (o *BuildOrchestrator) bumpErrors() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		o.active.ErrorCount++
	}
}
