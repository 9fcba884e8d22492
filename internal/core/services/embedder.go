package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/pearls-cli/internal/core/domain"
	"github.com/custodia-labs/pearls-cli/internal/core/ports/driven"
	"github.com/custodia-labs/pearls-cli/internal/logger"
)

// Default embedding builder settings.
const (
	DefaultBatchSize   = 8
	DefaultMaxInFlight = 4
	DefaultMaxRetries  = 5
	DefaultBaseBackoff = time.Second
)

// batchState enumerates the per-batch lifecycle:
// pending -> sent -> {succeeded, rate limited, failed}, with
// rate limited transitioning back to sent after a backoff wait.
type batchState int

const (
	batchPending batchState = iota
	batchSent
	batchSucceeded
	batchRateLimited
	batchFailed
)

// embedBatch is one unit of provider work.
type embedBatch struct {
	segments []domain.Segment
	state    batchState
	retries  int
}

// EmbedResult is the outcome of one embedding run. A run with failed
// keys is still a success: the caller can re-run exactly those keys.
type EmbedResult struct {
	// Records holds one embedding record per succeeded segment,
	// associated by key, in no particular order.
	Records []domain.EmbeddingRecord

	// FailedKeys lists segments whose embeddings could not be
	// computed within the retry budget.
	FailedKeys []domain.SegmentKey
}

// EmbeddingBuilder computes embeddings for segments in batches,
// dispatching up to maxInFlight provider calls concurrently behind a
// shared rate gate. Vectors are persisted to the part store as soon as
// their batch completes, so cancelled runs keep finished work.
type EmbeddingBuilder struct {
	provider driven.EmbeddingService
	store    driven.PartStore
	gate     *rate.Limiter

	batchSize   int
	maxInFlight int
	maxRetries  int
	baseBackoff time.Duration
}

// BuilderOption configures the embedding builder.
type BuilderOption func(*EmbeddingBuilder)

// WithBatchSize sets the maximum segments per provider call.
func WithBatchSize(n int) BuilderOption {
	return func(b *EmbeddingBuilder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithMaxInFlight sets the number of concurrent provider calls.
func WithMaxInFlight(n int) BuilderOption {
	return func(b *EmbeddingBuilder) {
		if n > 0 {
			b.maxInFlight = n
		}
	}
}

// WithMaxRetries bounds retries per batch for retryable failures.
func WithMaxRetries(n int) BuilderOption {
	return func(b *EmbeddingBuilder) {
		if n >= 0 {
			b.maxRetries = n
		}
	}
}

// WithBaseBackoff sets the first retry wait. Tests shrink it.
func WithBaseBackoff(d time.Duration) BuilderOption {
	return func(b *EmbeddingBuilder) {
		if d > 0 {
			b.baseBackoff = d
		}
	}
}

// WithRateGate sets the shared request-rate gate. The gate bounds the
// aggregate request rate regardless of worker count.
func WithRateGate(gate *rate.Limiter) BuilderOption {
	return func(b *EmbeddingBuilder) {
		if gate != nil {
			b.gate = gate
		}
	}
}

// NewEmbeddingBuilder creates a builder over the given provider and
// part store.
func NewEmbeddingBuilder(provider driven.EmbeddingService, store driven.PartStore, opts ...BuilderOption) *EmbeddingBuilder {
	b := &EmbeddingBuilder{
		provider:    provider,
		store:       store,
		gate:        rate.NewLimiter(rate.Inf, 1),
		batchSize:   DefaultBatchSize,
		maxInFlight: DefaultMaxInFlight,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: DefaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Embed computes one embedding record per segment. Segments are
// grouped into batches of at most the configured batch size; batch
// completion order carries no meaning, results are keyed. A context
// cancellation stops dispatching new batches; batches already sent
// drain and their vectors are persisted before Embed returns.
func (b *EmbeddingBuilder) Embed(ctx context.Context, segments []domain.Segment) (*EmbedResult, error) {
	result := &EmbedResult{}
	if len(segments) == 0 {
		return result, nil
	}

	batches := make(chan *embedBatch)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range b.maxInFlight {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				records, failed := b.processBatch(ctx, batch)
				mu.Lock()
				result.Records = append(result.Records, records...)
				result.FailedKeys = append(result.FailedKeys, failed...)
				mu.Unlock()
			}
		}()
	}

	// Dispatch; cooperative cancellation checkpoint between batches.
dispatch:
	for start := 0; start < len(segments); start += b.batchSize {
		end := min(start+b.batchSize, len(segments))
		select {
		case batches <- &embedBatch{segments: segments[start:end]}:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(batches)
	wg.Wait()

	sortKeys(result.FailedKeys)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// processBatch drives one batch through the state machine and persists
// succeeded vectors. It never returns an error: failures end up as
// failed keys so other batches continue.
func (b *EmbeddingBuilder) processBatch(ctx context.Context, batch *embedBatch) ([]domain.EmbeddingRecord, []domain.SegmentKey) {
	// In-flight work is allowed to finish after cancellation; only the
	// dispatch loop and backoff waits observe ctx.
	sendCtx := context.WithoutCancel(ctx)

	for {
		if err := b.gate.Wait(sendCtx); err != nil {
			return nil, keysOf(batch.segments)
		}

		batch.state = batchSent
		texts := make([]string, len(batch.segments))
		for i, seg := range batch.segments {
			texts[i] = embedInput(seg)
		}

		vectors, err := b.provider.EmbedBatch(sendCtx, texts)
		if err == nil {
			batch.state = batchSucceeded
			return b.persist(sendCtx, batch.segments, vectors)
		}

		switch {
		case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrUnavailable):
			batch.retries++
			if batch.retries > b.maxRetries {
				batch.state = batchFailed
				logger.Warn("Batch of %d segments failed after %d retries: %v", len(batch.segments), b.maxRetries, err)
				return nil, keysOf(batch.segments)
			}
			batch.state = batchRateLimited
			wait := retryBackoff(b.baseBackoff, batch.retries)
			var rl *domain.RateLimitError
			if errors.As(err, &rl) && rl.RetryAfter > wait {
				wait = rl.RetryAfter
			}
			logger.Debug("Retryable provider error (retry %d/%d in %s): %v", batch.retries, b.maxRetries, wait, err)
			if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
				// Cancelled while backing off: the batch was not in
				// flight, so it is safe to abandon.
				batch.state = batchFailed
				return nil, keysOf(batch.segments)
			}
			// Back to sent on the next loop iteration.

		case errors.Is(err, domain.ErrInvalidRequest) && len(batch.segments) > 1:
			// One poisoned segment rejects the whole call. Fall back
			// to embedding items individually to isolate it.
			logger.Debug("Batch rejected as invalid, retrying %d segments individually", len(batch.segments))
			return b.embedIndividually(ctx, batch.segments)

		default:
			batch.state = batchFailed
			logger.Warn("Batch of %d segments failed: %v", len(batch.segments), err)
			return nil, keysOf(batch.segments)
		}
	}
}

// embedInput is what the provider embeds for a segment: the section
// title as a heading above the text, so the vector captures which part
// of an article the segment came from. Stored segment text stays bare.
func embedInput(seg domain.Segment) string {
	if seg.Title == "" {
		return seg.Text
	}
	return "# " + seg.Title + "\n\n" + seg.Text
}

// embedIndividually retries each segment of an invalid batch on its
// own, so a single bad segment cannot sink its batchmates.
func (b *EmbeddingBuilder) embedIndividually(ctx context.Context, segments []domain.Segment) ([]domain.EmbeddingRecord, []domain.SegmentKey) {
	var records []domain.EmbeddingRecord
	var failed []domain.SegmentKey
	for _, seg := range segments {
		single := &embedBatch{segments: []domain.Segment{seg}}
		recs, bad := b.processBatch(ctx, single)
		records = append(records, recs...)
		failed = append(failed, bad...)
	}
	return records, failed
}

// persist writes one record per segment to the part store.
func (b *EmbeddingBuilder) persist(ctx context.Context, segments []domain.Segment, vectors [][]float32) ([]domain.EmbeddingRecord, []domain.SegmentKey) {
	model := b.provider.ModelName()
	var records []domain.EmbeddingRecord
	var failed []domain.SegmentKey

	for i, seg := range segments {
		if i >= len(vectors) || vectors[i] == nil {
			failed = append(failed, seg.Key())
			continue
		}
		rec := domain.EmbeddingRecord{
			PartID:       seg.PartID,
			Index:        seg.Index,
			Vector:       vectors[i],
			ModelVersion: model,
		}
		if err := b.store.SaveVector(ctx, rec); err != nil {
			logger.Warn("Persisting vector for %s[%d]: %v", seg.PartID, seg.Index, err)
			failed = append(failed, seg.Key())
			continue
		}
		records = append(records, rec)
	}
	return records, failed
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func keysOf(segments []domain.Segment) []domain.SegmentKey {
	keys := make([]domain.SegmentKey, len(segments))
	for i, seg := range segments {
		keys[i] = seg.Key()
	}
	return keys
}

func sortKeys(keys []domain.SegmentKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PartID != keys[j].PartID {
			return keys[i].PartID < keys[j].PartID
		}
		return keys[i].Index < keys[j].Index
	})
}
