// Package chunking implements the two-phase Chunking Manager: Prepare
// splits a file's parsed Blocks into provisional Chunks and runs them
// through segmentation/embedding, Commit persists the finalized list
// atomically per file via the Facade, compensating with
// delete_by_source on any partial failure.
package chunking

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/maverikod/docanalyzer/internal/config"
	"github.com/maverikod/docanalyzer/internal/errors"
	"github.com/maverikod/docanalyzer/internal/model"
)

// Embedder is the subset of Facade the Manager drives during Prepare.
// Segment and Embed may each return additional or re-derived chunks;
// the Manager preserves whatever order they return.
type Embedder interface {
	Segment(ctx context.Context, chunks []model.Chunk) ([]model.Chunk, error)
	Embed(ctx context.Context, chunks []model.Chunk) ([]model.Chunk, error)
}

// Committer is the subset of Facade the Manager drives during Commit.
type Committer interface {
	CommitChunks(ctx context.Context, chunks []model.Chunk) (created int, ids []string, err error)
	DeleteBySource(ctx context.Context, sourceID string) (deleted int, err error)
}

// Outcome reports the disposition of one file's Chunking Manager run.
type Outcome struct {
	SourceID string
	Status   model.ChunkStatus
	Chunks   []model.Chunk
	Created  int
}

// Manager runs the two-phase per-file chunking pipeline.
type Manager struct {
	MaxBodySize    int
	MaxBatchSize   int
	MaxFileBytes   int64
	embedder       Embedder
	committer      Committer
	embedConcurrency int
}

// New constructs a Manager bounded by the configured block/batch sizes
// and wired to fac for both segmentation/embedding and persistence —
// the Facade satisfies both Embedder and Committer.
func New(cfg config.ChunkingConfig, maxFileBytes int64, fac interface {
	Embedder
	Committer
}) *Manager {
	return &Manager{
		MaxBodySize:      cfg.MaxBlockSize,
		MaxBatchSize:     cfg.MaxBlocksPerBatch,
		MaxFileBytes:     maxFileBytes,
		embedder:         fac,
		committer:        fac,
		embedConcurrency: 4,
	}
}

// Prepare implements Phase 1: allocate a fresh source_id, split blocks
// into provisional chunks respecting MaxBodySize, and run them through
// segmentation then embedding. It returns before any write to the
// vector store.
func (m *Manager) Prepare(ctx context.Context, path string, blocks []model.Block, fileSize int64) (Outcome, error) {
	if len(blocks) == 0 {
		return Outcome{Status: model.StatusSkippedEmpty}, nil
	}
	if m.MaxFileBytes > 0 && fileSize > m.MaxFileBytes {
		return Outcome{Status: model.StatusSkippedTooLarge}, nil
	}

	sourceID, err := model.NewSourceID()
	if err != nil {
		return Outcome{}, errors.New(errors.KindRejected, "chunking.prepare", "", path, 0, err)
	}

	provisional := m.split(path, sourceID, blocks)

	segmented, err := m.embedInBatches(ctx, provisional, m.embedder.Segment)
	if err != nil {
		return Outcome{}, err
	}
	embedded, err := m.embedInBatches(ctx, segmented, m.embedder.Embed)
	if err != nil {
		return Outcome{}, err
	}

	if err := validateChunks(path, sourceID, embedded); err != nil {
		return Outcome{}, err
	}

	return Outcome{SourceID: sourceID, Status: model.StatusNew, Chunks: embedded}, nil
}

// Commit implements Phase 2: persist the finalized chunk list for one
// file in ordinal-ordered batches no larger than MaxBatchSize. On any
// batch failure it issues delete_by_source to undo whatever was
// already written and surfaces the error — the file is left with
// either all of its chunks visible or none of them.
func (m *Manager) Commit(ctx context.Context, outcome Outcome) (Outcome, error) {
	if outcome.Status != model.StatusNew {
		return outcome, nil
	}
	if len(outcome.Chunks) == 0 {
		return outcome, nil
	}

	var created int
	for start := 0; start < len(outcome.Chunks); start += m.MaxBatchSize {
		end := start + m.MaxBatchSize
		if end > len(outcome.Chunks) {
			end = len(outcome.Chunks)
		}
		batch := outcome.Chunks[start:end]

		n, _, err := m.committer.CommitChunks(ctx, batch)
		if err != nil {
			_, _ = m.committer.DeleteBySource(ctx, outcome.SourceID)
			return Outcome{SourceID: outcome.SourceID, Status: model.StatusFailed}, err
		}
		created += n
	}

	outcome.Created = created
	return outcome, nil
}

// split divides each Block's body into one or more provisional Chunks
// no larger than MaxBodySize bytes, preserving Block order and
// producing strictly increasing ordinals across the whole file.
func (m *Manager) split(path, sourceID string, blocks []model.Block) []model.Chunk {
	var chunks []model.Chunk
	ordinal := 0

	for _, b := range blocks {
		for _, part := range splitBody(b.Body, m.MaxBodySize) {
			chunks = append(chunks, model.Chunk{
				SourcePath: path,
				SourceID:   sourceID,
				Body:       part,
				Status:     model.StatusNew,
				Ordinal:    ordinal,
				Metadata: map[string]string{
					"block_kind": string(b.Kind),
					"title":      b.Title,
				},
			})
			ordinal++
		}
	}
	return chunks
}

// splitBody breaks body into pieces no longer than maxSize bytes,
// preferring to cut at a newline boundary near the limit so a chunk
// doesn't sever mid-line when avoidable.
func splitBody(body string, maxSize int) []string {
	if maxSize <= 0 || len(body) <= maxSize {
		return []string{body}
	}

	var parts []string
	for len(body) > maxSize {
		cut := maxSize
		if idx := lastNewlineBefore(body, maxSize); idx > 0 {
			cut = idx
		}
		parts = append(parts, body[:cut])
		body = body[cut:]
	}
	if body != "" {
		parts = append(parts, body)
	}
	return parts
}

func lastNewlineBefore(s string, limit int) int {
	for i := limit; i > 0; i-- {
		if s[i-1] == '\n' {
			return i
		}
	}
	return 0
}

// embedInBatches runs step over chunks in MaxBatchSize-sized batches,
// dispatched with bounded concurrency, then concatenates the results
// in original batch order.
func (m *Manager) embedInBatches(ctx context.Context, chunks []model.Chunk, step func(context.Context, []model.Chunk) ([]model.Chunk, error)) ([]model.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	batchSize := m.MaxBatchSize
	if batchSize <= 0 {
		batchSize = len(chunks)
	}

	var batches [][]model.Chunk
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[start:end])
	}

	results := make([][]model.Chunk, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.embedConcurrency)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			out, err := step(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []model.Chunk
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func validateChunks(path, sourceID string, chunks []model.Chunk) error {
	for i := range chunks {
		c := &chunks[i]
		if c.SourceID != sourceID {
			return errors.New(errors.KindRejected, "chunking.validate", "", path, 0,
				fmt.Errorf("chunk %d carries source_id %q, expected %q", i, c.SourceID, sourceID))
		}
		if err := c.Validate(); err != nil {
			return errors.New(errors.KindRejected, "chunking.validate", "", path, 0, err)
		}
	}
	return nil
}
