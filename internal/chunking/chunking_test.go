package chunking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maverikod/docanalyzer/internal/config"
	"github.com/maverikod/docanalyzer/internal/model"
)

// fakeFacade is a stub satisfying Embedder and Committer for testing
// the Manager without a real upstream.
type fakeFacade struct {
	segmentErr    error
	embedErr      error
	commitErr     error
	commitCalls   int
	deleteCalls   int
	deletedSource string
	commitFailAt  int // batch index (0-based) at which CommitChunks fails
}

func (f *fakeFacade) Segment(ctx context.Context, chunks []model.Chunk) ([]model.Chunk, error) {
	if f.segmentErr != nil {
		return nil, f.segmentErr
	}
	return chunks, nil
}

func (f *fakeFacade) Embed(ctx context.Context, chunks []model.Chunk) ([]model.Chunk, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return chunks, nil
}

func (f *fakeFacade) CommitChunks(ctx context.Context, chunks []model.Chunk) (int, []string, error) {
	defer func() { f.commitCalls++ }()
	if f.commitErr != nil && f.commitCalls == f.commitFailAt {
		return 0, nil, f.commitErr
	}
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = "id"
	}
	return len(chunks), ids, nil
}

func (f *fakeFacade) DeleteBySource(ctx context.Context, sourceID string) (int, error) {
	f.deleteCalls++
	f.deletedSource = sourceID
	return 1, nil
}

func blocksOf(bodies ...string) []model.Block {
	var out []model.Block
	for i, b := range bodies {
		out = append(out, model.Block{Body: b, Kind: model.BlockParagraph, Ordinal: i})
	}
	return out
}

func TestPrepare_EmptyBlocksSkipped(t *testing.T) {
	m := New(config.ChunkingConfig{MaxBlockSize: 100, MaxBlocksPerBatch: 10}, 0, &fakeFacade{})
	outcome, err := m.Prepare(context.Background(), "a.txt", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkippedEmpty, outcome.Status)
}

func TestPrepare_OversizeFileSkipped(t *testing.T) {
	m := New(config.ChunkingConfig{MaxBlockSize: 100, MaxBlocksPerBatch: 10}, 10, &fakeFacade{})
	outcome, err := m.Prepare(context.Background(), "a.txt", blocksOf("hello"), 1000)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkippedTooLarge, outcome.Status)
}

func TestPrepare_ProducesValidChunksWithSharedSourceID(t *testing.T) {
	m := New(config.ChunkingConfig{MaxBlockSize: 1000, MaxBlocksPerBatch: 10}, 0, &fakeFacade{})
	outcome, err := m.Prepare(context.Background(), "a.txt", blocksOf("one", "two", "three"), 100)
	require.NoError(t, err)
	require.Equal(t, model.StatusNew, outcome.Status)
	require.Len(t, outcome.Chunks, 3)
	for i, c := range outcome.Chunks {
		assert.Equalf(t, outcome.SourceID, c.SourceID, "chunk %d has mismatched source_id", i)
		assert.Equalf(t, i, c.Ordinal, "chunk %d has ordinal %d, want %d", i, c.Ordinal, i)
	}
}

func TestPrepare_SplitsOversizeBlockBody(t *testing.T) {
	m := New(config.ChunkingConfig{MaxBlockSize: 5, MaxBlocksPerBatch: 10}, 0, &fakeFacade{})
	outcome, err := m.Prepare(context.Background(), "a.txt", blocksOf("0123456789"), 100)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(outcome.Chunks), 2, "expected the oversize block to split into multiple chunks")

	var rebuilt string
	for _, c := range outcome.Chunks {
		rebuilt += c.Body
	}
	assert.Equal(t, "0123456789", rebuilt, "expected split chunks to reconstruct the original body")
}

func TestPrepare_PropagatesSegmentationError(t *testing.T) {
	m := New(config.ChunkingConfig{MaxBlockSize: 100, MaxBlocksPerBatch: 10}, 0,
		&fakeFacade{segmentErr: errors.New("segmentation down")})
	_, err := m.Prepare(context.Background(), "a.txt", blocksOf("hello"), 10)
	assert.Error(t, err, "expected segmentation failure to propagate")
}

func TestCommit_SkipsNonNewOutcomes(t *testing.T) {
	facade := &fakeFacade{}
	m := New(config.ChunkingConfig{MaxBlockSize: 100, MaxBlocksPerBatch: 10}, 0, facade)
	outcome := Outcome{Status: model.StatusSkippedEmpty}

	result, err := m.Commit(context.Background(), outcome)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkippedEmpty, result.Status)
	assert.Zero(t, facade.commitCalls, "expected Commit to be a no-op for a non-NEW outcome")
}

func TestCommit_PersistsAllChunksInBatches(t *testing.T) {
	facade := &fakeFacade{}
	m := New(config.ChunkingConfig{MaxBlockSize: 1000, MaxBlocksPerBatch: 2}, 0, facade)

	sourceID, _ := model.NewSourceID()
	chunks := []model.Chunk{
		{SourcePath: "a.txt", SourceID: sourceID, Body: "1", Ordinal: 0},
		{SourcePath: "a.txt", SourceID: sourceID, Body: "2", Ordinal: 1},
		{SourcePath: "a.txt", SourceID: sourceID, Body: "3", Ordinal: 2},
	}
	outcome := Outcome{SourceID: sourceID, Status: model.StatusNew, Chunks: chunks}

	result, err := m.Commit(context.Background(), outcome)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 2, facade.commitCalls, "expected 2 batches (size 2 then 1)")
	assert.Zero(t, facade.deleteCalls, "expected no compensation on success")
}

func TestCommit_CompensatesOnBatchFailure(t *testing.T) {
	facade := &fakeFacade{commitErr: errors.New("upstream rejected batch"), commitFailAt: 1}
	m := New(config.ChunkingConfig{MaxBlockSize: 1000, MaxBlocksPerBatch: 1}, 0, facade)

	sourceID, _ := model.NewSourceID()
	chunks := []model.Chunk{
		{SourcePath: "a.txt", SourceID: sourceID, Body: "1", Ordinal: 0},
		{SourcePath: "a.txt", SourceID: sourceID, Body: "2", Ordinal: 1},
	}
	outcome := Outcome{SourceID: sourceID, Status: model.StatusNew, Chunks: chunks}

	result, err := m.Commit(context.Background(), outcome)
	assert.Error(t, err, "expected the second batch's failure to surface")
	assert.Equal(t, model.StatusFailed, result.Status)
	assert.Equal(t, 1, facade.deleteCalls)
	assert.Equal(t, sourceID, facade.deletedSource)
}
