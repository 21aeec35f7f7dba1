package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/ragserve/internal/chunk"
)

func setupSQLiteStore(t *testing.T, embedder *stubEmbedder) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "index.db")
	store, err := NewSQLiteStore(dbPath, embedder)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")

	store, err := NewSQLiteStore(dbPath, newStubEmbedder(8))
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestSQLiteStoreAddAndSearch(t *testing.T) {
	ctx := context.Background()
	store := setupSQLiteStore(t, newStubEmbedder(8))

	chunks := []chunk.Chunk{
		mustChunk(t, "Fees are ₹50,000 per semester", "doc1", "doc1_0",
			chunk.WithPage(2),
			chunk.WithMetadata(map[string]any{"type": "pdf"}),
		),
		mustChunk(t, "The library opens at 8am", "doc1", "doc1_1"),
		mustChunk(t, "Hostel rooms are shared", "doc2", "doc2_0"),
	}

	slots, err := store.Add(ctx, chunks)
	require.NoError(t, err)
	assert.Len(t, slots, 3)

	results, err := store.Search(ctx, "Fees are ₹50,000 per semester", 3, 0.0)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, "doc1", top.Chunk.DocID)
	assert.Equal(t, "doc1_0", top.Chunk.ChunkID)
	assert.Equal(t, 2, top.Chunk.PageNum)
	assert.Equal(t, "pdf", top.Chunk.Metadata["type"])
	assert.NotEmpty(t, top.Chunk.ContentHash)
	assert.Greater(t, top.Score, 0.99)
}

func TestSQLiteStoreEmptyBatch(t *testing.T) {
	embedder := newStubEmbedder(8)
	store := setupSQLiteStore(t, embedder)

	slots, err := store.Add(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.Equal(t, 0, embedder.calls)
}

func TestSQLiteStoreEmptySearch(t *testing.T) {
	embedder := newStubEmbedder(8)
	store := setupSQLiteStore(t, embedder)

	results, err := store.Search(context.Background(), "anything", 5, 0.0)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, embedder.calls)
}

func TestSQLiteStoreDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	embedder := newStubEmbedder(3)
	embedder.fixed["wide"] = []float32{1, 0, 0, 0}
	store := setupSQLiteStore(t, embedder)

	_, err := store.Add(ctx, []chunk.Chunk{mustChunk(t, "normal", "d", "c0")})
	require.NoError(t, err)

	_, err = store.Add(ctx, []chunk.Chunk{mustChunk(t, "wide", "d", "c1")})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunks)
}

func TestSQLiteStoreDeleteDocument(t *testing.T) {
	ctx := context.Background()
	store := setupSQLiteStore(t, newStubEmbedder(8))

	_, err := store.Add(ctx, []chunk.Chunk{
		mustChunk(t, "alpha", "doc1", "doc1_0"),
		mustChunk(t, "beta", "doc1", "doc1_1"),
		mustChunk(t, "gamma", "doc2", "doc2_0"),
	})
	require.NoError(t, err)

	deleted, err := store.DeleteDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.True(t, deleted)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunks)
	assert.Equal(t, 1, stats.UniqueDocuments)

	results, err := store.Search(ctx, "alpha", 10, 0.0)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "doc1", r.Chunk.DocID)
	}

	deleted, err = store.DeleteDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = store.DeleteDocument(ctx, "never-indexed")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSQLiteStoreUpdateDocument(t *testing.T) {
	ctx := context.Background()
	store := setupSQLiteStore(t, newStubEmbedder(8))

	_, err := store.Add(ctx, []chunk.Chunk{
		mustChunk(t, "old version", "doc1", "doc1_0"),
		mustChunk(t, "old second chunk", "doc1", "doc1_1"),
		mustChunk(t, "other doc", "doc2", "doc2_0"),
	})
	require.NoError(t, err)

	slots, err := store.UpdateDocument(ctx, "doc1", []chunk.Chunk{
		mustChunk(t, "new version", "doc1", "doc1_0"),
	})
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, 2, stats.UniqueDocuments)

	results, err := store.Search(ctx, "new version", 5, 0.0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "new version", results[0].Chunk.Text)
}

func TestSQLiteStoreRepeatedAddReplacesChunk(t *testing.T) {
	ctx := context.Background()
	store := setupSQLiteStore(t, newStubEmbedder(8))

	_, err := store.Add(ctx, []chunk.Chunk{
		mustChunk(t, "first version", "doc1", "doc1_0"),
	})
	require.NoError(t, err)

	_, err = store.Add(ctx, []chunk.Chunk{
		mustChunk(t, "second version", "doc1", "doc1_0"),
	})
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunks)
	assert.Equal(t, 1, stats.UniqueDocuments)

	// The replaced chunk row must not leave its old vector behind.
	var vectorRows int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM chunk_vectors").Scan(&vectorRows))
	assert.Equal(t, 1, vectorRows)

	results, err := store.Search(ctx, "second version", 10, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "second version", results[0].Chunk.Text)
}

func TestSQLiteStoreReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "index.db")
	embedder := newStubEmbedder(8)

	store, err := NewSQLiteStore(dbPath, embedder)
	require.NoError(t, err)

	_, err = store.Add(ctx, []chunk.Chunk{
		mustChunk(t, "alpha", "doc1", "doc1_0"),
		mustChunk(t, "beta", "doc2", "doc2_0"),
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath, embedder)
	require.NoError(t, err)
	defer reopened.Close()

	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, 2, stats.UniqueDocuments)
	assert.Equal(t, 8, stats.EmbeddingDimension)

	results, err := reopened.Search(ctx, "alpha", 5, 0.0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc1", results[0].Chunk.DocID)
	assert.Greater(t, results[0].Score, 0.99)
}

func TestSQLiteStoreScoreThreshold(t *testing.T) {
	ctx := context.Background()
	embedder := newStubEmbedder(3)
	embedder.fixed["query"] = []float32{1, 0, 0}
	embedder.fixed["exact"] = []float32{1, 0, 0}
	embedder.fixed["orthogonal"] = []float32{0, 1, 0}
	store := setupSQLiteStore(t, embedder)

	_, err := store.Add(ctx, []chunk.Chunk{
		mustChunk(t, "exact", "d", "c0"),
		mustChunk(t, "orthogonal", "d", "c1"),
	})
	require.NoError(t, err)

	results, err := store.Search(ctx, "query", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "exact", results[0].Chunk.Text)
}
