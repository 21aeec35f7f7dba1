// Package index provides vector storage and similarity search over
// document chunks.
//
// Two VectorStore backends are available: a local snapshot-backed flat
// index and a sqlite-vec database. Both compute cosine similarity on
// L2-normalized vectors, so inner product equals the cosine of the angle
// between query and stored vector.
package index

import (
	"context"
	"fmt"

	"github.com/nickcecere/ragserve/internal/chunk"
	"github.com/nickcecere/ragserve/internal/config"
	"github.com/nickcecere/ragserve/internal/embeddings"
)

// VectorStore defines the interface for vector storage backends.
type VectorStore interface {
	// Add embeds the given chunks in one batched provider call and stores
	// them, returning the newly assigned slot ids in input order. An empty
	// batch is a no-op: it returns an empty slice without invoking the
	// embedding provider.
	Add(ctx context.Context, chunks []chunk.Chunk) ([]int, error)

	// Search embeds the query and returns up to topK chunks with
	// similarity >= scoreThreshold, ordered by descending score with ties
	// broken by ascending slot id. An empty store yields empty results,
	// not an error.
	Search(ctx context.Context, query string, topK int, scoreThreshold float64) ([]ScoredChunk, error)

	// DeleteDocument removes all chunks belonging to docID. Returns false
	// if no chunk with that docID existed.
	DeleteDocument(ctx context.Context, docID string) (bool, error)

	// UpdateDocument replaces all chunks of docID with newChunks as one
	// atomic operation with respect to concurrent readers.
	UpdateDocument(ctx context.Context, docID string, newChunks []chunk.Chunk) ([]int, error)

	// Stats returns store statistics.
	Stats(ctx context.Context) (Stats, error)

	// Close releases store resources.
	Close() error
}

// ScoredChunk is a search result: a stored chunk with its similarity
// score and slot id.
type ScoredChunk struct {
	Chunk chunk.Chunk `json:"chunk"`
	Score float64     `json:"score"` // cosine similarity, [0,1] for unit vectors
	Slot  int         `json:"slot"`
}

// Stats contains statistics about a vector store.
type Stats struct {
	TotalChunks        int `json:"total_chunks"`
	UniqueDocuments    int `json:"unique_documents"`
	EmbeddingDimension int `json:"embedding_dimension"`
	IndexSize          int `json:"index_size"`
}

// Open constructs the vector store backend selected by configuration.
func Open(cfg *config.Config, embedder embeddings.Service) (VectorStore, error) {
	switch cfg.Store.Backend {
	case "local":
		return NewFlatStore(embedder, FlatOptions{
			Dir:         cfg.Store.IndexPath,
			LockTimeout: cfg.Store.LockTimeout,
		})
	case "sqlite":
		return NewSQLiteStore(cfg.Store.DatabasePath, embedder)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}
