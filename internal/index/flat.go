package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/ragserve/internal/chunk"
	"github.com/nickcecere/ragserve/internal/embeddings"
)

// Compile-time check that FlatStore satisfies the VectorStore interface.
var _ VectorStore = (*FlatStore)(nil)

// FlatOptions contains configuration options for the flat store.
type FlatOptions struct {
	// Dir is the snapshot directory. Empty disables persistence (the store
	// is memory-only, useful for tests).
	Dir string

	// LockTimeout bounds on-disk lock acquisition. Zero blocks indefinitely.
	LockTimeout time.Duration
}

// FlatStore is an in-memory flat inner-product index over L2-normalized
// vectors, optionally backed by an on-disk snapshot.
//
// Vectors and chunks are stored in slot order. Writers take the write
// lock; searches proceed in parallel under the read lock, so a search
// observes only chunks committed before it began. The flat layout has no
// incremental removal: DeleteDocument rebuilds the slices from the
// surviving entries, reusing their stored vectors.
type FlatStore struct {
	embedder embeddings.Service
	snap     *snapshotManager

	// saveMu serializes snapshot writes together with their state
	// capture, so a save never installs state older than one that
	// already reached disk.
	saveMu sync.Mutex

	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	chunks  []chunk.Chunk
}

// NewFlatStore creates a flat store and loads an existing snapshot from
// opts.Dir if one is present. A directory with any snapshot artifact
// missing is treated as empty (first run).
func NewFlatStore(embedder embeddings.Service, opts FlatOptions) (*FlatStore, error) {
	s := &FlatStore{
		embedder: embedder,
	}

	if opts.Dir != "" {
		s.snap = newSnapshotManager(opts.Dir, opts.LockTimeout)

		dim, vectors, chunks, err := s.snap.Load()
		if err != nil {
			return nil, err
		}
		s.dim = dim
		s.vectors = vectors
		s.chunks = chunks

		if len(chunks) > 0 {
			log.Debug("Loaded index snapshot", "dir", opts.Dir, "chunks", len(chunks), "dimension", dim)
		}
	}

	return s, nil
}

// Add embeds all chunk texts in one batched call, L2-normalizes the
// resulting vectors, and appends them to the index. The index dimension
// is discovered from the first batch and fixed thereafter.
func (s *FlatStore) Add(ctx context.Context, chunks []chunk.Chunk) ([]int, error) {
	if len(chunks) == 0 {
		// Empty batch is a no-op, not an error.
		return []int{}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	for i := range vectors {
		normalize(vectors[i])
	}

	s.mu.Lock()
	if err := s.checkDimensionLocked(vectors); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	slots := make([]int, len(chunks))
	for i := range chunks {
		slots[i] = len(s.vectors)
		s.vectors = append(s.vectors, vectors[i])
		s.chunks = append(s.chunks, chunks[i])
	}
	total := len(s.vectors)
	s.mu.Unlock()

	log.Debug("Added chunks to index", "count", len(chunks), "total", total)

	if err := s.save(); err != nil {
		return slots, err
	}
	return slots, nil
}

// Search embeds the query, normalizes it, and scans all stored vectors
// by inner product. topK is clamped to the number of stored entries.
func (s *FlatStore) Search(ctx context.Context, query string, topK int, scoreThreshold float64) ([]ScoredChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", topK)
	}

	s.mu.RLock()
	empty := len(s.vectors) == 0
	s.mu.RUnlock()
	if empty {
		return []ScoredChunk{}, nil
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	normalize(queryVec)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(queryVec) != s.dim {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", ErrDimensionMismatch, len(queryVec), s.dim)
	}

	var results []ScoredChunk
	for slot, vec := range s.vectors {
		score := dotProduct(queryVec, vec)
		if score >= scoreThreshold {
			results = append(results, ScoredChunk{
				Chunk: s.chunks[slot],
				Score: score,
				Slot:  slot,
			})
		}
	}

	// Descending by score; ties broken by insertion order for determinism.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Slot < results[j].Slot
	})

	if topK > len(results) {
		topK = len(results)
	}
	out := make([]ScoredChunk, topK)
	copy(out, results[:topK])
	return out, nil
}

// DeleteDocument removes all chunks belonging to docID and rebuilds the
// index from the remaining entries. Stored vectors are reused, so no
// re-embedding occurs.
func (s *FlatStore) DeleteDocument(ctx context.Context, docID string) (bool, error) {
	s.mu.Lock()
	removed := s.removeDocumentLocked(docID)
	s.mu.Unlock()

	if removed == 0 {
		return false, nil
	}

	log.Debug("Deleted document from index", "doc_id", docID, "chunks", removed)

	if err := s.save(); err != nil {
		return true, err
	}
	return true, nil
}

// UpdateDocument replaces all chunks of docID with newChunks. The swap is
// performed under the write lock, so concurrent readers observe either
// the old or the new version of the document, never a mix.
func (s *FlatStore) UpdateDocument(ctx context.Context, docID string, newChunks []chunk.Chunk) ([]int, error) {
	var vectors [][]float32
	if len(newChunks) > 0 {
		texts := make([]string, len(newChunks))
		for i, c := range newChunks {
			texts[i] = c.Text
		}

		var err error
		vectors, err = s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vectors) != len(newChunks) {
			return nil, fmt.Errorf("embedding provider returned %d vectors for %d chunks", len(vectors), len(newChunks))
		}
		for i := range vectors {
			normalize(vectors[i])
		}
	}

	s.mu.Lock()
	if err := s.checkDimensionLocked(vectors); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.removeDocumentLocked(docID)

	slots := make([]int, len(newChunks))
	for i := range newChunks {
		slots[i] = len(s.vectors)
		s.vectors = append(s.vectors, vectors[i])
		s.chunks = append(s.chunks, newChunks[i])
	}
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return slots, err
	}
	return slots, nil
}

// Stats returns index statistics.
func (s *FlatStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make(map[string]struct{}, len(s.chunks))
	for _, c := range s.chunks {
		docs[c.DocID] = struct{}{}
	}

	dim := s.dim
	if dim == 0 && s.embedder != nil {
		dim = s.embedder.Dimensions()
	}

	return Stats{
		TotalChunks:        len(s.chunks),
		UniqueDocuments:    len(docs),
		EmbeddingDimension: dim,
		IndexSize:          len(s.vectors),
	}, nil
}

// Save persists the current state to the snapshot directory.
func (s *FlatStore) Save() error {
	return s.save()
}

// Close is a no-op for the flat store; state is already durable after
// the last successful save.
func (s *FlatStore) Close() error {
	return nil
}

// checkDimensionLocked fixes the index dimension from the first batch and
// rejects later batches whose dimension differs. Callers hold the write lock.
func (s *FlatStore) checkDimensionLocked(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	for _, v := range vectors {
		if s.dim == 0 {
			s.dim = len(v)
			log.Debug("Initialized index dimension", "dimension", s.dim)
			continue
		}
		if len(v) != s.dim {
			return fmt.Errorf("%w: got %d, index dimension %d", ErrDimensionMismatch, len(v), s.dim)
		}
	}
	return nil
}

// removeDocumentLocked filters out all entries of docID and compacts the
// slices, returning how many chunks were removed. Callers hold the write
// lock.
func (s *FlatStore) removeDocumentLocked(docID string) int {
	kept := 0
	for i := range s.chunks {
		if s.chunks[i].DocID == docID {
			continue
		}
		s.chunks[kept] = s.chunks[i]
		s.vectors[kept] = s.vectors[i]
		kept++
	}
	removed := len(s.chunks) - kept
	s.chunks = s.chunks[:kept]
	s.vectors = s.vectors[:kept]
	return removed
}

// save writes a snapshot if persistence is configured. The error wraps
// ErrPersistence; in-memory state is unaffected either way and the prior
// on-disk snapshot survives a failed save.
func (s *FlatStore) save() error {
	if s.snap == nil {
		return nil
	}

	// Capture and write under one mutex. Without it, two concurrent
	// writers could capture in one order and reach the snapshot manager
	// in the other, letting a stale copy overwrite a newer snapshot.
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	dim := s.dim
	vectors := make([][]float32, len(s.vectors))
	copy(vectors, s.vectors)
	chunks := make([]chunk.Chunk, len(s.chunks))
	copy(chunks, s.chunks)
	s.mu.RUnlock()

	if err := s.snap.Save(dim, vectors, chunks); err != nil {
		log.Error("Failed to save index snapshot", "dir", s.snap.dir, "error", err)
		return err
	}
	return nil
}

// normalize scales v to unit length in place. Zero vectors are left
// unchanged.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// dotProduct computes the inner product of two equal-length vectors.
// For unit vectors this equals their cosine similarity.
func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
