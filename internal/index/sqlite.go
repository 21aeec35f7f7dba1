package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/nickcecere/ragserve/internal/chunk"
	"github.com/nickcecere/ragserve/internal/embeddings"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

// SQLiteStore implements VectorStore using SQLite and sqlite-vec.
type SQLiteStore struct {
	db       *sql.DB
	embedder embeddings.Service
	mu       sync.RWMutex
	dim      int // 0 until the first vector is stored
}

// NewSQLiteStore opens (or creates) a SQLite-backed vector store at dbPath.
func NewSQLiteStore(dbPath string, embedder embeddings.Service) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	dim, err := getMetaInt(db, "embedding_dimensions")
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("Opened SQLite store", "path", dbPath, "dimensions", dim)

	return &SQLiteStore{db: db, embedder: embedder, dim: dim}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Add embeds and stores the given chunks, returning their slot ids.
func (s *SQLiteStore) Add(ctx context.Context, chunks []chunk.Chunk) ([]int, error) {
	if len(chunks) == 0 {
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
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(vectors), len(chunks))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDimensionLocked(len(vectors[0])); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	slots, err := s.insertChunksTx(tx, chunks, vectors)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	log.Debug("Added chunks", "count", len(chunks))
	return slots, nil
}

// insertChunksTx inserts chunks and their vectors within an open
// transaction, creating document rows as needed. Vectors must already
// match the store dimension.
func (s *SQLiteStore) insertChunksTx(tx *sql.Tx, chunks []chunk.Chunk, vectors [][]float32) ([]int, error) {
	slots := make([]int, 0, len(chunks))

	for i, c := range chunks {
		if len(vectors[i]) != s.dim {
			return nil, fmt.Errorf("%w: got %d, store has %d", ErrDimensionMismatch, len(vectors[i]), s.dim)
		}

		docID, err := s.upsertDocumentTx(tx, c.DocID)
		if err != nil {
			return nil, err
		}

		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}

		var pageNum any
		if c.PageNum > 0 {
			pageNum = c.PageNum
		}

		// INSERT OR REPLACE assigns a fresh rowid when it displaces an
		// existing (document_id, chunk_id) row. Drop that row's vector
		// first or it would be orphaned in the vec0 table.
		var prevID int64
		err = tx.QueryRow("SELECT id FROM chunks WHERE document_id = ? AND chunk_id = ?", docID, c.ChunkID).Scan(&prevID)
		switch {
		case err == nil:
			if _, err := tx.Exec("DELETE FROM chunk_vectors WHERE chunk_id = ?", prevID); err != nil {
				return nil, fmt.Errorf("failed to delete replaced vector: %w", err)
			}
		case err != sql.ErrNoRows:
			return nil, fmt.Errorf("failed to look up chunk: %w", err)
		}

		result, err := tx.Exec(`
			INSERT OR REPLACE INTO chunks (document_id, chunk_id, text, page_num, metadata, content_hash)
			VALUES (?, ?, ?, ?, ?, ?)
		`, docID, c.ChunkID, c.Text, pageNum, string(metaJSON), c.ContentHash)
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}

		rowID, _ := result.LastInsertId()

		normalize(vectors[i])
		embeddingBlob := serializeEmbedding(vectors[i])
		_, err = tx.Exec(`
			INSERT OR REPLACE INTO chunk_vectors (chunk_id, embedding)
			VALUES (?, ?)
		`, rowID, embeddingBlob)
		if err != nil {
			return nil, fmt.Errorf("failed to insert vector for chunk %d: %w", i, err)
		}

		slots = append(slots, int(rowID))
	}

	return slots, nil
}

// upsertDocumentTx returns the rowid of the documents row for docID,
// creating it if missing.
func (s *SQLiteStore) upsertDocumentTx(tx *sql.Tx, docID string) (int64, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM documents WHERE doc_id = ?", docID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up document: %w", err)
	}

	result, err := tx.Exec("INSERT INTO documents (doc_id) VALUES (?)", docID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}
	return result.LastInsertId()
}

// ensureDimensionLocked fixes the store dimension on first insert and
// rejects mismatched vectors afterwards. Caller must hold the write lock.
func (s *SQLiteStore) ensureDimensionLocked(dim int) error {
	if s.dim == 0 {
		if err := createVectorTable(s.db, dim); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
		if err := setMetaInt(s.db, "embedding_dimensions", dim); err != nil {
			return fmt.Errorf("failed to persist dimensions: %w", err)
		}
		s.dim = dim
		log.Debug("Vector table created", "dimensions", dim)
		return nil
	}
	if dim != s.dim {
		return fmt.Errorf("%w: got %d, store has %d", ErrDimensionMismatch, dim, s.dim)
	}
	return nil
}

// Search embeds the query and returns the most similar chunks.
func (s *SQLiteStore) Search(ctx context.Context, query string, topK int, scoreThreshold float64) ([]ScoredChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	s.mu.RLock()
	empty := s.dim == 0
	s.mu.RUnlock()
	if empty {
		return []ScoredChunk{}, nil
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(queryVec) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(queryVec), s.dim)
	}

	normalize(queryVec)
	queryBlob := serializeEmbedding(queryVec)

	// sqlite-vec evaluates non-vector predicates after selecting k rows
	// from the index, so request extra and let LIMIT enforce topK.
	kForVec := topK * 10
	if kForVec > 1000 {
		kForVec = 1000
	}
	rows, err := s.db.Query(`
		SELECT c.id, c.chunk_id, c.text, c.page_num, c.metadata, c.content_hash,
			d.doc_id, cv.distance
		FROM chunk_vectors cv
		JOIN chunks c ON c.id = cv.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE cv.embedding MATCH ?
			AND k = ?
		ORDER BY cv.distance ASC, c.id ASC
		LIMIT ?
	`, queryBlob, kForVec, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	results := []ScoredChunk{}
	for rows.Next() {
		var (
			slot        int
			chunkID     string
			text        string
			pageNum     sql.NullInt64
			metaJSON    string
			contentHash string
			docID       string
			distance    float64
		)
		if err := rows.Scan(&slot, &chunkID, &text, &pageNum, &metaJSON, &contentHash, &docID, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		score := 1 - distance // cosine distance to similarity
		if score < scoreThreshold {
			continue
		}

		c := chunk.Chunk{
			Text:        text,
			DocID:       docID,
			ChunkID:     chunkID,
			ContentHash: contentHash,
		}
		if pageNum.Valid {
			c.PageNum = int(pageNum.Int64)
		}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}

		results = append(results, ScoredChunk{Chunk: c, Score: score, Slot: slot})
	}

	return results, rows.Err()
}

// DeleteDocument removes a document and all its chunks and vectors.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, docID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.db.QueryRow("SELECT id FROM documents WHERE doc_id = ?", docID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up document: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.deleteDocumentTx(tx, id); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}

	log.Debug("Deleted document", "doc_id", docID)
	return true, nil
}

// deleteDocumentTx removes the vectors, chunks, and document row for the
// given documents rowid within an open transaction.
func (s *SQLiteStore) deleteDocumentTx(tx *sql.Tx, id int64) error {
	_, err := tx.Exec("DELETE FROM chunk_vectors WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)", id)
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	_, err = tx.Exec("DELETE FROM chunks WHERE document_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	_, err = tx.Exec("DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// UpdateDocument atomically replaces all chunks of docID with newChunks.
func (s *SQLiteStore) UpdateDocument(ctx context.Context, docID string, newChunks []chunk.Chunk) ([]int, error) {
	// Embed before taking the lock so a remote provider call does not
	// stall concurrent readers.
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
			return nil, fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(vectors), len(newChunks))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vectors) > 0 {
		if err := s.ensureDimensionLocked(len(vectors[0])); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRow("SELECT id FROM documents WHERE doc_id = ?", docID).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up document: %w", err)
	}
	if err == nil {
		if err := s.deleteDocumentTx(tx, existingID); err != nil {
			return nil, err
		}
	}

	slots := []int{}
	if len(newChunks) > 0 {
		slots, err = s.insertChunksTx(tx, newChunks, vectors)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	log.Debug("Updated document", "doc_id", docID, "chunks", len(newChunks))
	return slots, nil
}

// Stats returns store statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	stats.EmbeddingDimension = s.dim
	if stats.EmbeddingDimension == 0 {
		stats.EmbeddingDimension = s.embedder.Dimensions()
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&stats.TotalChunks); err != nil {
		return Stats{}, fmt.Errorf("failed to count chunks: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&stats.UniqueDocuments); err != nil {
		return Stats{}, fmt.Errorf("failed to count documents: %w", err)
	}
	stats.IndexSize = stats.TotalChunks

	return stats, nil
}

// serializeEmbedding converts a float32 slice to bytes for sqlite-vec.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
