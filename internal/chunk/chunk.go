// Package chunk defines the unit of indexed text and its identity.
package chunk

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrInvalidChunk is returned when a chunk is constructed with empty
// text or missing identifiers.
var ErrInvalidChunk = errors.New("invalid chunk")

// Chunk is a bounded unit of source-document text with stable identity.
// Identity is (DocID, ChunkID). Chunks are immutable after construction;
// ContentHash is derived from Text and never changes.
type Chunk struct {
	Text        string         `json:"text"`
	DocID       string         `json:"doc_id"`
	ChunkID     string         `json:"chunk_id"`
	PageNum     int            `json:"page_num,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ContentHash string         `json:"content_hash"`
}

// Option configures optional chunk fields at construction time.
type Option func(*Chunk)

// WithPage sets the source page number (1-indexed).
func WithPage(page int) Option {
	return func(c *Chunk) {
		c.PageNum = page
	}
}

// WithMetadata attaches caller metadata to the chunk.
func WithMetadata(metadata map[string]any) Option {
	return func(c *Chunk) {
		c.Metadata = metadata
	}
}

// New creates a chunk and computes its content hash. Two chunks with
// identical text always produce identical hashes, regardless of process
// or call order. Returns ErrInvalidChunk if text, docID, or chunkID is
// empty; callers must never index an empty chunk.
func New(text, docID, chunkID string, opts ...Option) (Chunk, error) {
	if text == "" {
		return Chunk{}, fmt.Errorf("%w: empty text", ErrInvalidChunk)
	}
	if docID == "" {
		return Chunk{}, fmt.Errorf("%w: empty doc_id", ErrInvalidChunk)
	}
	if chunkID == "" {
		return Chunk{}, fmt.Errorf("%w: empty chunk_id", ErrInvalidChunk)
	}

	c := Chunk{
		Text:    text,
		DocID:   docID,
		ChunkID: chunkID,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}

	c.ContentHash = HashText(text)
	return c, nil
}

// HashText returns the 128-bit content digest of text as a hex string.
// Used for chunk deduplication decisions by callers.
func HashText(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
