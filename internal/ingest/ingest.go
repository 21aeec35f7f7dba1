package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/nickcecere/ragserve/internal/chunk"
	"github.com/nickcecere/ragserve/internal/config"
	"github.com/nickcecere/ragserve/internal/index"
)

// chunkWorkers bounds concurrent file chunking during a directory ingest.
const chunkWorkers = 4

// Document is one ingestion input: either plain text content or a set of
// FAQ entries.
type Document struct {
	// Type is "text" (default) or "faq".
	Type string `json:"type,omitempty"`

	// DocID identifies the document. Required for text documents; FAQ
	// documents derive per-category ids instead.
	DocID string `json:"doc_id,omitempty"`

	// Content is the raw text of a text document.
	Content string `json:"content,omitempty"`

	// FAQData holds the entries of an FAQ document.
	FAQData []FAQEntry `json:"faq_data,omitempty"`

	// Metadata is merged into every chunk produced from this document.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result summarizes an ingestion run.
type Result struct {
	Documents    int
	Chunks       int
	SkippedFiles int
	Errors       int
	Duration     time.Duration
}

// Ingestor chunks documents and writes them to a vector store. Each
// source document is replaced wholesale on re-ingest, so ingesting the
// same input twice never duplicates chunks.
type Ingestor struct {
	store     index.VectorStore
	processor *Processor
	cfg       *config.Config
}

// New creates an ingestor over the given store.
func New(store index.VectorStore, cfg *config.Config) *Ingestor {
	return &Ingestor{
		store:     store,
		processor: NewProcessor(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap),
		cfg:       cfg,
	}
}

// IndexDocuments chunks and indexes the given documents. Errors are
// surfaced synchronously; on failure, documents processed before the
// failing one remain indexed.
func (g *Ingestor) IndexDocuments(ctx context.Context, docs []Document) (Result, error) {
	start := time.Now()
	byDoc := make(map[string][]chunk.Chunk)

	for i, doc := range docs {
		var (
			chunks []chunk.Chunk
			err    error
		)
		switch doc.Type {
		case "faq":
			chunks, err = g.processor.ProcessFAQ(doc.FAQData)
		default:
			if doc.DocID == "" {
				return Result{}, fmt.Errorf("document %d: missing doc_id", i)
			}
			chunks, err = g.processor.ChunkText(doc.Content, doc.DocID)
		}
		if err != nil {
			return Result{}, fmt.Errorf("document %d: %w", i, err)
		}

		for j := range chunks {
			mergeMetadata(&chunks[j], doc.Metadata)
			byDoc[chunks[j].DocID] = append(byDoc[chunks[j].DocID], chunks[j])
		}
	}

	total, err := g.replaceDocuments(ctx, byDoc)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Documents: len(byDoc),
		Chunks:    total,
		Duration:  time.Since(start),
	}
	log.Info("Indexed documents", "documents", result.Documents, "chunks", result.Chunks)
	return result, nil
}

// IndexPath walks a directory and indexes every text document in it.
// Files use their root-relative path as doc id. Per-file failures are
// logged and counted, not fatal; the rest of the directory still
// indexes.
func (g *Ingestor) IndexPath(ctx context.Context, root string) (Result, error) {
	start := time.Now()

	walker, err := NewDocumentWalker(WalkOptions{
		Root:           root,
		IgnorePatterns: g.cfg.Ignore,
		UseGitignore:   true,
	})
	if err != nil {
		return Result{}, err
	}

	var files []FileInfo
	if err := walker.Walk(func(fi FileInfo) error {
		files = append(files, fi)
		return nil
	}); err != nil {
		return Result{}, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	log.Info("Found documents to index", "root", root, "count", len(files))

	var (
		mu     sync.Mutex
		byDoc  = make(map[string][]chunk.Chunk)
		errCnt int
	)

	gr, gctx := errgroup.WithContext(ctx)
	gr.SetLimit(chunkWorkers)

	for _, fi := range files {
		fi := fi
		gr.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			chunks, err := g.processor.ProcessTextFile(fi.Path, fi.RelPath)
			if err != nil {
				log.Warn("Failed to process file", "path", fi.RelPath, "error", err)
				mu.Lock()
				errCnt++
				mu.Unlock()
				return nil
			}

			for i := range chunks {
				mergeMetadata(&chunks[i], map[string]any{
					"source_path": fi.RelPath,
					"file_hash":   fi.Hash,
				})
			}

			mu.Lock()
			byDoc[fi.RelPath] = chunks
			mu.Unlock()
			return nil
		})
	}
	if err := gr.Wait(); err != nil {
		return Result{}, err
	}

	total, err := g.replaceDocuments(ctx, byDoc)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Documents:    len(byDoc),
		Chunks:       total,
		SkippedFiles: walker.Stats().FilesSkipped,
		Errors:       errCnt,
		Duration:     time.Since(start),
	}
	log.Info("Indexed directory",
		"root", root,
		"documents", result.Documents,
		"chunks", result.Chunks,
		"skipped", result.SkippedFiles,
		"errors", result.Errors,
		"duration", result.Duration.Round(time.Millisecond),
	)
	return result, nil
}

// DeleteDocument removes a document from the store.
func (g *Ingestor) DeleteDocument(ctx context.Context, docID string) (bool, error) {
	return g.store.DeleteDocument(ctx, docID)
}

// replaceDocuments writes each document's chunks to the store, replacing
// any prior version. Documents are processed in sorted order so repeat
// runs touch the store deterministically.
func (g *Ingestor) replaceDocuments(ctx context.Context, byDoc map[string][]chunk.Chunk) (int, error) {
	docIDs := make([]string, 0, len(byDoc))
	for docID := range byDoc {
		docIDs = append(docIDs, docID)
	}
	sort.Strings(docIDs)

	total := 0
	for _, docID := range docIDs {
		chunks := byDoc[docID]
		if len(chunks) == 0 {
			continue
		}
		if _, err := g.store.UpdateDocument(ctx, docID, chunks); err != nil {
			return total, fmt.Errorf("failed to index document %s: %w", docID, err)
		}
		total += len(chunks)
	}
	return total, nil
}

func mergeMetadata(c *chunk.Chunk, metadata map[string]any) {
	if len(metadata) == 0 {
		return
	}
	if c.Metadata == nil {
		c.Metadata = make(map[string]any, len(metadata))
	}
	for k, v := range metadata {
		c.Metadata[k] = v
	}
}
