// Package retrieval turns a user question into ranked, source-attributed
// context for an answer generator.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/ragserve/internal/config"
	"github.com/nickcecere/ragserve/internal/index"
)

// FallbackAnswer is returned when no chunk clears the score threshold or
// an internal error prevents retrieval. Either way the caller gets a
// well-formed result with zero confidence, never a hard failure.
const FallbackAnswer = "I couldn't find relevant information to answer your question. Would you like me to connect you with a human assistant?"

// Confidence is the mean retrieved score scaled by this factor, capped
// at 1.0. Cosine scores rarely reach 1.0 in practice, so raw similarity
// understates how good a match set is; callers must not read confidence
// as raw similarity.
const ConfidenceScale = config.DefaultConfidenceScale

const (
	// maxSources caps the source list regardless of how many chunks
	// were retrieved.
	maxSources = 3

	// previewCount and previewLen bound the chunk previews included in
	// a result.
	previewCount = 2
	previewLen   = 200

	// contextChunks bounds how many chunks feed the composed answer.
	contextChunks = 3
	contextLen    = 500
)

// QueryOptions controls a single retrieval query. Zero values fall back
// to the configured defaults.
type QueryOptions struct {
	TopK           int
	ScoreThreshold float64
	Language       string
}

// Result is the outcome of a retrieval query.
type Result struct {
	Answer          string   `json:"answer"`
	Sources         []string `json:"sources"`
	Confidence      float64  `json:"confidence"`
	RetrievedChunks []string `json:"retrieved_chunks"`
}

// Retriever composes an embedding-backed vector store into a
// question-answering pipeline.
type Retriever struct {
	store           index.VectorStore
	topK            int
	scoreThreshold  float64
	confidenceScale float64
}

// New creates a retriever over the given store with defaults taken from cfg.
func New(store index.VectorStore, cfg *config.Config) *Retriever {
	scale := cfg.Retrieval.ConfidenceScale
	if scale <= 0 {
		scale = ConfidenceScale
	}
	return &Retriever{
		store:           store,
		topK:            cfg.Retrieval.TopK,
		scoreThreshold:  cfg.Retrieval.ScoreThreshold,
		confidenceScale: scale,
	}
}

// Query searches the store for context relevant to question and packages
// it with provenance and an aggregate confidence. An empty result set is
// a normal outcome and yields the fallback answer with confidence 0.0;
// internal errors are logged and degrade to the same fallback so a chat
// surface built on top never turns a retrieval hiccup into an outage.
func (r *Retriever) Query(ctx context.Context, question string, opts QueryOptions) Result {
	topK := opts.TopK
	if topK <= 0 {
		topK = r.topK
	}
	threshold := opts.ScoreThreshold
	if threshold <= 0 {
		threshold = r.scoreThreshold
	}

	language := opts.Language
	if language == "" {
		language = "en"
	}

	log.Debug("Processing query", "question", truncate(question, 100), "top_k", topK, "threshold", threshold, "language", language)

	results, err := r.store.Search(ctx, question, topK, threshold)
	if err != nil {
		log.Error("Retrieval search failed", "error", err)
		return fallbackResult()
	}
	if len(results) == 0 {
		return fallbackResult()
	}

	return buildResult(results, r.confidenceScale)
}

// Stats reports the underlying store's statistics.
func (r *Retriever) Stats(ctx context.Context) (index.Stats, error) {
	return r.store.Stats(ctx)
}

func fallbackResult() Result {
	return Result{
		Answer:          FallbackAnswer,
		Sources:         []string{},
		Confidence:      0.0,
		RetrievedChunks: []string{},
	}
}

func buildResult(results []index.ScoredChunk, confidenceScale float64) Result {
	sources := make([]string, 0, len(results))
	contexts := make([]string, 0, len(results))
	var scoreSum float64

	for _, res := range results {
		sources = append(sources, sourceRef(res))
		contexts = append(contexts, res.Chunk.Text)
		scoreSum += res.Score
	}

	confidence := scoreSum / float64(len(results)) * confidenceScale
	if confidence > 1.0 {
		confidence = 1.0
	}

	previews := make([]string, 0, previewCount)
	for _, res := range results[:min(previewCount, len(results))] {
		previews = append(previews, truncate(res.Chunk.Text, previewLen)+"...")
	}

	if len(sources) > maxSources {
		sources = sources[:maxSources]
	}

	return Result{
		Answer:          composeAnswer(contexts),
		Sources:         sources,
		Confidence:      confidence,
		RetrievedChunks: previews,
	}
}

// sourceRef formats a chunk's provenance as doc_id[:page_N|:section_M],
// preferring the page number when the chunk has one.
func sourceRef(res index.ScoredChunk) string {
	ref := res.Chunk.DocID
	if res.Chunk.PageNum > 0 {
		return fmt.Sprintf("%s:page_%d", ref, res.Chunk.PageNum)
	}
	if idx, ok := res.Chunk.Metadata["chunk_index"]; ok {
		return fmt.Sprintf("%s:section_%v", ref, idx)
	}
	return ref
}

// composeAnswer joins the top retrieved chunks into an answer-ready
// context block. Answer generation proper belongs to the caller; this is
// the plain-context rendering used when no generator is wired in.
func composeAnswer(contexts []string) string {
	joined := strings.Join(contexts[:min(contextChunks, len(contexts))], "\n\n")
	return fmt.Sprintf("Based on the available information:\n\n%s...\n\nIf you need more specific details, please contact our office or ask a more specific question.", truncate(joined, contextLen))
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
