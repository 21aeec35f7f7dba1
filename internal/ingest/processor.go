// Package ingest turns source documents into indexed chunks.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/ragserve/internal/chunk"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	sentenceRe   = regexp.MustCompile(`[.!?]+`)
)

// Processor splits document text into overlapping chunks sized in words.
// Sentences are never split across chunks; a chunk closes once adding the
// next sentence would push it past ChunkSize words.
type Processor struct {
	chunkSize    int
	chunkOverlap int
}

// NewProcessor creates a processor. chunkSize is the maximum words per
// chunk; chunkOverlap controls how many trailing sentences carry over
// into the next chunk (one sentence per ten words of overlap).
func NewProcessor(chunkSize, chunkOverlap int) *Processor {
	return &Processor{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// ChunkText splits text into chunks belonging to docID. Chunk ids take
// the form "<doc_id>_chunk_<n>" and each chunk carries its index in
// metadata under "chunk_index".
func (p *Processor) ChunkText(text, docID string) ([]chunk.Chunk, error) {
	sentences := splitSentences(cleanText(text))
	if len(sentences) == 0 {
		return nil, nil
	}

	var chunks []chunk.Chunk
	var current []string
	currentWords := 0
	chunkIdx := 0

	appendChunk := func() error {
		c, err := chunk.New(
			strings.Join(current, " "),
			docID,
			fmt.Sprintf("%s_chunk_%d", docID, chunkIdx),
			chunk.WithMetadata(map[string]any{"chunk_index": chunkIdx}),
		)
		if err != nil {
			return err
		}
		chunks = append(chunks, c)
		chunkIdx++
		return nil
	}

	for _, sentence := range sentences {
		words := len(strings.Fields(sentence))

		if currentWords+words > p.chunkSize && len(current) > 0 {
			if err := appendChunk(); err != nil {
				return nil, err
			}

			// Carry trailing sentences into the next chunk so context
			// crossing a boundary is not lost.
			carry := p.chunkOverlap / 10
			if carry > len(current) {
				carry = len(current)
			}
			current = append(append([]string{}, current[len(current)-carry:]...), sentence)
			currentWords = 0
			for _, s := range current {
				currentWords += len(strings.Fields(s))
			}
		} else {
			current = append(current, sentence)
			currentWords += words
		}
	}

	if len(current) > 0 {
		if err := appendChunk(); err != nil {
			return nil, err
		}
	}

	return chunks, nil
}

// ProcessTextFile reads a file and chunks its contents. An empty docID
// defaults to the file name without extension.
func (p *Processor) ProcessTextFile(path, docID string) ([]chunk.Chunk, error) {
	if docID == "" {
		docID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	chunks, err := p.ChunkText(string(content), docID)
	if err != nil {
		return nil, err
	}

	log.Debug("Processed text file", "path", path, "chunks", len(chunks))
	return chunks, nil
}

// FAQEntry is a single question/answer pair.
type FAQEntry struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
	Category string `json:"category" yaml:"category"`
}

// ProcessFAQ converts FAQ entries into chunks, one per entry. Entries
// are grouped into documents by category: doc id "faq_<category>", chunk
// id "faq_<category>_<i>" with i counting across the whole input.
func (p *Processor) ProcessFAQ(entries []FAQEntry) ([]chunk.Chunk, error) {
	chunks := make([]chunk.Chunk, 0, len(entries))

	for i, entry := range entries {
		category := entry.Category
		if category == "" {
			category = "general"
		}

		c, err := chunk.New(
			fmt.Sprintf("Q: %s\nA: %s", entry.Question, entry.Answer),
			fmt.Sprintf("faq_%s", category),
			fmt.Sprintf("faq_%s_%d", category, i),
			chunk.WithMetadata(map[string]any{
				"type":     "faq",
				"category": category,
				"question": entry.Question,
				"answer":   entry.Answer,
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("faq entry %d: %w", i, err)
		}
		chunks = append(chunks, c)
	}

	log.Debug("Processed FAQ entries", "chunks", len(chunks))
	return chunks, nil
}

// cleanText collapses runs of whitespace. Punctuation and non-Latin
// scripts pass through untouched.
func cleanText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// splitSentences breaks text on terminal punctuation, dropping empties.
func splitSentences(text string) []string {
	parts := sentenceRe.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
