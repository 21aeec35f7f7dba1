package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/ragserve/internal/chunk"
	"github.com/nickcecere/ragserve/internal/config"
	"github.com/nickcecere/ragserve/internal/index"
)

// recordingStore captures UpdateDocument calls keyed by doc id.
type recordingStore struct {
	mu   sync.Mutex
	docs map[string][]chunk.Chunk
	err  error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{docs: map[string][]chunk.Chunk{}}
}

func (s *recordingStore) Add(ctx context.Context, chunks []chunk.Chunk) ([]int, error) {
	return nil, nil
}

func (s *recordingStore) Search(ctx context.Context, query string, topK int, scoreThreshold float64) ([]index.ScoredChunk, error) {
	return nil, nil
}

func (s *recordingStore) DeleteDocument(ctx context.Context, docID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[docID]; !ok {
		return false, nil
	}
	delete(s.docs, docID)
	return true, nil
}

func (s *recordingStore) UpdateDocument(ctx context.Context, docID string, newChunks []chunk.Chunk) ([]int, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[docID] = newChunks
	slots := make([]int, len(newChunks))
	return slots, nil
}

func (s *recordingStore) Stats(ctx context.Context) (index.Stats, error) {
	return index.Stats{}, nil
}

func (s *recordingStore) Close() error { return nil }

func TestIndexDocumentsTextAndFAQ(t *testing.T) {
	store := newRecordingStore()
	ing := New(store, config.DefaultConfig())

	result, err := ing.IndexDocuments(context.Background(), []Document{
		{
			DocID:    "handbook",
			Content:  "The library opens at 8am. It closes at 10pm.",
			Metadata: map[string]any{"source": "upload"},
		},
		{
			Type: "faq",
			FAQData: []FAQEntry{
				{Question: "Timings?", Answer: "8am to 5pm.", Category: "general"},
				{Question: "Apply how?", Answer: "Online.", Category: "admission"},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Documents) // handbook, faq_general, faq_admission
	assert.Equal(t, 3, result.Chunks)

	require.Contains(t, store.docs, "handbook")
	require.Contains(t, store.docs, "faq_general")
	require.Contains(t, store.docs, "faq_admission")

	// Document metadata merges into every produced chunk.
	hb := store.docs["handbook"]
	require.Len(t, hb, 1)
	assert.Equal(t, "upload", hb[0].Metadata["source"])
	assert.Equal(t, 0, hb[0].Metadata["chunk_index"])
}

func TestIndexDocumentsMissingDocID(t *testing.T) {
	ing := New(newRecordingStore(), config.DefaultConfig())

	_, err := ing.IndexDocuments(context.Background(), []Document{
		{Content: "text without an id"},
	})
	assert.Error(t, err)
}

func TestIndexDocumentsStoreError(t *testing.T) {
	store := newRecordingStore()
	store.err = assert.AnError
	ing := New(store, config.DefaultConfig())

	_, err := ing.IndexDocuments(context.Background(), []Document{
		{DocID: "doc", Content: "some text."},
	})
	require.ErrorIs(t, err, assert.AnError)
}

func TestIndexDocumentsReplacesOnReingest(t *testing.T) {
	store := newRecordingStore()
	ing := New(store, config.DefaultConfig())
	ctx := context.Background()

	_, err := ing.IndexDocuments(ctx, []Document{{DocID: "doc", Content: "Old content here."}})
	require.NoError(t, err)

	_, err = ing.IndexDocuments(ctx, []Document{{DocID: "doc", Content: "New content here."}})
	require.NoError(t, err)

	require.Len(t, store.docs["doc"], 1)
	assert.Contains(t, store.docs["doc"][0].Text, "New content")
}

func TestIndexPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "handbook.txt"), []byte("The library opens at 8am."), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "policies"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "policies", "fees.md"), []byte("Fees are ₹50,000 per semester."), 0644))

	// Ignored inputs: hidden files, binaries, and gitignored paths.
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden.txt"), []byte("secret"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "image.bin"), []byte{0x00, 0x01, 0x02}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("drafts/\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "drafts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "drafts", "wip.txt"), []byte("unfinished"), 0644))

	store := newRecordingStore()
	ing := New(store, config.DefaultConfig())

	result, err := ing.IndexPath(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Documents)
	assert.Equal(t, 0, result.Errors)
	require.Contains(t, store.docs, "handbook.txt")
	require.Contains(t, store.docs, filepath.Join("policies", "fees.md"))
	assert.NotContains(t, store.docs, "drafts/wip.txt")
	assert.NotContains(t, store.docs, "image.bin")

	// Chunks carry provenance for later inspection.
	fees := store.docs[filepath.Join("policies", "fees.md")]
	require.NotEmpty(t, fees)
	assert.Equal(t, filepath.Join("policies", "fees.md"), fees[0].Metadata["source_path"])
	assert.NotEmpty(t, fees[0].Metadata["file_hash"])
}

func TestIndexPathMissingRoot(t *testing.T) {
	ing := New(newRecordingStore(), config.DefaultConfig())

	_, err := ing.IndexPath(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestSeedDocuments(t *testing.T) {
	store := newRecordingStore()
	ing := New(store, config.DefaultConfig())

	result, err := ing.IndexDocuments(context.Background(), SeedDocuments())
	require.NoError(t, err)
	assert.Greater(t, result.Chunks, 0)

	require.Contains(t, store.docs, "admission_guide")
	require.Contains(t, store.docs, "fee_structure")
	require.Contains(t, store.docs, "faq_general")
	require.Contains(t, store.docs, "faq_fees")
}

func TestHashContentDeterministic(t *testing.T) {
	a := HashContent([]byte("same bytes"))
	b := HashContent([]byte("same bytes"))
	c := HashContent([]byte("different bytes"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
