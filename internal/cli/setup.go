package cli

import (
	"fmt"

	"github.com/nickcecere/ragserve/internal/config"
	"github.com/nickcecere/ragserve/internal/embeddings"
	"github.com/nickcecere/ragserve/internal/index"
)

// openStore builds the embedding service and vector store from the
// active configuration. The caller owns closing the returned store.
func openStore(cfg *config.Config) (index.VectorStore, embeddings.Service, error) {
	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	store, err := index.Open(cfg, emb)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	return store, emb, nil
}
