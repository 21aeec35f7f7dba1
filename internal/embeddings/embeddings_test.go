package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/ragserve/internal/config"
)

// TestGetModelDimensions tests known model dimension lookups.
func TestGetModelDimensions(t *testing.T) {
	tests := []struct {
		model    string
		expected int
	}{
		// Ollama models
		{"nomic-embed-text", 768},
		{"mxbai-embed-large", 1024},
		{"all-minilm", 384},

		// OpenAI models
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},

		// Unknown model
		{"unknown-model", 0},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			dims := GetModelDimensions(tt.model)
			assert.Equal(t, tt.expected, dims)
		})
	}
}

// TestNewOllamaService tests Ollama service creation.
func TestNewOllamaService(t *testing.T) {
	t.Run("with default URL", func(t *testing.T) {
		svc, err := NewOllamaService("", "nomic-embed-text")
		require.NoError(t, err)

		assert.Equal(t, "http://localhost:11434", svc.baseURL)
		assert.Equal(t, "nomic-embed-text", svc.model)
		assert.Equal(t, 768, svc.dimensions)
		assert.Equal(t, ProviderOllama, svc.Provider())
		assert.Equal(t, "nomic-embed-text", svc.ModelName())
	})

	t.Run("with custom URL", func(t *testing.T) {
		svc, err := NewOllamaService("http://custom:8080/", "mxbai-embed-large")
		require.NoError(t, err)

		assert.Equal(t, "http://custom:8080", svc.baseURL) // trailing slash removed
		assert.Equal(t, "mxbai-embed-large", svc.model)
		assert.Equal(t, 1024, svc.dimensions)
	})

	t.Run("with unknown model defaults to 768", func(t *testing.T) {
		svc, err := NewOllamaService("", "custom-model")
		require.NoError(t, err)

		assert.Equal(t, 768, svc.dimensions)
	})
}

// TestNewOpenAIService tests OpenAI service creation.
func TestNewOpenAIService(t *testing.T) {
	t.Run("requires API key", func(t *testing.T) {
		_, err := NewOpenAIService("", "text-embedding-3-small", "", 0)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "API key is required")
	})

	t.Run("with known model dimensions", func(t *testing.T) {
		svc, err := NewOpenAIService("sk-test", "text-embedding-3-small", "", 0)
		require.NoError(t, err)

		assert.Equal(t, "text-embedding-3-small", svc.model)
		assert.Equal(t, 1536, svc.dimensions)
		assert.Equal(t, ProviderOpenAI, svc.Provider())
		assert.Equal(t, "text-embedding-3-small", svc.ModelName())
	})

	t.Run("with custom dimensions", func(t *testing.T) {
		svc, err := NewOpenAIService("sk-test", "text-embedding-3-large", "", 512)
		require.NoError(t, err)

		assert.Equal(t, 512, svc.dimensions)
	})

	t.Run("with unknown model defaults to 1536", func(t *testing.T) {
		svc, err := NewOpenAIService("sk-test", "custom-model", "", 0)
		require.NoError(t, err)

		assert.Equal(t, 1536, svc.dimensions)
	})
}

// TestOllamaTaskPrefixes tests task prefix application.
func TestOllamaTaskPrefixes(t *testing.T) {
	t.Run("nomic-embed-text prefixes", func(t *testing.T) {
		svc, _ := NewOllamaService("", "nomic-embed-text")

		doc := svc.applyPrefix("test document", false)
		assert.Equal(t, "search_document: test document", doc)

		query := svc.applyPrefix("test query", true)
		assert.Equal(t, "search_query: test query", query)
	})

	t.Run("unknown model has no prefix", func(t *testing.T) {
		svc, _ := NewOllamaService("", "unknown-model")

		doc := svc.applyPrefix("test", false)
		query := svc.applyPrefix("test", true)

		assert.Equal(t, "test", doc)
		assert.Equal(t, "test", query)
	})
}

// mockOllamaServer creates a test server that simulates Ollama's embed API.
func mockOllamaServer(t *testing.T, dims int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ollamaEmbedRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)

		// Generate fake embeddings
		embeddings := make([][]float32, len(req.Input))
		for i := range req.Input {
			embedding := make([]float32, dims)
			for j := range embedding {
				embedding[j] = float32(i+1) * 0.1 // Predictable values
			}
			embeddings[i] = embedding
		}

		resp := ollamaEmbedResponse{Embeddings: embeddings}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

// TestOllamaEmbed tests the Ollama embedding methods with a mock server.
func TestOllamaEmbed(t *testing.T) {
	server := mockOllamaServer(t, 768)
	defer server.Close()

	svc, err := NewOllamaService(server.URL, "nomic-embed-text")
	require.NoError(t, err)

	t.Run("EmbedQuery single text", func(t *testing.T) {
		embedding, err := svc.EmbedQuery(context.Background(), "test query")
		require.NoError(t, err)

		assert.Len(t, embedding, 768)
	})

	t.Run("EmbedBatch multiple texts", func(t *testing.T) {
		texts := []string{"doc1", "doc2", "doc3"}
		embeddings, err := svc.EmbedBatch(context.Background(), texts)
		require.NoError(t, err)

		assert.Len(t, embeddings, 3)
		for i, emb := range embeddings {
			assert.Len(t, emb, 768)
			assert.Equal(t, float32(i+1)*0.1, emb[0])
		}
	})

	t.Run("EmbedBatch empty input", func(t *testing.T) {
		embeddings, err := svc.EmbedBatch(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, embeddings)
	})
}

// TestNewService tests provider selection from config.
func TestNewService(t *testing.T) {
	t.Run("ollama provider", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Embeddings.Provider = "ollama"

		svc, err := NewService(cfg)
		require.NoError(t, err)
		assert.Equal(t, ProviderOllama, svc.Provider())
	})

	t.Run("openai provider", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Embeddings.Provider = "openai"
		cfg.Embeddings.OpenAI.APIKey = "sk-test"

		svc, err := NewService(cfg)
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, svc.Provider())
	})

	t.Run("unsupported provider", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Embeddings.Provider = "bedrock"

		_, err := NewService(cfg)
		assert.Error(t, err)
	})
}
