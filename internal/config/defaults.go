package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default configuration values
const (
	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"

	// Store defaults
	DefaultStoreBackend = "local"
	DefaultLockTimeout  = 0 * time.Second // block indefinitely
	DefaultDBFileName   = "index.db"
	DefaultIndexDirName = "vector_index"

	// Chunking defaults
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50

	// Retrieval defaults
	DefaultTopK            = 5
	DefaultScoreThreshold  = 0.3
	DefaultConfidenceScale = 1.2
)

// DefaultIgnorePatterns returns the default list of file patterns skipped
// when ingesting a document directory.
func DefaultIgnorePatterns() []string {
	return []string{
		// Version control
		".git/",
		".svn/",
		".hg/",

		// Dependencies and build output
		"node_modules/",
		"vendor/",
		"dist/",
		"build/",
		"__pycache__/",

		// Binary and media files
		"*.exe",
		"*.dll",
		"*.so",
		"*.jpg",
		"*.jpeg",
		"*.png",
		"*.gif",
		"*.mp3",
		"*.mp4",
		"*.zip",
		"*.tar.gz",

		// Misc
		".DS_Store",
		"Thumbs.db",
		".env",
		".env.*",
		"*.log",
		"*.lock",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/ragserve"
	}
	return filepath.Join(home, ".config", "ragserve")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/ragserve"
	}
	return filepath.Join(home, ".local", "share", "ragserve")
}

// DefaultDatabasePath returns the default SQLite database file path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}

// DefaultIndexPath returns the default snapshot directory for the local backend.
func DefaultIndexPath() string {
	return filepath.Join(DefaultDataDir(), DefaultIndexDirName)
}
