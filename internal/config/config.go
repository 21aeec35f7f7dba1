// Package config handles configuration loading and validation for ragserve.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config represents the complete ragserve configuration.
type Config struct {
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Store      StoreConfig      `mapstructure:"store"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Ignore     []string         `mapstructure:"ignore"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider string            `mapstructure:"provider"`
	Ollama   OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI   OpenAIEmbedConfig `mapstructure:"openai"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// StoreConfig configures the vector store backend.
type StoreConfig struct {
	// Backend selects the store implementation: "local" (snapshot-backed
	// flat index) or "sqlite" (sqlite-vec database).
	Backend string `mapstructure:"backend"`

	// IndexPath is the snapshot directory for the local backend.
	IndexPath string `mapstructure:"index_path"`

	// DatabasePath is the SQLite file for the sqlite backend.
	DatabasePath string `mapstructure:"database_path"`

	// LockTimeout bounds on-disk lock acquisition for the local backend.
	// Zero means block indefinitely.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// ChunkingConfig configures document chunking.
type ChunkingConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// RetrievalConfig configures the retrieval pipeline.
type RetrievalConfig struct {
	TopK            int     `mapstructure:"top_k"`
	ScoreThreshold  float64 `mapstructure:"score_threshold"`
	ConfidenceScale float64 `mapstructure:"confidence_scale"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
		},
		Store: StoreConfig{
			Backend:      DefaultStoreBackend,
			IndexPath:    DefaultIndexPath(),
			DatabasePath: DefaultDatabasePath(),
			LockTimeout:  DefaultLockTimeout,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
		},
		Retrieval: RetrievalConfig{
			TopK:            DefaultTopK,
			ScoreThreshold:  DefaultScoreThreshold,
			ConfidenceScale: DefaultConfidenceScale,
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")
	}

	// Environment variables
	viper.SetEnvPrefix("RAGSERVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	loadAPIKeysFromEnv()

	return cfg.Validate()
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "local", "sqlite":
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}

	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}

	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("score_threshold must be in [0,1], got %v", c.Retrieval.ScoreThreshold)
	}

	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Embeddings
	viper.SetDefault("embeddings.provider", DefaultEmbeddingProvider)
	viper.SetDefault("embeddings.ollama.url", DefaultOllamaURL)
	viper.SetDefault("embeddings.ollama.model", DefaultOllamaEmbedModel)
	viper.SetDefault("embeddings.openai.model", DefaultOpenAIEmbedModel)

	// Store
	viper.SetDefault("store.backend", DefaultStoreBackend)
	viper.SetDefault("store.index_path", DefaultIndexPath())
	viper.SetDefault("store.database_path", DefaultDatabasePath())
	viper.SetDefault("store.lock_timeout", DefaultLockTimeout)

	// Chunking
	viper.SetDefault("chunking.chunk_size", DefaultChunkSize)
	viper.SetDefault("chunking.chunk_overlap", DefaultChunkOverlap)

	// Retrieval
	viper.SetDefault("retrieval.top_k", DefaultTopK)
	viper.SetDefault("retrieval.score_threshold", DefaultScoreThreshold)
	viper.SetDefault("retrieval.confidence_scale", DefaultConfidenceScale)

	viper.SetDefault("ignore", DefaultIgnorePatterns())
}

// loadAPIKeysFromEnv loads API keys from environment variables if not already set.
func loadAPIKeysFromEnv() {
	if cfg.Embeddings.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Embeddings.OpenAI.APIKey = key
		}
	}
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
