package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/ragserve/internal/config"
	"github.com/nickcecere/ragserve/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Display current configuration settings and config file locations.

Examples:
  # Show current configuration
  ragserve config

  # Show config file paths
  ragserve config --path`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if configShowPath {
		fmt.Println(ui.SectionTitle.Render("Configuration Paths"))
		fmt.Println()
		fmt.Printf("Global config: %s\n", config.GlobalConfigPath())
		fmt.Printf("Active config: %s\n", config.ConfigFilePath())
		fmt.Printf("Database:      %s\n", cfg.Store.DatabasePath)
		fmt.Printf("Index dir:     %s\n", cfg.Store.IndexPath)
		return nil
	}

	fmt.Println(ui.SectionTitle.Render("Current Configuration"))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Embeddings:"))
	fmt.Printf("  Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Printf("  Ollama URL: %s\n", cfg.Embeddings.Ollama.URL)
	fmt.Printf("  Ollama Model: %s\n", cfg.Embeddings.Ollama.Model)
	fmt.Printf("  OpenAI Model: %s\n", cfg.Embeddings.OpenAI.Model)
	if cfg.Embeddings.OpenAI.BaseURL != "" {
		fmt.Printf("  OpenAI Base URL: %s\n", cfg.Embeddings.OpenAI.BaseURL)
	}
	fmt.Println()

	fmt.Println(ui.Bold.Render("Store:"))
	fmt.Printf("  Backend: %s\n", cfg.Store.Backend)
	fmt.Printf("  Index Path: %s\n", cfg.Store.IndexPath)
	fmt.Printf("  Database Path: %s\n", cfg.Store.DatabasePath)
	if cfg.Store.LockTimeout > 0 {
		fmt.Printf("  Lock Timeout: %s\n", cfg.Store.LockTimeout)
	} else {
		fmt.Printf("  Lock Timeout: none (block indefinitely)\n")
	}
	fmt.Println()

	fmt.Println(ui.Bold.Render("Chunking:"))
	fmt.Printf("  Chunk Size: %d words\n", cfg.Chunking.ChunkSize)
	fmt.Printf("  Chunk Overlap: %d\n", cfg.Chunking.ChunkOverlap)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Retrieval:"))
	fmt.Printf("  Top K: %d\n", cfg.Retrieval.TopK)
	fmt.Printf("  Score Threshold: %.2f\n", cfg.Retrieval.ScoreThreshold)
	fmt.Printf("  Confidence Scale: %.2f\n", cfg.Retrieval.ConfidenceScale)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Ignore Patterns:"))
	fmt.Printf("  %d patterns configured\n", len(cfg.Ignore))

	return nil
}
