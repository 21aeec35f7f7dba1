package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/ragserve/internal/config"
	"github.com/nickcecere/ragserve/internal/ui"
)

var statusJSON bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status and statistics",
	Long: `Display information about the vector store:
- Number of indexed chunks and documents
- Embedding dimension
- Store backend and location

Examples:
  # Show status
  ragserve status

  # Machine-readable output
  ragserve status --json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	store, emb, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get store stats: %w", err)
	}

	if statusJSON {
		return outputJSON(stats)
	}

	fmt.Println(ui.Header.Render("Index Status"))
	fmt.Println()

	location := cfg.Store.IndexPath
	if cfg.Store.Backend == "sqlite" {
		location = cfg.Store.DatabasePath
	}

	fmt.Printf("%s %s\n", ui.Highlight.Render("Backend: "), cfg.Store.Backend)
	fmt.Printf("%s %s\n", ui.Highlight.Render("Location:"), location)
	fmt.Println()

	if stats.TotalChunks == 0 {
		fmt.Println("The index is empty.")
		fmt.Println()
		fmt.Println("Run 'ragserve index [path]' or 'ragserve index --seed' to populate it.")
		return nil
	}

	fmt.Printf("  Chunks:    %d\n", stats.TotalChunks)
	fmt.Printf("  Documents: %d\n", stats.UniqueDocuments)
	fmt.Printf("  Dimension: %d\n", stats.EmbeddingDimension)
	fmt.Println()
	fmt.Printf("%s %s (%s)\n", ui.Dim.Render("Embeddings:"), emb.ModelName(), emb.Provider())

	return nil
}
