package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/ragserve/internal/config"
	"github.com/nickcecere/ragserve/internal/ingest"
	"github.com/nickcecere/ragserve/internal/ui"
)

var (
	indexSeed  bool
	indexDocID string
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index documents for retrieval",
	Long: `Index documents in the specified directory (or a single file) for
semantic retrieval.

This command will:
1. Discover text documents under the path
2. Split documents into overlapping chunks
3. Generate embeddings for each chunk
4. Store the chunks in the configured vector store

Re-indexing a document replaces its previous chunks, so running index
twice never duplicates content.

Examples:
  # Index a documents directory
  ragserve index ./docs

  # Index a single file under a chosen document id
  ragserve index ./docs/handbook.txt --doc-id handbook

  # Load the bundled sample documents
  ragserve index --seed`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexSeed, "seed", false, "index the bundled sample documents")
	indexCmd.Flags().StringVar(&indexDocID, "doc-id", "", "document id when indexing a single file")
}

func runIndex(cmd *cobra.Command, args []string) error {
	if !indexSeed && len(args) == 0 {
		return fmt.Errorf("provide a path to index or use --seed")
	}

	cfg := config.Get()

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted")
		cancel()
	}()

	store, emb, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	log.Debug("Indexing",
		"backend", cfg.Store.Backend,
		"provider", emb.Provider(),
		"model", emb.ModelName(),
	)

	ing := ingest.New(store, cfg)

	var result ingest.Result
	switch {
	case indexSeed:
		result, err = ing.IndexDocuments(ctx, ingest.SeedDocuments())
	default:
		result, err = indexPathArg(ctx, ing, args[0])
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	fmt.Println(ui.Success.Render("Indexing complete"))
	fmt.Printf("  Documents: %d\n", result.Documents)
	fmt.Printf("  Chunks:    %d\n", result.Chunks)
	if result.SkippedFiles > 0 {
		fmt.Printf("  Skipped:   %d\n", result.SkippedFiles)
	}
	if result.Errors > 0 {
		fmt.Printf("  %s\n", ui.Warning.Render(fmt.Sprintf("Errors:    %d", result.Errors)))
	}
	fmt.Printf("  Duration:  %s\n", result.Duration.Round(time.Millisecond))

	return nil
}

// indexPathArg indexes a directory, or a single file when the argument
// is not a directory.
func indexPathArg(ctx context.Context, ing *ingest.Ingestor, path string) (ingest.Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("path does not exist: %w", err)
	}

	if info.IsDir() {
		return ing.IndexPath(ctx, path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("failed to read file: %w", err)
	}

	docID := indexDocID
	if docID == "" {
		docID = info.Name()
	}

	return ing.IndexDocuments(ctx, []ingest.Document{{
		DocID:   docID,
		Content: string(content),
		Metadata: map[string]any{
			"source_path": path,
			"file_hash":   ingest.HashContent(content),
		},
	}})
}
