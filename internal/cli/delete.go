package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/ragserve/internal/config"
	"github.com/nickcecere/ragserve/internal/ui"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <doc-id>",
	Short: "Remove a document from the index",
	Long: `Remove all chunks belonging to a document id from the vector store.

Examples:
  ragserve delete handbook
  ragserve delete faq_general`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	docID := args[0]
	cfg := config.Get()

	store, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.DeleteDocument(context.Background(), docID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if !deleted {
		fmt.Printf("No document found with id %q\n", docID)
		return nil
	}

	fmt.Println(ui.Success.Render(fmt.Sprintf("Deleted document %q", docID)))
	return nil
}
