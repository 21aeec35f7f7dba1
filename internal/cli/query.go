package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/ragserve/internal/config"
	"github.com/nickcecere/ragserve/internal/retrieval"
	"github.com/nickcecere/ragserve/internal/ui"
)

var (
	queryTopK      int
	queryThreshold float64
	queryLanguage  string
	queryJSON      bool
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question against the indexed documents",
	Long: `Retrieve the document chunks most relevant to a question and print
an answer-ready context with sources and a confidence estimate.

Examples:
  # Basic query
  ragserve query "how much is the admission fee"

  # Retrieve more chunks
  ragserve query "hostel facilities" --top-k 10

  # Raise the relevance bar
  ragserve query "scholarships" --threshold 0.5

  # Machine-readable output
  ragserve query "college timings" --json`,
	Args: cobra.ExactArgs(1),
	RunE: runQueryCmd,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of chunks to retrieve")
	queryCmd.Flags().Float64VarP(&queryThreshold, "threshold", "t", 0, "minimum similarity score (0-1)")
	queryCmd.Flags().StringVarP(&queryLanguage, "language", "l", "", "query language hint")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the result as JSON")
}

// runQuery is a convenience wrapper used when a question is passed to the
// root command directly.
func runQuery(cmd *cobra.Command, args []string) error {
	if topK, _ := cmd.Flags().GetInt("top-k"); topK > 0 {
		queryTopK = topK
	}
	if threshold, _ := cmd.Flags().GetFloat64("threshold"); threshold > 0 {
		queryThreshold = threshold
	}
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		queryJSON = true
	}
	return runQueryCmd(cmd, args)
}

func runQueryCmd(cmd *cobra.Command, args []string) error {
	question := args[0]
	cfg := config.Get()

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted")
		cancel()
	}()

	store, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	retriever := retrieval.New(store, cfg)
	result := retriever.Query(ctx, question, retrieval.QueryOptions{
		TopK:           queryTopK,
		ScoreThreshold: queryThreshold,
		Language:       queryLanguage,
	})
	if ctx.Err() != nil {
		return nil
	}

	if queryJSON {
		return outputJSON(result)
	}

	displayResult(result)
	return nil
}

// displayResult renders a retrieval result for the terminal.
func displayResult(result retrieval.Result) {
	rendered, err := renderMarkdown(result.Answer)
	if err != nil {
		// Fallback to raw output if rendering fails
		fmt.Println(result.Answer)
	} else {
		fmt.Print(rendered)
	}

	fmt.Println(ui.HorizontalRule(60))
	fmt.Printf("%s %s\n", ui.Dim.Render("Confidence:"), ui.FormatConfidence(result.Confidence))

	if len(result.Sources) > 0 {
		fmt.Println()
		fmt.Println(ui.Dim.Render("Sources:"))
		for i, s := range result.Sources {
			fmt.Printf("  %s %s\n",
				ui.Citation.Render(fmt.Sprintf("[%d]", i+1)),
				ui.SourceRef.Render(s),
			)
		}
	}

	if len(result.RetrievedChunks) > 0 {
		fmt.Println()
		fmt.Println(ui.ResultHeader.Render("Retrieved context"))
		for _, preview := range result.RetrievedChunks {
			fmt.Println(ui.ResultContent.Render(preview))
		}
	}
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

// outputJSON prints any value as indented JSON on stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Error("Failed to encode JSON", "error", err)
		return err
	}
	return nil
}
