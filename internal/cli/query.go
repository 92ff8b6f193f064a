package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"knowflow/internal/bootstrap"
	"knowflow/internal/usecase"
)

var (
	queryText  string
	queryTopK  int
	queryJSON  bool
	queryNoMMR bool
)

var queryCmd = &cobra.Command{
	Use:   "query [path]",
	Short: "Search documents without generating an answer",
	Long: `Index the documents under path and print the passages most similar to the
query. Useful for checking what the answerer will see.

Examples:
  knowflow query ./docs -q "capital of France"
  knowflow query ./docs -q "population" --top-k 10 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryNoMMR, "no-mmr", false, "disable MMR reranking")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	path, err := targetPath(args)
	if err != nil {
		return err
	}

	cfg := *GetConfig()
	if queryNoMMR {
		cfg.Retrieve.MMREnabled = false
	}

	a, err := bootstrap.New(&cfg, GetRootDir(), nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Load(cmd.Context(), path, nil); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	topK := cfg.Retrieve.TopK
	if queryTopK > 0 {
		topK = queryTopK
	}

	chunks, err := a.Retrieve.Retrieve(cmd.Context(), queryText, topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	results := usecase.ToResults(chunks)

	out := cmd.OutOrStdout()
	if queryJSON {
		output, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintf(out, "Found %d results for: %s\n\n", len(results), queryText)
	printResults(out, results)
	return nil
}

func printResults(out io.Writer, results []usecase.ScoredChunkResult) {
	for i, r := range results {
		fmt.Fprintf(out, "--- [%d] %s (score: %.2f) ---\n", i+1, location(r), r.Score)
		fmt.Fprintln(out, truncate(r.Text, 500))
		fmt.Fprintln(out)
	}
}

func location(r usecase.ScoredChunkResult) string {
	// Only PDFs have more than one page.
	if strings.EqualFold(filepath.Ext(r.Source), ".pdf") {
		return fmt.Sprintf("%s p.%d", r.Source, r.Page)
	}
	return r.Source
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
