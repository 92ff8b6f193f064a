package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"knowflow/internal/bootstrap"
	"knowflow/internal/domain"
	"knowflow/internal/usecase"
)

var (
	askQuestion string
	askSession  string
	askJSON     bool
)

var askCmd = &cobra.Command{
	Use:   "ask [path]",
	Short: "Answer a single question about the documents",
	Long: `Index the documents under path and answer one question, printing the
answer followed by the passages it was grounded on.

Examples:
  knowflow ask ./docs -q "What is the capital of France?"
  knowflow ask ./report.pdf -q "Summarise the findings" --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askQuestion, "question", "q", "", "question to ask (required)")
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "session id (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.MarkFlagRequired("question")
}

func runAsk(cmd *cobra.Command, args []string) error {
	path, err := targetPath(args)
	if err != nil {
		return err
	}

	cfg := GetConfig()
	gen, err := bootstrap.NewLLM(cfg)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	a, err := bootstrap.New(cfg, GetRootDir(), gen, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Load(cmd.Context(), path, nil); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	session := askSession
	if session == "" {
		session = cfg.Chat.DefaultSession
	}

	res, err := a.Pipeline.HandleTurn(cmd.Context(), session, askQuestion)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if askJSON {
		output, err := json.MarshalIndent(askOutput{
			Answer:          res.Text,
			StandaloneQuery: res.StandaloneQuery,
			Sources:         usecase.ToResults(res.Sources),
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	printAnswer(out, res)
	return nil
}

type askOutput struct {
	Answer          string                      `json:"answer"`
	StandaloneQuery string                      `json:"standalone_query"`
	Sources         []usecase.ScoredChunkResult `json:"sources"`
}

func printAnswer(out io.Writer, res *domain.AnswerResult) {
	fmt.Fprintln(out, res.Text)
	if len(res.Sources) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Sources:")
	for i, r := range usecase.ToResults(res.Sources) {
		fmt.Fprintf(out, "  [%d] %s (score: %.2f)\n", i+1, location(r), r.Score)
	}
}
