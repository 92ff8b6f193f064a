package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"knowflow/internal/bootstrap"
	"knowflow/internal/domain"
	"knowflow/internal/usecase"
)

var (
	promptAnswer        bool
	promptContextualize bool
	promptQuery         string
)

var promptCmd = &cobra.Command{
	Use:   "prompt [path]",
	Short: "Print the prompts a question would be sent with",
	Long: `Render the messages the model would receive for a question, without calling
the model. Use it to tune prompt overrides in the config.

Use --contextualize for the follow-up rewriting prompt.
Use --answer for the grounded answering prompt with retrieved context.

Examples:
  knowflow prompt --contextualize -q "And its population?"
  knowflow prompt ./docs --answer -q "What is the capital of France?"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().BoolVar(&promptAnswer, "answer", false, "render the answering prompt")
	promptCmd.Flags().BoolVar(&promptContextualize, "contextualize", false, "render the contextualize prompt")
	promptCmd.Flags().StringVarP(&promptQuery, "query", "q", "", "question to render the prompt for (required)")
	promptCmd.MarkFlagRequired("query")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	if !promptAnswer && !promptContextualize {
		return fmt.Errorf("must specify either --answer or --contextualize")
	}
	if promptAnswer && promptContextualize {
		return fmt.Errorf("cannot specify both --answer and --contextualize")
	}

	cfg := GetConfig()
	prompts, err := usecase.NewPrompts(cfg.Prompts.Contextualize, cfg.Prompts.Answer)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if promptContextualize {
		printMessages(out, []domain.Message{
			{Role: domain.RoleSystem, Content: prompts.Contextualize()},
			{Role: domain.RoleUser, Content: promptQuery},
		})
		return nil
	}

	path, err := targetPath(args)
	if err != nil {
		return err
	}

	a, err := bootstrap.New(cfg, GetRootDir(), nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Load(cmd.Context(), path, nil); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	hits, err := a.Retrieve.Retrieve(cmd.Context(), promptQuery, cfg.Retrieve.TopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	system, err := prompts.RenderAnswer(hits)
	if err != nil {
		return err
	}
	printMessages(out, []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: promptQuery},
	})
	return nil
}

func printMessages(out io.Writer, messages []domain.Message) {
	for _, m := range messages {
		fmt.Fprintf(out, "=== %s ===\n%s\n\n", m.Role, m.Content)
	}
}
