package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"knowflow/internal/bootstrap"
	"knowflow/internal/usecase"
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Build the document index and report statistics",
	Long: `Load, chunk and embed the documents under the specified path and report
what was indexed. The index lives in memory for the duration of the command;
set embedding.cache in the config to reuse vectors across runs.

Examples:
  knowflow index .              # Index current directory
  knowflow index ./report.pdf   # Index a single file`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	path, err := targetPath(args)
	if err != nil {
		return err
	}

	a, err := bootstrap.New(GetConfig(), GetRootDir(), nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning %s...\n", path)

	snap, err := a.Load(cmd.Context(), path, newProgressReporter(out))
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	cfg := GetConfig()
	fmt.Fprintf(out, "\nIndexing complete:\n")
	fmt.Fprintf(out, "  Files:        %d\n", snap.Stats.Files)
	fmt.Fprintf(out, "  Pages:        %d\n", snap.Stats.Pages)
	fmt.Fprintf(out, "  Chunks:       %d\n", snap.Stats.Chunks)
	fmt.Fprintf(out, "  Dimension:    %d (%s/%s)\n", snap.Stats.Dimension, cfg.Embedding.Provider, cfg.Embedding.Model)
	fmt.Fprintf(out, "  Took:         %s\n", formatDuration(snap.Stats.Duration))
	fmt.Fprintf(out, "  Fingerprint:  %s\n", snap.Fingerprint.Short())
	return nil
}

// newProgressReporter draws one bar per ingestion stage.
func newProgressReporter(w io.Writer) usecase.ProgressFunc {
	var (
		mu    sync.Mutex
		bar   *progressbar.ProgressBar
		stage string
		start time.Time
	)

	label := map[string]string{
		"load":  "Loading",
		"embed": "Embedding",
	}

	return func(p usecase.Progress) {
		mu.Lock()
		defer mu.Unlock()

		if p.Stage != stage {
			stage = p.Stage
			start = time.Now()
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", label[p.Stage])),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(w)
				}),
			)
		}

		_ = bar.Set(p.Done)

		if eta, ok := estimateRemaining(p.Done, p.Total, time.Since(start)); ok {
			bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", label[p.Stage], formatDuration(eta)))
		}
	}
}

// estimateRemaining extrapolates the time left from the rate so far.
func estimateRemaining(done, total int, elapsed time.Duration) (time.Duration, bool) {
	if done <= 0 || done >= total || elapsed <= 0 {
		return 0, false
	}
	rate := float64(done) / elapsed.Seconds()
	return time.Duration(float64(total-done) / rate * float64(time.Second)), true
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
