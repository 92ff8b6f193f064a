package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"knowflow/internal/bootstrap"
	"knowflow/internal/domain"
	"knowflow/internal/usecase"
)

var (
	chatSession    string
	chatNewSession bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [path]",
	Short: "Chat with your documents",
	Long: `Index the documents under path and start an interactive conversation.
Follow-up questions may refer to earlier turns of the same session.

Commands inside the chat:
  /history         show the current session transcript
  /sources         show the passages behind the last answer
  /clear           forget the current session
  /clear-all       forget every session
  /sessions        list sessions
  /session <id>    switch to another session
  /reload          re-scan path and rebuild the index if documents changed
  /quit            leave

Examples:
  knowflow chat ./docs
  knowflow chat ./docs --session research
  knowflow chat ./docs --new-session`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "session id (default from config)")
	chatCmd.Flags().BoolVar(&chatNewSession, "new-session", false, "start a session with a fresh random id")
}

func runChat(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning %s...\n", path)
	snap, err := a.Load(cmd.Context(), path, newProgressReporter(out))
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	fmt.Fprintf(out, "Indexed %d files (%d chunks) in %s\n\n", snap.Stats.Files, snap.Stats.Chunks, formatDuration(snap.Stats.Duration))

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	session := chatSession
	switch {
	case chatNewSession:
		session = uuid.NewString()
	case session == "":
		session = cfg.Chat.DefaultSession
	}

	repl := &chatREPL{
		pipeline: a.Pipeline,
		session:  session,
		in:       cmd.InOrStdin(),
		out:      out,
		reload: func(ctx context.Context) (*usecase.Snapshot, error) {
			return a.Load(ctx, path, nil)
		},
		interrupts: interrupts,
	}
	// Interrupts are handled per turn, so the session outlives the first Ctrl-C.
	return repl.run(context.WithoutCancel(cmd.Context()))
}

var (
	promptColor    = color.New(color.FgGreen, color.Bold)
	assistantColor = color.New(color.FgCyan)
	noticeColor    = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
	faintColor     = color.New(color.Faint)
)

type chatREPL struct {
	pipeline *usecase.Pipeline
	session  string
	in       io.Reader
	out      io.Writer
	reload   func(ctx context.Context) (*usecase.Snapshot, error)

	// interrupts cancels the turn in flight, or leaves the chat when idle.
	interrupts <-chan os.Signal

	last *domain.AnswerResult
}

// run reads questions line by line until EOF, /quit, an idle interrupt or
// ctx is done.
func (r *chatREPL) run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	noticeColor.Fprintf(r.out, "Session %q. Type /help for commands.\n", r.session)
	for {
		promptColor.Fprintf(r.out, "%s> ", r.session)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case <-r.interrupts:
			fmt.Fprintln(r.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}

		res, err := r.turn(ctx, line)
		if err != nil {
			errorColor.Fprintln(r.out, describeError(err))
			continue
		}
		r.last = res
		assistantColor.Fprintln(r.out, res.Text)
		if res.StandaloneQuery != line {
			faintColor.Fprintf(r.out, "(searched for: %s)\n", res.StandaloneQuery)
		}
		fmt.Fprintln(r.out)
	}
}

// turn answers one question. An interrupt cancels only this turn.
func (r *chatREPL) turn(ctx context.Context, question string) (*domain.AnswerResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-r.interrupts:
			cancel()
		case <-done:
		}
	}()

	return r.pipeline.HandleTurn(ctx, r.session, question)
}

// command handles a slash command and reports whether the REPL should exit.
func (r *chatREPL) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, "/history /sources /clear /clear-all /sessions /session <id> /reload /quit")
	case "/history":
		turns := r.pipeline.SessionHistory(r.session)
		if len(turns) == 0 {
			noticeColor.Fprintln(r.out, "No history yet.")
		}
		for _, t := range turns {
			c := promptColor
			if t.Role == domain.RoleAssistant {
				c = assistantColor
			}
			c.Fprintf(r.out, "%-9s ", t.Role+":")
			fmt.Fprintln(r.out, t.Text)
		}
	case "/sources":
		if r.last == nil || len(r.last.Sources) == 0 {
			noticeColor.Fprintln(r.out, "No sources for the last answer.")
			break
		}
		printResults(r.out, usecase.ToResults(r.last.Sources))
	case "/clear":
		r.pipeline.ClearSession(r.session)
		r.last = nil
		noticeColor.Fprintf(r.out, "Cleared session %q.\n", r.session)
	case "/clear-all":
		r.pipeline.ClearAllSessions()
		r.last = nil
		noticeColor.Fprintln(r.out, "Cleared all sessions.")
	case "/sessions":
		ids := r.pipeline.Sessions()
		if len(ids) == 0 {
			noticeColor.Fprintln(r.out, "No sessions yet.")
		}
		for _, id := range ids {
			marker := " "
			if id == r.session {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %s (%d turns)\n", marker, id, len(r.pipeline.SessionHistory(id)))
		}
	case "/session":
		if arg == "" {
			errorColor.Fprintln(r.out, "usage: /session <id>")
			break
		}
		r.session = arg
		r.last = nil
		noticeColor.Fprintf(r.out, "Switched to session %q.\n", r.session)
	case "/reload":
		if r.reload == nil {
			break
		}
		before := r.pipeline.Snapshot()
		snap, err := r.reload(ctx)
		if err != nil {
			errorColor.Fprintln(r.out, describeError(err))
			break
		}
		if snap == before {
			noticeColor.Fprintln(r.out, "Documents unchanged.")
			break
		}
		noticeColor.Fprintf(r.out, "Reindexed %d files (%d chunks).\n", snap.Stats.Files, snap.Stats.Chunks)
	default:
		errorColor.Fprintf(r.out, "unknown command %s (try /help)\n", name)
	}
	return false
}

// describeError turns a pipeline failure into a one-line message for the user.
func describeError(err error) string {
	var (
		loadErr *domain.DocumentLoadError
		embErr  *domain.EmbeddingError
		genErr  *domain.GenerationError
		retrErr *domain.RetrievalError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return "Interrupted."
	case errors.Is(err, domain.ErrIndexNotReady):
		return "No documents indexed yet. Use /reload."
	case errors.Is(err, domain.ErrIndexEmpty):
		return "The documents contain no readable text."
	case errors.Is(err, domain.ErrInvalidInput):
		return "Please enter a question."
	case errors.As(err, &loadErr):
		return fmt.Sprintf("Could not read %s: %v", loadErr.File, loadErr.Err)
	case errors.As(err, &genErr):
		return fmt.Sprintf("The language model failed (%s): %v", genErr.Stage, genErr.Err)
	case errors.As(err, &retrErr):
		return fmt.Sprintf("Search failed: %v", retrErr.Err)
	case errors.As(err, &embErr):
		return fmt.Sprintf("The embedding service failed: %v", embErr.Err)
	default:
		return err.Error()
	}
}
