package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"knowflow/internal/adapter/memstore"
	"knowflow/internal/domain"
	"knowflow/internal/port"
)

// TurnState is the phase of one conversational turn.
type TurnState int

const (
	AwaitingInput TurnState = iota
	Contextualizing
	RetrievingAndAnswering
	AppendingHistory
)

func (s TurnState) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case Contextualizing:
		return "contextualizing"
	case RetrievingAndAnswering:
		return "retrieving_and_answering"
	case AppendingHistory:
		return "appending_history"
	default:
		return "unknown"
	}
}

// StateObserver is told about every state a turn enters.
type StateObserver func(sessionID string, state TurnState)

// ConversationUseCase runs turns: contextualize, answer, then record the
// exchange. History is only touched after both stages succeed.
type ConversationUseCase struct {
	sessions       *memstore.SessionStore
	contextualizer *Contextualizer
	answerer       *Answerer
	turnTimeout    time.Duration
	observer       StateObserver
	logger         *slog.Logger
}

type ConversationOption func(*ConversationUseCase)

// WithTurnTimeout bounds each turn. Zero disables the bound.
func WithTurnTimeout(d time.Duration) ConversationOption {
	return func(u *ConversationUseCase) { u.turnTimeout = d }
}

func WithStateObserver(o StateObserver) ConversationOption {
	return func(u *ConversationUseCase) { u.observer = o }
}

func WithLogger(l *slog.Logger) ConversationOption {
	return func(u *ConversationUseCase) { u.logger = l }
}

func NewConversationUseCase(
	sessions *memstore.SessionStore,
	contextualizer *Contextualizer,
	answerer *Answerer,
	opts ...ConversationOption,
) *ConversationUseCase {
	u := &ConversationUseCase{
		sessions:       sessions,
		contextualizer: contextualizer,
		answerer:       answerer,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// HandleTurn answers question within session sessionID using r. Turns of one
// session run one at a time in submission order; other sessions are not
// blocked.
func (u *ConversationUseCase) HandleTurn(ctx context.Context, sessionID, question string, r port.Retriever) (*domain.AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrInvalidInput
	}
	if r == nil {
		return nil, &domain.RetrievalError{Err: domain.ErrIndexNotReady}
	}

	history := u.sessions.Get(sessionID)
	unlock := history.LockTurn()
	defer unlock()

	if u.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.turnTimeout)
		defer cancel()
	}

	defer u.enter(sessionID, AwaitingInput)
	turns := history.Turns()

	u.enter(sessionID, Contextualizing)
	standalone, err := await(ctx, StageContextualize, func(ctx context.Context) (string, error) {
		return u.contextualizer.Contextualize(ctx, turns, question)
	})
	if err != nil {
		u.logger.Warn("turn failed", "session", sessionID, "stage", StageContextualize, "error", err)
		return nil, err
	}
	u.logger.Debug("standalone query", "session", sessionID, "query", standalone)

	u.enter(sessionID, RetrievingAndAnswering)
	result, err := await(ctx, StageAnswer, func(ctx context.Context) (*domain.AnswerResult, error) {
		return u.answerer.Answer(ctx, standalone, turns, r)
	})
	if err != nil {
		u.logger.Warn("turn failed", "session", sessionID, "stage", StageAnswer, "error", err)
		return nil, err
	}

	u.enter(sessionID, AppendingHistory)
	history.Append(domain.UserTurn(question), domain.AssistantTurn(result.Text))

	return result, nil
}

func (u *ConversationUseCase) enter(sessionID string, state TurnState) {
	u.logger.Debug("turn state", "session", sessionID, "state", state.String())
	if u.observer != nil {
		u.observer(sessionID, state)
	}
}

// await runs fn and gives up once ctx is done, even if fn ignores ctx. An
// expired or cancelled turn becomes a GenerationError for stage.
func await[T any](ctx context.Context, stage string, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}

	done := make(chan outcome, 1)
	go func() {
		val, err := fn(ctx)
		done <- outcome{val, err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.err != nil && ctx.Err() != nil && isContextErr(out.err) {
			return zero, &domain.GenerationError{Stage: stage, Err: ctx.Err()}
		}
		return out.val, out.err
	case <-ctx.Done():
		return zero, &domain.GenerationError{Stage: stage, Err: ctx.Err()}
	}
}

func isContextErr(err error) bool {
	var genErr *domain.GenerationError
	if errors.As(err, &genErr) {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
