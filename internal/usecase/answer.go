package usecase

import (
	"context"
	"errors"
	"strings"

	"knowflow/internal/adapter/retriever"
	"knowflow/internal/domain"
	"knowflow/internal/port"
)

const (
	StageContextualize = "contextualize"
	StageAnswer        = "answer"
)

// Answerer retrieves context for a standalone query and asks the model for a
// grounded answer in a single call.
type Answerer struct {
	llm           port.LLM
	prompts       *Prompts
	topK          int
	historyWindow int
}

func NewAnswerer(llm port.LLM, prompts *Prompts, topK, historyWindow int) *Answerer {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if topK <= 0 {
		topK = retriever.DefaultTopK
	}
	return &Answerer{
		llm:           llm,
		prompts:       prompts,
		topK:          topK,
		historyWindow: historyWindow,
	}
}

func (a *Answerer) Answer(ctx context.Context, query string, history []domain.Turn, r port.Retriever) (*domain.AnswerResult, error) {
	if r == nil {
		return nil, &domain.RetrievalError{Err: domain.ErrIndexNotReady}
	}

	hits, err := r.Search(ctx, query, a.topK)
	if err != nil {
		return nil, asRetrievalError(err)
	}

	system, err := a.prompts.RenderAnswer(hits)
	if err != nil {
		return nil, &domain.GenerationError{Stage: StageAnswer, Err: err}
	}

	messages := make([]domain.Message, 0, len(history)+2)
	messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: system})
	messages = appendHistory(messages, history, a.historyWindow)
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: query})

	out, err := a.llm.Chat(ctx, messages)
	if err != nil {
		return nil, &domain.GenerationError{Stage: StageAnswer, Err: err}
	}

	text := strings.TrimSpace(out)
	if text == "" {
		return nil, &domain.GenerationError{Stage: StageAnswer, Err: domain.ErrEmptyGeneration}
	}

	return &domain.AnswerResult{
		Text:            text,
		StandaloneQuery: query,
		Sources:         hits,
	}, nil
}

// asRetrievalError wraps any retriever failure, including a query embedding
// error, so a turn fails with RetrievalError while the cause stays reachable.
func asRetrievalError(err error) error {
	var retErr *domain.RetrievalError
	if errors.As(err, &retErr) {
		return err
	}
	return &domain.RetrievalError{Err: err}
}
