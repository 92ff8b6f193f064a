package usecase

import (
	"context"
	"strings"

	"knowflow/internal/domain"
	"knowflow/internal/port"
)

// Contextualizer rewrites a follow-up question into one that stands alone.
// It reads history but never mutates it.
type Contextualizer struct {
	llm           port.LLM
	prompts       *Prompts
	historyWindow int
}

// NewContextualizer creates a contextualizer. historyWindow limits how many of
// the most recent turns are sent; 0 sends all of them.
func NewContextualizer(llm port.LLM, prompts *Prompts, historyWindow int) *Contextualizer {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Contextualizer{
		llm:           llm,
		prompts:       prompts,
		historyWindow: historyWindow,
	}
}

func (c *Contextualizer) Contextualize(ctx context.Context, history []domain.Turn, question string) (string, error) {
	// Nothing to resolve against.
	if len(history) == 0 {
		return question, nil
	}

	messages := make([]domain.Message, 0, len(history)+2)
	messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: c.prompts.Contextualize()})
	messages = appendHistory(messages, history, c.historyWindow)
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: question})

	out, err := c.llm.Chat(ctx, messages)
	if err != nil {
		return "", &domain.GenerationError{Stage: StageContextualize, Err: err}
	}

	standalone := strings.TrimSpace(out)
	if standalone == "" {
		return "", &domain.GenerationError{Stage: StageContextualize, Err: domain.ErrEmptyGeneration}
	}
	return standalone, nil
}

func appendHistory(messages []domain.Message, history []domain.Turn, window int) []domain.Message {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	for _, turn := range history {
		messages = append(messages, turn.Message())
	}
	return messages
}
