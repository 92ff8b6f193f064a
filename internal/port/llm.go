package port

import (
	"context"

	"knowflow/internal/domain"
)

// LLM represents a stateless chat model. The caller supplies the full context
// (system instruction, history and user content) on every call.
type LLM interface {
	// Chat returns the assistant reply to the given messages.
	Chat(ctx context.Context, messages []domain.Message) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
