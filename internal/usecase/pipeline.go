package usecase

import (
	"context"

	"knowflow/internal/adapter/memstore"
	"knowflow/internal/domain"
	"knowflow/internal/port"
)

// Pipeline is the surface a host (CLI, server) drives: ingest documents, run
// turns against the published index and manage sessions.
type Pipeline struct {
	ingest       *IngestUseCase
	conversation *ConversationUseCase
	sessions     *memstore.SessionStore
}

func NewPipeline(ingest *IngestUseCase, conversation *ConversationUseCase, sessions *memstore.SessionStore) *Pipeline {
	return &Pipeline{
		ingest:       ingest,
		conversation: conversation,
		sessions:     sessions,
	}
}

func (p *Pipeline) ProcessDocuments(ctx context.Context, uploads []domain.Upload, progress ProgressFunc) (*Snapshot, error) {
	return p.ingest.ProcessDocuments(ctx, uploads, progress)
}

// HandleTurn answers against the currently published retriever. Before the
// first successful ProcessDocuments it fails with a RetrievalError.
func (p *Pipeline) HandleTurn(ctx context.Context, sessionID, question string) (*domain.AnswerResult, error) {
	return p.conversation.HandleTurn(ctx, sessionID, question, p.ingest.Retriever())
}

func (p *Pipeline) HandleTurnWith(ctx context.Context, sessionID, question string, r port.Retriever) (*domain.AnswerResult, error) {
	return p.conversation.HandleTurn(ctx, sessionID, question, r)
}

// SessionHistory returns a copy of the session transcript.
func (p *Pipeline) SessionHistory(sessionID string) []domain.Turn {
	return p.sessions.Get(sessionID).Turns()
}

func (p *Pipeline) ClearSession(sessionID string) {
	p.sessions.Clear(sessionID)
}

func (p *Pipeline) ClearAllSessions() {
	p.sessions.ClearAll()
}

// Sessions lists known session ids in sorted order.
func (p *Pipeline) Sessions() []string {
	return p.sessions.IDs()
}

func (p *Pipeline) Snapshot() *Snapshot {
	return p.ingest.Current()
}
