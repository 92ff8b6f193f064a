package usecase

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"knowflow/internal/adapter/chunker"
	"knowflow/internal/adapter/embedding"
	"knowflow/internal/adapter/fs"
	"knowflow/internal/adapter/loader"
	"knowflow/internal/adapter/memstore"
	"knowflow/internal/domain"
	"knowflow/internal/port"
)

const parisText = "Paris is the capital of France. It has a population of over 2 million."

// fakeLLM records every request and answers through respond.
type fakeLLM struct {
	mu      sync.Mutex
	calls   [][]domain.Message
	respond func(ctx context.Context, msgs []domain.Message) (string, error)
}

func (f *fakeLLM) Chat(ctx context.Context, msgs []domain.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]domain.Message(nil), msgs...))
	f.mu.Unlock()
	return f.respond(ctx, msgs)
}

func (f *fakeLLM) ModelName() string { return "fake" }

func (f *fakeLLM) Calls() [][]domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]domain.Message(nil), f.calls...)
}

func isContextualizeRequest(msgs []domain.Message) bool {
	return strings.Contains(msgs[0].Content, "standalone question")
}

// newParisLLM plays a model that rewrites "its" to Paris and answers from
// whatever context it is given.
func newParisLLM() *fakeLLM {
	return &fakeLLM{respond: func(_ context.Context, msgs []domain.Message) (string, error) {
		system, last := msgs[0].Content, msgs[len(msgs)-1].Content
		if isContextualizeRequest(msgs) {
			if strings.Contains(last, "its population") {
				return "What is the population of Paris?", nil
			}
			return last, nil
		}
		switch {
		case !strings.Contains(system, "Paris"):
			return "I don't know.", nil
		case strings.Contains(last, "capital"):
			return "Paris is the capital of France.", nil
		case strings.Contains(last, "population"):
			return "Paris has a population of over 2 million.", nil
		default:
			return "I don't know.", nil
		}
	}}
}

// countingEmbedder counts Embed calls on top of the hash embedder.
type countingEmbedder struct {
	*embedding.HashEmbedder
	calls atomic.Int32
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{HashEmbedder: embedding.NewHashEmbedder(128)}
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	return e.HashEmbedder.Embed(ctx, texts)
}

type testEnv struct {
	pipeline   *Pipeline
	ingest     *IngestUseCase
	sessions   *memstore.SessionStore
	stagingDir string
}

func newTestEnv(t *testing.T, llm port.LLM, emb port.Embedder, opts ...ConversationOption) *testEnv {
	t.Helper()
	stagingDir := t.TempDir()

	ingest := NewIngestUseCase(
		loader.NewDefault(),
		fs.NewTempStaging(stagingDir),
		chunker.NewRecursiveChunker(1000, 100),
		emb,
		IngestOptions{},
		nil,
	)
	sessions := memstore.NewSessionStore()
	prompts := DefaultPrompts()
	conv := NewConversationUseCase(
		sessions,
		NewContextualizer(llm, prompts, 0),
		NewAnswerer(llm, prompts, 4, 0),
		opts...,
	)

	return &testEnv{
		pipeline:   NewPipeline(ingest, conv, sessions),
		ingest:     ingest,
		sessions:   sessions,
		stagingDir: stagingDir,
	}
}

func parisUpload() domain.Upload {
	return domain.Upload{Name: "paris.txt", Data: []byte(parisText)}
}
