// Package bootstrap builds the document pipeline from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"knowflow/config"
	"knowflow/internal/adapter/cache"
	"knowflow/internal/adapter/chunker"
	"knowflow/internal/adapter/embedding"
	"knowflow/internal/adapter/fs"
	"knowflow/internal/adapter/llm"
	"knowflow/internal/adapter/loader"
	"knowflow/internal/adapter/memstore"
	"knowflow/internal/adapter/retriever"
	"knowflow/internal/adapter/store"
	"knowflow/internal/domain"
	"knowflow/internal/port"
	"knowflow/internal/usecase"
)

// App holds the components a command runs against.
type App struct {
	Ingest   *usecase.IngestUseCase
	Retrieve *usecase.RetrieveUseCase
	// Pipeline is nil when the app was built without a model.
	Pipeline *usecase.Pipeline

	cfg     *config.Config
	logger  *slog.Logger
	walker  *fs.Walker
	closers []func() error
}

// New wires the pipeline. dir is where the embedding cache lives. gen may be
// nil for callers that never generate.
func New(cfg *config.Config, dir string, gen port.LLM, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger}

	emb, err := NewEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	if cfg.Embedding.Cache && cfg.Embedding.Provider != "hash" {
		ec, err := store.OpenEmbeddingCache(config.EmbeddingCachePath(dir))
		if err != nil {
			return nil, fmt.Errorf("failed to open embedding cache: %w", err)
		}
		a.closers = append(a.closers, ec.Close)
		emb = store.NewCachingEmbedder(emb, ec)
	}

	opts := usecase.IngestOptions{
		EmbedBatchSize: cfg.Embedding.BatchSize,
		MinScore:       cfg.Retrieve.MinScoreThreshold,
	}
	if cfg.Retrieve.MMREnabled {
		opts.MMR = retriever.NewMMRReranker(cfg.Retrieve.MMRLambda, cfg.Retrieve.MMRDedup)
		opts.FetchK = cfg.Retrieve.FetchK
	}
	if cfg.Retrieve.CacheSize > 0 {
		opts.QueryCache = cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL)
	}

	a.walker = fs.NewWalker(cfg.Index.Includes, cfg.Index.Excludes)
	a.Ingest = usecase.NewIngestUseCase(
		loader.NewDefault(),
		fs.NewTempStaging(cfg.Index.TempDir),
		chunker.NewRecursiveChunker(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap),
		emb,
		opts,
		logger,
	)
	a.Retrieve = usecase.NewRetrieveUseCase(a.Ingest)

	if gen != nil {
		prompts, err := usecase.NewPrompts(cfg.Prompts.Contextualize, cfg.Prompts.Answer)
		if err != nil {
			a.Close()
			return nil, err
		}
		sessions := memstore.NewSessionStore()
		conv := usecase.NewConversationUseCase(
			sessions,
			usecase.NewContextualizer(gen, prompts, cfg.Chat.HistoryWindow),
			usecase.NewAnswerer(gen, prompts, cfg.Retrieve.TopK, cfg.Chat.HistoryWindow),
			usecase.WithTurnTimeout(cfg.Chat.TurnTimeout),
			usecase.WithLogger(logger),
		)
		a.Pipeline = usecase.NewPipeline(a.Ingest, conv, sessions)
	}

	return a, nil
}

func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// Collect walks path and reads every matching document.
func (a *App) Collect(path string) ([]domain.Upload, error) {
	files, err := a.walker.Walk(path)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w under %s (includes: %v)", domain.ErrNoDocuments, path, a.cfg.Index.Includes)
	}
	return fs.ReadUploads(files)
}

// Load collects and indexes the documents under path.
func (a *App) Load(ctx context.Context, path string, progress usecase.ProgressFunc) (*usecase.Snapshot, error) {
	uploads, err := a.Collect(path)
	if err != nil {
		return nil, err
	}
	return a.Ingest.ProcessDocuments(ctx, uploads, progress)
}

// NewEmbedder returns the embedder selected by embedding.provider.
func NewEmbedder(cfg *config.Config) (port.Embedder, error) {
	ec := cfg.Embedding
	opts := embedding.Options{
		BatchSize:         ec.BatchSize,
		Timeout:           ec.Timeout,
		RequestsPerSecond: ec.RequestsPerSecond,
	}

	keyEnv := func(def string) string {
		if ec.APIKeyEnv != "" {
			return ec.APIKeyEnv
		}
		return def
	}

	switch ec.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(keyEnv("OPENAI_API_KEY"), ec.Model, opts)
	case "deepseek":
		return embedding.NewDeepSeekEmbedder(keyEnv("DEEPSEEK_API_KEY"), ec.Model, opts)
	case "jina":
		return embedding.NewJinaEmbedder(keyEnv("JINA_API_KEY"), ec.Model, opts)
	case "ollama":
		return embedding.NewOllamaEmbedder(ec.Model, ec.BaseURL, opts)
	case "compatible":
		return embedding.NewOpenAICompatibleEmbedder(keyEnv("EMBEDDING_API_KEY"), ec.Model, ec.BaseURL, opts)
	case "hash":
		return embedding.NewHashEmbedder(ec.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", ec.Provider)
	}
}

// NewLLM returns the chat client selected by llm.provider.
func NewLLM(cfg *config.Config) (port.LLM, error) {
	lc := cfg.LLM
	return llm.New(lc.Provider, lc.Model, llm.Options{
		BaseURL:           lc.BaseURL,
		APIKeyEnv:         lc.APIKeyEnv,
		Temperature:       lc.Temperature,
		MaxTokens:         lc.MaxTokens,
		Timeout:           lc.Timeout,
		RequestsPerSecond: lc.RequestsPerSecond,
	})
}
