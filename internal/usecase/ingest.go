package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"knowflow/internal/adapter/cache"
	"knowflow/internal/adapter/memstore"
	"knowflow/internal/adapter/retriever"
	"knowflow/internal/domain"
	"knowflow/internal/port"
)

const DefaultEmbedBatchSize = 64

// Snapshot is one published (index, retriever) pair and the upload set it
// was built from. Snapshots are never modified after publication.
type Snapshot struct {
	Fingerprint domain.Fingerprint
	Index       *memstore.VectorIndex
	Retriever   port.Retriever
	Stats       domain.IndexStats
}

// Progress reports ingestion advancement. Stage is one of "load", "embed".
type Progress struct {
	Stage string
	File  string
	Done  int
	Total int
}

type ProgressFunc func(Progress)

// IngestOptions configures the retriever built on top of each new index.
type IngestOptions struct {
	EmbedBatchSize int
	MMR            *retriever.MMRReranker
	FetchK         int
	MinScore       float64
	QueryCache     *cache.QueryCache
}

// IngestUseCase turns upload sets into published snapshots. Builds are
// serialised; readers load the current snapshot without locking.
type IngestUseCase struct {
	loader   port.DocumentLoader
	staging  port.Staging
	chunker  port.Chunker
	embedder port.Embedder
	opts     IngestOptions
	logger   *slog.Logger

	buildMu sync.Mutex
	current atomic.Pointer[Snapshot]
}

func NewIngestUseCase(
	loader port.DocumentLoader,
	staging port.Staging,
	chunker port.Chunker,
	embedder port.Embedder,
	opts IngestOptions,
	logger *slog.Logger,
) *IngestUseCase {
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		loader:   loader,
		staging:  staging,
		chunker:  chunker,
		embedder: embedder,
		opts:     opts,
		logger:   logger,
	}
}

// Current returns the published snapshot, or nil before the first build.
func (u *IngestUseCase) Current() *Snapshot {
	return u.current.Load()
}

// Retriever returns the published retriever, or nil before the first build.
func (u *IngestUseCase) Retriever() port.Retriever {
	snap := u.current.Load()
	if snap == nil {
		return nil
	}
	return snap.Retriever
}

// ProcessDocuments indexes uploads and publishes the result. When uploads
// match the published snapshot's fingerprint, that snapshot is returned as is.
// On failure the previously published snapshot stays current.
func (u *IngestUseCase) ProcessDocuments(ctx context.Context, uploads []domain.Upload, progress ProgressFunc) (*Snapshot, error) {
	if len(uploads) == 0 {
		return nil, domain.ErrNoDocuments
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	fp := domain.FingerprintOf(uploads)

	u.buildMu.Lock()
	defer u.buildMu.Unlock()

	if cur := u.current.Load(); cur != nil && cur.Fingerprint == fp {
		u.logger.Debug("document set unchanged, reusing index", "fingerprint", fp.Short())
		return cur, nil
	}

	start := time.Now()
	u.logger.Info("building index", "files", len(uploads), "fingerprint", fp.Short())

	docs, err := u.loadAll(ctx, uploads, progress)
	if err != nil {
		return nil, err
	}

	var chunks []domain.Chunk
	for _, doc := range docs {
		chunks = append(chunks, u.chunker.Chunk(doc)...)
	}

	vectors, err := u.embedAll(ctx, chunks, progress)
	if err != nil {
		return nil, err
	}

	dim := u.embedder.Dimension()
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}

	index, err := memstore.NewVectorIndex(dim, chunks, vectors)
	if err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			return nil, &domain.EmbeddingError{Err: err}
		}
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	snap := &Snapshot{
		Fingerprint: fp,
		Index:       index,
		Retriever:   u.newRetriever(index),
		Stats: domain.IndexStats{
			Files:     len(uploads),
			Pages:     len(docs),
			Chunks:    len(chunks),
			Dimension: dim,
			BuiltAt:   time.Now(),
			Duration:  time.Since(start),
		},
	}
	u.current.Store(snap)

	u.logger.Info("index published",
		"files", snap.Stats.Files,
		"pages", snap.Stats.Pages,
		"chunks", snap.Stats.Chunks,
		"duration", snap.Stats.Duration.Round(time.Millisecond))

	return snap, nil
}

func (u *IngestUseCase) newRetriever(index *memstore.VectorIndex) port.Retriever {
	var opts []retriever.Option
	if u.opts.MMR != nil {
		opts = append(opts, retriever.WithMMR(u.opts.MMR, u.opts.FetchK))
	}
	if u.opts.MinScore > 0 {
		opts = append(opts, retriever.WithMinScore(u.opts.MinScore))
	}

	sem := retriever.NewSemanticRetriever(index, u.embedder, opts...)
	if u.opts.QueryCache == nil {
		return sem
	}

	// The old snapshot's retriever keeps its generation and can no longer
	// touch the cache.
	gen := u.opts.QueryCache.Invalidate()
	return cache.NewCachedRetriever(sem, u.opts.QueryCache, gen)
}

func (u *IngestUseCase) loadAll(ctx context.Context, uploads []domain.Upload, progress ProgressFunc) ([]domain.Document, error) {
	var docs []domain.Document
	for i, up := range uploads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		loaded, err := u.loadOne(ctx, up)
		if err != nil {
			u.logger.Warn("document load failed", "file", up.Name, "error", err)
			return nil, &domain.DocumentLoadError{File: up.Name, Err: err}
		}
		docs = append(docs, loaded...)

		progress(Progress{Stage: "load", File: up.Name, Done: i + 1, Total: len(uploads)})
	}
	return docs, nil
}

// loadOne stages a single upload for the loader; the staged copy is released
// on every return path.
func (u *IngestUseCase) loadOne(ctx context.Context, up domain.Upload) (docs []domain.Document, err error) {
	path, release, err := u.staging.Stage(up.Name, up.Data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := release(); rerr != nil {
			u.logger.Warn("failed to remove staged file", "file", up.Name, "error", rerr)
		}
	}()

	return u.loader.Load(ctx, path, up.Name)
}

func (u *IngestUseCase) embedAll(ctx context.Context, chunks []domain.Chunk, progress ProgressFunc) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	batch := u.opts.EmbedBatchSize

	for i := 0; i < len(chunks); i += batch {
		end := min(i+batch, len(chunks))

		texts := make([]string, end-i)
		for j := range texts {
			texts[j] = chunks[i+j].Text
		}

		out, err := u.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, &domain.EmbeddingError{Err: err}
		}
		if len(out) != len(texts) {
			return nil, &domain.EmbeddingError{
				Err: fmt.Errorf("embedder returned %d vectors for %d texts", len(out), len(texts)),
			}
		}
		vectors = append(vectors, out...)

		progress(Progress{Stage: "embed", Done: end, Total: len(chunks)})
	}
	return vectors, nil
}
