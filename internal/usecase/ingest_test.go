package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowflow/internal/adapter/cache"
	"knowflow/internal/adapter/chunker"
	"knowflow/internal/adapter/fs"
	"knowflow/internal/adapter/loader"
	"knowflow/internal/adapter/loader/loadertest"
	"knowflow/internal/domain"
)

func TestProcessDocumentsPublishesSnapshot(t *testing.T) {
	env := newTestEnv(t, newParisLLM(), newCountingEmbedder())
	assert.Nil(t, env.ingest.Current())
	assert.Nil(t, env.ingest.Retriever())

	var stages []string
	snap, err := env.pipeline.ProcessDocuments(context.Background(), []domain.Upload{parisUpload()}, func(p Progress) {
		stages = append(stages, p.Stage)
	})
	require.NoError(t, err)

	assert.Same(t, snap, env.pipeline.Snapshot())
	assert.Equal(t, 1, snap.Stats.Files)
	assert.Equal(t, 1, snap.Stats.Pages)
	assert.Equal(t, 1, snap.Stats.Chunks)
	assert.Equal(t, 128, snap.Stats.Dimension)
	assert.Equal(t, parisText, snap.Index.Chunk(0).Text)
	assert.Equal(t, []string{"load", "embed"}, stages)
	assert.Equal(t, domain.FingerprintOf([]domain.Upload{parisUpload()}), snap.Fingerprint)
}

func TestProcessDocumentsPDFUpload(t *testing.T) {
	env := newTestEnv(t, newParisLLM(), newCountingEmbedder())
	ctx := context.Background()

	upload := domain.Upload{Name: "paris.pdf", Data: loadertest.PDF(
		"Paris is the capital of France.",
		"It has a population of over 2 million.",
	)}

	snap, err := env.pipeline.ProcessDocuments(ctx, []domain.Upload{upload}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Stats.Files)
	assert.Equal(t, 2, snap.Stats.Pages)
	require.Equal(t, 2, snap.Stats.Chunks)

	for i := range 2 {
		c := snap.Index.Chunk(i)
		assert.Equal(t, "paris.pdf", c.Source)
		assert.Equal(t, i+1, c.Page)
		assert.Equal(t, fmt.Sprintf("paris.pdf#p%d", i+1), c.DocID)
	}

	res, err := env.pipeline.HandleTurn(ctx, "pdf", "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.", res.Text)
	require.NotEmpty(t, res.Sources)
	assert.Equal(t, "paris.pdf", res.Sources[0].Chunk.Source)

	entries, err := os.ReadDir(env.stagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessDocumentsFingerprintCache(t *testing.T) {
	emb := newCountingEmbedder()
	env := newTestEnv(t, newParisLLM(), emb)
	ctx := context.Background()

	other := domain.Upload{Name: "rivers.txt", Data: []byte("The Seine flows through Paris.")}

	first, err := env.pipeline.ProcessDocuments(ctx, []domain.Upload{parisUpload(), other}, nil)
	require.NoError(t, err)
	calls := emb.calls.Load()

	// Same bytes in another order: nothing is re-embedded.
	second, err := env.pipeline.ProcessDocuments(ctx, []domain.Upload{other, parisUpload()}, nil)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Same(t, first.Retriever, second.Retriever)
	assert.Equal(t, calls, emb.calls.Load())

	// A removed file yields a new index.
	third, err := env.pipeline.ProcessDocuments(ctx, []domain.Upload{parisUpload()}, nil)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Greater(t, emb.calls.Load(), calls)

	// Same name and size, different content.
	changed := parisUpload()
	changed.Data = []byte("Rome is the capital of Italy. It has a population of over 2 million!!!")
	require.Equal(t, parisUpload().Size(), changed.Size())
	fourth, err := env.pipeline.ProcessDocuments(ctx, []domain.Upload{changed}, nil)
	require.NoError(t, err)
	assert.NotSame(t, third, fourth)
	assert.NotEqual(t, third.Fingerprint, fourth.Fingerprint)
}

func TestProcessDocumentsNoUploads(t *testing.T) {
	env := newTestEnv(t, newParisLLM(), newCountingEmbedder())

	_, err := env.pipeline.ProcessDocuments(context.Background(), nil, nil)
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
}

func TestProcessDocumentsLoadFailure(t *testing.T) {
	env := newTestEnv(t, newParisLLM(), newCountingEmbedder())
	ctx := context.Background()

	good, err := env.pipeline.ProcessDocuments(ctx, []domain.Upload{parisUpload()}, nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		upload domain.Upload
	}{
		{"unsupported format", domain.Upload{Name: "sheet.xlsx", Data: []byte("x")}},
		{"corrupt pdf", domain.Upload{Name: "broken.pdf", Data: []byte("%PDF-1.4 garbage")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.pipeline.ProcessDocuments(ctx, []domain.Upload{parisUpload(), tc.upload}, nil)

			var loadErr *domain.DocumentLoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, tc.upload.Name, loadErr.File)

			assert.Same(t, good, env.pipeline.Snapshot(), "previous index stays published")

			entries, err := os.ReadDir(env.stagingDir)
			require.NoError(t, err)
			assert.Empty(t, entries, "staged files are released")
		})
	}
}

type brokenEmbedder struct {
	*countingEmbedder
	vectors [][]float32
	err     error
}

func (e *brokenEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return e.vectors, e.err
}

func TestProcessDocumentsEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	two := []domain.Upload{parisUpload(), {Name: "b.txt", Data: []byte("Bananas are yellow.")}}

	t.Run("embedder error", func(t *testing.T) {
		env := newTestEnv(t, newParisLLM(), &brokenEmbedder{countingEmbedder: newCountingEmbedder(), err: errors.New("model offline")})

		_, err := env.pipeline.ProcessDocuments(ctx, two, nil)
		var embErr *domain.EmbeddingError
		require.ErrorAs(t, err, &embErr)
		assert.Nil(t, env.pipeline.Snapshot())
	})

	t.Run("wrong vector count", func(t *testing.T) {
		env := newTestEnv(t, newParisLLM(), &brokenEmbedder{countingEmbedder: newCountingEmbedder(), vectors: [][]float32{{1}}})

		_, err := env.pipeline.ProcessDocuments(ctx, two, nil)
		var embErr *domain.EmbeddingError
		assert.ErrorAs(t, err, &embErr)
	})

	t.Run("inconsistent dimensions", func(t *testing.T) {
		env := newTestEnv(t, newParisLLM(), &brokenEmbedder{countingEmbedder: newCountingEmbedder(), vectors: [][]float32{{1, 0}, {1}}})

		_, err := env.pipeline.ProcessDocuments(ctx, two, nil)
		var embErr *domain.EmbeddingError
		require.ErrorAs(t, err, &embErr)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})
}

func TestProcessDocumentsInvalidatesQueryCache(t *testing.T) {
	qc := cache.NewQueryCache(10, time.Minute)
	ingest := NewIngestUseCase(
		loader.NewDefault(),
		fs.NewTempStaging(t.TempDir()),
		chunker.NewRecursiveChunker(1000, 100),
		newCountingEmbedder(),
		IngestOptions{QueryCache: qc},
		nil,
	)
	ctx := context.Background()

	first, err := ingest.ProcessDocuments(ctx, []domain.Upload{parisUpload()}, nil)
	require.NoError(t, err)
	_, err = first.Retriever.Search(ctx, "capital", 4)
	require.NoError(t, err)
	assert.Equal(t, 1, qc.Size())

	second, err := ingest.ProcessDocuments(ctx, []domain.Upload{{Name: "rome.txt", Data: []byte("Rome is the capital of Italy.")}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, qc.Size())

	// The stale retriever still answers from its own index but cannot fill the cache.
	old, err := first.Retriever.Search(ctx, "capital", 4)
	require.NoError(t, err)
	assert.Equal(t, parisText, old[0].Chunk.Text)
	assert.Equal(t, 0, qc.Size())

	fresh, err := second.Retriever.Search(ctx, "capital", 4)
	require.NoError(t, err)
	assert.Contains(t, fresh[0].Chunk.Text, "Rome")
}

func TestProcessDocumentsConcurrentReaders(t *testing.T) {
	env := newTestEnv(t, newParisLLM(), newCountingEmbedder())
	ctx := context.Background()

	sets := [][]domain.Upload{
		{parisUpload()},
		{{Name: "rome.txt", Data: []byte("Rome is the capital of Italy.")}},
	}

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.pipeline.ProcessDocuments(ctx, sets[i%2], nil)
			assert.NoError(t, err)
		}(i)
	}
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if snap := env.pipeline.Snapshot(); snap != nil {
				assert.Equal(t, snap.Stats.Chunks, snap.Index.Len())
			}
		}()
	}
	wg.Wait()

	require.NotNil(t, env.pipeline.Snapshot())
}
