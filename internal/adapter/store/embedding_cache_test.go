package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls [][]string
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.calls = append(e.calls, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *countingEmbedder) Dimension() int    { return 2 }
func (e *countingEmbedder) ModelName() string { return "counting" }

func openTestCache(t *testing.T) *EmbeddingCache {
	t.Helper()
	cache, err := OpenEmbeddingCache(filepath.Join(t.TempDir(), "cache", "embeddings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestCachingEmbedderOnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewCachingEmbedder(inner, openTestCache(t))
	ctx := context.Background()

	first, err := e.Embed(ctx, []string{"a", "bb"})
	require.NoError(t, err)

	second, err := e.Embed(ctx, []string{"bb", "ccc", "a"})
	require.NoError(t, err)

	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"a", "bb"}, inner.calls[0])
	assert.Equal(t, []string{"ccc"}, inner.calls[1])

	assert.Equal(t, first[1], second[0])
	assert.Equal(t, []float32{3, 1}, second[1])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, "counting", e.ModelName())
	assert.Equal(t, 2, e.Dimension())
}

func TestCachingEmbedderPropagatesErrors(t *testing.T) {
	cache := openTestCache(t)
	boom := errors.New("boom")
	e := NewCachingEmbedder(&countingEmbedder{err: boom}, cache)

	_, err := e.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Len())
}

func TestEmbeddingCacheKeyedByModel(t *testing.T) {
	cache := openTestCache(t)
	require.NoError(t, cache.Store("m1", []string{"hello"}, [][]float32{{1, 2}}))

	hit, err := cache.Lookup("m1", []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, hit[0])

	miss, err := cache.Lookup("m2", []string{"hello"})
	require.NoError(t, err)
	assert.Nil(t, miss[0])

	assert.Error(t, cache.Store("m1", []string{"a", "b"}, [][]float32{{1}}))
}

func TestEmbeddingCacheSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.db")

	cache, err := OpenEmbeddingCache(path)
	require.NoError(t, err)
	require.NoError(t, cache.Store("m", []string{"x"}, [][]float32{{0.5}}))
	require.NoError(t, cache.Close())

	reopened, err := OpenEmbeddingCache(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Lookup("m", []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, got[0])
	assert.Equal(t, 1, reopened.Len())
}
