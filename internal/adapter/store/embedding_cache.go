package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"knowflow/internal/port"
)

// CurrentSchemaVersion is bumped whenever the stored vector encoding changes.
// A cache written with another version is dropped on open.
const CurrentSchemaVersion = 1

var (
	bucketEmbeddings = []byte("embeddings")
	bucketMeta       = []byte("meta")
	keySchemaVersion = []byte("schema_version")
)

// EmbeddingCache memoizes chunk embeddings on disk, keyed by model and text.
// It never stores chunks or sessions; a hit only skips a remote embed call.
type EmbeddingCache struct {
	db *bbolt.DB
}

func OpenEmbeddingCache(path string) (*EmbeddingCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &EmbeddingCache{db: db}, nil
}

func migrate(db *bbolt.DB) error {
	return db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketMeta, err)
		}

		version := 0
		if data := meta.Get(keySchemaVersion); data != nil {
			_ = json.Unmarshal(data, &version)
		}

		if version != CurrentSchemaVersion {
			if tx.Bucket(bucketEmbeddings) != nil {
				if err := tx.DeleteBucket(bucketEmbeddings); err != nil {
					return fmt.Errorf("failed to reset embeddings: %w", err)
				}
			}
			data, _ := json.Marshal(CurrentSchemaVersion)
			if err := meta.Put(keySchemaVersion, data); err != nil {
				return err
			}
		}

		if _, err := tx.CreateBucketIfNotExists(bucketEmbeddings); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketEmbeddings, err)
		}
		return nil
	})
}

func (c *EmbeddingCache) Close() error {
	return c.db.Close()
}

func cacheKey(model, text string) []byte {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return sum[:]
}

// Lookup returns the cached vectors for texts. Missing entries are nil.
func (c *EmbeddingCache) Lookup(model string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		for i, text := range texts {
			data := b.Get(cacheKey(model, text))
			if data == nil {
				continue
			}
			var vec []float32
			if err := json.Unmarshal(data, &vec); err != nil {
				continue // Treat corrupted entries as misses
			}
			out[i] = vec
		}
		return nil
	})
	return out, err
}

func (c *EmbeddingCache) Store(model string, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("texts and vectors length mismatch: %d != %d", len(texts), len(vectors))
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		for i, text := range texts {
			data, err := json.Marshal(vectors[i])
			if err != nil {
				return err
			}
			if err := b.Put(cacheKey(model, text), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *EmbeddingCache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n
}

// CachingEmbedder wraps an Embedder and only forwards texts the cache misses.
type CachingEmbedder struct {
	inner port.Embedder
	cache *EmbeddingCache
}

func NewCachingEmbedder(inner port.Embedder, cache *EmbeddingCache) *CachingEmbedder {
	return &CachingEmbedder{inner: inner, cache: cache}
}

func (e *CachingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := e.inner.ModelName()

	vectors, err := e.cache.Lookup(model, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding cache lookup: %w", err)
	}

	var missIdx []int
	var missTexts []string
	for i, vec := range vectors {
		if vec == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missTexts))
	}
	for j, i := range missIdx {
		vectors[i] = fresh[j]
	}

	if err := e.cache.Store(model, missTexts, fresh); err != nil {
		return nil, fmt.Errorf("embedding cache store: %w", err)
	}
	return vectors, nil
}

func (e *CachingEmbedder) Dimension() int {
	return e.inner.Dimension()
}

func (e *CachingEmbedder) ModelName() string {
	return e.inner.ModelName()
}
