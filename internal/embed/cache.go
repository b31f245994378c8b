package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the embedding cache capacity when none is configured.
const DefaultCacheSize = 2048

// Cached wraps an Embedder with an in-process LRU keyed by content hash, so
// re-adding or re-searching the same text never pays for a second request.
type Cached struct {
	inner Embedder
	lru   *lru.Cache[string, []float32]
}

// NewCached builds the caching wrapper. size <= 0 selects DefaultCacheSize.
func NewCached(inner Embedder, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embed cache: %w", err)
	}
	return &Cached{inner: inner, lru: c}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if vec, ok := c.lru.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, vec)
	return vec, nil
}

func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if vec, ok := c.lru.Get(cacheKey(t)); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		i := missingIdx[j]
		out[i] = vec
		c.lru.Add(cacheKey(texts[i]), vec)
	}
	return out, nil
}

func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Len reports how many embeddings are currently cached.
func (c *Cached) Len() int { return c.lru.Len() }

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}
