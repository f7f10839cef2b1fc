package embedprovider

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// CachedEmbedder wraps an Embedder with an LRU cache keyed on exact
// text and a singleflight group that collapses concurrent Embed calls
// for an identical string into one upstream request (SPEC_FULL.md
// domain stack: golang-lru/v2 + x/sync/singleflight).
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
	group singleflight.Group
}

// NewCachedEmbedder wraps inner with an LRU cache of the given size.
// size <= 0 is treated as 1 (a single-entry cache); in-flight
// duplicates are collapsed either way.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = 1
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedEmbedder{inner: inner, cache: cache}
}

var _ Embedder = (*CachedEmbedder)(nil)

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return append([]float32(nil), v...), nil
	}

	v, err, _ := c.group.Do(text, func() (any, error) {
		return c.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}

	vec := v.([]float32)
	c.cache.Add(text, append([]float32(nil), vec...))
	return append([]float32(nil), vec...), nil
}

// EmbedBatch bypasses the cache for now-uncached misses but still
// consults it per-text, falling back to the inner provider's batch
// call only for the texts not already cached.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = append([]float32(nil), v...)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	missed, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = missed[j]
		c.cache.Add(texts[idx], append([]float32(nil), missed[j]...))
	}
	return out, nil
}

func (c *CachedEmbedder) Dimensions() int               { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string              { return c.inner.ModelName() }
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }
func (c *CachedEmbedder) Close() error                   { return c.inner.Close() }
