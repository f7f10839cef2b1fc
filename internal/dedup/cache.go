package dedup

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/Aman-CERP/amanmcp/internal/model"
	"github.com/Aman-CERP/amanmcp/internal/vectorstore"
)

// CachedRecaller wraps a Recaller with a ristretto cache keyed on a
// quantized embedding fingerprint, so a burst of near-identical
// `remember` calls doesn't re-scan the vector store for every one
// (spec.md §4.6, SPEC_FULL.md domain stack).
type CachedRecaller struct {
	inner Recaller
	cache *ristretto.Cache
}

// NewCachedRecaller builds a cache sized for maxEntries candidate
// lookups, each costing 1 unit.
func NewCachedRecaller(inner Recaller, maxEntries int64) (*CachedRecaller, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("dedup: failed to create candidate cache: %w", err)
	}
	return &CachedRecaller{inner: inner, cache: cache}, nil
}

// cacheKey renders a fingerprint string key: ristretto hashes string
// keys directly, so a composite struct key is avoided.
func cacheKey(v []float32, limit int, minSimilarity float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%d|", limit, int64(math.Round(minSimilarity*1e4)))
	for _, x := range v {
		fmt.Fprintf(&b, "%d,", int64(math.Round(float64(x)*1e4)))
	}
	return b.String()
}

func (c *CachedRecaller) Recall(ctx context.Context, queryVec []float32, limit int, minSimilarity float64, filters vectorstore.Filters) ([]model.RecallResult, error) {
	// Only the dedup gate's unfiltered lookups are cacheable — a
	// filtered recall has a different candidate universe.
	if len(filters.Tags) != 0 || filters.SourceInstance != "" || filters.SourceType != "" {
		return c.inner.Recall(ctx, queryVec, limit, minSimilarity, filters)
	}

	key := cacheKey(queryVec, limit, minSimilarity)
	if v, ok := c.cache.Get(key); ok {
		return v.([]model.RecallResult), nil
	}

	results, err := c.inner.Recall(ctx, queryVec, limit, minSimilarity, filters)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, results, 1)
	return results, nil
}
