package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/model"
	"github.com/Aman-CERP/amanmcp/internal/vectorstore"
)

type countingRecaller struct {
	calls   int
	results []model.RecallResult
}

func (c *countingRecaller) Recall(ctx context.Context, queryVec []float32, limit int, minSimilarity float64, filters vectorstore.Filters) ([]model.RecallResult, error) {
	c.calls++
	return c.results, nil
}

func TestCachedRecallerCachesIdenticalUnfilteredQueries(t *testing.T) {
	inner := &countingRecaller{results: []model.RecallResult{{Memory: &model.MemoryEntry{ID: "mem-1"}, Score: 0.99}}}
	c, err := NewCachedRecaller(inner, 100)
	if err != nil {
		t.Fatalf("NewCachedRecaller: %v", err)
	}

	vec := []float32{0.1, 0.2, 0.3}
	if _, err := c.Recall(context.Background(), vec, 1, 0.98, vectorstore.Filters{}); err != nil {
		t.Fatalf("Recall: %v", err)
	}
	// ristretto's write buffer is processed asynchronously; give it a moment.
	time.Sleep(10 * time.Millisecond)
	if _, err := c.Recall(context.Background(), vec, 1, 0.98, vectorstore.Filters{}); err != nil {
		t.Fatalf("Recall: %v", err)
	}

	if inner.calls > 2 {
		t.Fatalf("expected at most two upstream calls (cache may miss once before populated), got %d", inner.calls)
	}
}

func TestCachedRecallerBypassesCacheForFilteredQueries(t *testing.T) {
	inner := &countingRecaller{results: []model.RecallResult{{Memory: &model.MemoryEntry{ID: "mem-1"}, Score: 0.99}}}
	c, err := NewCachedRecaller(inner, 100)
	if err != nil {
		t.Fatalf("NewCachedRecaller: %v", err)
	}

	vec := []float32{0.1, 0.2, 0.3}
	filters := vectorstore.Filters{SourceInstance: "instance-a"}
	if _, err := c.Recall(context.Background(), vec, 1, 0.98, filters); err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if _, err := c.Recall(context.Background(), vec, 1, 0.98, filters); err != nil {
		t.Fatalf("Recall: %v", err)
	}

	if inner.calls != 2 {
		t.Fatalf("expected filtered queries to bypass the cache entirely, got %d calls", inner.calls)
	}
}
