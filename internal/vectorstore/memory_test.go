package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/model"
	"github.com/stretchr/testify/require"
)

func entryWithVec(id string, vec []float32) *model.MemoryEntry {
	return &model.MemoryEntry{
		ID:             id,
		Content:        "content for " + id,
		Embedding:      vec,
		SourceInstance: "test-instance",
		SourceType:     model.SourceUserExplicit,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
		Tags:           []string{"alpha"},
		Confidence:     1.0,
	}
}

func TestInMemoryStoreStoreAndGet(t *testing.T) {
	s := NewInMemoryStore(3)
	ctx := context.Background()

	e := entryWithVec("mem-1", []float32{1, 0, 0})
	require.NoError(t, s.Store(ctx, e))

	got, err := s.Get(ctx, "mem-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "content for mem-1", got.Content)
}

func TestInMemoryStoreDimensionMismatch(t *testing.T) {
	s := NewInMemoryStore(3)
	e := entryWithVec("mem-1", []float32{1, 0})
	err := s.Store(context.Background(), e)
	require.Error(t, err)
	var dimErr *ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
}

func TestInMemoryStoreDeleteThenGetReturnsNil(t *testing.T) {
	s := NewInMemoryStore(3)
	ctx := context.Background()
	require.NoError(t, s.Store(ctx, entryWithVec("mem-1", []float32{1, 0, 0})))

	ok, err := s.Delete(ctx, "mem-1")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, "mem-1")
	require.NoError(t, err)
	require.Nil(t, got)

	ok, err = s.Delete(ctx, "mem-1")
	require.NoError(t, err)
	require.False(t, ok, "deleting an already-deleted id reports no-op")
}

func TestInMemoryStoreUpsertClearsTombstone(t *testing.T) {
	s := NewInMemoryStore(3)
	ctx := context.Background()
	require.NoError(t, s.Store(ctx, entryWithVec("mem-1", []float32{1, 0, 0})))
	_, err := s.Delete(ctx, "mem-1")
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, entryWithVec("mem-1", []float32{0, 1, 0})))

	got, err := s.Get(ctx, "mem-1")
	require.NoError(t, err)
	require.NotNil(t, got, "upsert must resurrect a tombstoned id")
}

func TestInMemoryStoreRecallOrdersByScoreDescending(t *testing.T) {
	s := NewInMemoryStore(3)
	ctx := context.Background()
	require.NoError(t, s.Store(ctx, entryWithVec("close", []float32{1, 0, 0})))
	require.NoError(t, s.Store(ctx, entryWithVec("far", []float32{0, 1, 0})))
	require.NoError(t, s.Store(ctx, entryWithVec("mid", []float32{0.7, 0.7, 0})))

	results, err := s.Recall(ctx, []float32{1, 0, 0}, 10, 0, Filters{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "close", results[0].Memory.ID)
	require.Equal(t, "far", results[len(results)-1].Memory.ID)
}

func TestInMemoryStoreRecallAppliesMinSimilarityAndFilters(t *testing.T) {
	s := NewInMemoryStore(3)
	ctx := context.Background()
	e1 := entryWithVec("mem-1", []float32{1, 0, 0})
	e1.Tags = []string{"work"}
	e2 := entryWithVec("mem-2", []float32{1, 0, 0})
	e2.Tags = []string{"personal"}
	require.NoError(t, s.Store(ctx, e1))
	require.NoError(t, s.Store(ctx, e2))

	results, err := s.Recall(ctx, []float32{1, 0, 0}, 10, 0, Filters{Tags: []string{"work"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "mem-1", results[0].Memory.ID)

	none, err := s.Recall(ctx, []float32{1, 0, 0}, 10, 0.999999, Filters{})
	require.NoError(t, err)
	require.Len(t, none, 2)
}

func TestInMemoryStoreListPaginates(t *testing.T) {
	s := NewInMemoryStore(3)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Store(ctx, entryWithVec(id, []float32{1, 0, 0})))
	}

	page, err := s.List(ctx, 2, 1, Filters{})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "b", page[0].ID)
	require.Equal(t, "c", page[1].ID)
}

func TestInMemoryStoreCountRespectsFilters(t *testing.T) {
	s := NewInMemoryStore(3)
	ctx := context.Background()
	require.NoError(t, s.Store(ctx, entryWithVec("a", []float32{1, 0, 0})))
	e := entryWithVec("b", []float32{1, 0, 0})
	e.SourceType = model.SourceCorrection
	require.NoError(t, s.Store(ctx, e))

	n, err := s.Count(ctx, Filters{SourceType: model.SourceCorrection})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestInMemoryStoreGetStatsCountsCorrections(t *testing.T) {
	s := NewInMemoryStore(3)
	ctx := context.Background()
	require.NoError(t, s.Store(ctx, entryWithVec("a", []float32{1, 0, 0})))
	e := entryWithVec("b", []float32{1, 0, 0})
	e.SourceType = model.SourceCorrection
	require.NoError(t, s.Store(ctx, e))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Corrections)
	require.Equal(t, 2, stats.ByTag["alpha"])
}

func TestValidateIDShapeRejectsInjectionLikeInput(t *testing.T) {
	require.NoError(t, ValidateIDShape("mem-0123-abcDEF"))
	require.Error(t, ValidateIDShape("mem' OR '1'='1"))
	require.Error(t, ValidateIDShape(""))
	require.Error(t, ValidateIDShape("has space"))
}
