package bm25store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "bm25.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteIndexSearchFindsIndexedContent(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.IndexDoc(ctx, "mem-1", "Joe prefers TypeScript over JavaScript", []string{"preferences"}))
	require.NoError(t, idx.IndexDoc(ctx, "mem-2", "the weather today is sunny", nil))

	results, err := idx.Search(ctx, "TypeScript", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "mem-1", results[0].ID)
	require.Less(t, results[0].Rank, 0.0, "fts5 bm25() ranks better matches more negative")
}

func TestSQLiteIndexSearchMatchesOnTags(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.IndexDoc(ctx, "mem-1", "unrelated content", []string{"onboarding"}))

	results, err := idx.Search(ctx, "onboarding", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSQLiteIndexReplacesOnReindex(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.IndexDoc(ctx, "mem-1", "original content about bananas", nil))
	require.NoError(t, idx.IndexDoc(ctx, "mem-1", "updated content about rockets", nil))

	results, err := idx.Search(ctx, "bananas", 10)
	require.NoError(t, err)
	require.Empty(t, results)

	results, err = idx.Search(ctx, "rockets", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSQLiteIndexDeleteRemovesDoc(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.IndexDoc(ctx, "mem-1", "content about elephants", nil))
	require.NoError(t, idx.Delete(ctx, "mem-1"))

	results, err := idx.Search(ctx, "elephants", 10)
	require.NoError(t, err)
	require.Empty(t, results)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestSQLiteIndexCount(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.IndexDoc(ctx, "mem-1", "a", nil))
	require.NoError(t, idx.IndexDoc(ctx, "mem-2", "b", nil))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestSQLiteIndexMalformedQueryReturnsEmptyNotError(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.IndexDoc(ctx, "mem-1", "content", nil))

	results, err := idx.Search(ctx, `"unbalanced quote AND (`, 10)
	require.NoError(t, err)
	_ = results
}

func TestSQLiteIndexEmptyQueryReturnsEmpty(t *testing.T) {
	idx := newTestIndex(t)
	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestNormalizeScoreMapsToZeroOne(t *testing.T) {
	require.InDelta(t, 1.0, NormalizeScore(0), 1e-9)
	require.InDelta(t, 0.5, NormalizeScore(-1), 1e-9)
	require.InDelta(t, 0.5, NormalizeScore(1), 1e-9)
}

func TestSanitizeQueryStripsOperatorsAndQuotes(t *testing.T) {
	require.Equal(t, "hello world", SanitizeQuery(`"hello" world`))
	require.Equal(t, "foo bar", SanitizeQuery("foo^2 AND (bar)"))
	require.Equal(t, "", SanitizeQuery(`***"""`))
}
