package dedup

import (
	"context"
	"testing"

	"github.com/Aman-CERP/amanmcp/internal/model"
	"github.com/Aman-CERP/amanmcp/internal/vectorstore"
	"github.com/stretchr/testify/require"
)

func memEntry(id, content string) *model.MemoryEntry {
	return &model.MemoryEntry{ID: id, Content: content}
}

type fakeRecaller struct {
	results []model.RecallResult
}

func (f fakeRecaller) Recall(ctx context.Context, queryVec []float32, limit int, minSimilarity float64, filters vectorstore.Filters) ([]model.RecallResult, error) {
	var out []model.RecallResult
	for _, r := range f.results {
		if r.Score >= minSimilarity {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestIsDuplicateTrueAboveExactThreshold(t *testing.T) {
	recaller := fakeRecaller{results: []model.RecallResult{{Memory: memEntry("mem-1", "hello"), Score: 0.99}}}
	svc := New(recaller, DefaultThresholds())

	isDup, id, err := svc.IsDuplicate(context.Background(), []float32{1, 0, 0})
	require.NoError(t, err)
	require.True(t, isDup)
	require.Equal(t, "mem-1", id)
}

func TestIsDuplicateFalseWhenNoResultsAboveExact(t *testing.T) {
	recaller := fakeRecaller{results: []model.RecallResult{{Memory: memEntry("mem-1", "hello"), Score: 0.5}}}
	svc := New(recaller, DefaultThresholds())

	isDup, id, err := svc.IsDuplicate(context.Background(), []float32{1, 0, 0})
	require.NoError(t, err)
	require.False(t, isDup)
	require.Empty(t, id)
}

func TestFindSimilarUsesConfiguredNearThresholdByDefault(t *testing.T) {
	recaller := fakeRecaller{results: []model.RecallResult{
		{Memory: memEntry("mem-1", "hello"), Score: 0.95},
		{Memory: memEntry("mem-2", "world"), Score: 0.5},
	}}
	svc := New(recaller, DefaultThresholds())

	matches, err := svc.FindSimilar(context.Background(), []float32{1, 0, 0}, 0, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "mem-1", matches[0].ID)
}

func TestGetDuplicateReportClassifiesExactAndNear(t *testing.T) {
	longContent := ""
	for i := 0; i < 300; i++ {
		longContent += "x"
	}
	recaller := fakeRecaller{results: []model.RecallResult{{Memory: memEntry("mem-1", longContent), Score: 0.99}}}
	svc := New(recaller, DefaultThresholds())

	report, err := svc.GetDuplicateReport(context.Background(), []float32{1, 0, 0})
	require.NoError(t, err)
	require.True(t, report.IsDuplicate)
	require.True(t, report.IsNearDuplicate)
	require.NotNil(t, report.TopMatch)
	require.LessOrEqual(t, len([]rune(report.TopMatch.Preview)), topMatchPreviewChars+3)
	require.Len(t, report.Candidates, 1)
}

func TestGetDuplicateReportEmptyWhenNoCandidates(t *testing.T) {
	svc := New(fakeRecaller{}, DefaultThresholds())
	report, err := svc.GetDuplicateReport(context.Background(), []float32{1, 0, 0})
	require.NoError(t, err)
	require.False(t, report.IsDuplicate)
	require.False(t, report.IsNearDuplicate)
	require.Nil(t, report.TopMatch)
}

func TestTruncateAppendsEllipsisOnlyWhenCut(t *testing.T) {
	require.Equal(t, "short", truncate("short", 100))
	require.Equal(t, "ab...", truncate("abcdef", 2))
}
