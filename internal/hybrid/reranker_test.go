package hybrid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNoopRerankerPreservesOrderAndScores(t *testing.T) {
	r := NoopReranker{}
	cands := []RerankCandidate{{ID: "a", OriginalScore: 0.9}, {ID: "b", OriginalScore: 0.5}}
	out, err := r.Rerank(context.Background(), "q", cands, 0)
	require.NoError(t, err)
	require.Equal(t, []RerankResult{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.5}}, out)
}

func TestNoopRerankerRespectsTopK(t *testing.T) {
	r := NoopReranker{}
	cands := []RerankCandidate{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	out, err := r.Rerank(context.Background(), "q", cands, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestHeuristicRerankerBoostsRecentContent(t *testing.T) {
	r := NewHeuristicReranker(DefaultHeuristicConfig())
	r.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	cands := []RerankCandidate{
		{ID: "old", Content: "a long enough piece of content here", OriginalScore: 0.8, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "new", Content: "a long enough piece of content here", OriginalScore: 0.8, CreatedAt: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	out, err := r.Rerank(context.Background(), "irrelevant query", cands, 0)
	require.NoError(t, err)
	require.Equal(t, "new", out[0].ID)
}

func TestHeuristicRerankerTagMatchBoost(t *testing.T) {
	r := NewHeuristicReranker(DefaultHeuristicConfig())
	r.now = func() time.Time { return time.Now() }

	cands := []RerankCandidate{
		{ID: "tagged", Content: "some reasonably long content for scoring purposes", OriginalScore: 0.5, Tags: []string{"typescript"}},
		{ID: "untagged", Content: "some reasonably long content for scoring purposes", OriginalScore: 0.5},
	}
	out, err := r.Rerank(context.Background(), "typescript preferences", cands, 0)
	require.NoError(t, err)
	require.Equal(t, "tagged", out[0].ID)
}

func TestHeuristicRerankerPenalizesShortContent(t *testing.T) {
	r := NewHeuristicReranker(DefaultHeuristicConfig())
	cands := []RerankCandidate{
		{ID: "short", Content: "hi", OriginalScore: 0.5},
		{ID: "normal", Content: "a reasonably sized piece of content that is neither too short nor too long", OriginalScore: 0.5},
	}
	out, err := r.Rerank(context.Background(), "q", cands, 0)
	require.NoError(t, err)

	scores := map[string]float64{}
	for _, o := range out {
		scores[o.ID] = o.Score
	}
	require.Less(t, scores["short"], scores["normal"])
}

func TestCrossEncoderRerankerUnavailableWithNilScorer(t *testing.T) {
	r := NewCrossEncoderReranker(nil)
	require.False(t, r.Available(context.Background()))
}

func TestNewAutoFallsBackToHeuristicWhenCrossEncoderUnavailable(t *testing.T) {
	reranker := NewAuto(context.Background(), "auto", nil, DefaultHeuristicConfig())
	_, ok := reranker.(*HeuristicReranker)
	require.True(t, ok)
}

func TestNewAutoNoneIsNoop(t *testing.T) {
	reranker := NewAuto(context.Background(), "none", nil, DefaultHeuristicConfig())
	_, ok := reranker.(NoopReranker)
	require.True(t, ok)
}

func TestNewAutoPrefersAvailableCrossEncoder(t *testing.T) {
	ce := NewCrossEncoderReranker(func(ctx context.Context, query, content string) (float64, error) {
		return 1.0, nil
	})
	reranker := NewAuto(context.Background(), "auto", ce, DefaultHeuristicConfig())
	require.Same(t, ce, reranker)
}
