// Package dedup implements the semantic deduplication gate of
// spec.md §4.6: is_duplicate/find_similar/get_duplicate_report, all
// built on top of a vector store's Recall.
package dedup

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/amanmcp/internal/model"
	"github.com/Aman-CERP/amanmcp/internal/vectorstore"
)

// topMatchPreviewChars and candidatePreviewChars bound how much
// content a duplicate report echoes back to the caller.
const (
	topMatchPreviewChars  = 200
	candidatePreviewChars = 100
	maxCandidates         = 5
)

// Thresholds configures the exact/near duplicate boundaries
// (spec.md §4.6): near ≤ exact is enforced by memconfig.Validate.
type Thresholds struct {
	Exact float64
	Near  float64
}

// DefaultThresholds returns the spec's nominal defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Exact: 0.98, Near: 0.90}
}

// Recaller is the subset of vectorstore.VectorStore the dedup gate needs.
type Recaller interface {
	Recall(ctx context.Context, queryVec []float32, limit int, minSimilarity float64, filters vectorstore.Filters) ([]model.RecallResult, error)
}

// Service implements spec.md §4.6's three operations.
type Service struct {
	store      Recaller
	thresholds Thresholds
}

func New(store Recaller, thresholds Thresholds) *Service {
	return &Service{store: store, thresholds: thresholds}
}

// Match is one ranked duplicate candidate.
type Match struct {
	ID         string
	Similarity float64
	Preview    string
}

// IsDuplicate reports (true, existingID) iff vector recall at
// min_similarity = exact_threshold returns any result (spec.md §4.6).
func (s *Service) IsDuplicate(ctx context.Context, embedding []float32) (bool, string, error) {
	results, err := s.store.Recall(ctx, embedding, 1, s.thresholds.Exact, vectorstore.Filters{})
	if err != nil {
		return false, "", fmt.Errorf("dedup: recall failed: %w", err)
	}
	if len(results) == 0 {
		return false, "", nil
	}
	return true, results[0].Memory.ID, nil
}

// FindSimilar returns (id, similarity) pairs at or above threshold,
// or the configured near-threshold when threshold <= 0.
func (s *Service) FindSimilar(ctx context.Context, embedding []float32, threshold float64, limit int) ([]Match, error) {
	if threshold <= 0 {
		threshold = s.thresholds.Near
	}
	if limit <= 0 {
		limit = maxCandidates
	}
	results, err := s.store.Recall(ctx, embedding, limit, threshold, vectorstore.Filters{})
	if err != nil {
		return nil, fmt.Errorf("dedup: recall failed: %w", err)
	}
	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{ID: r.Memory.ID, Similarity: r.Score, Preview: truncate(r.Memory.Content, candidatePreviewChars)}
	}
	return matches, nil
}

// Report is the structured answer to get_duplicate_report.
type Report struct {
	IsDuplicate     bool
	IsNearDuplicate bool
	TopMatch        *Match
	Candidates      []Match
}

// GetDuplicateReport returns {is_duplicate, is_near_duplicate,
// top_match, candidates[0..5]} per spec.md §4.6.
func (s *Service) GetDuplicateReport(ctx context.Context, embedding []float32) (Report, error) {
	results, err := s.store.Recall(ctx, embedding, maxCandidates, s.thresholds.Near, vectorstore.Filters{})
	if err != nil {
		return Report{}, fmt.Errorf("dedup: recall failed: %w", err)
	}
	report := Report{}
	if len(results) == 0 {
		return report, nil
	}

	top := results[0]
	report.IsDuplicate = top.Score >= s.thresholds.Exact
	report.IsNearDuplicate = top.Score >= s.thresholds.Near
	report.TopMatch = &Match{ID: top.Memory.ID, Similarity: top.Score, Preview: truncate(top.Memory.Content, topMatchPreviewChars)}

	report.Candidates = make([]Match, 0, len(results))
	for _, r := range results {
		report.Candidates = append(report.Candidates, Match{
			ID: r.Memory.ID, Similarity: r.Score, Preview: truncate(r.Memory.Content, candidatePreviewChars),
		})
	}
	return report, nil
}

// truncate cuts s to at most n runes, appending an ellipsis when
// content was actually cut (matching the original deduplication
// report's preview semantics).
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
