package hybrid

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
)

// RerankCandidate is one row entering the reranking stage: enough of
// the memory to compute the heuristic boost (spec.md §4.4) without the
// reranker needing to reach back into a store.
type RerankCandidate struct {
	ID            string
	Content       string
	Tags          []string
	CreatedAt     time.Time
	OriginalScore float64
	originalIndex int
}

// RerankResult is the reranker's verdict for one candidate, mirroring
// the teacher's search.RerankResult shape (Index/Score/Document).
type RerankResult struct {
	ID    string
	Score float64
}

// Reranker mirrors the teacher's search.Reranker interface: score and
// reorder candidates by relevance, with an Available/Close lifecycle
// so a caller can ask for the best reranker it can currently use.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate, topK int) ([]RerankResult, error)
	Available(ctx context.Context) bool
	Close() error
}

// NoopReranker returns candidates unchanged, truncated to topK.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, candidates []RerankCandidate, topK int) ([]RerankResult, error) {
	out := make([]RerankResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, RerankResult{ID: c.ID, Score: c.OriginalScore})
	}
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

func (NoopReranker) Available(context.Context) bool { return true }
func (NoopReranker) Close() error                   { return nil }

var _ Reranker = NoopReranker{}

// HeuristicConfig parameterizes HeuristicReranker per spec.md §4.4.
type HeuristicConfig struct {
	DecayDays float64
	TagWeight float64
	MinChars  int
	MaxChars  int
}

// DefaultHeuristicConfig returns the spec's nominal constants.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{DecayDays: 30, TagWeight: 0.15, MinChars: 20, MaxChars: 2000}
}

// HeuristicReranker boosts original scores with recency, tag-match,
// and length signals, grounded on the teacher's additive-boost shape
// in search.Reranker (NoOpReranker) generalized to spec.md §4.4's
// exact formula.
type HeuristicReranker struct {
	cfg HeuristicConfig
	now func() time.Time
}

func NewHeuristicReranker(cfg HeuristicConfig) *HeuristicReranker {
	return &HeuristicReranker{cfg: cfg, now: time.Now}
}

func (h *HeuristicReranker) Rerank(_ context.Context, query string, candidates []RerankCandidate, topK int) ([]RerankResult, error) {
	queryTerms := tokenizeLower(query)
	now := h.now()

	type scored struct {
		result RerankResult
		index  int
	}
	ranked := make([]scored, len(candidates))
	for i, c := range candidates {
		boost := 0.0

		if !c.CreatedAt.IsZero() {
			ageDays := now.Sub(c.CreatedAt).Hours() / 24
			if ageDays < 0 {
				ageDays = 0
			}
			decay := h.cfg.DecayDays
			if decay <= 0 {
				decay = DefaultHeuristicConfig().DecayDays
			}
			boost += math.Exp(-ageDays / decay)
		}

		for _, tag := range c.Tags {
			tagLower := strings.ToLower(tag)
			for _, term := range queryTerms {
				if term == tagLower {
					boost += h.cfg.TagWeight
				}
			}
		}

		n := len(c.Content)
		if n < h.cfg.MinChars {
			boost -= 0.05
		} else if n > h.cfg.MaxChars {
			boost -= 0.03
		}

		final := c.OriginalScore * (1 + boost)
		ranked[i] = scored{result: RerankResult{ID: c.ID, Score: final}, index: i}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].result.Score > ranked[j].result.Score
	})

	out := make([]RerankResult, len(ranked))
	for i, r := range ranked {
		out[i] = r.result
	}
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

func (h *HeuristicReranker) Available(context.Context) bool { return true }
func (h *HeuristicReranker) Close() error                   { return nil }

var _ Reranker = (*HeuristicReranker)(nil)

func tokenizeLower(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9')
	})
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

// CrossEncoderScoreFunc scores a single (query, content) pair with a
// learned model, replacing the candidate's original score.
type CrossEncoderScoreFunc func(ctx context.Context, query, content string) (float64, error)

// CrossEncoderReranker wraps an external scoring function. Available
// reports false when no scorer was wired, letting callers fall back
// to the heuristic reranker under "auto" mode (spec.md §4.4).
type CrossEncoderReranker struct {
	score CrossEncoderScoreFunc
}

func NewCrossEncoderReranker(score CrossEncoderScoreFunc) *CrossEncoderReranker {
	return &CrossEncoderReranker{score: score}
}

func (c *CrossEncoderReranker) Rerank(ctx context.Context, query string, candidates []RerankCandidate, topK int) ([]RerankResult, error) {
	out := make([]RerankResult, len(candidates))
	for i, cand := range candidates {
		s, err := c.score(ctx, query, cand.Content)
		if err != nil {
			return nil, err
		}
		out[i] = RerankResult{ID: cand.ID, Score: s}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

func (c *CrossEncoderReranker) Available(context.Context) bool { return c.score != nil }
func (c *CrossEncoderReranker) Close() error                   { return nil }

var _ Reranker = (*CrossEncoderReranker)(nil)

// NewAuto picks cross-encoder if available, else heuristic; "none"
// picks Noop (spec.md §4.4's mode table).
func NewAuto(ctx context.Context, mode string, crossEncoder *CrossEncoderReranker, heuristicCfg HeuristicConfig) Reranker {
	switch mode {
	case "none":
		return NoopReranker{}
	case "heuristic":
		return NewHeuristicReranker(heuristicCfg)
	case "cross_encoder":
		if crossEncoder != nil && crossEncoder.Available(ctx) {
			return crossEncoder
		}
		return NewHeuristicReranker(heuristicCfg)
	default: // "auto"
		if crossEncoder != nil && crossEncoder.Available(ctx) {
			return crossEncoder
		}
		return NewHeuristicReranker(heuristicCfg)
	}
}
