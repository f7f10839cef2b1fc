// Package retrieval orchestrates the end-to-end recall pipeline of
// spec.md §4.5: embed, vector recall, BM25 merge, graph expansion,
// correction-chain filtering, rerank, truncate.
package retrieval

import (
	"context"
	"sort"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/bm25store"
	"github.com/Aman-CERP/amanmcp/internal/hybrid"
	"github.com/Aman-CERP/amanmcp/internal/model"
	"github.com/Aman-CERP/amanmcp/internal/vectorstore"
)

// DefaultCandidateMultiplier over-fetches each branch before merge so
// reranking has room to reorder before truncation (spec.md §4.4).
const DefaultCandidateMultiplier = 4

// DefaultLowSimilarityFloor bounds how low vector recall's
// min_similarity can go even when the caller's min_relevance is lower.
const DefaultLowSimilarityFloor = 0.15

// DefaultGraphHops is H in spec.md §4.5 step 4b.
const DefaultGraphHops = 2

// DefaultGraph2HopScore is the score floor for graph-only admissions.
const DefaultGraph2HopScore = 0.70

// Embedder is the capability the pipeline needs from the embedding
// provider: just turning text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EntityExtractor is the capability the pipeline needs from the
// query-time (hybrid) entity extractor.
type EntityExtractor interface {
	ExtractNames(ctx context.Context, text string) ([]string, error)
}

// GraphLookup is the capability the pipeline needs from the graph
// store: map named entities to memory ids within H hops.
type GraphLookup interface {
	MemoriesWithinHops(ctx context.Context, entityNames []string, maxHops int) ([]string, error)
}

// MemoryFetcher fetches a memory by id, used to materialize
// graph-only admissions that weren't already in the merged set.
type MemoryFetcher interface {
	Get(ctx context.Context, id string) (*model.MemoryEntry, error)
}

// SupersededChecker reports whether id is superseded by another id
// present in the candidate set (spec.md §4.9 correction chain).
type SupersededChecker interface {
	IsSupersededWithin(ctx context.Context, id string, candidateIDs []string) (bool, error)
}

// Config wires the pipeline's collaborators and weights.
type Config struct {
	Embedder            Embedder
	VectorStore         vectorstore.VectorStore
	TextIndex           bm25store.Index // nil disables BM25
	EntityExtractor     EntityExtractor // nil disables graph expansion
	GraphLookup         GraphLookup     // nil disables graph expansion
	MemoryFetcher       MemoryFetcher
	SupersededChecker   SupersededChecker // nil disables correction-chain filtering
	Reranker            hybrid.Reranker
	Weights             hybrid.Weights
	CandidateMultiplier int
	LowSimilarityFloor  float64
	GraphHops           int
	Graph2HopScore      float64
}

// Query is one recall invocation's inputs (spec.md §4.5).
type Query struct {
	Text           string
	Limit          int
	MinRelevance   float64
	Tags           []string
	GraphExpansion bool
}

// Pipeline runs the retrieval algorithm over a fixed set of collaborators.
type Pipeline struct {
	cfg Config
}

func New(cfg Config) *Pipeline {
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if cfg.LowSimilarityFloor <= 0 {
		cfg.LowSimilarityFloor = DefaultLowSimilarityFloor
	}
	if cfg.GraphHops <= 0 {
		cfg.GraphHops = DefaultGraphHops
	}
	if cfg.Graph2HopScore <= 0 {
		cfg.Graph2HopScore = DefaultGraph2HopScore
	}
	return &Pipeline{cfg: cfg}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Recall executes spec.md §4.5 end to end.
func (p *Pipeline) Recall(ctx context.Context, q Query) ([]model.RecallResult, error) {
	start := time.Now()

	// Step 1: embed the query; on failure return the empty list.
	queryVec, err := p.cfg.Embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, nil
	}

	candidatePool := q.Limit * p.cfg.CandidateMultiplier
	minSimilarity := maxFloat(q.MinRelevance, p.cfg.LowSimilarityFloor)

	// Step 2: vector recall.
	vecResults, err := p.cfg.VectorStore.Recall(ctx, queryVec, candidatePool, minSimilarity, vectorstore.Filters{Tags: q.Tags})
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*model.RecallResult, len(vecResults))
	vectorScores := make(map[string]float64, len(vecResults))
	for _, r := range vecResults {
		rCopy := r
		merged[r.Memory.ID] = &rCopy
		vectorScores[r.Memory.ID] = r.Score
	}

	// Step 3: BM25 merge.
	textScores := make(map[string]float64)
	if p.cfg.TextIndex != nil {
		bm25Results, err := p.cfg.TextIndex.Search(ctx, q.Text, candidatePool)
		if err != nil {
			return nil, err
		}
		for _, r := range bm25Results {
			textScores[r.ID] = bm25store.NormalizeScore(r.Rank)
		}
	}

	if len(textScores) > 0 {
		fused := hybrid.Merge(vectorScores, textScores, p.cfg.Weights)
		newMerged := make(map[string]*model.RecallResult, len(fused))
		for _, c := range fused {
			existing, inVector := merged[c.ID]
			var entry *model.MemoryEntry
			var method model.RetrievalMethod
			if inVector {
				entry = existing.Memory
			}
			if entry == nil && p.cfg.MemoryFetcher != nil {
				entry, _ = p.cfg.MemoryFetcher.Get(ctx, c.ID)
			}
			if entry == nil {
				continue
			}
			if c.InText {
				method = model.RetrievalHybrid
			} else {
				method = model.RetrievalVector
			}
			newMerged[c.ID] = &model.RecallResult{Memory: entry, Score: c.Score, RetrievalMethod: method}
		}
		merged = newMerged
	}

	// Step 4: graph expansion.
	if q.GraphExpansion && p.cfg.EntityExtractor != nil && p.cfg.GraphLookup != nil {
		if err := p.expandViaGraph(ctx, q, merged); err != nil {
			return nil, err
		}
	}

	// Step 5: correction-chain filtering.
	if p.cfg.SupersededChecker != nil {
		ids := make([]string, 0, len(merged))
		for id := range merged {
			ids = append(ids, id)
		}
		for id := range merged {
			superseded, err := p.cfg.SupersededChecker.IsSupersededWithin(ctx, id, ids)
			if err != nil {
				continue
			}
			if superseded {
				delete(merged, id)
			}
		}
	}

	results := make([]model.RecallResult, 0, len(merged))
	for _, r := range merged {
		results = append(results, *r)
	}

	// Step 6: rerank.
	if p.cfg.Reranker != nil {
		results = p.applyRerank(ctx, q.Text, results)
	} else {
		sortByScoreDesc(results)
	}

	// Step 7: truncate, stamp retrieval_time_ms.
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	elapsed := time.Since(start).Milliseconds()
	for i := range results {
		results[i].RetrievalTimeMS = elapsed
	}
	return results, nil
}

func (p *Pipeline) expandViaGraph(ctx context.Context, q Query, merged map[string]*model.RecallResult) error {
	entityNames, err := p.cfg.EntityExtractor.ExtractNames(ctx, q.Text)
	if err != nil || len(entityNames) == 0 {
		return nil
	}
	ids, err := p.cfg.GraphLookup.MemoriesWithinHops(ctx, entityNames, p.cfg.GraphHops)
	if err != nil {
		return nil
	}
	for _, id := range ids {
		if _, already := merged[id]; already {
			merged[id].RetrievalMethod = model.RetrievalHybrid
			continue
		}
		if p.cfg.Graph2HopScore < q.MinRelevance {
			continue
		}
		if p.cfg.MemoryFetcher == nil {
			continue
		}
		entry, err := p.cfg.MemoryFetcher.Get(ctx, id)
		if err != nil || entry == nil {
			continue
		}
		merged[id] = &model.RecallResult{Memory: entry, Score: p.cfg.Graph2HopScore, RetrievalMethod: model.RetrievalGraph}
	}
	return nil
}

func (p *Pipeline) applyRerank(ctx context.Context, query string, results []model.RecallResult) []model.RecallResult {
	cands := make([]hybrid.RerankCandidate, len(results))
	for i, r := range results {
		cands[i] = hybrid.RerankCandidate{
			ID:            r.Memory.ID,
			Content:       r.Memory.Content,
			Tags:          r.Memory.Tags,
			CreatedAt:     r.Memory.CreatedAt,
			OriginalScore: r.Score,
		}
	}
	reranked, err := p.cfg.Reranker.Rerank(ctx, query, cands, 0)
	if err != nil {
		sortByScoreDesc(results)
		return results
	}

	byID := make(map[string]model.RecallResult, len(results))
	for _, r := range results {
		byID[r.Memory.ID] = r
	}
	out := make([]model.RecallResult, 0, len(reranked))
	for _, rr := range reranked {
		orig, ok := byID[rr.ID]
		if !ok {
			continue
		}
		orig.Score = rr.Score
		out = append(out, orig)
	}
	return out
}

func sortByScoreDesc(results []model.RecallResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
}
