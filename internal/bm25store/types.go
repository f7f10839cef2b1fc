// Package bm25store implements the inverted full-text index of
// spec.md §4.3: index/delete/search/count over (content || tags),
// scored by BM25, backed by a SQLite FTS5 virtual table.
package bm25store

import "context"

// Result is one hit of a BM25 search: Rank is the engine's signed
// rank (more negative = stronger match), matching spec.md §4.3's
// contract so callers can apply the 1/(1+|rank|) normalization
// themselves when merging with vector scores.
type Result struct {
	ID   string
	Rank float64
}

// Index is the capability interface the BM25 store satisfies.
type Index interface {
	IndexDoc(ctx context.Context, id, content string, tags []string) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// NormalizeScore maps an engine rank into [0,1] per spec.md §4.3.
func NormalizeScore(rank float64) float64 {
	if rank < 0 {
		rank = -rank
	}
	return 1.0 / (1.0 + rank)
}
