// Package memory implements the service façade of spec.md §4.9: the
// single entry point (remember/recall/correct/forget/get/get_stats/
// recall_entity) that wires the embedding provider, vector/BM25/graph
// stores, dedup gate, extractors, and retrieval pipeline into one
// coherent operation surface.
package memory

import (
	"context"

	"github.com/Aman-CERP/amanmcp/internal/bm25store"
	"github.com/Aman-CERP/amanmcp/internal/dedup"
	"github.com/Aman-CERP/amanmcp/internal/embedprovider"
	"github.com/Aman-CERP/amanmcp/internal/extract"
	"github.com/Aman-CERP/amanmcp/internal/graphstore"
	"github.com/Aman-CERP/amanmcp/internal/model"
	"github.com/Aman-CERP/amanmcp/internal/retrieval"
	"github.com/Aman-CERP/amanmcp/internal/session"
	"github.com/Aman-CERP/amanmcp/internal/vectorstore"
)

// RememberRequest is remember's input (spec.md §4.9).
type RememberRequest struct {
	Content        string
	SourceType     model.SourceType
	SourceInstance string
	Context        string
	Tags           []string
	SkipDedup      bool
}

// RememberResult is remember's output.
type RememberResult struct {
	Success     bool
	MemoryID    string
	DuplicateOf string
}

// RecallRequest is recall's input.
type RecallRequest struct {
	Query          string
	Limit          int
	MinRelevance   float64
	Tags           []string
	GraphExpansion bool
}

// CorrectResult is correct's output.
type CorrectResult struct {
	Success  bool
	MemoryID string
}

// Stats is get_stats's output, extending the vector store's raw stats
// with the session chunk count. GetStats does not fill EntityCount; it
// is always zero.
type Stats struct {
	vectorstore.Stats
	EntityCount  int
	SessionChunks int
}

// Deps wires every collaborator the façade needs. Each field is the
// narrowest interface the façade actually calls, so tests can supply
// fakes without building real stores.
type Deps struct {
	Embedder    embedprovider.Embedder
	VectorStore vectorstore.VectorStore
	TextIndex   bm25store.Index   // nil disables BM25
	Graph       graphstore.Store  // nil disables graph features
	Dedup       *dedup.Service    // nil disables the dedup gate entirely
	Extractor   extract.Extractor // nil disables entity/relationship extraction
	Sessions    session.Store     // nil disables session search
	Pipeline    *retrieval.Pipeline
}

// entityExtractorAdapter narrows extract.Extractor to the name-only
// surface retrieval.Pipeline needs for query-time graph expansion.
type entityExtractorAdapter struct{ inner extract.Extractor }

func (a entityExtractorAdapter) ExtractNames(ctx context.Context, text string) ([]string, error) {
	entities, err := a.inner.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	return names, nil
}

// graphLookupAdapter narrows graphstore.Store to retrieval.Pipeline's
// GraphLookup capability.
type graphLookupAdapter struct{ inner graphstore.Store }

func (a graphLookupAdapter) MemoriesWithinHops(ctx context.Context, entityNames []string, maxHops int) ([]string, error) {
	return a.inner.FindConnected(ctx, entityNames, maxHops)
}

// vectorFetcherAdapter narrows vectorstore.VectorStore to
// retrieval.Pipeline's MemoryFetcher capability.
type vectorFetcherAdapter struct{ inner vectorstore.VectorStore }

func (a vectorFetcherAdapter) Get(ctx context.Context, id string) (*model.MemoryEntry, error) {
	return a.inner.Get(ctx, id)
}
