package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/Aman-CERP/amanmcp/internal/bm25store"
	"github.com/Aman-CERP/amanmcp/internal/dedup"
	"github.com/Aman-CERP/amanmcp/internal/embedprovider"
	"github.com/Aman-CERP/amanmcp/internal/extract"
	"github.com/Aman-CERP/amanmcp/internal/graphstore"
	"github.com/Aman-CERP/amanmcp/internal/hybrid"
	"github.com/Aman-CERP/amanmcp/internal/memconfig"
	"github.com/Aman-CERP/amanmcp/internal/retrieval"
	"github.com/Aman-CERP/amanmcp/internal/session"
	"github.com/Aman-CERP/amanmcp/internal/vectorstore"
)

// process-wide singleton, built lazily on first use (spec.md §9
// "global state"). Get holds instanceMu for the whole check-and-build;
// there is no lock-free fast path, so every call takes the mutex.
var (
	instanceMu sync.Mutex
	instance   *Service
)

// Get returns the process-wide Service, building it from cfg on first
// call. Subsequent calls ignore cfg and return the existing instance.
func Get(cfg *memconfig.Config) (*Service, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		return instance, nil
	}

	svc, err := build(cfg)
	if err != nil {
		return nil, err
	}
	instance = svc
	return instance, nil
}

// Reset drops the singleton so the next Get builds a fresh Service. It
// closes none of the dropped Service's stores or embedding provider.
func Reset() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = nil
}

func build(cfg *memconfig.Config) (*Service, error) {
	embedder, err := embedprovider.New(embedprovider.Config{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		APIKey:     cfg.Embeddings.APIKey,
		APIBase:    cfg.Embeddings.APIBase,
		Dimensions: cfg.Embeddings.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: build embedder: %w", err)
	}
	cachedEmbedder := embedprovider.NewCachedEmbedder(embedder, 4096)

	vecStore, err := vectorstore.New(cfg.Store.Provider, cfg.Store.Path, vectorstore.Config{Dimensions: cfg.Store.Dimensions})
	if err != nil {
		return nil, fmt.Errorf("memory: build vector store: %w", err)
	}

	persistent := cfg.Store.Provider == "sqlite" || cfg.Store.Provider == "persistent"
	bm25Provider, graphProvider, bm25Path, graphPath := "", "", "", ""
	if persistent {
		bm25Provider, graphProvider = "sqlite", "sqlite"
		bm25Path = cfg.Store.Path + ".bm25"
		graphPath = cfg.Store.Path + ".graph"
	}

	textIndex, err := bm25store.New(bm25Provider, bm25Path)
	if err != nil {
		return nil, fmt.Errorf("memory: build text index: %w", err)
	}

	graphStore, err := graphstore.New(graphProvider, graphPath)
	if err != nil {
		return nil, fmt.Errorf("memory: build graph store: %w", err)
	}

	var dedupSvc *dedup.Service
	if cfg.Dedup.Enabled {
		cachedRecaller, err := dedup.NewCachedRecaller(vecStore, 2048)
		if err != nil {
			return nil, fmt.Errorf("memory: build dedup cache: %w", err)
		}
		dedupSvc = dedup.New(cachedRecaller, dedup.Thresholds{
			Exact: cfg.Dedup.ExactThreshold,
			Near:  cfg.Dedup.NearThreshold,
		})
	}

	extractor := extract.NewHybridExtractor(nil, extract.ContextSoftware)

	sessionProvider := "memory"
	sessionPath := ""
	if persistent {
		sessionProvider = "sqlite"
		sessionPath = filepath.Join(cfg.Sessions.StoragePath, "sessions.db")
	}
	sessionStore := session.New(sessionProvider, sessionPath, cachedEmbedder, cfg.Store.Dimensions)

	deps := Deps{
		Embedder:    cachedEmbedder,
		VectorStore: vecStore,
		TextIndex:   textIndex,
		Graph:       graphStore,
		Dedup:       dedupSvc,
		Extractor:   extractor,
		Sessions:    sessionStore,
	}

	svc := New(deps)
	reranker := hybrid.NewAuto(context.Background(), cfg.Hybrid.RerankerMode, nil, hybrid.DefaultHeuristicConfig())
	pipeline := NewPipeline(deps, svc, retrieval.Config{
		Reranker: reranker,
		Weights: hybrid.Weights{
			Vector: cfg.Hybrid.VectorWeight,
			Text:   cfg.Hybrid.TextWeight,
		},
		CandidateMultiplier: cfg.Hybrid.CandidateMult,
		GraphHops:           cfg.Hybrid.GraphHops,
		Graph2HopScore:      cfg.Hybrid.Graph2HopScore,
	})
	svc.SetPipeline(pipeline)

	return svc, nil
}
