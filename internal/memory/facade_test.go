package memory

import (
	"context"
	"testing"

	"github.com/Aman-CERP/amanmcp/internal/dedup"
	"github.com/Aman-CERP/amanmcp/internal/embedprovider"
	"github.com/Aman-CERP/amanmcp/internal/extract"
	"github.com/Aman-CERP/amanmcp/internal/graphstore"
	"github.com/Aman-CERP/amanmcp/internal/hybrid"
	"github.com/Aman-CERP/amanmcp/internal/model"
	"github.com/Aman-CERP/amanmcp/internal/portable"
	"github.com/Aman-CERP/amanmcp/internal/retrieval"
	"github.com/Aman-CERP/amanmcp/internal/vectorstore"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	embedder := embedprovider.NewMockEmbedder()
	vecStore := vectorstore.NewInMemoryStore(embedprovider.MockDimensions)

	dedupSvc := dedup.New(vecStore, dedup.DefaultThresholds())

	graphPath := t.TempDir() + "/graph.db"
	graphStore, err := graphstore.NewSQLiteStore(graphPath)
	if err != nil {
		t.Fatalf("graphstore.NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { graphStore.Close() })

	deps := Deps{
		Embedder:    embedder,
		VectorStore: vecStore,
		Graph:       graphStore,
		Dedup:       dedupSvc,
		Extractor:   extract.NewHybridExtractor(nil, extract.ContextSoftware),
	}
	svc := New(deps)
	pipeline := NewPipeline(deps, svc, retrieval.Config{
		Reranker: hybrid.NoopReranker{},
		Weights:  hybrid.Weights{Vector: 1.0, Text: 0.0},
	})
	svc.SetPipeline(pipeline)
	return svc
}

func TestRememberThenGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.Remember(ctx, RememberRequest{Content: "the api gateway uses redis for caching"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if !res.Success || res.MemoryID == "" {
		t.Fatalf("expected success with a memory id, got %+v", res)
	}

	entry, err := svc.Get(ctx, res.MemoryID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry == nil || entry.Content != "the api gateway uses redis for caching" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestRememberRejectsEmptyContent(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Remember(context.Background(), RememberRequest{Content: ""}); err == nil {
		t.Fatal("expected an error for empty content")
	}
}

func TestRememberDetectsExactDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Remember(ctx, RememberRequest{Content: "deploys run nightly at 2am"})
	if err != nil {
		t.Fatalf("first Remember: %v", err)
	}

	second, err := svc.Remember(ctx, RememberRequest{Content: "deploys run nightly at 2am"})
	if err != nil {
		t.Fatalf("second Remember: %v", err)
	}
	if second.Success {
		t.Fatal("expected the duplicate to be rejected")
	}
	if second.DuplicateOf != first.MemoryID {
		t.Fatalf("expected duplicate_of=%s, got %s", first.MemoryID, second.DuplicateOf)
	}
}

func TestRememberSkipDedupBypassesDuplicateCheck(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Remember(ctx, RememberRequest{Content: "the cache layer is memcached"}); err != nil {
		t.Fatalf("first Remember: %v", err)
	}
	second, err := svc.Remember(ctx, RememberRequest{Content: "the cache layer is memcached", SkipDedup: true})
	if err != nil {
		t.Fatalf("second Remember: %v", err)
	}
	if !second.Success {
		t.Fatal("expected skip_dedup to bypass the duplicate check")
	}
}

func TestRecallFindsRememberedContent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Remember(ctx, RememberRequest{Content: "the billing service talks to the payments gateway"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	results, err := svc.Recall(ctx, RecallRequest{Query: "billing service payments gateway", Limit: 5})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one recall result")
	}
}

func TestCorrectSupersedesOriginalWithoutDeletingIt(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	original, err := svc.Remember(ctx, RememberRequest{Content: "the staging cluster has 3 nodes"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}

	corrected, err := svc.Correct(ctx, original.MemoryID, "the staging cluster has 5 nodes", "capacity update")
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if !corrected.Success {
		t.Fatal("expected Correct to succeed")
	}

	originalEntry, err := svc.Get(ctx, original.MemoryID)
	if err != nil || originalEntry == nil {
		t.Fatalf("expected original entry to still exist, err=%v entry=%v", err, originalEntry)
	}

	correctedEntry, err := svc.Get(ctx, corrected.MemoryID)
	if err != nil || correctedEntry == nil {
		t.Fatalf("expected corrected entry to exist, err=%v", err)
	}
	if correctedEntry.Supersedes != original.MemoryID {
		t.Fatalf("expected supersedes=%s, got %s", original.MemoryID, correctedEntry.Supersedes)
	}
	if correctedEntry.SourceType != model.SourceCorrection {
		t.Fatalf("expected source_type=correction, got %s", correctedEntry.SourceType)
	}
}

func TestCorrectUnknownOriginalFails(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Correct(context.Background(), "does-not-exist", "new content", ""); err == nil {
		t.Fatal("expected an error when correcting a nonexistent memory")
	}
}

func TestRecallDropsSupersededOriginalInFavorOfCorrection(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	original, err := svc.Remember(ctx, RememberRequest{Content: "the release window is tuesdays"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if _, err := svc.Correct(ctx, original.MemoryID, "the release window is thursdays", ""); err != nil {
		t.Fatalf("Correct: %v", err)
	}

	results, err := svc.Recall(ctx, RecallRequest{Query: "release window", Limit: 10, MinRelevance: 0})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	for _, r := range results {
		if r.Memory.ID == original.MemoryID {
			t.Fatalf("expected the superseded original to be filtered out of recall results")
		}
	}
}

func TestForgetTombstonesAndDissociatesFromGraph(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.Remember(ctx, RememberRequest{Content: "the worker pool uses rabbitmq"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}

	ok, err := svc.Forget(ctx, res.MemoryID)
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if !ok {
		t.Fatal("expected Forget to report success")
	}

	entry, err := svc.Get(ctx, res.MemoryID)
	if err != nil {
		t.Fatalf("Get after Forget: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected no entry after Forget, got %+v", entry)
	}

	entities, err := svc.deps.Graph.GetEntitiesForMemory(ctx, res.MemoryID)
	if err != nil {
		t.Fatalf("GetEntitiesForMemory after Forget: %v", err)
	}
	if len(entities) != 0 {
		t.Fatalf("expected no graph entities for a forgotten memory, got %+v", entities)
	}
}

func TestForgetUnknownIDReturnsFalse(t *testing.T) {
	svc := newTestService(t)
	ok, err := svc.Forget(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if ok {
		t.Fatal("expected false for an unknown id")
	}
}

func TestGetStatsReflectsRememberedEntries(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Remember(ctx, RememberRequest{Content: "one"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if _, err := svc.Remember(ctx, RememberRequest{Content: "two"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	stats, err := svc.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("expected 2 total memories, got %d", stats.Total)
	}
}

func TestRecallEntityReturnsMemoriesAssociatedWithEntity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Remember(ctx, RememberRequest{Content: "payment-service depends on postgres-db"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	results, err := svc.RecallEntity(ctx, "payment-service", 1, 10)
	if err != nil {
		t.Fatalf("RecallEntity: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one memory associated with the entity")
	}
	for _, r := range results {
		if r.RetrievalMethod != model.RetrievalEntity {
			t.Fatalf("expected retrieval_method=entity, got %s", r.RetrievalMethod)
		}
		if r.Score != EntityRecallScore {
			t.Fatalf("expected fixed entity recall score %v, got %v", EntityRecallScore, r.Score)
		}
	}
}

func TestRememberResolvesTemporalFactsIntoGraph(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.Remember(ctx, RememberRequest{Content: "the incident-response runbook was updated 2024-03-15"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}

	facts, err := svc.deps.Graph.GetTemporalFactsForMemory(ctx, res.MemoryID)
	if err != nil {
		t.Fatalf("GetTemporalFactsForMemory: %v", err)
	}
	if len(facts) == 0 {
		t.Fatal("expected at least one resolved temporal fact")
	}
	if facts[0].ResolvedDate != "2024-03-15" {
		t.Fatalf("expected resolved_date=2024-03-15, got %s", facts[0].ResolvedDate)
	}
}

func TestExportThenImportRoundTripsIntoFreshService(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		if _, err := svc.Remember(ctx, RememberRequest{Content: content}); err != nil {
			t.Fatalf("Remember: %v", err)
		}
	}

	bundle, err := svc.Export(ctx, portable.ExportRequest{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if bundle.Manifest.MemoryCount != 3 {
		t.Fatalf("expected memory_count=3, got %d", bundle.Manifest.MemoryCount)
	}

	target := newTestService(t)
	summary, err := target.Import(ctx, bundle, portable.ConflictSkip, portable.ReembedKeep, false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if summary.Imported != 3 || summary.Skipped != 0 || summary.Errors != 0 {
		t.Fatalf("unexpected import summary: %+v", summary)
	}
}

func TestIsSupersededWithinDetectsDirectSupersession(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	original, err := svc.Remember(ctx, RememberRequest{Content: "on-call rotation is weekly"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	corrected, err := svc.Correct(ctx, original.MemoryID, "on-call rotation is biweekly", "")
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}

	superseded, err := svc.IsSupersededWithin(ctx, original.MemoryID, []string{original.MemoryID, corrected.MemoryID})
	if err != nil {
		t.Fatalf("IsSupersededWithin: %v", err)
	}
	if !superseded {
		t.Fatal("expected the original to be reported as superseded")
	}
}
