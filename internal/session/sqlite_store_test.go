package session

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewSQLiteStore(path, &fakeEmbedder{dims: 8}, 8)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreIngestAndSearchRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	created, processed, err := store.Ingest(ctx, "sess-1", "inst-a", transcript(4))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if created == 0 || processed != 4 {
		t.Fatalf("unexpected ingest result: created=%d processed=%d", created, processed)
	}

	results, err := store.Search(ctx, "word word", "sess-1", 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one search result")
	}
	for _, r := range results {
		if len(r.Chunk.Embedding) != 8 {
			t.Fatalf("expected decoded embedding of length 8, got %d", len(r.Chunk.Embedding))
		}
	}
}

func TestSQLiteStoreReingestSameMessagesIsNoOp(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	messages := transcript(4)

	if _, _, err := store.Ingest(ctx, "sess-1", "inst-a", messages); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	created, processed, err := store.Ingest(ctx, "sess-1", "inst-a", messages)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if created != 0 || processed != 0 {
		t.Fatalf("expected no-op re-ingest, got created=%d processed=%d", created, processed)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	embedder := &fakeEmbedder{dims: 8}

	store1, err := NewSQLiteStore(path, embedder, 8)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if _, _, err := store1.Ingest(context.Background(), "sess-1", "inst-a", transcript(2)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := store1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store2, err := NewSQLiteStore(path, embedder, 8)
	if err != nil {
		t.Fatalf("reopen NewSQLiteStore: %v", err)
	}
	defer store2.Close()

	stats, err := store2.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalChunks == 0 {
		t.Fatal("expected chunks to survive a close/reopen cycle")
	}

	// Progress bookkeeping must also survive reopen: re-ingesting the
	// same transcript against the reopened store is still a no-op.
	created, processed, err := store2.Ingest(context.Background(), "sess-1", "inst-a", transcript(2))
	if err != nil {
		t.Fatalf("Ingest after reopen: %v", err)
	}
	if created != 0 || processed != 0 {
		t.Fatalf("expected no-op after reopen, got created=%d processed=%d", created, processed)
	}
}

func TestSQLiteStoreCleanupDropsExpiredChunks(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	if _, _, err := store.Ingest(ctx, "sess-1", "inst", transcript(2)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	deleted, err := store.Cleanup(ctx, -1)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted == 0 {
		t.Fatal("expected expired chunks to be deleted")
	}
}

func TestSQLiteStoreCloseIsIdempotent(t *testing.T) {
	store := newTestSQLiteStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}
