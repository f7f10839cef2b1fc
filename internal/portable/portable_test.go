package portable

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/model"
	"github.com/Aman-CERP/amanmcp/internal/vectorstore"
	"github.com/stretchr/testify/require"
)

var testVec = []float32{0.1, 0.2, 0.3, 0.4}

func seedStore(t *testing.T, entries ...*model.MemoryEntry) *vectorstore.InMemoryStore {
	t.Helper()
	store := vectorstore.NewInMemoryStore(4)
	for _, e := range entries {
		if e.Embedding == nil {
			e.Embedding = testVec
		}
		require.NoError(t, store.Store(context.Background(), e))
	}
	return store
}

func testMeta() model.EmbeddingMetadata {
	return model.EmbeddingMetadata{ModelName: "mock-v1", Dimensions: 4}
}

func TestExportThenImportIntoEmptyTargetRoundTrips(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := seedStore(t,
		&model.MemoryEntry{ID: "a", Content: "one", CreatedAt: now, UpdatedAt: now},
		&model.MemoryEntry{ID: "b", Content: "two", CreatedAt: now, UpdatedAt: now},
		&model.MemoryEntry{ID: "c", Content: "three", CreatedAt: now, UpdatedAt: now},
	)

	bundle, err := Export(ctx, store, testMeta(), ExportRequest{})
	require.NoError(t, err)
	require.Equal(t, 3, bundle.Manifest.MemoryCount)

	target := vectorstore.NewInMemoryStore(4)
	summary, err := Import(ctx, target, bundle, ImportRequest{Conflict: ConflictSkip, Reembed: ReembedKeep, TargetMeta: testMeta()})
	require.NoError(t, err)
	require.Equal(t, 3, summary.Imported)
	require.Zero(t, summary.Skipped)
	require.Zero(t, summary.Overwritten)
	require.Zero(t, summary.Errors)
	require.False(t, summary.NeedsReembedding)
}

func TestExportFiltersByDateRange(t *testing.T) {
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -30)
	recent := time.Now()
	store := seedStore(t,
		&model.MemoryEntry{ID: "old", Content: "stale", CreatedAt: old, UpdatedAt: old},
		&model.MemoryEntry{ID: "new", Content: "fresh", CreatedAt: recent, UpdatedAt: recent},
	)

	from := time.Now().AddDate(0, 0, -1)
	bundle, err := Export(ctx, store, testMeta(), ExportRequest{DateFrom: &from})
	require.NoError(t, err)
	require.Len(t, bundle.Entries, 1)
	require.Equal(t, "new", bundle.Entries[0].ID)
}

func TestImportSkipsExistingByDefault(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	bundle := &model.PortableBundle{
		Manifest: model.Manifest{SchemaVersion: SchemaVersion, Embedding: testMeta(), MemoryCount: 1},
		Entries:  []*model.MemoryEntry{{ID: "dup", Content: "new content", Embedding: testVec, UpdatedAt: now}},
	}
	target := seedStore(t, &model.MemoryEntry{ID: "dup", Content: "old content", UpdatedAt: now.Add(-time.Hour)})

	summary, err := Import(ctx, target, bundle, ImportRequest{Conflict: ConflictSkip, Reembed: ReembedKeep, TargetMeta: testMeta()})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Zero(t, summary.Imported)

	entry, err := target.Get(ctx, "dup")
	require.NoError(t, err)
	require.Equal(t, "old content", entry.Content)
}

func TestImportOverwriteReplacesExisting(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	bundle := &model.PortableBundle{
		Manifest: model.Manifest{SchemaVersion: SchemaVersion, Embedding: testMeta(), MemoryCount: 1},
		Entries:  []*model.MemoryEntry{{ID: "dup", Content: "new content", Embedding: testVec, UpdatedAt: now}},
	}
	target := seedStore(t, &model.MemoryEntry{ID: "dup", Content: "old content", UpdatedAt: now.Add(-time.Hour)})

	summary, err := Import(ctx, target, bundle, ImportRequest{Conflict: ConflictOverwrite, Reembed: ReembedKeep, TargetMeta: testMeta()})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Overwritten)

	entry, err := target.Get(ctx, "dup")
	require.NoError(t, err)
	require.Equal(t, "new content", entry.Content)
}

func TestImportMergeKeepsNewerUpdatedAt(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	bundle := &model.PortableBundle{
		Manifest: model.Manifest{SchemaVersion: SchemaVersion, Embedding: testMeta(), MemoryCount: 1},
		Entries:  []*model.MemoryEntry{{ID: "dup", Content: "bundle content", Embedding: testVec, UpdatedAt: now.Add(-time.Hour)}},
	}
	target := seedStore(t, &model.MemoryEntry{ID: "dup", Content: "target content", UpdatedAt: now})

	summary, err := Import(ctx, target, bundle, ImportRequest{Conflict: ConflictMerge, Reembed: ReembedKeep, TargetMeta: testMeta()})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Overwritten)

	entry, err := target.Get(ctx, "dup")
	require.NoError(t, err)
	require.Equal(t, "target content", entry.Content)
}

func TestImportDryRunPerformsNoMutations(t *testing.T) {
	ctx := context.Background()
	bundle := &model.PortableBundle{
		Manifest: model.Manifest{SchemaVersion: SchemaVersion, Embedding: testMeta(), MemoryCount: 1},
		Entries:  []*model.MemoryEntry{{ID: "new-entry", Content: "hello", Embedding: testVec}},
	}
	target := vectorstore.NewInMemoryStore(4)

	summary, err := Import(ctx, target, bundle, ImportRequest{Conflict: ConflictSkip, Reembed: ReembedKeep, TargetMeta: testMeta(), DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Imported)

	entry, err := target.Get(ctx, "new-entry")
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestImportAutoReembedDropsEmbeddingOnIncompatibleModel(t *testing.T) {
	ctx := context.Background()
	bundle := &model.PortableBundle{
		Manifest: model.Manifest{
			SchemaVersion: SchemaVersion,
			Embedding:     model.EmbeddingMetadata{ModelName: "old-model", Dimensions: 8},
		},
		Entries: []*model.MemoryEntry{{ID: "e1", Content: "hi", Embedding: []float32{1, 2, 3, 4, 5, 6, 7, 8}}},
	}
	target := vectorstore.NewInMemoryStore(4)

	summary, err := Import(ctx, target, bundle, ImportRequest{Conflict: ConflictSkip, Reembed: ReembedAuto, TargetMeta: testMeta()})
	require.NoError(t, err)
	require.True(t, summary.NeedsReembedding)

	entry, err := target.Get(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, entry.Embedding, 4)
	require.Equal(t, []float32{0, 0, 0, 0}, entry.Embedding)
}

func TestWriteThenReadJSONRoundTrips(t *testing.T) {
	bundle := &model.PortableBundle{
		Manifest: model.Manifest{SchemaVersion: SchemaVersion, Embedding: testMeta(), MemoryCount: 1},
		Entries:  []*model.MemoryEntry{{ID: "e1", Content: "hello"}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, bundle))

	got, err := ReadJSON(&buf)
	require.NoError(t, err)
	require.Equal(t, bundle.Manifest.SchemaVersion, got.Manifest.SchemaVersion)
	require.Len(t, got.Entries, 1)
	require.Equal(t, "e1", got.Entries[0].ID)
}

func TestReadJSONRejectsMalformedInput(t *testing.T) {
	_, err := ReadJSON(bytes.NewBufferString("not json"))
	require.Error(t, err)
}
