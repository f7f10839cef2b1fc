package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/idgen"
	"github.com/Aman-CERP/amanmcp/internal/merrors"
	"github.com/Aman-CERP/amanmcp/internal/model"
	"github.com/Aman-CERP/amanmcp/internal/portable"
	"github.com/Aman-CERP/amanmcp/internal/retrieval"
	"github.com/Aman-CERP/amanmcp/internal/temporal"
)

// Service is the memory façade: a stateless wrapper over Deps. It
// holds no mutable state of its own — every collaborator owns its own
// concurrency story (store locks, cache locks) — so a Service value
// is safe for concurrent use without its own mutex (spec.md §5).
type Service struct {
	deps Deps
}

// New builds a Service from fully-constructed collaborators. Callers
// typically go through Get for the process-wide singleton
// instead of calling New directly (spec.md §9 "global state").
func New(deps Deps) *Service {
	return &Service{deps: deps}
}

// SetPipeline assigns the retrieval pipeline after construction,
// completing the NewPipeline construction-cycle sequence for callers
// outside this package.
func (s *Service) SetPipeline(p *retrieval.Pipeline) {
	s.deps.Pipeline = p
}

// Remember implements spec.md §4.9's remember operation: validate,
// embed, dedup-check, store across vector + BM25 + graph.
func (s *Service) Remember(ctx context.Context, req RememberRequest) (RememberResult, error) {
	if req.Content == "" {
		return RememberResult{}, merrors.New(merrors.ErrCodeEmptyContent, "content must not be empty", nil)
	}

	embedding, err := s.deps.Embedder.Embed(ctx, req.Content)
	if err != nil {
		return RememberResult{}, merrors.Wrap(merrors.ErrCodeEmbeddingFailed, err)
	}

	if !req.SkipDedup && s.deps.Dedup != nil {
		isDup, existingID, err := s.deps.Dedup.IsDuplicate(ctx, embedding)
		if err != nil {
			return RememberResult{}, merrors.Wrap(merrors.ErrCodeInternal, err)
		}
		if isDup {
			return RememberResult{Success: false, DuplicateOf: existingID}, nil
		}
	}

	now := time.Now()
	entry := &model.MemoryEntry{
		ID:             idgen.New(),
		Content:        req.Content,
		Embedding:      embedding,
		SourceInstance: req.SourceInstance,
		SourceType:     req.SourceType,
		CreatedAt:      now,
		UpdatedAt:      now,
		Tags:           req.Tags,
		Context:        req.Context,
		Confidence:     1.0,
	}
	if entry.SourceType == "" {
		entry.SourceType = model.SourceUserExplicit
	}

	if err := s.deps.VectorStore.Store(ctx, entry); err != nil {
		return RememberResult{}, merrors.Wrap(merrors.ErrCodeStorageWrite, err)
	}

	if s.deps.TextIndex != nil {
		if err := s.deps.TextIndex.IndexDoc(ctx, entry.ID, entry.Content, entry.Tags); err != nil {
			return RememberResult{}, merrors.Wrap(merrors.ErrCodeStorageWrite, err)
		}
	}

	if s.deps.Graph != nil && s.deps.Extractor != nil {
		if err := s.indexIntoGraph(ctx, entry); err != nil {
			return RememberResult{}, merrors.Wrap(merrors.ErrCodeExtractionFailed, err)
		}
	}

	return RememberResult{Success: true, MemoryID: entry.ID}, nil
}

func (s *Service) indexIntoGraph(ctx context.Context, entry *model.MemoryEntry) error {
	entities, relationships, err := s.deps.Extractor.ExtractWithRelationships(ctx, entry.Content)
	if err != nil {
		return err
	}
	for _, e := range entities {
		if err := s.deps.Graph.AddEntity(ctx, e.Name, model.EntityType(e.Type), e.Metadata); err != nil {
			return err
		}
		if err := s.deps.Graph.AssociateEntityWithMemory(ctx, e.Name, entry.ID); err != nil {
			return err
		}
	}
	for _, r := range relationships {
		if err := s.deps.Graph.AddRelationship(ctx, r.Source, r.Target, model.RelationType(r.Relation), entry.ID); err != nil {
			return err
		}
	}

	subject := ""
	if len(entities) > 0 {
		subject = entities[0].Name
	}
	for _, resolution := range temporal.Resolve(entry.Content, entry.CreatedAt) {
		fact := temporal.ToFact(entry.ID, subject, model.TemporalMentionedDate, resolution)
		if err := s.deps.Graph.AddTemporalFact(ctx, fact); err != nil {
			return err
		}
	}
	return nil
}

// Recall implements spec.md §4.9's recall operation by delegating to
// the retrieval pipeline, which already implements §4.5 end to end.
func (s *Service) Recall(ctx context.Context, req RecallRequest) ([]model.RecallResult, error) {
	if s.deps.Pipeline == nil {
		return nil, merrors.New(merrors.ErrCodeInternal, "recall pipeline not configured", nil)
	}
	return s.deps.Pipeline.Recall(ctx, retrieval.Query{
		Text:           req.Query,
		Limit:          req.Limit,
		MinRelevance:   req.MinRelevance,
		Tags:           req.Tags,
		GraphExpansion: req.GraphExpansion,
	})
}

// Correct implements spec.md §4.9's correct operation: confirms the
// original exists, then stores a new entry superseding it. The
// original is never deleted.
func (s *Service) Correct(ctx context.Context, originalID, correctedContent, correctionContext string) (CorrectResult, error) {
	original, err := s.deps.VectorStore.Get(ctx, originalID)
	if err != nil {
		return CorrectResult{}, merrors.Wrap(merrors.ErrCodeInternal, err)
	}
	if original == nil {
		return CorrectResult{}, merrors.New(merrors.ErrCodeNotFound, fmt.Sprintf("memory %q not found", originalID), nil)
	}

	req := RememberRequest{
		Content:        correctedContent,
		SourceType:     model.SourceCorrection,
		SourceInstance: original.SourceInstance,
		Context:        correctionContext,
		Tags:           append([]string(nil), original.Tags...),
		SkipDedup:      true,
	}
	res, err := s.Remember(ctx, req)
	if err != nil {
		return CorrectResult{}, err
	}

	corrected, err := s.deps.VectorStore.Get(ctx, res.MemoryID)
	if err != nil || corrected == nil {
		return CorrectResult{}, merrors.New(merrors.ErrCodeInternal, "correction entry vanished immediately after store", nil)
	}
	corrected.Supersedes = originalID
	corrected.RelatedTo = append(corrected.RelatedTo, originalID)
	if err := s.deps.VectorStore.Upsert(ctx, corrected); err != nil {
		return CorrectResult{}, merrors.Wrap(merrors.ErrCodeStorageWrite, err)
	}

	return CorrectResult{Success: true, MemoryID: corrected.ID}, nil
}

// Forget implements spec.md §4.9's forget operation: tombstone in the
// vector store, remove from BM25, dissociate from the graph.
func (s *Service) Forget(ctx context.Context, id string) (bool, error) {
	deleted, err := s.deps.VectorStore.Delete(ctx, id)
	if err != nil {
		return false, merrors.Wrap(merrors.ErrCodeInternal, err)
	}
	if !deleted {
		return false, nil
	}
	if s.deps.TextIndex != nil {
		_ = s.deps.TextIndex.Delete(ctx, id)
	}
	if s.deps.Graph != nil {
		_ = s.deps.Graph.DeleteMemory(ctx, id)
	}
	return true, nil
}

// Get implements spec.md §4.9's get operation.
func (s *Service) Get(ctx context.Context, id string) (*model.MemoryEntry, error) {
	return s.deps.VectorStore.Get(ctx, id)
}

// GetStats implements spec.md §4.9's get_stats operation.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	vecStats, err := s.deps.VectorStore.GetStats(ctx)
	if err != nil {
		return Stats{}, merrors.Wrap(merrors.ErrCodeInternal, err)
	}
	stats := Stats{Stats: vecStats}

	if s.deps.Sessions != nil {
		sessStats, err := s.deps.Sessions.Stats(ctx)
		if err == nil {
			stats.SessionChunks = sessStats.TotalChunks
		}
	}
	return stats, nil
}

// RecallEntity implements spec.md §4.9's recall_entity operation:
// entities -> memory ids -> entries, marked retrieval_method=entity
// with a fixed score.
const EntityRecallScore = 1.0

func (s *Service) RecallEntity(ctx context.Context, entityName string, hops, limit int) ([]model.RecallResult, error) {
	if s.deps.Graph == nil {
		return nil, merrors.New(merrors.ErrCodeInternal, "graph store not configured", nil)
	}
	ids, err := s.deps.Graph.FindConnected(ctx, []string{entityName}, hops)
	if err != nil {
		return nil, merrors.Wrap(merrors.ErrCodeInternal, err)
	}

	results := make([]model.RecallResult, 0, len(ids))
	for _, id := range ids {
		entry, err := s.deps.VectorStore.Get(ctx, id)
		if err != nil || entry == nil {
			continue
		}
		results = append(results, model.RecallResult{
			Memory:          entry,
			Score:           EntityRecallScore,
			RetrievalMethod: model.RetrievalEntity,
		})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// IsSupersededWithin implements retrieval.SupersededChecker: id is
// superseded iff some other candidate in the set supersedes it
// (spec.md §4.9's correction chain).
func (s *Service) IsSupersededWithin(ctx context.Context, id string, candidateIDs []string) (bool, error) {
	for _, candidateID := range candidateIDs {
		if candidateID == id {
			continue
		}
		entry, err := s.deps.VectorStore.Get(ctx, candidateID)
		if err != nil || entry == nil {
			continue
		}
		if entry.Supersedes == id {
			return true, nil
		}
	}
	return false, nil
}

// Export implements spec.md §4.11's export operation: list, filter by
// date range, wrap in a PortableBundle stamped with the embedder's
// current metadata.
func (s *Service) Export(ctx context.Context, req portable.ExportRequest) (*model.PortableBundle, error) {
	meta := model.EmbeddingMetadata{
		ModelName:  s.deps.Embedder.ModelName(),
		Dimensions: s.deps.Embedder.Dimensions(),
	}
	bundle, err := portable.Export(ctx, s.deps.VectorStore, meta, req)
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

// Import implements spec.md §4.11's import operation, comparing the
// bundle's embedding metadata against this service's own embedder.
func (s *Service) Import(ctx context.Context, bundle *model.PortableBundle, conflict portable.ConflictResolution, reembed portable.ReembeddingStrategy, dryRun bool) (portable.ImportSummary, error) {
	target := model.EmbeddingMetadata{
		ModelName:  s.deps.Embedder.ModelName(),
		Dimensions: s.deps.Embedder.Dimensions(),
	}
	return portable.Import(ctx, s.deps.VectorStore, bundle, portable.ImportRequest{
		Conflict:   conflict,
		Reembed:    reembed,
		DryRun:     dryRun,
		TargetMeta: target,
	})
}

// NewPipeline builds a retrieval.Pipeline wired to deps and svc,
// adapting the façade's broader collaborator interfaces down to the
// pipeline's narrow capability interfaces. Taking svc as the
// SupersededChecker is what breaks the construction cycle: the
// pipeline needs the façade's correction-chain logic, and the façade
// needs the pipeline to answer Recall, so the caller builds svc first
// (with Deps.Pipeline left nil) and assigns the result afterward.
func NewPipeline(deps Deps, svc *Service, cfg retrieval.Config) *retrieval.Pipeline {
	cfg.Embedder = deps.Embedder
	cfg.VectorStore = deps.VectorStore
	cfg.TextIndex = deps.TextIndex
	cfg.MemoryFetcher = vectorFetcherAdapter{deps.VectorStore}
	cfg.SupersededChecker = svc
	if deps.Extractor != nil {
		cfg.EntityExtractor = entityExtractorAdapter{deps.Extractor}
	}
	if deps.Graph != nil {
		cfg.GraphLookup = graphLookupAdapter{deps.Graph}
	}
	return retrieval.New(cfg)
}
