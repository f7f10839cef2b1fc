package vectorstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/embedprovider"
	"github.com/Aman-CERP/amanmcp/internal/model"
)

// InMemoryStore is the dense-scan, exact-cosine map-backed store for
// tests and small deployments (spec.md §4.2 impl 1), grounded on the
// original InMemoryVectorStore: a map plus a tombstone set.
type InMemoryStore struct {
	mu      sync.RWMutex
	dims    int
	entries map[string]*model.MemoryEntry
	deleted map[string]bool
}

var _ VectorStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an in-memory store expecting vectors of the
// given dimensionality.
func NewInMemoryStore(dimensions int) *InMemoryStore {
	return &InMemoryStore{
		dims:    dimensions,
		entries: make(map[string]*model.MemoryEntry),
		deleted: make(map[string]bool),
	}
}

func (s *InMemoryStore) Store(ctx context.Context, entry *model.MemoryEntry) error {
	if len(entry.Embedding) != s.dims {
		return &ErrDimensionMismatch{Expected: s.dims, Got: len(entry.Embedding)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// store() does not overwrite; if id exists, result is
	// implementation-defined (spec.md §4.2) — we store unconditionally,
	// same as the original InMemoryVectorStore.
	s.entries[entry.ID] = entry
	return nil
}

func (s *InMemoryStore) Upsert(ctx context.Context, entry *model.MemoryEntry) error {
	if len(entry.Embedding) != s.dims {
		return &ErrDimensionMismatch{Expected: s.dims, Got: len(entry.Embedding)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	// Clear any tombstone, otherwise the re-inserted entry stays
	// invisible to Get/Recall (spec.md §9 "Overwrite semantics").
	delete(s.deleted, entry.ID)
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*model.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deleted[id] {
		return nil, nil
	}
	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	return e, nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted[id] {
		return false, nil
	}
	if _, ok := s.entries[id]; !ok {
		return false, nil
	}
	s.deleted[id] = true
	now := time.Now().UTC()
	s.entries[id].Deleted = true
	s.entries[id].DeletedAt = &now
	return true, nil
}

func (s *InMemoryStore) Recall(ctx context.Context, queryVec []float32, limit int, minSimilarity float64, filters Filters) ([]model.RecallResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Now()
	var results []model.RecallResult
	for id, e := range s.entries {
		if s.deleted[id] {
			continue
		}
		if !matchesFilters(e, filters) {
			continue
		}
		sim := embedprovider.Similarity(queryVec, e.Embedding)
		if sim < minSimilarity {
			continue
		}
		results = append(results, model.RecallResult{Memory: e, Score: sim, RetrievalMethod: model.RetrievalVector})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	elapsed := time.Since(start).Milliseconds()
	for i := range results {
		results[i].RetrievalTimeMS = elapsed
	}
	return results, nil
}

func (s *InMemoryStore) List(ctx context.Context, limit, offset int, filters Filters) ([]*model.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.MemoryEntry
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if s.deleted[id] {
			continue
		}
		e := s.entries[id]
		if !matchesFilters(e, filters) {
			continue
		}
		out = append(out, e)
	}
	if offset > 0 && offset < len(out) {
		out = out[offset:]
	} else if offset >= len(out) {
		out = nil
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Count(ctx context.Context, filters Filters) (int, error) {
	entries, err := s.List(ctx, 0, 0, filters)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// GetStats performs a single-pass aggregation, the simplicity the
// "open question" in spec.md §9 flags as acceptable only for the
// in-memory case (the persistent store aggregates in SQL instead).
func (s *InMemoryStore) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		BySourceType: make(map[model.SourceType]int),
		ByTag:        make(map[string]int),
		ByInstance:   make(map[string]int),
	}
	for id, e := range s.entries {
		if s.deleted[id] {
			continue
		}
		stats.Total++
		stats.BySourceType[e.SourceType]++
		stats.ByInstance[e.SourceInstance]++
		for _, tag := range e.Tags {
			stats.ByTag[tag]++
		}
		if e.SourceType == model.SourceCorrection {
			stats.Corrections++
		}
	}
	return stats, nil
}

func (s *InMemoryStore) Close() error { return nil }

func matchesFilters(e *model.MemoryEntry, f Filters) bool {
	if f.SourceInstance != "" && e.SourceInstance != f.SourceInstance {
		return false
	}
	if f.SourceType != "" && e.SourceType != f.SourceType {
		return false
	}
	if len(f.Tags) > 0 {
		found := false
		for _, want := range f.Tags {
			for _, have := range e.Tags {
				if strings.EqualFold(want, have) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
