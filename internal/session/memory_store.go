package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/embedprovider"
	"github.com/Aman-CERP/amanmcp/internal/idgen"
	"github.com/Aman-CERP/amanmcp/internal/model"
)

// MemoryStore is the in-memory session chunk store, used as a
// fallback when the persistent backend can't initialize (spec.md
// §4.10) and in tests.
type MemoryStore struct {
	mu               sync.RWMutex
	embedder         Embedder
	chunks           []model.SessionChunk
	lastIngestedIdx  map[string]int
	chunkHighWater   map[string]int
	counter          *tokenCounter
	targetTokens     int
	overlapTokens    int
}

func NewMemoryStore(embedder Embedder) *MemoryStore {
	return &MemoryStore{
		embedder:        embedder,
		lastIngestedIdx: make(map[string]int),
		chunkHighWater:  make(map[string]int),
		counter:         newTokenCounter(),
		targetTokens:    DefaultTargetTokens,
		overlapTokens:   DefaultOverlapTokens,
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Ingest(ctx context.Context, sessionID, instanceID string, messages []model.SessionMessage) (int, int, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return 0, 0, err
	}

	m.mu.Lock()
	lastIdx := m.lastIngestedIdx[sessionID]
	startChunkIndex := m.chunkHighWater[sessionID]
	m.mu.Unlock()

	if lastIdx >= len(messages) {
		return 0, 0, nil
	}
	newMessages := messages[lastIdx:]

	drafts := buildChunks(newMessages, startChunkIndex, m.counter, m.targetTokens, m.overlapTokens)

	var newChunks []model.SessionChunk
	for i, d := range drafts {
		vec, err := m.embedder.Embed(ctx, d.content)
		if err != nil {
			return 0, 0, err
		}
		newChunks = append(newChunks, model.SessionChunk{
			ChunkID:    idgen.New(),
			SessionID:  sessionID,
			InstanceID: instanceID,
			Content:    d.content,
			Embedding:  vec,
			StartTime:  d.startTime.Timestamp,
			EndTime:    d.endTime.Timestamp,
			ChunkIndex: startChunkIndex + i,
		})
	}

	m.mu.Lock()
	m.chunks = append(m.chunks, newChunks...)
	m.lastIngestedIdx[sessionID] = len(messages)
	m.chunkHighWater[sessionID] = startChunkIndex + len(drafts)
	m.mu.Unlock()

	return len(newChunks), len(newMessages), nil
}

func (m *MemoryStore) Search(ctx context.Context, query string, sessionID string, limit int, minRelevance float64) ([]SearchResult, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []SearchResult
	for _, c := range m.chunks {
		if sessionID != "" && c.SessionID != sessionID {
			continue
		}
		sim := embedprovider.Similarity(queryVec, c.Embedding)
		if sim < minRelevance {
			continue
		}
		results = append(results, SearchResult{Chunk: c, Similarity: sim})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Chunk.ChunkID < results[j].Chunk.ChunkID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryStore) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.chunks[:0]
	deleted := 0
	for _, c := range m.chunks {
		if c.EndTime.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept
	return deleted, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{TotalChunks: len(m.chunks)}
	sessions := make(map[string]struct{})
	for i := range m.chunks {
		c := &m.chunks[i]
		sessions[c.SessionID] = struct{}{}
		if stats.EarliestChunk == nil || c.StartTime.Before(stats.EarliestChunk.StartTime) {
			stats.EarliestChunk = c
		}
		if stats.LatestChunk == nil || c.EndTime.After(stats.LatestChunk.EndTime) {
			stats.LatestChunk = c
		}
	}
	stats.DistinctSessions = len(sessions)
	return stats, nil
}

func (m *MemoryStore) Close() error { return nil }
