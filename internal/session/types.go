// Package session implements the session chunker and store of
// spec.md §4.10: windowed, embedded slices of a conversation
// transcript, searchable by similarity and session id.
package session

import (
	"context"
	"regexp"

	"github.com/Aman-CERP/amanmcp/internal/model"
)

// DefaultTargetTokens and DefaultOverlapTokens are the chunker's
// nominal window size and overlap (spec.md §4.10).
const (
	DefaultTargetTokens  = 400
	DefaultOverlapTokens = 50
	MaxOverlapMessages   = 2
)

// Embedder is the capability the chunker needs to vectorize chunk
// content and search queries; satisfied structurally by
// embedprovider.Embedder without an import cycle.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchResult is one scored hit from Store.Search.
type SearchResult struct {
	Chunk      model.SessionChunk
	Similarity float64
}

// Stats summarizes a store's contents (spec.md §4.10).
type Stats struct {
	TotalChunks     int
	DistinctSessions int
	EarliestChunk   *model.SessionChunk
	LatestChunk     *model.SessionChunk
}

// Store is the session chunker's persistence layer.
type Store interface {
	// Ingest chunks and persists messages[last_ingested_index:] for
	// sessionID, returning how many chunks and source messages were
	// processed. Re-ingesting the same (or a non-extended) message
	// list is a no-op.
	Ingest(ctx context.Context, sessionID, instanceID string, messages []model.SessionMessage) (chunksCreated, messagesProcessed int, err error)
	Search(ctx context.Context, query string, sessionID string, limit int, minRelevance float64) ([]SearchResult, error)
	Cleanup(ctx context.Context, retentionDays int) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// sessionIDShapeRe mirrors vectorstore.ValidateIDShape: alphanumerics
// and hyphens only (spec.md §4.10).
var sessionIDShapeRe = regexp.MustCompile(`^[a-zA-Z0-9\-]+$`)

// ValidateSessionID rejects session ids that aren't alphanumeric/hyphen-shaped.
func ValidateSessionID(id string) error {
	if id == "" {
		return nil
	}
	if !sessionIDShapeRe.MatchString(id) {
		return errInvalidSessionID(id)
	}
	return nil
}

type invalidSessionIDError struct{ id string }

func (e *invalidSessionIDError) Error() string {
	return "invalid session id shape: " + e.id
}

func errInvalidSessionID(id string) error {
	return &invalidSessionIDError{id: id}
}
