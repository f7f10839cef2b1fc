// Package portable implements the bundle export/import layer of
// spec.md §4.11: a stable wire format (PortableBundle) plus conflict
// resolution and re-embedding strategy on import.
package portable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/merrors"
	"github.com/Aman-CERP/amanmcp/internal/model"
	"github.com/Aman-CERP/amanmcp/internal/vectorstore"
)

// SchemaVersion is the current PortableBundle wire format version
// (spec.md §6).
const SchemaVersion = "1.0"

// ReembeddingStrategy controls what happens to an imported entry's
// embedding relative to the target's embedding configuration.
type ReembeddingStrategy string

const (
	ReembedKeep ReembeddingStrategy = "keep"
	ReembedDrop ReembeddingStrategy = "drop"
	ReembedAuto ReembeddingStrategy = "auto"
)

// ConflictResolution controls behavior when an imported entry's id
// already exists in the target store.
type ConflictResolution string

const (
	ConflictSkip      ConflictResolution = "skip"
	ConflictOverwrite ConflictResolution = "overwrite"
	ConflictMerge     ConflictResolution = "merge"
)

// Store is the subset of vectorstore.VectorStore the export/import
// operations need.
type Store interface {
	List(ctx context.Context, limit, offset int, filters vectorstore.Filters) ([]*model.MemoryEntry, error)
	Get(ctx context.Context, id string) (*model.MemoryEntry, error)
	Upsert(ctx context.Context, entry *model.MemoryEntry) error
}

// ExportRequest scopes an export (spec.md §4.11).
type ExportRequest struct {
	Tags     []string
	DateFrom *time.Time
	DateTo   *time.Time
}

// Export collects entries from store, narrows by tag and date range,
// and wraps them in a PortableBundle stamped with embedding.
func Export(ctx context.Context, store Store, embedding model.EmbeddingMetadata, req ExportRequest) (*model.PortableBundle, error) {
	entries, err := store.List(ctx, 0, 0, vectorstore.Filters{Tags: req.Tags})
	if err != nil {
		return nil, merrors.Wrap(merrors.ErrCodeInternal, err)
	}

	filtered := entries[:0]
	for _, e := range entries {
		createdUTC := e.CreatedAt.UTC()
		if req.DateFrom != nil && createdUTC.Before(req.DateFrom.UTC()) {
			continue
		}
		if req.DateTo != nil && createdUTC.After(req.DateTo.UTC()) {
			continue
		}
		filtered = append(filtered, e)
	}

	bundle := &model.PortableBundle{
		Manifest: model.Manifest{
			SchemaVersion: SchemaVersion,
			Embedding:     embedding,
			MemoryCount:   len(filtered),
			ExportedAt:    time.Now().UTC().Format(time.RFC3339),
		},
		Entries: filtered,
	}
	return bundle, nil
}

// WriteJSON serializes a bundle as UTF-8 JSON to w.
func WriteJSON(w io.Writer, bundle *model.PortableBundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle); err != nil {
		return merrors.Wrap(merrors.ErrCodeInternal, err)
	}
	return nil
}

// ReadJSON parses a bundle from r, aborting with a structured error on
// any structural failure (spec.md §4.11 "abort on structural
// failures with a clear error").
func ReadJSON(r io.Reader) (*model.PortableBundle, error) {
	var bundle model.PortableBundle
	if err := json.NewDecoder(r).Decode(&bundle); err != nil {
		return nil, merrors.New(merrors.ErrCodeInvalidInput, fmt.Sprintf("malformed portable bundle: %v", err), err)
	}
	return &bundle, nil
}

// ImportRequest configures an import run (spec.md §4.11).
type ImportRequest struct {
	Conflict   ConflictResolution
	Reembed    ReembeddingStrategy
	DryRun     bool
	TargetMeta model.EmbeddingMetadata
}

// ImportSummary is the result of an import run, matching spec.md
// §4.11's exact field set.
type ImportSummary struct {
	Total            int      `json:"total"`
	Imported         int      `json:"imported"`
	Skipped          int      `json:"skipped"`
	Overwritten      int      `json:"overwritten"`
	Errors           int      `json:"errors"`
	NeedsReembedding bool     `json:"needs_reembedding"`
	DurationMS       int64    `json:"duration_ms"`
	ErrorDetails     []string `json:"error_details,omitempty"`
}

// Import applies bundle to store under the given strategy, never
// mutating entries in bundle itself.
func Import(ctx context.Context, store Store, bundle *model.PortableBundle, req ImportRequest) (ImportSummary, error) {
	if req.Conflict == "" {
		req.Conflict = ConflictSkip
	}
	if req.Reembed == "" {
		req.Reembed = ReembedAuto
	}

	start := time.Now()
	summary := ImportSummary{Total: len(bundle.Entries)}

	for _, src := range bundle.Entries {
		entry := src.Clone()
		applyReembedStrategy(entry, bundle.Manifest.Embedding, req.TargetMeta, req.Reembed, &summary)

		existing, err := store.Get(ctx, entry.ID)
		if err != nil {
			summary.Errors++
			summary.ErrorDetails = append(summary.ErrorDetails, fmt.Sprintf("%s: lookup failed: %v", entry.ID, err))
			continue
		}

		switch {
		case existing == nil:
			if !req.DryRun {
				if err := store.Upsert(ctx, entry); err != nil {
					summary.Errors++
					summary.ErrorDetails = append(summary.ErrorDetails, fmt.Sprintf("%s: insert failed: %v", entry.ID, err))
					continue
				}
			}
			summary.Imported++

		case req.Conflict == ConflictSkip:
			summary.Skipped++

		case req.Conflict == ConflictOverwrite:
			if !req.DryRun {
				if err := store.Upsert(ctx, entry); err != nil {
					summary.Errors++
					summary.ErrorDetails = append(summary.ErrorDetails, fmt.Sprintf("%s: overwrite failed: %v", entry.ID, err))
					continue
				}
			}
			summary.Overwritten++

		case req.Conflict == ConflictMerge:
			winner := entry
			if existing.UpdatedAt.After(entry.UpdatedAt) {
				winner = existing
			}
			if !req.DryRun {
				if err := store.Upsert(ctx, winner); err != nil {
					summary.Errors++
					summary.ErrorDetails = append(summary.ErrorDetails, fmt.Sprintf("%s: merge failed: %v", entry.ID, err))
					continue
				}
			}
			summary.Overwritten++
		}
	}

	summary.DurationMS = time.Since(start).Milliseconds()
	return summary, nil
}

// applyReembedStrategy mutates entry's embedding in place per strategy,
// comparing the bundle's source metadata against the target's.
func applyReembedStrategy(entry *model.MemoryEntry, source, target model.EmbeddingMetadata, strategy ReembeddingStrategy, summary *ImportSummary) {
	drop := func() {
		// A dropped embedding is flagged needs_reembedding and filled
		// with a zero vector sized to the target's dimensionality so
		// the store's fixed-width column (spec.md §6) still accepts
		// the entry pending a later re-embedding pass.
		entry.Embedding = make([]float32, target.Dimensions)
		summary.NeedsReembedding = true
	}
	switch strategy {
	case ReembedKeep:
		return
	case ReembedDrop:
		drop()
	case ReembedAuto:
		if !source.IsCompatibleWith(target) {
			drop()
		}
	}
}
