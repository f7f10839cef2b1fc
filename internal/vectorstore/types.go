// Package vectorstore implements the polymorphic vector store of
// spec.md §4.2: insert/get/delete/list/search by similarity and
// metadata filters, with in-memory and persistent (sqlite + hnsw)
// implementations.
package vectorstore

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Aman-CERP/amanmcp/internal/model"
)

// Metric selects the distance function the persistent index uses.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "l2"
)

// Config configures a vector store implementation.
type Config struct {
	Dimensions     int
	Metric         Metric
	M              int // HNSW connectivity
	EfConstruction int
	EfSearch       int
}

// DefaultConfig returns the spec's recommended ANN parameters.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions:     dimensions,
		Metric:         MetricCosine,
		M:              16,
		EfConstruction: 200,
		EfSearch:       20,
	}
}

// Filters narrows recall/list/count, per spec.md §4.2.
type Filters struct {
	Tags           []string // any-match
	SourceInstance string
	SourceType     model.SourceType
}

// Stats is the aggregate view returned by GetStats (spec.md §4.2).
type Stats struct {
	Total          int
	BySourceType   map[model.SourceType]int
	ByTag          map[string]int
	ByInstance     map[string]int
	Corrections    int
}

// ErrDimensionMismatch is returned by Store/Upsert when an embedding's
// length does not match the configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// idShapeRe is the strict whitelist spec.md §4.2/§9 requires before any
// id participates in a string-equality filter reaching a backend that
// accepts embedded predicates: alphanumerics and hyphens only.
var idShapeRe = regexp.MustCompile(`^[a-zA-Z0-9\-]+$`)

// ValidateIDShape enforces the security contract of spec.md §4.2: never
// let an externally supplied id reach an embedded-predicate query
// string unless it matches this shape.
func ValidateIDShape(id string) error {
	if !idShapeRe.MatchString(id) {
		return fmt.Errorf("invalid id shape %q: must be alphanumeric/hyphen", id)
	}
	return nil
}

// VectorStore is the capability interface both implementations satisfy.
type VectorStore interface {
	Store(ctx context.Context, entry *model.MemoryEntry) error
	Upsert(ctx context.Context, entry *model.MemoryEntry) error
	Get(ctx context.Context, id string) (*model.MemoryEntry, error)
	Delete(ctx context.Context, id string) (bool, error)
	Recall(ctx context.Context, queryVec []float32, limit int, minSimilarity float64, filters Filters) ([]model.RecallResult, error)
	List(ctx context.Context, limit, offset int, filters Filters) ([]*model.MemoryEntry, error)
	Count(ctx context.Context, filters Filters) (int, error)
	GetStats(ctx context.Context) (Stats, error)
	Close() error
}
