// Package graphstore implements the entity/relationship/temporal graph
// described in spec.md §4.8: a SQLite-backed store tracking which
// memories mention which entities, how entities relate to each other,
// and what dates memories resolve to.
package graphstore

import (
	"context"

	"github.com/Aman-CERP/amanmcp/internal/model"
)

// MaxHopIterations bounds find_connected's BFS so a pathological hop
// count can never turn into an unbounded scan (spec.md §4.8).
const MaxHopIterations = 100

// Store is the graph store's operation surface (spec.md §4.8).
type Store interface {
	AddEntity(ctx context.Context, name string, entityType model.EntityType, metadata map[string]string) error
	AddRelationship(ctx context.Context, source, target string, relation model.RelationType, memoryID string) error
	AssociateEntityWithMemory(ctx context.Context, entityName, memoryID string) error
	GetEntitiesForMemory(ctx context.Context, memoryID string) ([]model.Entity, error)
	GetMemoriesForEntity(ctx context.Context, entityName string) ([]string, error)
	GetRelationshipsForEntity(ctx context.Context, entityName string) ([]model.Relationship, error)
	FindConnected(ctx context.Context, entityNames []string, hops int) ([]string, error)
	DeleteMemory(ctx context.Context, memoryID string) error
	AddTemporalFact(ctx context.Context, fact model.TemporalFact) error
	GetTemporalFactsForMemory(ctx context.Context, memoryID string) ([]model.TemporalFact, error)
	GetMemoriesForDate(ctx context.Context, datePrefix string) ([]string, error)
	GetMemoriesInDateRange(ctx context.Context, start, end string) ([]string, error)
	Close() error
}
