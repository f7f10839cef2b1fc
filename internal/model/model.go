// Package model defines the data model shared across the memory
// service's stores and pipeline stages (spec.md §3).
package model

import "time"

// SourceType enumerates how a MemoryEntry came to exist.
type SourceType string

const (
	SourceUserExplicit SourceType = "user_explicit"
	SourceAutoCapture  SourceType = "auto_capture"
	SourceCorrection   SourceType = "correction"
	SourceCrossInstance SourceType = "cross_instance"
	SourceLegacy       SourceType = "legacy"
	SourceUnknown      SourceType = "unknown"
)

// MemoryEntry is the canonical record (spec.md §3).
type MemoryEntry struct {
	ID             string     `json:"id"`
	Content        string     `json:"content"`
	Embedding      []float32  `json:"embedding,omitempty"`
	SourceInstance string     `json:"source_instance"`
	SourceType     SourceType `json:"source_type"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Tags           []string   `json:"tags"`
	Context        string     `json:"context,omitempty"`
	Confidence     float64    `json:"confidence"`
	Supersedes     string     `json:"supersedes,omitempty"`
	RelatedTo      []string   `json:"related_to,omitempty"`
	Deleted        bool       `json:"-"`
	DeletedAt      *time.Time `json:"-"`
}

// Clone returns a deep copy of the entry, used by import/export (spec.md §4.11)
// so the caller's bundle is never mutated in place.
func (e *MemoryEntry) Clone() *MemoryEntry {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Embedding != nil {
		cp.Embedding = append([]float32(nil), e.Embedding...)
	}
	if e.Tags != nil {
		cp.Tags = append([]string(nil), e.Tags...)
	}
	if e.RelatedTo != nil {
		cp.RelatedTo = append([]string(nil), e.RelatedTo...)
	}
	return &cp
}

// EntityType enumerates recognized entity kinds (spec.md §3).
type EntityType string

const (
	EntityService      EntityType = "service"
	EntityTechnology   EntityType = "technology"
	EntityDatabase     EntityType = "database"
	EntityWorker       EntityType = "worker"
	EntityCache        EntityType = "cache"
	EntityGateway      EntityType = "gateway"
	EntityServer       EntityType = "server"
	EntityClient       EntityType = "client"
	EntityPerson       EntityType = "person"
	EntityPlace        EntityType = "place"
	EntityOrganization EntityType = "organization"
	EntityDate         EntityType = "date"
	EntityEvent        EntityType = "event"
	EntityProduct      EntityType = "product"
	EntityConcept      EntityType = "concept"
)

// Entity is a node in the graph store (spec.md §3). Identity is the
// lower-cased Name within a graph store.
type Entity struct {
	Name       string            `json:"name"`
	EntityType EntityType        `json:"entity_type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// RelationType enumerates recognized relationship verbs (spec.md §3).
type RelationType string

const (
	RelationUses       RelationType = "uses"
	RelationConnectsTo RelationType = "connects_to"
	RelationStoresIn   RelationType = "stores_in"
	RelationDependsOn  RelationType = "depends_on"
	RelationTalksTo    RelationType = "talks_to"
	RelationCalls      RelationType = "calls"
	RelationHandles    RelationType = "handles"
)

// Relationship is an edge in the graph store. Identity is the triple
// (SourceName, TargetName, RelationType).
type Relationship struct {
	SourceName   string            `json:"source_name"`
	TargetName   string            `json:"target_name"`
	RelationType RelationType      `json:"relation_type"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// TemporalRelation enumerates the kind of date fact recorded.
type TemporalRelation string

const (
	TemporalOccurredOn   TemporalRelation = "occurred_on"
	TemporalMentionedDate TemporalRelation = "mentioned_date"
)

// DatePrecision is the granularity of a resolved date.
type DatePrecision string

const (
	PrecisionDay   DatePrecision = "day"
	PrecisionMonth DatePrecision = "month"
	PrecisionYear  DatePrecision = "year"
)

// TemporalFact attaches a resolved date expression to a memory (spec.md §3).
type TemporalFact struct {
	MemoryID           string           `json:"memory_id"`
	Subject            string           `json:"subject"`
	Relation           TemporalRelation `json:"relation"`
	ResolvedDate       string           `json:"resolved_date"` // ISO 8601, precision-dependent
	OriginalExpression string           `json:"original_expression"`
	Precision          DatePrecision    `json:"precision"`
	Confidence         float64          `json:"confidence"`
}

// Clamp keeps Confidence within [0, 1], matching the Python original's
// __post_init__ clamp.
func (t *TemporalFact) Clamp() {
	if t.Confidence < 0 {
		t.Confidence = 0
	}
	if t.Confidence > 1 {
		t.Confidence = 1
	}
}

// SessionMessage is one turn of a conversation transcript (spec.md §4.10).
type SessionMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionChunk is a windowed, embedded slice of a session transcript (spec.md §3).
type SessionChunk struct {
	ChunkID    string    `json:"chunk_id"`
	SessionID  string    `json:"session_id"`
	InstanceID string    `json:"instance_id"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding,omitempty"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	ChunkIndex int       `json:"chunk_index"`
}

// RetrievalMethod records how a recall result was admitted (spec.md §4.5).
type RetrievalMethod string

const (
	RetrievalVector RetrievalMethod = "vector"
	RetrievalHybrid RetrievalMethod = "hybrid"
	RetrievalGraph  RetrievalMethod = "graph"
	RetrievalEntity RetrievalMethod = "entity"
)

// RecallResult is one row of a recall/search response.
type RecallResult struct {
	Memory          *MemoryEntry
	Score           float64
	RetrievalMethod RetrievalMethod
	RetrievalTimeMS int64
}

// EmbeddingMetadata describes the model that produced a set of
// embeddings, for portability compatibility checks (spec.md §3, §4.11).
type EmbeddingMetadata struct {
	ModelName  string `json:"model_name"`
	Dimensions int    `json:"dimensions"`
	Provider   string `json:"provider,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// IsCompatibleWith reports whether two embedding configurations produce
// directly-comparable vectors.
func (m EmbeddingMetadata) IsCompatibleWith(o EmbeddingMetadata) bool {
	return m.ModelName == o.ModelName && m.Dimensions == o.Dimensions
}

// Manifest is the header of a PortableBundle (spec.md §3, §6).
type Manifest struct {
	SchemaVersion string            `json:"schema_version"`
	Embedding     EmbeddingMetadata `json:"embedding"`
	MemoryCount   int               `json:"memory_count"`
	ExportedAt    string            `json:"exported_at,omitempty"`
}

// PortableBundle is the stable wire format for export/import (spec.md §6).
type PortableBundle struct {
	Manifest Manifest       `json:"manifest"`
	Entries  []*MemoryEntry `json:"entries"`
}
