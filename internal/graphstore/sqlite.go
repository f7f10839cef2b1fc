package graphstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/amanmcp/internal/model"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS entities (
	name        TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	metadata    TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_memories (
	entity_name TEXT NOT NULL,
	memory_id   TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (entity_name, memory_id)
);
CREATE INDEX IF NOT EXISTS idx_entity_memories_memory ON entity_memories(memory_id);
CREATE INDEX IF NOT EXISTS idx_entity_memories_entity ON entity_memories(entity_name);

CREATE TABLE IF NOT EXISTS relationships (
	source_name   TEXT NOT NULL,
	target_name   TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	metadata      TEXT,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (source_name, target_name, relation_type)
);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_name);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_name);

CREATE TABLE IF NOT EXISTS relationship_memories (
	source_name   TEXT NOT NULL,
	target_name   TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	memory_id     TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (source_name, target_name, relation_type, memory_id)
);
CREATE INDEX IF NOT EXISTS idx_relationship_memories_memory ON relationship_memories(memory_id);

CREATE TABLE IF NOT EXISTS temporal_facts (
	memory_id           TEXT NOT NULL,
	subject             TEXT NOT NULL,
	relation            TEXT NOT NULL,
	resolved_date       TEXT NOT NULL,
	original_expression TEXT NOT NULL,
	precision           TEXT NOT NULL,
	confidence          REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_temporal_facts_memory ON temporal_facts(memory_id);
CREATE INDEX IF NOT EXISTS idx_temporal_facts_date ON temporal_facts(resolved_date);
`

// SQLiteStore implements Store over a single WAL-mode SQLite
// connection, mirroring the teacher's SQLiteBM25Index lifecycle
// (corruption check on open, pragma tuning, single long-lived *sql.DB).
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name='entities'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("entities table missing")
	}

	return nil
}

// NewSQLiteStore opens (or creates) the graph store at path. An empty
// path opens an in-memory store, used by tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateIntegrity(path); validErr != nil {
			slog.Warn("graphstore_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			for _, suffix := range []string{"", "-wal", "-shm"} {
				_ = os.Remove(path + suffix)
			}
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph store: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-65536",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// normalizeName lower-cases an entity name so identity holds
// regardless of the case an extractor emitted it in (spec.md §3:
// "Entity identity is the lower-cased name within a graph store").
// Every method taking an entity name normalizes it here, at the
// package boundary, so callers never need to pre-normalize.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AddEntity upserts an entity by name. An existing entity's type is
// preserved rather than overwritten (spec.md §4.8) since a later,
// less-confident extraction shouldn't downgrade an established node.
func (s *SQLiteStore) AddEntity(ctx context.Context, name string, entityType model.EntityType, metadata map[string]string) error {
	name = normalizeName(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store closed")
	}

	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}

	now := nowRFC3339()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (name, entity_type, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET updated_at = excluded.updated_at
	`, name, string(entityType), metaJSON, now, now)
	return err
}

// AddRelationship upserts both endpoints, upserts the relationship
// triple, and associates it with the originating memory (spec.md
// §4.8). An endpoint not yet in the store is inserted with type
// concept; no type inference is done, and a known endpoint keeps its
// type.
func (s *SQLiteStore) AddRelationship(ctx context.Context, source, target string, relation model.RelationType, memoryID string) error {
	source = normalizeName(source)
	target = normalizeName(target)

	if err := s.ensureEntityExists(ctx, source); err != nil {
		return err
	}
	if err := s.ensureEntityExists(ctx, target); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store closed")
	}

	now := nowRFC3339()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO relationships (source_name, target_name, relation_type, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_name, target_name, relation_type) DO NOTHING
	`, source, target, string(relation), now); err != nil {
		return err
	}

	if memoryID != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO relationship_memories (source_name, target_name, relation_type, memory_id, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(source_name, target_name, relation_type, memory_id) DO NOTHING
		`, source, target, string(relation), memoryID, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ensureEntityExists inserts a placeholder concept entity for an
// endpoint that hasn't been seen before; it never overwrites a known one.
func (s *SQLiteStore) ensureEntityExists(ctx context.Context, name string) error {
	name = normalizeName(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store closed")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE name = ?`, name).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := nowRFC3339()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (name, entity_type, metadata, created_at, updated_at)
		VALUES (?, ?, NULL, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, string(model.EntityConcept), now, now)
	return err
}

// AssociateEntityWithMemory is the counterpart to AddRelationship's
// memory-association step, called by the extraction pipeline layer
// when a memory mentions an entity directly (not via a relationship).
func (s *SQLiteStore) AssociateEntityWithMemory(ctx context.Context, entityName, memoryID string) error {
	entityName = normalizeName(entityName)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_memories (entity_name, memory_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_name, memory_id) DO NOTHING
	`, entityName, memoryID, nowRFC3339())
	return err
}

func (s *SQLiteStore) GetEntitiesForMemory(ctx context.Context, memoryID string) ([]model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("graph store closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.name, e.entity_type, e.metadata
		FROM entities e
		JOIN entity_memories em ON em.entity_name = e.name
		WHERE em.memory_id = ?
		ORDER BY e.name
	`, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var name, entityType string
		var metaJSON sql.NullString
		if err := rows.Scan(&name, &entityType, &metaJSON); err != nil {
			return nil, err
		}
		meta, err := unmarshalMetadata(metaJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Entity{Name: name, EntityType: model.EntityType(entityType), Metadata: meta})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetMemoriesForEntity(ctx context.Context, entityName string) ([]string, error) {
	entityName = normalizeName(entityName)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("graph store closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id FROM entity_memories WHERE entity_name = ? ORDER BY created_at
	`, entityName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetRelationshipsForEntity(ctx context.Context, entityName string) ([]model.Relationship, error) {
	entityName = normalizeName(entityName)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("graph store closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_name, target_name, relation_type, metadata
		FROM relationships
		WHERE source_name = ?
		ORDER BY target_name
	`, entityName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Relationship
	for rows.Next() {
		var source, target, relation string
		var metaJSON sql.NullString
		if err := rows.Scan(&source, &target, &relation, &metaJSON); err != nil {
			return nil, err
		}
		meta, err := unmarshalMetadata(metaJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Relationship{
			SourceName: source, TargetName: target,
			RelationType: model.RelationType(relation), Metadata: meta,
		})
	}
	return out, rows.Err()
}

// FindConnected runs a BFS outward from the seed entity names, bounded
// to min(hops, MaxHopIterations). Every per-hop query binds the
// current frontier as parameters — entity names are never
// string-interpolated into SQL (spec.md §4.8, §9).
func (s *SQLiteStore) FindConnected(ctx context.Context, entityNames []string, hops int) ([]string, error) {
	if hops > MaxHopIterations {
		hops = MaxHopIterations
	}
	if hops < 0 {
		hops = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("graph store closed")
	}

	visited := make(map[string]struct{})
	frontier := make([]string, 0, len(entityNames))
	for _, n := range entityNames {
		n = normalizeName(n)
		if _, ok := visited[n]; !ok {
			visited[n] = struct{}{}
			frontier = append(frontier, n)
		}
	}

	memoryIDs := make(map[string]struct{})
	if err := s.collectMemoriesForNames(ctx, frontier, memoryIDs); err != nil {
		return nil, err
	}

	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(frontier)), ",")
		args := make([]any, len(frontier))
		for i, n := range frontier {
			args[i] = n
		}

		query := fmt.Sprintf(`
			SELECT target_name FROM relationships WHERE source_name IN (%s)
			UNION
			SELECT source_name FROM relationships WHERE target_name IN (%s)
		`, placeholders, placeholders)
		rows, err := s.db.QueryContext(ctx, query, append(append([]any{}, args...), args...)...)
		if err != nil {
			return nil, err
		}

		var next []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, err
			}
			if _, ok := visited[name]; !ok {
				visited[name] = struct{}{}
				next = append(next, name)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()

		if len(next) == 0 {
			break
		}
		if err := s.collectMemoriesForNames(ctx, next, memoryIDs); err != nil {
			return nil, err
		}
		frontier = next
	}

	out := make([]string, 0, len(memoryIDs))
	for id := range memoryIDs {
		out = append(out, id)
	}
	return out, nil
}

func (s *SQLiteStore) collectMemoriesForNames(ctx context.Context, names []string, acc map[string]struct{}) error {
	if len(names) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT memory_id FROM entity_memories WHERE entity_name IN (%s)
	`, placeholders), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		acc[id] = struct{}{}
	}
	return rows.Err()
}

// DeleteMemory drops this memory's entity and relationship
// associations, then prunes any relationship and entity left with no
// remaining memory reference (spec.md §4.8).
func (s *SQLiteStore) DeleteMemory(ctx context.Context, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_memories WHERE memory_id = ?`, memoryID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM relationship_memories WHERE memory_id = ?`, memoryID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM temporal_facts WHERE memory_id = ?`, memoryID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM relationships
		WHERE NOT EXISTS (
			SELECT 1 FROM relationship_memories rm
			WHERE rm.source_name = relationships.source_name
			  AND rm.target_name = relationships.target_name
			  AND rm.relation_type = relationships.relation_type
		)
	`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM entities
		WHERE NOT EXISTS (SELECT 1 FROM entity_memories em WHERE em.entity_name = entities.name)
		  AND NOT EXISTS (SELECT 1 FROM relationships r WHERE r.source_name = entities.name OR r.target_name = entities.name)
	`); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) AddTemporalFact(ctx context.Context, fact model.TemporalFact) error {
	fact.Clamp()
	fact.Subject = normalizeName(fact.Subject)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO temporal_facts (memory_id, subject, relation, resolved_date, original_expression, precision, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, fact.MemoryID, fact.Subject, string(fact.Relation), fact.ResolvedDate, fact.OriginalExpression, string(fact.Precision), fact.Confidence)
	return err
}

func (s *SQLiteStore) GetTemporalFactsForMemory(ctx context.Context, memoryID string) ([]model.TemporalFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("graph store closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, subject, relation, resolved_date, original_expression, precision, confidence
		FROM temporal_facts WHERE memory_id = ? ORDER BY resolved_date
	`, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTemporalFacts(rows)
}

func (s *SQLiteStore) GetMemoriesForDate(ctx context.Context, datePrefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("graph store closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT memory_id FROM temporal_facts WHERE resolved_date LIKE ? ORDER BY memory_id
	`, datePrefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetMemoriesInDateRange returns memories whose resolved_date falls
// within [start, end], inclusive on both ends (spec.md §4.8).
func (s *SQLiteStore) GetMemoriesInDateRange(ctx context.Context, start, end string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("graph store closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT memory_id FROM temporal_facts
		WHERE resolved_date >= ? AND resolved_date <= ?
		ORDER BY memory_id
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close is tolerant of being called more than once, matching the
// teacher's shutdown-hook idiom.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func scanTemporalFacts(rows *sql.Rows) ([]model.TemporalFact, error) {
	var out []model.TemporalFact
	for rows.Next() {
		var f model.TemporalFact
		var relation, precision string
		if err := rows.Scan(&f.MemoryID, &f.Subject, &relation, &f.ResolvedDate, &f.OriginalExpression, &precision, &f.Confidence); err != nil {
			return nil, err
		}
		f.Relation = model.TemporalRelation(relation)
		f.Precision = model.DatePrecision(precision)
		out = append(out, f)
	}
	return out, rows.Err()
}
