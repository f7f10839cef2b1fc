package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	_ "modernc.org/sqlite" // pure-Go driver, no CGO

	"github.com/Aman-CERP/amanmcp/internal/model"
)

// PersistentStore is the columnar+ANN implementation required by
// spec.md §4.2: entry metadata lives in SQLite (WAL mode, matching the
// concurrent-access pattern of the teacher's SQLiteBM25Index), and the
// similarity index is an in-memory coder/hnsw graph kept consistent
// with the table by rebuilding from it at startup.
type PersistentStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	graph  *hnsw.Graph[uint64]
	cfg    Config
	path   string
	closed bool

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

var _ VectorStore = (*PersistentStore)(nil)

// validateSQLiteIntegrity mirrors the teacher's corruption-recovery
// pattern: an unreadable or structurally incomplete database is
// treated as corrupt and cleared rather than surfaced as a fatal error.
func validateSQLiteIntegrity(path string) error {
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
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='memories'`).Scan(&count); err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("table 'memories' missing")
	}
	return nil
}

// NewPersistentStore opens (creating if absent) the SQLite-backed store
// at path and rebuilds its HNSW index from the surviving rows.
func NewPersistentStore(path string, cfg Config) (*PersistentStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vectorstore: dimensions must be positive")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := validateSQLiteIntegrity(path); err != nil {
		slog.Warn("vectorstore_index_corrupted", slog.String("path", path), slog.String("error", err.Error()))
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("store corrupted at %s and cannot remove: %w (original error: %v)", path, rmErr, err)
		}
		_ = os.Remove(path + "-wal")
		_ = os.Remove(path + "-shm")
		slog.Info("vectorstore_index_cleared", slog.String("path", path), slog.String("reason", "corruption detected, will rebuild"))
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case MetricEuclidean:
		graph.Distance = hnsw.EuclideanDistance
	default:
		cfg.Metric = MetricCosine
		graph.Distance = hnsw.CosineDistance
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	s := &PersistentStore{
		db:     db,
		graph:  graph,
		cfg:    cfg,
		path:   path,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
	if err := s.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}
	return s, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS memories (
	id              TEXT PRIMARY KEY,
	content         TEXT NOT NULL,
	vector          BLOB NOT NULL,
	source_instance TEXT NOT NULL,
	source_type     TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	tags            TEXT NOT NULL DEFAULT '[]',
	context         TEXT NOT NULL DEFAULT '',
	confidence      REAL NOT NULL DEFAULT 1.0,
	supersedes      TEXT NOT NULL DEFAULT '',
	related_to      TEXT NOT NULL DEFAULT '[]',
	deleted         INTEGER NOT NULL DEFAULT 0,
	deleted_at      TEXT
);
CREATE INDEX IF NOT EXISTS idx_memories_deleted ON memories(deleted);
CREATE INDEX IF NOT EXISTS idx_memories_source_instance ON memories(source_instance);
CREATE INDEX IF NOT EXISTS idx_memories_source_type ON memories(source_type);
`

func initSchema(db *sql.DB) error {
	_, err := db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// rebuildIndex loads every non-deleted row and repopulates the in-memory
// HNSW graph. Called once at startup since coder/hnsw graphs are not
// themselves persisted (only the row vectors are durable).
func (s *PersistentStore) rebuildIndex() error {
	rows, err := s.db.Query(`SELECT id, vector FROM memories WHERE deleted = 0`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("decode vector for %s: %w", id, err)
		}
		s.addToGraph(id, vec)
	}
	return rows.Err()
}

func (s *PersistentStore) addToGraph(id string, vec []float32) {
	if existingKey, exists := s.idMap[id]; exists {
		// lazy deletion: orphan the old key rather than calling
		// graph.Delete, which corrupts the graph when it empties
		// the last remaining node (coder/hnsw known issue).
		delete(s.keyMap, existingKey)
		delete(s.idMap, id)
	}
	key := s.nextKey
	s.nextKey++

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	if s.cfg.Metric == MetricCosine {
		normalizeInPlace(normalized)
	}
	s.graph.Add(hnsw.MakeNode(key, normalized))
	s.idMap[id] = key
	s.keyMap[key] = id
}

func (s *PersistentStore) removeFromGraph(id string) {
	if key, exists := s.idMap[id]; exists {
		delete(s.keyMap, key)
		delete(s.idMap, id)
	}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		bits := uint32FromFloat32(f)
		buf[4*i] = byte(bits)
		buf[4*i+1] = byte(bits >> 8)
		buf[4*i+2] = byte(bits >> 16)
		buf[4*i+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 4", len(buf))
	}
	n := len(buf) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(buf[4*i]) | uint32(buf[4*i+1])<<8 | uint32(buf[4*i+2])<<16 | uint32(buf[4*i+3])<<24
		out[i] = float32FromUint32(bits)
	}
	return out, nil
}

func (s *PersistentStore) Store(ctx context.Context, entry *model.MemoryEntry) error {
	return s.upsertRow(ctx, entry, false)
}

func (s *PersistentStore) Upsert(ctx context.Context, entry *model.MemoryEntry) error {
	return s.upsertRow(ctx, entry, true)
}

func (s *PersistentStore) upsertRow(ctx context.Context, entry *model.MemoryEntry, isUpsert bool) error {
	if len(entry.Embedding) != s.cfg.Dimensions {
		return &ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(entry.Embedding)}
	}
	if err := ValidateIDShape(entry.ID); err != nil {
		return err
	}

	tagsJSON, err := json.Marshal(entry.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	relatedJSON, err := json.Marshal(entry.RelatedTo)
	if err != nil {
		return fmt.Errorf("marshal related_to: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vectorstore: store is closed")
	}

	query := `INSERT INTO memories
		(id, content, vector, source_instance, source_type, created_at, updated_at, tags, context, confidence, supersedes, related_to, deleted, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)`
	if isUpsert {
		query += `
		ON CONFLICT(id) DO UPDATE SET
			content=excluded.content, vector=excluded.vector, source_instance=excluded.source_instance,
			source_type=excluded.source_type, updated_at=excluded.updated_at, tags=excluded.tags,
			context=excluded.context, confidence=excluded.confidence, supersedes=excluded.supersedes,
			related_to=excluded.related_to, deleted=0, deleted_at=NULL`
	}

	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.Content, encodeVector(entry.Embedding), entry.SourceInstance, string(entry.SourceType),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano), entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(tagsJSON), entry.Context, entry.Confidence, entry.Supersedes, string(relatedJSON))
	if err != nil {
		return fmt.Errorf("failed to write memory row: %w", err)
	}

	s.addToGraph(entry.ID, entry.Embedding)
	return nil
}

func (s *PersistentStore) Get(ctx context.Context, id string) (*model.MemoryEntry, error) {
	if err := ValidateIDShape(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, content, vector, source_instance, source_type, created_at, updated_at,
		tags, context, confidence, supersedes, related_to, deleted, deleted_at
		FROM memories WHERE id = ? AND deleted = 0`, id)
	entry, err := scanMemoryRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *PersistentStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := ValidateIDShape(id); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("vectorstore: store is closed")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET deleted = 1, deleted_at = ? WHERE id = ? AND deleted = 0`, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark memory deleted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	s.removeFromGraph(id)
	return true, nil
}

func (s *PersistentStore) Recall(ctx context.Context, queryVec []float32, limit int, minSimilarity float64, filters Filters) ([]model.RecallResult, error) {
	if len(queryVec) != s.cfg.Dimensions {
		return nil, &ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(queryVec)}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Now()
	if s.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(queryVec))
	copy(normalized, queryVec)
	if s.cfg.Metric == MetricCosine {
		normalizeInPlace(normalized)
	}

	// Over-fetch: filters are applied after ANN search, against rows
	// the graph doesn't know about, so ask for more candidates than
	// the caller's limit before trimming.
	k := limit * 4
	if k < limit+20 {
		k = limit + 20
	}
	nodes := s.graph.Search(normalized, k)

	results := make([]model.RecallResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		entry, err := s.getLocked(ctx, id)
		if err != nil || entry == nil {
			continue
		}
		if !matchesFilters(entry, filters) {
			continue
		}
		dist := s.graph.Distance(normalized, node.Value)
		score := distanceToScore(dist, s.cfg.Metric)
		if score < minSimilarity {
			continue
		}
		results = append(results, model.RecallResult{Memory: entry, Score: score, RetrievalMethod: model.RetrievalVector})
	}

	sortRecallResults(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	elapsed := time.Since(start).Milliseconds()
	for i := range results {
		results[i].RetrievalTimeMS = elapsed
	}
	return results, nil
}

func (s *PersistentStore) getLocked(ctx context.Context, id string) (*model.MemoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, content, vector, source_instance, source_type, created_at, updated_at,
		tags, context, confidence, supersedes, related_to, deleted, deleted_at
		FROM memories WHERE id = ? AND deleted = 0`, id)
	entry, err := scanMemoryRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return entry, err
}

func (s *PersistentStore) List(ctx context.Context, limit, offset int, filters Filters) ([]*model.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, content, vector, source_instance, source_type, created_at, updated_at,
		tags, context, confidence, supersedes, related_to, deleted, deleted_at
		FROM memories WHERE deleted = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	var out []*model.MemoryEntry
	skipped := 0
	for rows.Next() {
		entry, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		if !matchesFilters(entry, filters) {
			continue
		}
		if offset > 0 && skipped < offset {
			skipped++
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func (s *PersistentStore) Count(ctx context.Context, filters Filters) (int, error) {
	entries, err := s.List(ctx, 0, 0, filters)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// GetStats aggregates natively in SQL where the filter allows it, and
// falls back to an in-process pass over every live row only for
// per-tag counts (tags are stored as a JSON array, not a queryable
// column).
func (s *PersistentStore) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		BySourceType: make(map[model.SourceType]int),
		ByTag:        make(map[string]int),
		ByInstance:   make(map[string]int),
	}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE deleted = 0`)
	if err := row.Scan(&stats.Total); err != nil {
		return Stats{}, fmt.Errorf("failed to count memories: %w", err)
	}

	typeRows, err := s.db.QueryContext(ctx, `SELECT source_type, COUNT(*) FROM memories WHERE deleted = 0 GROUP BY source_type`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to aggregate source types: %w", err)
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var st string
		var n int
		if err := typeRows.Scan(&st, &n); err != nil {
			return Stats{}, err
		}
		stats.BySourceType[model.SourceType(st)] = n
		if model.SourceType(st) == model.SourceCorrection {
			stats.Corrections = n
		}
	}

	instRows, err := s.db.QueryContext(ctx, `SELECT source_instance, COUNT(*) FROM memories WHERE deleted = 0 GROUP BY source_instance`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to aggregate source instances: %w", err)
	}
	defer instRows.Close()
	for instRows.Next() {
		var inst string
		var n int
		if err := instRows.Scan(&inst, &n); err != nil {
			return Stats{}, err
		}
		stats.ByInstance[inst] = n
	}

	tagRows, err := s.db.QueryContext(ctx, `SELECT tags FROM memories WHERE deleted = 0`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to scan tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tagsJSON string
		if err := tagRows.Scan(&tagsJSON); err != nil {
			return Stats{}, err
		}
		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			continue
		}
		for _, t := range tags {
			stats.ByTag[t]++
		}
	}

	return stats, nil
}

func (s *PersistentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemoryRow(r rowScanner) (*model.MemoryEntry, error) {
	var (
		id, content, sourceInstance, sourceType                     string
		vecBlob                                                     []byte
		createdAtStr, updatedAtStr, tagsJSON, context, relatedJSON  string
		confidence                                                  float64
		supersedes                                                  string
		deletedInt                                                  int
		deletedAtStr                                                sql.NullString
	)
	if err := r.Scan(&id, &content, &vecBlob, &sourceInstance, &sourceType, &createdAtStr, &updatedAtStr,
		&tagsJSON, &context, &confidence, &supersedes, &relatedJSON, &deletedInt, &deletedAtStr); err != nil {
		return nil, err
	}

	vec, err := decodeVector(vecBlob)
	if err != nil {
		return nil, fmt.Errorf("decode vector for %s: %w", id, err)
	}
	var tags, related []string
	_ = json.Unmarshal([]byte(tagsJSON), &tags)
	_ = json.Unmarshal([]byte(relatedJSON), &related)

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	entry := &model.MemoryEntry{
		ID:             id,
		Content:        content,
		Embedding:      vec,
		SourceInstance: sourceInstance,
		SourceType:     model.SourceType(sourceType),
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		Tags:           tags,
		Context:        context,
		Confidence:     confidence,
		Supersedes:     supersedes,
		RelatedTo:      related,
		Deleted:        deletedInt != 0,
	}
	if deletedAtStr.Valid {
		if t, err := time.Parse(time.RFC3339Nano, deletedAtStr.String); err == nil {
			entry.DeletedAt = &t
		}
	}
	return entry, nil
}

func sortRecallResults(results []model.RecallResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
}
