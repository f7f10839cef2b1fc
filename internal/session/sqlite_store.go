package session

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/Aman-CERP/amanmcp/internal/embedprovider"
	"github.com/Aman-CERP/amanmcp/internal/idgen"
	"github.com/Aman-CERP/amanmcp/internal/model"
)

const sessionSchemaDDL = `
CREATE TABLE IF NOT EXISTS session_chunks (
	chunk_id    TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	instance_id TEXT NOT NULL,
	content     TEXT NOT NULL,
	vector      BLOB NOT NULL,
	start_time  TEXT NOT NULL,
	end_time    TEXT NOT NULL,
	chunk_index INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_chunks_session ON session_chunks(session_id);
CREATE INDEX IF NOT EXISTS idx_session_chunks_end_time ON session_chunks(end_time);

CREATE TABLE IF NOT EXISTS session_progress (
	session_id         TEXT PRIMARY KEY,
	last_ingested_idx  INTEGER NOT NULL,
	chunk_high_water   INTEGER NOT NULL
);
`

// SQLiteStore is the persistent session chunk store: one WAL-mode
// connection, a fixed-size float32 vector column encoded as a BLOB
// (spec.md §4.10's "columnar DB with fixed-size vector column"), and
// a bounded LRU in front of per-session progress lookups
// (SPEC_FULL.md domain stack: golang-lru/v2).
type SQLiteStore struct {
	mu              sync.Mutex
	db              *sql.DB
	embedder        Embedder
	dimensions      int
	counter         *tokenCounter
	targetTokens    int
	overlapTokens   int
	progressCache   *lru.Cache[string, [2]int] // session_id -> [last_ingested_idx, chunk_high_water]
	closed          bool
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string, embedder Embedder, dimensions int) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(sessionSchemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	cache, _ := lru.New[string, [2]int](256)

	return &SQLiteStore{
		db: db, embedder: embedder, dimensions: dimensions,
		counter: newTokenCounter(), targetTokens: DefaultTargetTokens, overlapTokens: DefaultOverlapTokens,
		progressCache: cache,
	}, nil
}

func (s *SQLiteStore) progress(sessionID string) (lastIdx, highWater int, err error) {
	if v, ok := s.progressCache.Get(sessionID); ok {
		return v[0], v[1], nil
	}

	row := s.db.QueryRow(`SELECT last_ingested_idx, chunk_high_water FROM session_progress WHERE session_id = ?`, sessionID)
	var v [2]int
	if scanErr := row.Scan(&v[0], &v[1]); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			s.progressCache.Add(sessionID, [2]int{0, 0})
			return 0, 0, nil
		}
		return 0, 0, scanErr
	}
	s.progressCache.Add(sessionID, v)
	return v[0], v[1], nil
}

func (s *SQLiteStore) Ingest(ctx context.Context, sessionID, instanceID string, messages []model.SessionMessage) (int, int, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, 0, fmt.Errorf("session store closed")
	}

	lastIdx, highWater, err := s.progress(sessionID)
	if err != nil {
		return 0, 0, err
	}
	if lastIdx >= len(messages) {
		return 0, 0, nil
	}
	newMessages := messages[lastIdx:]

	drafts := buildChunks(newMessages, highWater, s.counter, s.targetTokens, s.overlapTokens)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	for i, d := range drafts {
		vec, err := s.embedder.Embed(ctx, d.content)
		if err != nil {
			return 0, 0, err
		}
		if len(vec) != s.dimensions {
			return 0, 0, fmt.Errorf("session chunk embedding dimension mismatch: expected %d, got %d", s.dimensions, len(vec))
		}
		chunkID := idgen.New()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_chunks (chunk_id, session_id, instance_id, content, vector, start_time, end_time, chunk_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, chunkID, sessionID, instanceID, d.content, encodeVector(vec),
			d.startTime.Timestamp.UTC().Format(time.RFC3339Nano),
			d.endTime.Timestamp.UTC().Format(time.RFC3339Nano),
			highWater+i); err != nil {
			return 0, 0, err
		}
	}

	newHighWater := highWater + len(drafts)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_progress (session_id, last_ingested_idx, chunk_high_water)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET last_ingested_idx = excluded.last_ingested_idx, chunk_high_water = excluded.chunk_high_water
	`, sessionID, len(messages), newHighWater); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	s.progressCache.Add(sessionID, [2]int{len(messages), newHighWater})

	return len(drafts), len(newMessages), nil
}

func (s *SQLiteStore) Search(ctx context.Context, query string, sessionID string, limit int, minRelevance float64) ([]SearchResult, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("session store closed")
	}

	var rows *sql.Rows
	if sessionID != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT chunk_id, session_id, instance_id, content, vector, start_time, end_time, chunk_index
			FROM session_chunks WHERE session_id = ?
		`, sessionID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT chunk_id, session_id, instance_id, content, vector, start_time, end_time, chunk_index
			FROM session_chunks
		`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		c, vec, err := scanSessionChunk(rows)
		if err != nil {
			return nil, err
		}
		sim := embedprovider.Similarity(queryVec, vec)
		if sim < minRelevance {
			continue
		}
		c.Embedding = vec
		results = append(results, SearchResult{Chunk: c, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
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

func scanSessionChunk(rows *sql.Rows) (model.SessionChunk, []float32, error) {
	var c model.SessionChunk
	var vecBlob []byte
	var startStr, endStr string
	if err := rows.Scan(&c.ChunkID, &c.SessionID, &c.InstanceID, &c.Content, &vecBlob, &startStr, &endStr, &c.ChunkIndex); err != nil {
		return model.SessionChunk{}, nil, err
	}
	start, err := time.Parse(time.RFC3339Nano, startStr)
	if err != nil {
		return model.SessionChunk{}, nil, err
	}
	end, err := time.Parse(time.RFC3339Nano, endStr)
	if err != nil {
		return model.SessionChunk{}, nil, err
	}
	c.StartTime, c.EndTime = start, end
	return c, decodeVector(vecBlob), nil
}

func (s *SQLiteStore) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("session store closed")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM session_chunks WHERE end_time < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Stats{}, fmt.Errorf("session store closed")
	}

	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_chunks`).Scan(&stats.TotalChunks); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT session_id) FROM session_chunks`).Scan(&stats.DistinctSessions); err != nil {
		return Stats{}, err
	}
	if stats.TotalChunks == 0 {
		return stats, nil
	}

	earliest, err := s.fetchOne(ctx, `ORDER BY start_time ASC LIMIT 1`)
	if err != nil {
		return Stats{}, err
	}
	latest, err := s.fetchOne(ctx, `ORDER BY end_time DESC LIMIT 1`)
	if err != nil {
		return Stats{}, err
	}
	stats.EarliestChunk = earliest
	stats.LatestChunk = latest
	return stats, nil
}

func (s *SQLiteStore) fetchOne(ctx context.Context, orderClause string) (*model.SessionChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, session_id, instance_id, content, vector, start_time, end_time, chunk_index
		FROM session_chunks `+orderClause)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	c, vec, err := scanSessionChunk(rows)
	if err != nil {
		return nil, err
	}
	c.Embedding = vec
	return &c, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		b[i*4+0] = byte(bits)
		b[i*4+1] = byte(bits >> 8)
		b[i*4+2] = byte(bits >> 16)
		b[i*4+3] = byte(bits >> 24)
	}
	return b
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		v[i] = math.Float32frombits(bits)
	}
	return v
}
