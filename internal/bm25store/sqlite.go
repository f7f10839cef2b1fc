package bm25store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO
)

// SQLiteIndex implements Index using SQLite's FTS5 virtual table,
// grounded on the teacher's SQLiteBM25Index: same WAL pragmas, same
// corruption-detection-and-clear pattern, same bm25() ranking
// function left unnormalized so callers apply spec.md §4.3's
// 1/(1+|rank|) mapping at merge time.
type SQLiteIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ Index = (*SQLiteIndex)(nil)

func validateFTSIntegrity(path string) error {
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
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='fts_content'`).Scan(&count); err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'fts_content' missing")
	}
	return nil
}

// NewSQLiteIndex opens (creating if absent) a FTS5-backed BM25 index
// at path. An empty path creates an in-memory index.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		if err := validateFTSIntegrity(path); err != nil {
			slog.Warn("bm25_index_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("BM25 index corrupted at %s and cannot remove: %w (original error: %v)", path, rmErr, err)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("bm25_index_cleared", slog.String("path", path), slog.String("reason", "corruption detected, please reindex"))
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

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

	idx := &SQLiteIndex{db: db, path: path}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteIndex) initSchema() error {
	_, err := s.db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
			doc_id UNINDEXED,
			content,
			tokenize='unicode61'
		);
		CREATE TABLE IF NOT EXISTS doc_ids (doc_id TEXT PRIMARY KEY);
	`)
	return err
}

// IndexDoc replaces any prior entry for id (spec.md §4.3), indexing
// content and space-joined tags as a single searchable field.
func (s *SQLiteIndex) IndexDoc(ctx context.Context, id, content string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("bm25store: index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete existing document %s: %w", id, err)
	}

	combined := content
	if len(tags) > 0 {
		combined = content + " " + strings.Join(tags, " ")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`, id, combined); err != nil {
		return fmt.Errorf("failed to index document %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO doc_ids(doc_id) VALUES (?)`, id); err != nil {
		return fmt.Errorf("failed to track document id %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *SQLiteIndex) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("bm25store: index is closed")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete from fts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_ids WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete from doc_ids: %w", err)
	}
	return tx.Commit()
}

// Search runs query, which is sanitized first per spec.md §4.3: a
// residual syntax error yields an empty result rather than an error.
func (s *SQLiteIndex) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("bm25store: index is closed")
	}

	sanitized := SanitizeQuery(query)
	if sanitized == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_content) as rank
		FROM fts_content
		WHERE content MATCH ?
		ORDER BY rank
		LIMIT ?`, sanitized, limit)
	if err != nil {
		if isFTSSyntaxError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func isFTSSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5:") || strings.Contains(msg, "syntax error")
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("bm25store: index is closed")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc_ids`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
