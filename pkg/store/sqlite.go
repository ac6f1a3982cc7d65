package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xhad/inspira/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps a collection in a local SQLite file and ranks it by
// brute-force cosine similarity.
type SQLiteBackend struct {
	db         *sql.DB
	collection string
	mu         sync.Mutex
}

// OpenSQLite opens or creates <dir>/vault.db.
func OpenSQLite(dir, collection string) (*SQLiteBackend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("vault path is required for the sqlite backend")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	dbPath := filepath.Join(dir, "vault.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open vault db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteBackend{db: db, collection: collection}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteBackend) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vault_entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			collection TEXT NOT NULL,
			document TEXT NOT NULL,
			embedding BLOB NOT NULL,
			metadata TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_vault_entries_collection ON vault_entries (collection);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init vault db: %w", err)
		}
	}
	return nil
}

func (s *SQLiteBackend) Upsert(ctx context.Context, entries []models.VaultEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO vault_entries
		(id, collection, document, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			embedding = excluded.embedding,
			metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", e.ID, err)
		}
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, s.collection, e.Document, encodeVector(e.Embedding), string(meta), createdAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Query(ctx context.Context, embedding []float32, limit int) ([]models.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, embedding, metadata FROM vault_entries WHERE collection = ? ORDER BY seq`,
		s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query vault: %w", err)
	}
	defer rows.Close()

	var hits []models.SearchResult
	for rows.Next() {
		var (
			id, document, meta string
			blob               []byte
		)
		if err := rows.Scan(&id, &document, &blob, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", id, err)
		}
		var metadata map[string]interface{}
		if err := json.Unmarshal([]byte(meta), &metadata); err != nil {
			return nil, fmt.Errorf("entry %s: failed to decode metadata: %w", id, err)
		}
		hits = append(hits, models.SearchResult{
			ID:       id,
			Document: document,
			Metadata: metadata,
			Score:    cosineSimilarity(embedding, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vault: %w", err)
	}

	// Rows arrive in insertion order; a stable sort keeps it for ties.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *SQLiteBackend) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vault_entries WHERE collection = ?`, s.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count vault entries: %w", err)
	}
	return n, nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
