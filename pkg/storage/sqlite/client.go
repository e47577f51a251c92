// Package sqlite implements storage.VectorStore on an embedded SQLite
// database. Embeddings are stored as JSON text and similarity is computed
// in memory, which is the right trade-off for collections of a few
// thousand entries on a desktop machine.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/mnemo-labs/mnemo-go/pkg/logging"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// Config holds the SQLite backend settings.
type Config struct {
	// Path is the database file location. The parent directory is created
	// if missing.
	Path string

	// Collection names the table holding the entries. Defaults to
	// "memories".
	Collection string
}

// Store is a SQLite-backed vector store.
type Store struct {
	db         *sql.DB
	collection string
	mu         sync.RWMutex
	log        zerolog.Logger
}

// New opens (creating if needed) the database at cfg.Path and ensures the
// collection table exists.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "memories"
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping database: %w", err)
	}

	s := &Store{
		db:         db,
		collection: cfg.Collection,
		log:        logging.Component("storage.sqlite"),
	}
	if err := s.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Debug().Str("path", cfg.Path).Str("collection", cfg.Collection).Msg("store opened")
	return s, nil
}

func (s *Store) createTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			unix_time REAL NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			tag TEXT NOT NULL DEFAULT '',
			embedding TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_unix ON %s(unix_time);
	`, s.collection, s.collection, s.collection)
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("sqlite: create table %s: %w", s.collection, err)
	}
	return nil
}

// Insert appends an entry. Duplicate IDs are rejected by the primary key.
func (s *Store) Insert(ctx context.Context, entry *storage.Entry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("sqlite: entry with non-empty id is required")
	}
	embJSON, err := json.Marshal(entry.Embedding)
	if err != nil {
		return fmt.Errorf("sqlite: marshal embedding: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(
		"INSERT INTO %s (id, document, timestamp, unix_time, source, tag, embedding) VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.collection,
	)
	if _, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.Document, entry.Timestamp, entry.Unix, entry.Source, entry.Tag, string(embJSON),
	); err != nil {
		return fmt.Errorf("sqlite: insert %s: %w", entry.ID, err)
	}
	return nil
}

// Search loads all entries and ranks them by cosine similarity in memory.
func (s *Store) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Entry, error) {
	if opts == nil {
		opts = &storage.SearchOptions{Limit: 10}
	}

	s.mu.RLock()
	entries, err := s.loadAll(ctx)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	results := make([]*storage.Entry, 0, len(entries))
	for _, e := range entries {
		e.Score = storage.CosineSimilarity(embedding, e.Embedding)
		if e.Score < opts.MinScore {
			continue
		}
		results = append(results, e)
	}
	return storage.SortByScore(results, opts.Limit), nil
}

// DeleteWhere scans the collection and removes entries matching the
// predicate.
func (s *Store) DeleteWhere(ctx context.Context, match storage.Predicate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadAll(ctx)
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, e := range entries {
		if match(e) {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.deleteIDs(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DeleteIDs removes entries by ID; unknown IDs are ignored.
func (s *Store) DeleteIDs(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteIDs(ctx, ids)
}

func (s *Store) deleteIDs(ctx context.Context, ids []string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.collection)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin delete: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: delete %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit delete: %w", err)
	}
	return nil
}

// Range returns entries with fromUnix <= unix_time < toUnix, oldest first.
func (s *Store) Range(ctx context.Context, fromUnix, toUnix float64) ([]*storage.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf(
		"SELECT id, document, timestamp, unix_time, source, tag, embedding FROM %s WHERE unix_time >= ? AND unix_time < ? ORDER BY unix_time ASC",
		s.collection,
	)
	rows, err := s.db.QueryContext(ctx, query, fromUnix, toUnix)
	if err != nil {
		return nil, fmt.Errorf("sqlite: range query: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// GetAll returns every entry, newest first.
func (s *Store) GetAll(ctx context.Context) ([]*storage.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	storage.SortByRecency(entries)
	return entries, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.collection)
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return count, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) loadAll(ctx context.Context) ([]*storage.Entry, error) {
	query := fmt.Sprintf(
		"SELECT id, document, timestamp, unix_time, source, tag, embedding FROM %s",
		s.collection,
	)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*storage.Entry, error) {
	var entries []*storage.Entry
	for rows.Next() {
		var e storage.Entry
		var embJSON string
		if err := rows.Scan(&e.ID, &e.Document, &e.Timestamp, &e.Unix, &e.Source, &e.Tag, &embJSON); err != nil {
			return nil, fmt.Errorf("sqlite: scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(embJSON), &e.Embedding); err != nil {
			return nil, fmt.Errorf("sqlite: decode embedding for %s: %w", e.ID, err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate entries: %w", err)
	}
	return entries, nil
}
