// Package chromem implements storage.VectorStore on an in-memory
// chromem-go collection. It is the fast, non-durable backend used for
// tests and throwaway sessions; a side index keeps full metadata so scan
// operations do not depend on chromem query semantics.
package chromem

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"

	"github.com/mnemo-labs/mnemo-go/pkg/logging"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// Config holds the chromem backend settings.
type Config struct {
	// Collection names the chromem collection. Defaults to "memories".
	Collection string
}

// Store is an in-memory chromem-backed vector store.
type Store struct {
	collection *chromemgo.Collection

	mu    sync.RWMutex
	index map[string]*storage.Entry

	log zerolog.Logger
}

// New creates an empty in-memory store.
func New(cfg Config) (*Store, error) {
	if cfg.Collection == "" {
		cfg.Collection = "memories"
	}

	db := chromemgo.NewDB()
	// Embeddings are always supplied by the caller; the embedding func
	// must never be reached.
	coll, err := db.CreateCollection(cfg.Collection, nil, func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("chromem: collection requires precomputed embeddings")
	})
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection %s: %w", cfg.Collection, err)
	}

	return &Store{
		collection: coll,
		index:      make(map[string]*storage.Entry),
		log:        logging.Component("storage.chromem"),
	}, nil
}

// Insert appends an entry.
func (s *Store) Insert(ctx context.Context, entry *storage.Entry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("chromem: entry with non-empty id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[entry.ID]; exists {
		return fmt.Errorf("chromem: duplicate id %s", entry.ID)
	}

	doc := chromemgo.Document{
		ID:        entry.ID,
		Content:   entry.Document,
		Embedding: toFloat32(entry.Embedding),
		Metadata: map[string]string{
			"timestamp": entry.Timestamp,
			"unix":      strconv.FormatFloat(entry.Unix, 'f', -1, 64),
			"source":    entry.Source,
			"tag":       entry.Tag,
		},
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem: add document %s: %w", entry.ID, err)
	}

	stored := *entry
	s.index[entry.ID] = &stored
	return nil
}

// Search ranks entries by cosine similarity via chromem's query path.
func (s *Store) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Entry, error) {
	if opts == nil {
		opts = &storage.SearchOptions{Limit: 10}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := opts.Limit
	if count := s.collection.Count(); n <= 0 || n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, toFloat32(embedding), n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	entries := make([]*storage.Entry, 0, len(results))
	for _, r := range results {
		src, ok := s.index[r.ID]
		if !ok {
			continue
		}
		e := *src
		e.Score = float64(r.Similarity)
		if e.Score < opts.MinScore {
			continue
		}
		entries = append(entries, &e)
	}
	return storage.SortByScore(entries, opts.Limit), nil
}

// DeleteWhere removes all entries matching the predicate.
func (s *Store) DeleteWhere(ctx context.Context, match storage.Predicate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, e := range s.index {
		if match(e) {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.deleteLocked(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DeleteIDs removes entries by ID; unknown IDs are ignored.
func (s *Store) DeleteIDs(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := ids[:0:0]
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			known = append(known, id)
		}
	}
	if len(known) == 0 {
		return nil
	}
	return s.deleteLocked(ctx, known)
}

func (s *Store) deleteLocked(ctx context.Context, ids []string) error {
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("chromem: delete: %w", err)
	}
	for _, id := range ids {
		delete(s.index, id)
	}
	return nil
}

// Range returns entries with fromUnix <= Unix < toUnix, oldest first.
func (s *Store) Range(ctx context.Context, fromUnix, toUnix float64) ([]*storage.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*storage.Entry
	for _, e := range s.index {
		if e.Unix >= fromUnix && e.Unix < toUnix {
			copied := *e
			entries = append(entries, &copied)
		}
	}
	storage.SortByRecency(entries)
	// SortByRecency is newest first; Range wants oldest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// GetAll returns every entry, newest first.
func (s *Store) GetAll(ctx context.Context) ([]*storage.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*storage.Entry, 0, len(s.index))
	for _, e := range s.index {
		copied := *e
		entries = append(entries, &copied)
	}
	storage.SortByRecency(entries)
	return entries, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index), nil
}

// Close releases the in-memory state.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = make(map[string]*storage.Entry)
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
