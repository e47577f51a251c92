// Package memstore is the long-term episodic memory store. It layers
// embedding, id generation and recency-aware retrieval over a
// storage.VectorStore backend.
//
// Retrieval failures degrade to an empty result. Long-term memory is an
// enhancement to a chat turn, never a dependency the turn needs to
// survive.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mnemo-labs/mnemo-go/pkg/embedder"
	"github.com/mnemo-labs/mnemo-go/pkg/llm"
	"github.com/mnemo-labs/mnemo-go/pkg/logging"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// DefaultSearchLimit is used when a search asks for zero results.
const DefaultSearchLimit = 5

const timestampLayout = "2006-01-02 15:04:05"

// Store is the long-term memory store. Safe for concurrent use as long
// as the underlying backend is.
type Store struct {
	backend  storage.VectorStore
	embedder embedder.Provider
	log      zerolog.Logger
}

// New wires a memory store over a backend and an embedder.
func New(backend storage.VectorStore, emb embedder.Provider) *Store {
	return &Store{
		backend:  backend,
		embedder: emb,
		log:      logging.Component("memstore"),
	}
}

// InsertOption customizes a new entry.
type InsertOption func(*storage.Entry)

// WithTag sets the topic tag recorded on the entry.
func WithTag(tag string) InsertOption {
	return func(e *storage.Entry) { e.Tag = tag }
}

// WithSource marks the entry's provenance.
func WithSource(source string) InsertOption {
	return func(e *storage.Entry) { e.Source = source }
}

// Search embeds the query, biased toward conversational continuity by a
// cleaned snippet of the most recent turns, and returns up to n entries
// ordered newest first. Any embedding or backend failure is logged and
// yields an empty result.
func (s *Store) Search(ctx context.Context, query string, recent []llm.Message, n int) []*storage.Entry {
	if n <= 0 {
		n = DefaultSearchLimit
	}

	augmented := query
	if snippet := cleanSnippet(recent, 2); snippet != "" {
		augmented = snippet + "\n" + query
	}

	emb, err := s.embedder.Embed(ctx, augmented)
	if err != nil {
		s.log.Warn().Err(err).Msg("embed query failed, continuing without long-term context")
		return nil
	}

	results, err := s.backend.Search(ctx, emb, &storage.SearchOptions{Limit: n})
	if err != nil {
		s.log.Warn().Err(err).Msg("memory search failed, continuing without long-term context")
		return nil
	}

	// Similarity picked the candidates; recency decides presentation.
	storage.SortByRecency(results)
	return results
}

// Insert embeds and stores a new memory with a generated id.
func (s *Store) Insert(ctx context.Context, document string, opts ...InsertOption) (*storage.Entry, error) {
	document = strings.TrimSpace(document)
	if document == "" {
		return nil, fmt.Errorf("memstore: empty document")
	}

	emb, err := s.embedder.Embed(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("memstore: embed document: %w", err)
	}

	now := time.Now()
	entry := &storage.Entry{
		ID:        newMemoryID(now),
		Document:  document,
		Timestamp: now.Format(timestampLayout),
		Unix:      float64(now.Unix()),
		Embedding: emb,
	}
	for _, opt := range opts {
		opt(entry)
	}

	if err := s.backend.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("memstore: insert: %w", err)
	}
	s.log.Debug().Str("id", entry.ID).Msg("memory stored")
	return entry, nil
}

// CaptureSearchResult persists the outcome of a web search so future
// turns can recall it without searching again.
func (s *Store) CaptureSearchResult(ctx context.Context, query, summary string) (*storage.Entry, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil, fmt.Errorf("memstore: empty search summary")
	}

	document := fmt.Sprintf("Web search for %q: %s", query, summary)
	emb, err := s.embedder.Embed(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("memstore: embed search result: %w", err)
	}

	now := time.Now()
	entry := &storage.Entry{
		ID:        fmt.Sprintf("web_%d", now.Unix()),
		Document:  document,
		Timestamp: now.Format(timestampLayout),
		Unix:      float64(now.Unix()),
		Source:    "web_search",
		Embedding: emb,
	}
	if err := s.backend.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("memstore: insert search result: %w", err)
	}
	return entry, nil
}

// PruneOlderThan removes entries older than the retention window and
// reports how many were removed.
func (s *Store) PruneOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := float64(time.Now().Add(-retention).Unix())
	removed, err := s.backend.DeleteWhere(ctx, func(e *storage.Entry) bool {
		return e.Unix < cutoff
	})
	if err != nil {
		return 0, fmt.Errorf("memstore: prune: %w", err)
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("pruned expired memories")
	}
	return removed, nil
}

// Since returns entries created within the given window, oldest first.
func (s *Store) Since(ctx context.Context, window time.Duration) ([]*storage.Entry, error) {
	now := time.Now()
	from := float64(now.Add(-window).Unix())
	to := float64(now.Unix()) + 1
	entries, err := s.backend.Range(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("memstore: range: %w", err)
	}
	return entries, nil
}

// DeleteID removes a single entry.
func (s *Store) DeleteID(ctx context.Context, id string) error {
	if err := s.backend.DeleteIDs(ctx, id); err != nil {
		return fmt.Errorf("memstore: delete %s: %w", id, err)
	}
	return nil
}

// GetAll returns every entry, newest first.
func (s *Store) GetAll(ctx context.Context) ([]*storage.Entry, error) {
	return s.backend.GetAll(ctx)
}

// Count reports the number of stored memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.backend.Count(ctx)
}

// newMemoryID builds "mem_<timestamp>_<suffix>". The random suffix keeps
// two consolidations within the same second from colliding.
func newMemoryID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return fmt.Sprintf("mem_%s_%s", now.Format("20060102150405"), suffix)
}

// cleanSnippet joins the last n messages with role markers stripped.
func cleanSnippet(messages []llm.Message, n int) string {
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	var parts []string
	for _, m := range messages {
		content := strings.TrimSpace(stripRoleMarkers(m.Content))
		if content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, " ")
}

func stripRoleMarkers(s string) string {
	for _, marker := range []string{"You:", "AI:", "User:", "Assistant:"} {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(s), marker); ok {
			return strings.TrimSpace(rest)
		}
	}
	return s
}
