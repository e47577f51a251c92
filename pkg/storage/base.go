// Package storage provides the vector storage contract for long-term
// memory entries and shared types used by its backends.
//
// The engine assumes one local embedding-backed collection per data
// directory; backends are not general-purpose vector databases.
package storage

import (
	"context"
	"math"
	"sort"
)

// Entry is a durable long-term memory record.
type Entry struct {
	// ID is unique within the collection. Consolidated entries use
	// "mem_<timestamp>_<suffix>"; web-search captures use "web_<unixtime>".
	ID string

	// Document is the free-text content, a consolidated summary by
	// convention kept short (~300 chars), not enforced by the store.
	Document string

	// Timestamp is the human-readable creation time ("2006-01-02 15:04:05").
	Timestamp string

	// Unix is the numeric creation time used for ordering and age filters.
	Unix float64

	// Source marks provenance (e.g. "web_search"); empty for consolidated
	// history summaries.
	Source string

	// Tag is an optional provenance label shown alongside the document.
	Tag string

	// Embedding is the vector used for similarity search.
	Embedding []float64

	// Score is the similarity score, populated on search results only.
	Score float64
}

// Predicate selects entries for bulk operations. It sees only the entry's
// metadata fields; the embedding may be nil during predicate evaluation.
type Predicate func(*Entry) bool

// SearchOptions bounds a similarity search.
type SearchOptions struct {
	// Limit caps the number of candidates returned.
	Limit int

	// MinScore drops candidates below this cosine similarity.
	MinScore float64
}

// VectorStore is the interface all storage backends implement.
//
// Backends must tolerate concurrent readers; writers serialize internally.
type VectorStore interface {
	// Insert appends an entry. Inserting an existing ID is an error.
	Insert(ctx context.Context, entry *Entry) error

	// Search returns up to opts.Limit entries by cosine similarity,
	// highest first. Recency ordering is the caller's concern.
	Search(ctx context.Context, embedding []float64, opts *SearchOptions) ([]*Entry, error)

	// DeleteWhere removes all entries matching the predicate and reports
	// how many were removed.
	DeleteWhere(ctx context.Context, match Predicate) (int, error)

	// DeleteIDs removes entries by ID; unknown IDs are ignored.
	DeleteIDs(ctx context.Context, ids ...string) error

	// Range returns entries with fromUnix <= Unix < toUnix, oldest first.
	Range(ctx context.Context, fromUnix, toUnix float64) ([]*Entry, error)

	// GetAll returns every entry, newest first. Used by maintenance and
	// export tooling.
	GetAll(ctx context.Context) ([]*Entry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// SortByScore orders entries by similarity descending and applies the
// limit (0 means no limit).
func SortByScore(entries []*Entry, limit int) []*Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// SortByRecency orders entries by Unix descending (newest first).
func SortByRecency(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Unix > entries[j].Unix
	})
}

// CosineSimilarity computes the cosine similarity of two vectors, 0 when
// lengths differ or either vector is zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
