package memstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	embmock "github.com/mnemo-labs/mnemo-go/pkg/embedder/mock"
	"github.com/mnemo-labs/mnemo-go/pkg/llm"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
	"github.com/mnemo-labs/mnemo-go/pkg/storage/chromem"
)

func newTestStore(t *testing.T) (*Store, storage.VectorStore) {
	t.Helper()
	backend, err := chromem.New(chromem.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return New(backend, embmock.New(8)), backend
}

func TestInsertGeneratesMemoryID(t *testing.T) {
	s, _ := newTestStore(t)

	entry, err := s.Insert(context.Background(), "User adopted a cat named Miso.", WithTag("cats"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(entry.ID, "mem_"), "id %q", entry.ID)
	parts := strings.Split(entry.ID, "_")
	require.Len(t, parts, 3)
	assert.Len(t, parts[1], 14)
	assert.Len(t, parts[2], 4)
	assert.Equal(t, "cats", entry.Tag)
	assert.NotEmpty(t, entry.Embedding)
}

func TestInsertRejectsEmptyDocument(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Insert(context.Background(), "   ")
	assert.Error(t, err)
}

func TestSearchOrdersByRecency(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()
	emb := embmock.New(8)

	// Same embedding for every entry so similarity cannot decide the
	// order; recency must.
	vec, err := emb.Embed(ctx, "cats")
	require.NoError(t, err)
	for _, e := range []*storage.Entry{
		{ID: "mid", Document: "cats mid", Unix: 200, Embedding: vec},
		{ID: "old", Document: "cats old", Unix: 100, Embedding: vec},
		{ID: "new", Document: "cats new", Unix: 300, Embedding: vec},
	} {
		require.NoError(t, backend.Insert(ctx, e))
	}

	results := s.Search(ctx, "cats", nil, 3)
	require.Len(t, results, 3)
	assert.Equal(t, "new", results[0].ID)
	assert.Equal(t, "mid", results[1].ID)
	assert.Equal(t, "old", results[2].ID)
}

func TestSearchDegradesToEmpty(t *testing.T) {
	s := New(&failingBackend{}, embmock.New(8))
	results := s.Search(context.Background(), "anything", nil, 3)
	assert.Empty(t, results)
}

func TestCaptureSearchResult(t *testing.T) {
	s, _ := newTestStore(t)

	entry, err := s.CaptureSearchResult(context.Background(), "weather tomorrow", "Sunny, 24C.")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(entry.ID, "web_"), "id %q", entry.ID)
	assert.Equal(t, "web_search", entry.Source)
	assert.Contains(t, entry.Document, "weather tomorrow")
	assert.Contains(t, entry.Document, "Sunny, 24C.")
}

func TestPruneOlderThan(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()
	emb := embmock.New(8)
	vec, err := emb.Embed(ctx, "x")
	require.NoError(t, err)

	old := float64(time.Now().Add(-48 * time.Hour).Unix())
	fresh := float64(time.Now().Unix())
	require.NoError(t, backend.Insert(ctx, &storage.Entry{ID: "old", Document: "old", Unix: old, Embedding: vec}))
	require.NoError(t, backend.Insert(ctx, &storage.Entry{ID: "fresh", Document: "fresh", Unix: fresh, Embedding: vec}))

	removed, err := s.PruneOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSince(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()
	emb := embmock.New(8)
	vec, err := emb.Embed(ctx, "x")
	require.NoError(t, err)

	old := float64(time.Now().Add(-10 * 24 * time.Hour).Unix())
	recent := float64(time.Now().Add(-time.Hour).Unix())
	require.NoError(t, backend.Insert(ctx, &storage.Entry{ID: "old", Document: "old", Unix: old, Embedding: vec}))
	require.NoError(t, backend.Insert(ctx, &storage.Entry{ID: "recent", Document: "recent", Unix: recent, Embedding: vec}))

	entries, err := s.Since(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "recent", entries[0].ID)
}

func TestCleanSnippet(t *testing.T) {
	msgs := []llm.Message{
		{Role: "user", Content: "You: ignored early turn"},
		{Role: "user", Content: "You: what about the cat?"},
		{Role: "assistant", Content: "AI: Miso is doing great."},
	}
	got := cleanSnippet(msgs, 2)
	assert.Equal(t, "what about the cat? Miso is doing great.", got)
	assert.NotContains(t, got, "You:")
	assert.NotContains(t, got, "AI:")
}

// failingBackend errors on every operation.
type failingBackend struct{}

var errBackend = errors.New("backend offline")

func (f *failingBackend) Insert(context.Context, *storage.Entry) error { return errBackend }
func (f *failingBackend) Search(context.Context, []float64, *storage.SearchOptions) ([]*storage.Entry, error) {
	return nil, errBackend
}
func (f *failingBackend) DeleteWhere(context.Context, storage.Predicate) (int, error) {
	return 0, errBackend
}
func (f *failingBackend) DeleteIDs(context.Context, ...string) error { return errBackend }
func (f *failingBackend) Range(context.Context, float64, float64) ([]*storage.Entry, error) {
	return nil, errBackend
}
func (f *failingBackend) GetAll(context.Context) ([]*storage.Entry, error) { return nil, errBackend }
func (f *failingBackend) Count(context.Context) (int, error)               { return 0, errBackend }
func (f *failingBackend) Close() error                                     { return nil }
