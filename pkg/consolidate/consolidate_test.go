package consolidate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	embmock "github.com/mnemo-labs/mnemo-go/pkg/embedder/mock"
	"github.com/mnemo-labs/mnemo-go/pkg/history"
	"github.com/mnemo-labs/mnemo-go/pkg/llm"
	"github.com/mnemo-labs/mnemo-go/pkg/llm/llmtest"
	"github.com/mnemo-labs/mnemo-go/pkg/memstore"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
	"github.com/mnemo-labs/mnemo-go/pkg/storage/chromem"
	"github.com/mnemo-labs/mnemo-go/pkg/topics"
)

type fixture struct {
	engine   *Engine
	history  *history.Store
	memories *memstore.Store
	topics   *topics.Tracker
	backend  storage.VectorStore
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	dir := t.TempDir()

	hist, err := history.Open(filepath.Join(dir, "chat_history.json"))
	require.NoError(t, err)
	backend, err := chromem.New(chromem.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	mem := memstore.New(backend, embmock.New(8))
	tr, err := topics.Open(filepath.Join(dir, "current_tags.json"), filepath.Join(dir, "tags_counter.json"))
	require.NoError(t, err)

	cfg.History = hist
	cfg.Memories = mem
	cfg.Topics = tr
	if cfg.Summarizer == nil {
		cfg.Summarizer = &llmtest.Provider{Reply: "The user talked about their cat Miso."}
	}

	engine, err := New(cfg)
	require.NoError(t, err)
	return &fixture{engine: engine, history: hist, memories: mem, topics: tr, backend: backend}
}

func (f *fixture) fillHistory(t *testing.T, turns int) {
	t.Helper()
	for i := 0; i < turns; i++ {
		require.NoError(t, f.history.AppendExchange(
			fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i),
		))
	}
}

func TestNotDueBelowThreshold(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	// 15 messages, one short of the default threshold.
	f.fillHistory(t, 7)
	require.NoError(t, f.history.Append(llm.Message{Role: "user", Content: "one more"}))
	assert.False(t, f.engine.Due())

	require.NoError(t, f.engine.Consolidate(ctx))
	assert.Equal(t, 15, f.history.Len())
	count, err := f.memories.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestConsolidateAtThreshold(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.fillHistory(t, 8)
	require.True(t, f.engine.Due())
	require.NoError(t, f.engine.Consolidate(ctx))

	assert.Equal(t, 6, f.history.Len())
	all, err := f.memories.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "The user talked about their cat Miso.", all[0].Document)
	assert.Equal(t, 1, f.topics.Counter())
	assert.Equal(t, StateIdle, f.engine.State())
}

func TestSummaryFailureLeavesHistoryUntouched(t *testing.T) {
	f := newFixture(t, Config{
		Summarizer: &llmtest.Provider{Err: errors.New("model offline")},
	})
	ctx := context.Background()

	f.fillHistory(t, 8)
	before := f.history.Snapshot()

	err := f.engine.Consolidate(ctx)
	require.Error(t, err)

	assert.Equal(t, before, f.history.Snapshot())
	count, err := f.memories.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, f.topics.Counter())
}

func TestPassPrunesExpiredMemories(t *testing.T) {
	f := newFixture(t, Config{Retention: 24 * time.Hour})
	ctx := context.Background()

	vec, err := embmock.New(8).Embed(ctx, "old")
	require.NoError(t, err)
	require.NoError(t, f.backend.Insert(ctx, &storage.Entry{
		ID: "stale", Document: "stale",
		Unix:      float64(time.Now().Add(-48 * time.Hour).Unix()),
		Embedding: vec,
	}))

	f.fillHistory(t, 8)
	require.NoError(t, f.engine.Consolidate(ctx))

	all, err := f.memories.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotEqual(t, "stale", all[0].ID)
}

func TestTagCycleRegeneratesKeywords(t *testing.T) {
	tagger := &llmtest.Provider{Reply: "jazz, cats"}
	f := newFixture(t, Config{Threshold: 4, Chunk: 2, Tagger: tagger})
	ctx := context.Background()

	for pass := 0; pass < topics.CycleLength; pass++ {
		f.fillHistory(t, 2)
		require.NoError(t, f.engine.Consolidate(ctx))
	}

	assert.Equal(t, []string{"jazz", "cats"}, f.topics.Keywords())
	assert.Zero(t, f.topics.Counter())
	assert.Equal(t, 1, tagger.CallCount())
}

func TestTaggingFailureIsNonFatal(t *testing.T) {
	tagger := &llmtest.Provider{Err: errors.New("model offline")}
	f := newFixture(t, Config{Threshold: 4, Chunk: 2, Tagger: tagger})
	ctx := context.Background()

	for pass := 0; pass < topics.CycleLength; pass++ {
		f.fillHistory(t, 2)
		require.NoError(t, f.engine.Consolidate(ctx))
	}

	// The pass completed; the counter stays where the bump left it.
	assert.Equal(t, topics.CycleLength, f.topics.Counter())
	assert.Empty(t, f.topics.Keywords())
}

func TestForceConsolidate(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.fillHistory(t, 2)
	require.NoError(t, f.engine.ForceConsolidate(ctx))

	assert.Zero(t, f.history.Len())
	count, err := f.memories.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Nothing left: a second force is a no-op.
	require.NoError(t, f.engine.ForceConsolidate(ctx))
	count, err = f.memories.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConcurrentPassesConsumeOnce(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.fillHistory(t, 8)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.engine.Consolidate(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, f.history.Len())
	count, err := f.memories.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChunkLargerThanThresholdRejected(t *testing.T) {
	dir := t.TempDir()
	hist, err := history.Open(filepath.Join(dir, "h.json"))
	require.NoError(t, err)
	backend, err := chromem.New(chromem.Config{})
	require.NoError(t, err)
	defer backend.Close()
	tr, err := topics.Open(filepath.Join(dir, "tags.json"), filepath.Join(dir, "count.json"))
	require.NoError(t, err)

	_, err = New(Config{
		History:    hist,
		Memories:   memstore.New(backend, embmock.New(8)),
		Topics:     tr,
		Summarizer: &llmtest.Provider{Reply: "x"},
		Threshold:  4,
		Chunk:      8,
	})
	assert.Error(t, err)
}
