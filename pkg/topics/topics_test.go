package topics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTracker(t *testing.T, dir string) *Tracker {
	t.Helper()
	tr, err := Open(filepath.Join(dir, "current_tags.json"), filepath.Join(dir, "tags_counter.json"))
	require.NoError(t, err)
	return tr
}

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return openTracker(t, t.TempDir())
}

func TestBumpCycle(t *testing.T) {
	tr := newTestTracker(t)

	for i := 1; i < CycleLength; i++ {
		due, err := tr.Bump()
		require.NoError(t, err)
		assert.False(t, due, "bump %d should not be due", i)
	}

	due, err := tr.Bump()
	require.NoError(t, err)
	assert.True(t, due)
}

func TestResetCycle(t *testing.T) {
	tr := newTestTracker(t)
	for i := 0; i < CycleLength; i++ {
		_, err := tr.Bump()
		require.NoError(t, err)
	}

	require.NoError(t, tr.ResetCycle([]string{"jazz", "hiking"}))
	assert.Zero(t, tr.Counter())
	assert.Equal(t, []string{"jazz", "hiking"}, tr.Keywords())
	assert.Equal(t, "jazz, hiking", tr.Tag())
}

func TestResetCycleCapsKeywords(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.ResetCycle([]string{"a", "b", "c", "d", "e", "f", "g"}))
	assert.Len(t, tr.Keywords(), MaxKeywords)
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	tr := openTracker(t, dir)
	_, err := tr.Bump()
	require.NoError(t, err)
	require.NoError(t, tr.ResetCycle([]string{"tea"}))
	_, err = tr.Bump()
	require.NoError(t, err)

	reloaded := openTracker(t, dir)
	assert.Equal(t, 1, reloaded.Counter())
	assert.Equal(t, []string{"tea"}, reloaded.Keywords())
}

func TestFileLayout(t *testing.T) {
	dir := t.TempDir()

	tr := openTracker(t, dir)
	require.NoError(t, tr.ResetCycle([]string{"jazz", "hiking"}))
	_, err := tr.Bump()
	require.NoError(t, err)

	// Keywords and updated_at live in the tags file.
	data, err := os.ReadFile(filepath.Join(dir, "current_tags.json"))
	require.NoError(t, err)
	var tags struct {
		Tags      []string `json:"tags"`
		UpdatedAt string   `json:"updated_at"`
	}
	require.NoError(t, json.Unmarshal(data, &tags))
	assert.Equal(t, []string{"jazz", "hiking"}, tags.Tags)
	assert.NotEmpty(t, tags.UpdatedAt)

	// The cycle count lives in its own file.
	data, err = os.ReadFile(filepath.Join(dir, "tags_counter.json"))
	require.NoError(t, err)
	var counter struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(data, &counter))
	assert.Equal(t, 1, counter.Count)
}

func TestCounterSurvivesTagFileLoss(t *testing.T) {
	dir := t.TempDir()

	tr := openTracker(t, dir)
	_, err := tr.Bump()
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "current_tags.json")))

	reloaded := openTracker(t, dir)
	assert.Equal(t, 1, reloaded.Counter())
	assert.Empty(t, reloaded.Keywords())
}

func TestCorruptFilesYieldEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "current_tags.json"), []byte("{oops"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tags_counter.json"), []byte("{oops"), 0o644))

	tr := openTracker(t, dir)
	assert.Zero(t, tr.Counter())
	assert.Empty(t, tr.Keywords())
}

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"plain", "jazz, hiking, tea", []string{"jazz", "hiking", "tea"}},
		{"quoted and spaced", ` "jazz" ,  'hiking'. `, []string{"jazz", "hiking"}},
		{"over limit", "a, b, c, d, e, f, g", []string{"a", "b", "c", "d", "e"}},
		{"empty parts", "jazz,, ,tea", []string{"jazz", "tea"}},
		{"empty input", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKeywords(tt.raw))
		})
	}
}
