package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-go/pkg/llm"
)

func TestAppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AppendExchange("hello", "hi there"))

	reloaded, err := Open(path)
	require.NoError(t, err)
	msgs := reloaded.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.Message{Role: "user", Content: "hello"}, msgs[0])
	assert.Equal(t, llm.Message{Role: "assistant", Content: "hi there"}, msgs[1])
}

func TestFileIsFlatTurnList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AppendExchange("hello", "hi there"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var turns []string
	require.NoError(t, json.Unmarshal(data, &turns))
	assert.Equal(t, []string{"You: hello", "AI: hi there"}, turns)
}

func TestCorruptFileYieldsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")
	require.NoError(t, os.WriteFile(path, []byte("[{broken"), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Zero(t, s.Len())
}

func TestReplaceAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")
	s, err := Open(path)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendExchange("q", "a"))
	}
	require.NoError(t, s.ReplaceAll([]llm.Message{{Role: "user", Content: "only"}}))

	assert.Equal(t, 1, s.Len())
	reloaded, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
}

func TestTail(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "chat_history.json"))
	require.NoError(t, err)

	require.NoError(t, s.Append(
		llm.Message{Role: "user", Content: "one"},
		llm.Message{Role: "assistant", Content: "two"},
		llm.Message{Role: "user", Content: "three"},
	))

	tail := s.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "two", tail[0].Content)
	assert.Equal(t, "three", tail[1].Content)

	assert.Len(t, s.Tail(10), 3)
}

func TestSnapshotIsCopy(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "chat_history.json"))
	require.NoError(t, err)
	require.NoError(t, s.AppendExchange("hello", "hi"))

	snap := s.Snapshot()
	snap[0].Content = "mutated"
	assert.Equal(t, "hello", s.Snapshot()[0].Content)
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AppendExchange("hello", "hi"))
	require.NoError(t, s.Clear())

	assert.Zero(t, s.Len())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}
