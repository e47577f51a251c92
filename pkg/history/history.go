// Package history persists the rolling chat transcript that feeds prompt
// assembly and consolidation. The file is a plain JSON array of turn
// strings ("You: ..." / "AI: ...") so users can inspect or delete it by
// hand; every write goes through a temp file and rename so a crash never
// leaves a half-written transcript.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mnemo-labs/mnemo-go/pkg/llm"
	"github.com/mnemo-labs/mnemo-go/pkg/logging"
)

// Turn prefixes used in the persisted file.
const (
	UserPrefix      = "You: "
	AssistantPrefix = "AI: "
)

// Store is a file-backed message history. Safe for concurrent use.
type Store struct {
	path string

	mu       sync.Mutex
	messages []llm.Message

	log zerolog.Logger
}

// Open loads the history at path, creating the parent directory if
// needed. A missing or corrupt file yields an empty history; corruption
// is logged, never fatal.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}

	s := &Store{
		path: path,
		log:  logging.Component("history"),
	}

	data, err := os.ReadFile(path)
	if err == nil {
		var turns []string
		if err := json.Unmarshal(data, &turns); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("discarding corrupt history file")
		} else {
			s.messages = decodeTurns(turns)
		}
	}
	return s, nil
}

// Append adds messages to the end of the history and persists.
func (s *Store) Append(messages ...llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, messages...)
	return s.persist()
}

// AppendExchange records one user turn and its assistant reply.
func (s *Store) AppendExchange(userContent, assistantContent string) error {
	return s.Append(
		llm.Message{Role: "user", Content: userContent},
		llm.Message{Role: "assistant", Content: assistantContent},
	)
}

// ReplaceAll swaps the entire history for the given messages and
// persists. Consolidation uses this to drop summarized turns.
func (s *Store) ReplaceAll(messages []llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append([]llm.Message(nil), messages...)
	return s.persist()
}

// Snapshot returns a copy of the current messages.
func (s *Store) Snapshot() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.messages...)
}

// Tail returns a copy of the last n messages (all of them when n exceeds
// the length).
func (s *Store) Tail(n int) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n >= len(s.messages) {
		return append([]llm.Message(nil), s.messages...)
	}
	return append([]llm.Message(nil), s.messages[len(s.messages)-n:]...)
}

// Len reports the number of stored messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Clear empties the history and persists.
func (s *Store) Clear() error {
	return s.ReplaceAll(nil)
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(encodeTurns(s.messages), "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("history: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("history: replace file: %w", err)
	}
	return nil
}

func encodeTurns(msgs []llm.Message) []string {
	turns := make([]string, len(msgs))
	for i, m := range msgs {
		prefix := UserPrefix
		if m.Role == "assistant" {
			prefix = AssistantPrefix
		}
		turns[i] = prefix + m.Content
	}
	return turns
}

func decodeTurns(turns []string) []llm.Message {
	if len(turns) == 0 {
		return nil
	}
	msgs := make([]llm.Message, len(turns))
	for i, turn := range turns {
		switch {
		case strings.HasPrefix(turn, AssistantPrefix):
			msgs[i] = llm.Message{Role: "assistant", Content: strings.TrimPrefix(turn, AssistantPrefix)}
		case strings.HasPrefix(turn, UserPrefix):
			msgs[i] = llm.Message{Role: "user", Content: strings.TrimPrefix(turn, UserPrefix)}
		default:
			msgs[i] = llm.Message{Role: "user", Content: turn}
		}
	}
	return msgs
}
