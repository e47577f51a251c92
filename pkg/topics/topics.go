// Package topics persists the interest keywords attached to consolidated
// memories and the cycle counter that decides when they are regenerated.
// Keywords live in one file as {tags, updated_at}; the counter lives in a
// separate {count} file so a tagging failure never clobbers the last good
// keyword set.
package topics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnemo-labs/mnemo-go/pkg/logging"
)

const (
	// CycleLength is how many consolidations run between keyword
	// regenerations.
	CycleLength = 5

	// MaxKeywords bounds the keyword list.
	MaxKeywords = 5

	updatedAtLayout = "2006-01-02 15:04:05"
)

type tagsFile struct {
	Tags      []string `json:"tags"`
	UpdatedAt string   `json:"updated_at"`
}

type counterFile struct {
	Count int `json:"count"`
}

// Tracker is a file-backed keyword and cycle state. Safe for concurrent
// use.
type Tracker struct {
	tagsPath    string
	counterPath string

	mu       sync.Mutex
	keywords []string
	counter  int

	log zerolog.Logger
}

// Open loads the tracker state from the tags file and the cycle counter
// file. Missing or corrupt files yield empty keywords and a zero counter.
func Open(tagsPath, counterPath string) (*Tracker, error) {
	if tagsPath == "" || counterPath == "" {
		return nil, fmt.Errorf("topics: tags and counter paths are required")
	}
	if err := os.MkdirAll(filepath.Dir(tagsPath), 0o755); err != nil {
		return nil, fmt.Errorf("topics: create data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(counterPath), 0o755); err != nil {
		return nil, fmt.Errorf("topics: create data dir: %w", err)
	}

	tr := &Tracker{
		tagsPath:    tagsPath,
		counterPath: counterPath,
		log:         logging.Component("topics"),
	}

	if data, err := os.ReadFile(tagsPath); err == nil {
		var state tagsFile
		if err := json.Unmarshal(data, &state); err != nil {
			tr.log.Warn().Err(err).Str("path", tagsPath).Msg("discarding corrupt tags file")
		} else {
			tr.keywords = state.Tags
		}
	}
	if data, err := os.ReadFile(counterPath); err == nil {
		var state counterFile
		if err := json.Unmarshal(data, &state); err != nil {
			tr.log.Warn().Err(err).Str("path", counterPath).Msg("discarding corrupt counter file")
		} else {
			tr.counter = state.Count
		}
	}
	return tr, nil
}

// Keywords returns a copy of the current keyword list.
func (t *Tracker) Keywords() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.keywords...)
}

// Tag renders the keywords as the comma-joined tag stored on entries,
// empty when no keywords exist yet.
func (t *Tracker) Tag() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.keywords, ", ")
}

// Bump advances the cycle counter, persists it, and reports whether this
// consolidation should regenerate keywords.
func (t *Tracker) Bump() (due bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counter++
	if err := t.persistCounter(); err != nil {
		return false, err
	}
	return t.counter >= CycleLength, nil
}

// Counter returns the current cycle count.
func (t *Tracker) Counter() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counter
}

// ResetCycle replaces the keywords, stamps updated_at, and zeroes the
// counter.
func (t *Tracker) ResetCycle(keywords []string) error {
	if len(keywords) > MaxKeywords {
		keywords = keywords[:MaxKeywords]
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.keywords = append([]string(nil), keywords...)
	t.counter = 0
	if err := t.persistTags(); err != nil {
		return err
	}
	return t.persistCounter()
}

// ParseKeywords splits a comma-separated model reply into at most
// MaxKeywords trimmed, non-empty keywords.
func ParseKeywords(raw string) []string {
	var keywords []string
	for _, part := range strings.Split(raw, ",") {
		kw := strings.TrimSpace(part)
		kw = strings.Trim(kw, `"'.`)
		if kw == "" {
			continue
		}
		keywords = append(keywords, kw)
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return keywords
}

func (t *Tracker) persistTags() error {
	state := tagsFile{
		Tags:      t.keywords,
		UpdatedAt: time.Now().Format(updatedAtLayout),
	}
	if state.Tags == nil {
		state.Tags = []string{}
	}
	return writeJSONAtomic(t.tagsPath, state)
}

func (t *Tracker) persistCounter() error {
	return writeJSONAtomic(t.counterPath, counterFile{Count: t.counter})
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("topics: encode: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("topics: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("topics: replace file: %w", err)
	}
	return nil
}
