// Package consolidate folds the oldest rolling-history turns into
// durable summarized memories and keeps the topic keywords fresh.
//
// The engine is a small state machine, IDLE to CONSOLIDATING to TAGGING
// and back. One invariant matters above all others: history is never
// truncated unless its summary was generated successfully. Every other
// step of a pass is best-effort.
package consolidate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnemo-labs/mnemo-go/pkg/history"
	"github.com/mnemo-labs/mnemo-go/pkg/llm"
	"github.com/mnemo-labs/mnemo-go/pkg/logging"
	"github.com/mnemo-labs/mnemo-go/pkg/memstore"
	"github.com/mnemo-labs/mnemo-go/pkg/topics"
)

// State reports what the engine is currently doing.
type State int32

const (
	StateIdle State = iota
	StateConsolidating
	StateTagging
)

func (s State) String() string {
	switch s {
	case StateConsolidating:
		return "consolidating"
	case StateTagging:
		return "tagging"
	default:
		return "idle"
	}
}

// Defaults for Config fields left zero.
const (
	DefaultThreshold = 16
	DefaultChunk     = 10
	DefaultRetention = 365 * 24 * time.Hour

	// taggingWindow is how far back keyword regeneration looks.
	taggingWindow = 7 * 24 * time.Hour
)

// Config wires a consolidation engine.
type Config struct {
	History  *history.Store
	Memories *memstore.Store
	Topics   *topics.Tracker

	// Summarizer is the memory model, configured independently of the
	// chat provider so a small local model can do summarization.
	Summarizer llm.Provider

	// Tagger is the main chat model used for keyword regeneration.
	Tagger llm.Provider

	// Threshold is the history length that makes a pass due.
	Threshold int

	// Chunk is how many messages one pass summarizes.
	Chunk int

	// Retention is the memory expiry window applied during a pass.
	Retention time.Duration
}

// Engine runs consolidation passes. At most one pass runs at a time;
// concurrent passes over the same history would double-consume turns.
type Engine struct {
	cfg   Config
	mu    sync.Mutex
	state atomic.Int32
	log   zerolog.Logger
}

// New creates an engine, applying defaults for zero config fields.
func New(cfg Config) (*Engine, error) {
	if cfg.History == nil || cfg.Memories == nil || cfg.Topics == nil {
		return nil, fmt.Errorf("consolidate: history, memories and topics are required")
	}
	if cfg.Summarizer == nil {
		return nil, fmt.Errorf("consolidate: summarizer provider is required")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Chunk <= 0 {
		cfg.Chunk = DefaultChunk
	}
	if cfg.Chunk > cfg.Threshold {
		return nil, fmt.Errorf("consolidate: chunk %d exceeds threshold %d", cfg.Chunk, cfg.Threshold)
	}
	if cfg.Retention == 0 {
		cfg.Retention = DefaultRetention
	}
	return &Engine{
		cfg: cfg,
		log: logging.Component("consolidate"),
	}, nil
}

// Due reports whether the history has grown past the threshold.
func (e *Engine) Due() bool {
	return e.cfg.History.Len() >= e.cfg.Threshold
}

// State returns the engine's current phase.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Consolidate runs one pass if the history is still past the threshold.
// The only error it returns is a failed summary; everything after that
// point is logged and absorbed. Not session-gated: once started, a pass
// runs to completion.
func (e *Engine) Consolidate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	msgs := e.cfg.History.Snapshot()
	if len(msgs) < e.cfg.Threshold {
		// A concurrent pass got here first.
		return nil
	}

	toSummarize := msgs[:e.cfg.Chunk]
	remainder := msgs[e.cfg.Chunk:]
	return e.run(ctx, toSummarize, remainder)
}

// ForceConsolidate summarizes whatever history remains, regardless of
// the threshold, and clears it. Used when a companion session is reset
// so nothing the user said is silently dropped.
func (e *Engine) ForceConsolidate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	msgs := e.cfg.History.Snapshot()
	if len(msgs) == 0 {
		return nil
	}
	return e.run(ctx, msgs, nil)
}

// run executes the pass body under the engine mutex.
func (e *Engine) run(ctx context.Context, toSummarize, remainder []llm.Message) error {
	e.state.Store(int32(StateConsolidating))
	defer e.state.Store(int32(StateIdle))

	summary, err := e.summarize(ctx, toSummarize)
	if err != nil {
		// History stays byte-identical: no truncation without a summary.
		return fmt.Errorf("consolidate: summarize: %w", err)
	}

	if _, err := e.cfg.Memories.Insert(ctx, summary, memstore.WithTag(e.cfg.Topics.Tag())); err != nil {
		e.log.Error().Err(err).Msg("store summary failed, turns will drop from history")
	}

	if _, err := e.cfg.Memories.PruneOlderThan(ctx, e.cfg.Retention); err != nil {
		e.log.Error().Err(err).Msg("retention prune failed")
	}

	// The summary exists; the consumed turns must leave the history even
	// if the steps above misfired.
	if err := e.cfg.History.ReplaceAll(remainder); err != nil {
		return fmt.Errorf("consolidate: persist remainder: %w", err)
	}
	e.log.Info().Int("summarized", len(toSummarize)).Int("remaining", len(remainder)).Msg("history consolidated")

	due, err := e.cfg.Topics.Bump()
	if err != nil {
		e.log.Error().Err(err).Msg("persist tag cycle failed")
		return nil
	}
	if due {
		e.state.Store(int32(StateTagging))
		if err := e.regenerateTags(ctx); err != nil {
			e.log.Warn().Err(err).Msg("tag regeneration failed, keeping previous keywords")
		}
	}
	return nil
}

func (e *Engine) summarize(ctx context.Context, msgs []llm.Message) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize this conversation excerpt in a single third-person paragraph of at most 300 characters. "+
			"Keep concrete facts about the user (names, plans, preferences); drop pleasantries.\n\n%s",
		renderTranscript(msgs),
	)
	summary, err := e.cfg.Summarizer.Generate(ctx, prompt, llm.WithTemperature(0.3), llm.WithMaxTokens(200))
	if err != nil {
		return "", err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("empty summary")
	}
	return summary, nil
}

func (e *Engine) regenerateTags(ctx context.Context) error {
	tagger := e.cfg.Tagger
	if tagger == nil {
		tagger = e.cfg.Summarizer
	}

	entries, err := e.cfg.Memories.Since(ctx, taggingWindow)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return e.cfg.Topics.ResetCycle(nil)
	}

	var docs []string
	for _, entry := range entries {
		docs = append(docs, entry.Document)
	}
	prompt := fmt.Sprintf(
		"From these memory notes, extract at most %d keywords describing the user's current interests. "+
			"Reply with ONLY the keywords, comma-separated.\n\n%s",
		topics.MaxKeywords, strings.Join(docs, "\n"),
	)
	raw, err := tagger.Generate(ctx, prompt, llm.WithTemperature(0.2), llm.WithMaxTokens(100))
	if err != nil {
		return err
	}

	keywords := topics.ParseKeywords(raw)
	if len(keywords) == 0 {
		return fmt.Errorf("no keywords in model reply %q", raw)
	}
	e.log.Info().Strs("keywords", keywords).Msg("topic keywords refreshed")
	return e.cfg.Topics.ResetCycle(keywords)
}

func renderTranscript(msgs []llm.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case "assistant":
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
