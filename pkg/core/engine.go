package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mnemo-labs/mnemo-go/pkg/cache"
	"github.com/mnemo-labs/mnemo-go/pkg/consolidate"
	"github.com/mnemo-labs/mnemo-go/pkg/embedder"
	embopenai "github.com/mnemo-labs/mnemo-go/pkg/embedder/openai"
	"github.com/mnemo-labs/mnemo-go/pkg/history"
	"github.com/mnemo-labs/mnemo-go/pkg/llm"
	llmanthropic "github.com/mnemo-labs/mnemo-go/pkg/llm/anthropic"
	llmgemini "github.com/mnemo-labs/mnemo-go/pkg/llm/gemini"
	llmollama "github.com/mnemo-labs/mnemo-go/pkg/llm/ollama"
	llmopenai "github.com/mnemo-labs/mnemo-go/pkg/llm/openai"
	"github.com/mnemo-labs/mnemo-go/pkg/logging"
	"github.com/mnemo-labs/mnemo-go/pkg/memstore"
	"github.com/mnemo-labs/mnemo-go/pkg/profile"
	"github.com/mnemo-labs/mnemo-go/pkg/prompt"
	"github.com/mnemo-labs/mnemo-go/pkg/session"
	"github.com/mnemo-labs/mnemo-go/pkg/storage/pool"
	"github.com/mnemo-labs/mnemo-go/pkg/topics"
	"github.com/mnemo-labs/mnemo-go/pkg/worker"
)

// degradedResponse is returned when the chat model times out. The turn
// fails soft: the user hears an apology instead of an error.
const degradedResponse = "Sorry, I got a bit distracted there. Could you say that again?"

// historyContext caps how many prior messages are sent with a chat call.
const historyContext = 10

// Deps carries the externally reachable components an Engine is built
// from. New fills it from configuration; tests inject doubles.
type Deps struct {
	// Chat is the interactive chat provider.
	Chat llm.Provider

	// Summarizer is the memory model used by consolidation. Nil falls
	// back to Chat.
	Summarizer llm.Provider

	// Embedder produces the vectors for memory storage and retrieval.
	Embedder embedder.Provider
}

// Engine is the long-term memory engine behind a companion application's
// chat loop. One Engine owns one data directory.
type Engine struct {
	cfg *Config

	chat      llm.Provider
	memories  *memstore.Store
	hist      *history.Store
	prof      *profile.Profile
	tracker   *topics.Tracker
	respCache *cache.Cache
	builder   *prompt.Builder
	consol    *consolidate.Engine
	gate      *session.Gate
	workers   *worker.Pool
	sched     *worker.Scheduler
	stores    *pool.Pool

	log zerolog.Logger
}

// New builds a fully wired Engine from configuration.
func New(cfg *Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, NewMemoryError("New", err)
	}

	chat, err := buildProvider(cfg, cfg.Provider, cfg.Model)
	if err != nil {
		return nil, NewMemoryError("New", err)
	}
	var summarizer llm.Provider
	if cfg.MemoryProvider != cfg.Provider || cfg.MemoryModel != "" {
		model := cfg.MemoryModel
		summarizer, err = buildProvider(cfg, cfg.MemoryProvider, model)
		if err != nil {
			return nil, NewMemoryError("New", err)
		}
	}

	// Embeddings always come from OpenAI; it is the one embedding API the
	// supported providers share. See the design notes.
	emb, err := embopenai.NewClient(&embopenai.Config{APIKey: cfg.OpenAIKey})
	if err != nil {
		return nil, NewMemoryError("New", err)
	}

	return NewWithDeps(cfg, Deps{Chat: chat, Summarizer: summarizer, Embedder: emb})
}

// NewWithDeps builds an Engine around pre-built providers. The storage,
// history, cache and profile layers are still created from cfg.
func NewWithDeps(cfg *Config, deps Deps) (*Engine, error) {
	if deps.Chat == nil || deps.Embedder == nil {
		return nil, NewMemoryError("New", fmt.Errorf("%w: chat provider and embedder are required", ErrInvalidConfig))
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	summarizer := deps.Summarizer
	if summarizer == nil {
		summarizer = deps.Chat
	}

	stores := pool.New()
	backend, err := stores.Get(cfg.StoreProvider, filepath.Join(cfg.DataDir, "memories.db"), cfg.Collection)
	if err != nil {
		return nil, NewMemoryError("New", err)
	}
	memories := memstore.New(backend, deps.Embedder)

	hist, err := history.Open(filepath.Join(cfg.DataDir, "chat_history.json"))
	if err != nil {
		return nil, NewMemoryError("New", err)
	}
	prof, err := profile.Open(filepath.Join(cfg.DataDir, "profile.json"))
	if err != nil {
		return nil, NewMemoryError("New", err)
	}
	tracker, err := topics.Open(
		filepath.Join(cfg.DataDir, "current_tags.json"),
		filepath.Join(cfg.DataDir, "tags_counter.json"),
	)
	if err != nil {
		return nil, NewMemoryError("New", err)
	}
	respCache, err := cache.New(cache.Config{
		Dir:     filepath.Join(cfg.DataDir, "api_cache"),
		Enabled: cfg.CacheEnabled,
		TTL:     cfg.CacheTTL,
	})
	if err != nil {
		return nil, NewMemoryError("New", err)
	}

	consol, err := consolidate.New(consolidate.Config{
		History:    hist,
		Memories:   memories,
		Topics:     tracker,
		Summarizer: summarizer,
		Tagger:     deps.Chat,
		Threshold:  cfg.ConsolidationThreshold,
		Chunk:      cfg.ConsolidationChunk,
		Retention:  cfg.Retention,
	})
	if err != nil {
		return nil, NewMemoryError("New", err)
	}

	gate, err := session.NewGate()
	if err != nil {
		return nil, NewMemoryError("New", err)
	}

	e := &Engine{
		cfg:       cfg,
		chat:      deps.Chat,
		memories:  memories,
		hist:      hist,
		prof:      prof,
		tracker:   tracker,
		respCache: respCache,
		builder:   &prompt.Builder{Persona: cfg.Persona, MaxChars: cfg.MaxChars},
		consol:    consol,
		gate:      gate,
		workers:   worker.NewPool(cfg.Workers),
		sched:     worker.NewScheduler(),
		stores:    stores,
		log:       logging.Component("core"),
	}

	if err := e.startMaintenance(); err != nil {
		return nil, NewMemoryError("New", err)
	}
	return e, nil
}

// Chat runs one turn: cache lookup, context assembly, generation, then
// the bookkeeping that keeps memory fresh. The image is an optional
// camera or screen frame for vision-capable providers.
//
// Two failure classes never reach the caller: a cold memory store (the
// turn simply runs without long-term context) and a model timeout (a
// degraded response is returned instead).
func (e *Engine) Chat(ctx context.Context, query string, image []byte) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", NewMemoryError("Chat", fmt.Errorf("%w: empty query", ErrLLMOperation))
	}
	tok := e.gate.Current()

	providerName, model := e.cfg.Provider, e.cfg.Model
	if resp, ok := e.respCache.Get(providerName, model, query, image); ok {
		e.log.Info().Str("model", model).Msg("cache hit, skipping model call")
		e.commitTurn(tok, query, image, resp, false)
		return resp, nil
	}

	recent := e.hist.Tail(2)
	memoriesBlock := e.memories.Search(ctx, query, recent, memstore.DefaultSearchLimit)

	// The stored refined preferences keep the interactive path off the
	// model; Feedback recomputes them whenever new feedback arrives.
	prefs := e.prof.Top()

	system := e.builder.Assemble(prompt.Inputs{
		TodayContext:           e.cfg.TodayContext,
		Memories:               memoriesBlock,
		Preferences:            prefs,
		TopicTag:               e.tracker.Tag(),
		SearchEnabled:          e.cfg.SearchEnabled,
		ProviderSupportsSearch: e.chat.Capabilities().SearchDirectives,
	})

	var resp string
	err := worker.RunWithTimeout(ctx, e.cfg.ResponseTimeout, func(ctx context.Context) error {
		var genErr error
		resp, genErr = e.chat.GenerateChat(ctx, &llm.ChatRequest{
			System:  system,
			History: e.hist.Tail(historyContext),
			Prompt:  query,
			Image:   image,
		})
		return genErr
	})
	switch {
	case errors.Is(err, worker.ErrTimeout):
		e.log.Warn().Dur("timeout", e.cfg.ResponseTimeout).Msg("model call timed out, degrading")
		return degradedResponse, nil
	case err != nil:
		return "", NewMemoryError("Chat", fmt.Errorf("%w: %v", ErrLLMOperation, err))
	}

	e.commitTurn(tok, query, image, resp, true)
	return resp, nil
}

// commitTurn records a completed exchange. Nothing is committed when the
// session went stale mid-turn; the response is still handed back, it just
// leaves no trace.
func (e *Engine) commitTurn(tok *session.Token, query string, image []byte, resp string, cacheable bool) {
	if !tok.Live() {
		e.log.Debug().Err(ErrSessionStale).Msg("skipping turn commit")
		return
	}

	if err := e.hist.AppendExchange(query, resp); err != nil {
		e.log.Error().Err(err).Msg("append history failed")
	}
	if cacheable {
		e.respCache.Set(e.cfg.Provider, e.cfg.Model, query, image, resp)
	}

	if e.consol.Due() {
		e.workers.Submit("consolidate", func(ctx context.Context) error {
			return e.consol.Consolidate(ctx)
		})
	}
}

// Feedback records the user's reaction to the last reply. The reply is
// distilled into a few short style descriptors by the chat model (the raw
// reply, truncated, when the model cannot help) and the updated
// preference summary is returned.
func (e *Engine) Feedback(ctx context.Context, positive bool) (profile.Preferences, error) {
	lastReply, ok := e.lastAssistantTurn()
	if !ok {
		return profile.Preferences{}, NewMemoryError("Feedback", ErrNoHistory)
	}

	descriptors := e.describeStyle(ctx, lastReply)
	for _, d := range descriptors {
		var err error
		if positive {
			err = e.prof.RecordLiked(d)
		} else {
			err = e.prof.RecordDisliked(d)
		}
		if err != nil {
			return profile.Preferences{}, NewMemoryError("Feedback", err)
		}
	}

	prefs, err := e.prof.Refine(ctx, e.chat)
	if err != nil {
		return profile.Preferences{}, NewMemoryError("Feedback", err)
	}
	return prefs, nil
}

// describeStyle asks the chat model for up to three comma-separated
// style descriptors of a reply, falling back to a truncated excerpt.
func (e *Engine) describeStyle(ctx context.Context, reply string) []string {
	p := fmt.Sprintf(
		"Describe the style of this reply in at most 3 short descriptors "+
			"(e.g. \"playful tone\", \"short answer\"). Reply with ONLY the "+
			"descriptors, comma-separated.\n\n%s", reply,
	)
	raw, err := e.chat.Generate(ctx, p, llm.WithTemperature(0.2), llm.WithMaxTokens(60))
	if err == nil {
		if descriptors := topics.ParseKeywords(raw); len(descriptors) > 0 {
			if len(descriptors) > 3 {
				descriptors = descriptors[:3]
			}
			return descriptors
		}
	} else {
		e.log.Warn().Err(err).Msg("style analysis failed, recording excerpt")
	}

	excerpt := reply
	if len(excerpt) > 80 {
		excerpt = excerpt[:80]
	}
	return []string{excerpt}
}

func (e *Engine) lastAssistantTurn() (string, bool) {
	msgs := e.hist.Snapshot()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" {
			return msgs[i].Content, true
		}
	}
	return "", false
}

// CaptureSearch persists a web search outcome in the background so a
// future turn can recall it. Non-blocking.
func (e *Engine) CaptureSearch(query, summary string) {
	e.workers.Submit("capture-search", func(ctx context.Context) error {
		return worker.RunWithTimeout(ctx, e.cfg.SearchTimeout, func(ctx context.Context) error {
			if _, err := e.memories.CaptureSearchResult(ctx, query, summary); err != nil {
				return fmt.Errorf("%w: %v", ErrStorageOperation, err)
			}
			return nil
		})
	})
}

// NewSession invalidates all in-flight interactive work and returns the
// token for the new session.
func (e *Engine) NewSession() *session.Token {
	return e.gate.NewSession()
}

// Session returns the current session token.
func (e *Engine) Session() *session.Token {
	return e.gate.Current()
}

// Reset consolidates whatever history remains into one final memory,
// clears the transcript, and starts a fresh session. The memories
// themselves survive a reset.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.consol.ForceConsolidate(ctx); err != nil {
		return NewMemoryError("Reset", err)
	}
	e.gate.NewSession()
	return nil
}

// Memories exposes the long-term store for maintenance and export
// tooling.
func (e *Engine) Memories() *memstore.Store {
	return e.memories
}

// History exposes the rolling transcript.
func (e *Engine) History() *history.Store {
	return e.hist
}

// CacheStats returns the response cache counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.respCache.Stats()
}

// Close drains background work and releases every resource.
func (e *Engine) Close() error {
	e.sched.Stop()
	e.workers.Close()

	var firstErr error
	if err := e.respCache.Close(); err != nil {
		firstErr = err
	}
	if err := e.stores.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.chat.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return NewMemoryError("Close", firstErr)
}

// startMaintenance schedules the nightly cache sweep and retention prune.
func (e *Engine) startMaintenance() error {
	if err := e.sched.Every("0 3 * * *", "cache-sweep", func(ctx context.Context) error {
		removed, err := e.respCache.ClearExpired()
		if err == nil && removed > 0 {
			e.log.Info().Int("removed", removed).Msg("cache sweep complete")
		}
		return err
	}); err != nil {
		return err
	}
	if err := e.sched.Every("30 3 * * *", "retention-prune", func(ctx context.Context) error {
		if _, err := e.memories.PruneOlderThan(ctx, e.cfg.Retention); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageOperation, err)
		}
		return nil
	}); err != nil {
		return err
	}
	e.sched.Start()
	return nil
}

// buildProvider constructs a chat provider from configuration.
func buildProvider(cfg *Config, provider, model string) (llm.Provider, error) {
	switch provider {
	case "openai":
		return llmopenai.NewClient(&llmopenai.Config{APIKey: cfg.OpenAIKey, Model: model})
	case "anthropic":
		return llmanthropic.NewClient(&llmanthropic.Config{APIKey: cfg.AnthropicKey, Model: model})
	case "gemini":
		return llmgemini.NewClient(&llmgemini.Config{APIKey: cfg.GeminiKey, Model: model})
	case "ollama":
		return llmollama.NewClient(&llmollama.Config{BaseURL: cfg.OllamaURL, Model: model})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, provider)
	}
}
