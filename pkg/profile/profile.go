// Package profile tracks user feedback and distills it into a short
// preference summary for prompt assembly. Raw feedback is capped at the
// most recent entries per polarity; refinement asks a model to pick the
// dominant themes, falling back to plain frequency counting when the
// model response cannot be parsed.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mnemo-labs/mnemo-go/pkg/llm"
	"github.com/mnemo-labs/mnemo-go/pkg/logging"
)

const (
	// maxItems bounds each feedback list; older entries fall off.
	maxItems = 50

	// topPreferences is how many themes a refinement keeps per polarity.
	topPreferences = 3
)

// Preferences is the distilled view handed to prompt assembly.
type Preferences struct {
	Liked    []string `json:"liked"`
	Disliked []string `json:"disliked"`
}

type fileState struct {
	PosRaw      []string `json:"pos_raw"`
	NegRaw      []string `json:"neg_raw"`
	TopPositive []string `json:"top_positive"`
	TopNegative []string `json:"top_negative"`
}

// Profile is a file-backed feedback store. Safe for concurrent use.
type Profile struct {
	path string

	mu          sync.Mutex
	liked       []string
	disliked    []string
	topLiked    []string
	topDisliked []string

	log zerolog.Logger
}

// Open loads the profile at path. Missing or corrupt files yield an
// empty profile.
func Open(path string) (*Profile, error) {
	if path == "" {
		return nil, fmt.Errorf("profile: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("profile: create data dir: %w", err)
	}

	p := &Profile{
		path: path,
		log:  logging.Component("profile"),
	}

	data, err := os.ReadFile(path)
	if err == nil {
		var state fileState
		if err := json.Unmarshal(data, &state); err != nil {
			p.log.Warn().Err(err).Str("path", path).Msg("discarding corrupt profile file")
		} else {
			p.liked = state.PosRaw
			p.disliked = state.NegRaw
			p.topLiked = state.TopPositive
			p.topDisliked = state.TopNegative
		}
	}
	return p, nil
}

// RecordLiked appends a positive feedback item.
func (p *Profile) RecordLiked(item string) error {
	return p.record(&p.liked, item)
}

// RecordDisliked appends a negative feedback item.
func (p *Profile) RecordDisliked(item string) error {
	return p.record(&p.disliked, item)
}

func (p *Profile) record(list *[]string, item string) error {
	item = strings.TrimSpace(item)
	if item == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	*list = append(*list, item)
	if n := len(*list); n > maxItems {
		*list = (*list)[n-maxItems:]
	}
	return p.persist()
}

// Counts reports the current feedback list sizes.
func (p *Profile) Counts() (liked, disliked int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.liked), len(p.disliked)
}

// Top returns the refined preferences from the last Refine call, as
// persisted in the profile file.
func (p *Profile) Top() Preferences {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Preferences{
		Liked:    append([]string(nil), p.topLiked...),
		Disliked: append([]string(nil), p.topDisliked...),
	}
}

// Refine distills the raw feedback into the top themes per polarity. The
// provider is asked to cluster near-duplicate items; if its answer is not
// valid JSON the frequency fallback is used instead, so Refine only fails
// when there is no feedback at all to work with.
func (p *Profile) Refine(ctx context.Context, provider llm.Provider) (Preferences, error) {
	p.mu.Lock()
	liked := append([]string(nil), p.liked...)
	disliked := append([]string(nil), p.disliked...)
	p.mu.Unlock()

	if len(liked) == 0 && len(disliked) == 0 {
		return Preferences{}, fmt.Errorf("profile: no feedback recorded")
	}

	if provider != nil {
		prefs, err := p.refineWithModel(ctx, provider, liked, disliked)
		if err == nil {
			p.setTop(prefs)
			return prefs, nil
		}
		p.log.Warn().Err(err).Msg("model refinement failed, using frequency fallback")
	}

	prefs := Preferences{
		Liked:    topByFrequency(liked, topPreferences),
		Disliked: topByFrequency(disliked, topPreferences),
	}
	p.setTop(prefs)
	return prefs, nil
}

// setTop records the refined preferences so they survive restarts. A
// persistence failure is logged; the in-memory view stays authoritative.
func (p *Profile) setTop(prefs Preferences) {
	p.mu.Lock()
	p.topLiked = append([]string(nil), prefs.Liked...)
	p.topDisliked = append([]string(nil), prefs.Disliked...)
	err := p.persist()
	p.mu.Unlock()
	if err != nil {
		p.log.Warn().Err(err).Msg("persist refined preferences failed")
	}
}

func (p *Profile) refineWithModel(ctx context.Context, provider llm.Provider, liked, disliked []string) (Preferences, error) {
	prompt := fmt.Sprintf(
		"Given this user feedback, identify at most %d dominant themes the user likes and at most %d they dislike. "+
			"Merge near-duplicates. Reply with ONLY a JSON object of the form "+
			`{"liked": ["..."], "disliked": ["..."]} and nothing else.`+
			"\n\nLiked items:\n%s\n\nDisliked items:\n%s",
		topPreferences, topPreferences,
		strings.Join(liked, "\n"), strings.Join(disliked, "\n"),
	)

	raw, err := provider.Generate(ctx, prompt, llm.WithTemperature(0.2), llm.WithMaxTokens(300))
	if err != nil {
		return Preferences{}, err
	}

	var prefs Preferences
	if err := json.Unmarshal([]byte(extractJSON(raw)), &prefs); err != nil {
		return Preferences{}, fmt.Errorf("parse refinement response: %w", err)
	}
	if len(prefs.Liked) > topPreferences {
		prefs.Liked = prefs.Liked[:topPreferences]
	}
	if len(prefs.Disliked) > topPreferences {
		prefs.Disliked = prefs.Disliked[:topPreferences]
	}
	return prefs, nil
}

// extractJSON trims common wrapping (markdown fences, prose) around the
// first top-level JSON object in a model reply.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func topByFrequency(items []string, n int) []string {
	if len(items) == 0 {
		return nil
	}
	counts := make(map[string]int)
	order := make(map[string]int)
	for i, item := range items {
		if _, seen := counts[item]; !seen {
			order[item] = i
		}
		counts[item]++
	}

	unique := make([]string, 0, len(counts))
	for item := range counts {
		unique = append(unique, item)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return order[unique[i]] < order[unique[j]]
	})

	if len(unique) > n {
		unique = unique[:n]
	}
	return unique
}

func (p *Profile) persist() error {
	state := fileState{
		PosRaw:      p.liked,
		NegRaw:      p.disliked,
		TopPositive: p.topLiked,
		TopNegative: p.topDisliked,
	}
	if state.PosRaw == nil {
		state.PosRaw = []string{}
	}
	if state.NegRaw == nil {
		state.NegRaw = []string{}
	}
	if state.TopPositive == nil {
		state.TopPositive = []string{}
	}
	if state.TopNegative == nil {
		state.TopNegative = []string{}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("profile: encode: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("profile: write temp file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("profile: replace file: %w", err)
	}
	return nil
}
