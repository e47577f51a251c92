// Package prompt assembles the per-turn system instruction from ordered,
// independently optional sections. The section list is the contract:
// callers and tests reason about named sections and their relative order,
// never about exact concatenated text.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/mnemo-labs/mnemo-go/pkg/profile"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// Section names, in assembly order.
const (
	SectionPersona        = "persona"
	SectionLength         = "length"
	SectionSpeechCaveat   = "speech_caveat"
	SectionMemoryPriority = "memory_priority"
	SectionToday          = "today"
	SectionMemories       = "memories"
	SectionFeedback       = "feedback"
	SectionTopics         = "topics"
	SectionDate           = "date"
	SectionSearch         = "search"
)

// Default texts for the fixed sections. All overridable per Builder.
const (
	defaultPersona = "You are a friendly desktop companion. Stay in character and keep a warm, conversational tone."

	defaultSpeechCaveat = "The user's message may come from speech recognition and can contain " +
		"transcription mistakes. If a word looks out of place, infer the intended meaning instead of remarking on it."

	defaultMemoryPriority = "When your long-term memories conflict with the current conversation, " +
		"trust the current conversation. Use memories for continuity, not as ground truth."

	defaultSearchDirective = "You can consult web search when the user asks about current events or " +
		"facts you are unsure of. Prefer answering from memory for personal or conversational topics."
)

// Section is one named block of the assembled instruction.
type Section struct {
	Name string
	Text string
}

// Inputs carries everything a single turn contributes to assembly.
type Inputs struct {
	// TodayContext is free text describing the current session (omitted
	// when empty).
	TodayContext string

	// Memories are long-term search results, expected newest first.
	Memories []*storage.Entry

	// Preferences is the distilled feedback profile.
	Preferences profile.Preferences

	// TopicTag is the comma-joined interest keywords (omitted when empty).
	TopicTag string

	// Now anchors the trailing date statement. Zero means time.Now().
	Now time.Time

	// SearchEnabled is the user-facing search switch.
	SearchEnabled bool

	// ProviderSupportsSearch reflects the active provider's capability.
	ProviderSupportsSearch bool
}

// Builder assembles system instructions. The zero value uses the default
// texts and no length limit.
type Builder struct {
	// Persona overrides the default persona text.
	Persona string

	// MaxChars, when positive, adds a reply length instruction.
	MaxChars int

	// SpeechCaveat and MemoryPriority override the default directive
	// texts; set to disable by assigning a blank-only string is not
	// supported, use the defaults.
	SpeechCaveat   string
	MemoryPriority string

	// SearchDirective overrides the default search-capability text.
	SearchDirective string
}

// Sections returns the ordered, present-only sections for the inputs.
func (b *Builder) Sections(in Inputs) []Section {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	var sections []Section
	add := func(name, text string) {
		if strings.TrimSpace(text) != "" {
			sections = append(sections, Section{Name: name, Text: text})
		}
	}

	add(SectionPersona, pick(b.Persona, defaultPersona))
	if b.MaxChars > 0 {
		add(SectionLength, fmt.Sprintf("Keep each reply under %d characters. Plain sentences, no markdown.", b.MaxChars))
	}
	add(SectionSpeechCaveat, pick(b.SpeechCaveat, defaultSpeechCaveat))
	add(SectionMemoryPriority, pick(b.MemoryPriority, defaultMemoryPriority))
	add(SectionToday, in.TodayContext)
	add(SectionMemories, formatMemories(in.Memories))
	add(SectionFeedback, formatFeedback(in.Preferences))
	if in.TopicTag != "" {
		add(SectionTopics, "Topics the user has shown interest in lately: "+in.TopicTag+".")
	}
	add(SectionDate, "The current date is "+now.Format("2006-01-02")+".")
	if in.SearchEnabled && in.ProviderSupportsSearch {
		add(SectionSearch, pick(b.SearchDirective, defaultSearchDirective))
	}
	return sections
}

// Assemble joins the sections into the final system instruction.
func (b *Builder) Assemble(in Inputs) string {
	sections := b.Sections(in)
	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = s.Text
	}
	return strings.Join(parts, "\n\n")
}

func formatMemories(entries []*storage.Entry) string {
	if len(entries) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Things you remember from past conversations, newest first:")
	for _, e := range entries {
		sb.WriteString("\n- [")
		sb.WriteString(e.Timestamp)
		sb.WriteString("] ")
		sb.WriteString(e.Document)
		if e.Tag != "" {
			sb.WriteString(" (topics: ")
			sb.WriteString(e.Tag)
			sb.WriteString(")")
		}
	}
	return sb.String()
}

func formatFeedback(prefs profile.Preferences) string {
	if len(prefs.Liked) == 0 && len(prefs.Disliked) == 0 {
		return ""
	}
	var parts []string
	if len(prefs.Liked) > 0 {
		parts = append(parts, "The user responds well to: "+strings.Join(prefs.Liked, ", ")+".")
	}
	if len(prefs.Disliked) > 0 {
		parts = append(parts, "Avoid: "+strings.Join(prefs.Disliked, ", ")+".")
	}
	return strings.Join(parts, " ")
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
