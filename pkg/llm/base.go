// Package llm defines the generation call contract for model providers.
//
// The engine treats providers as pluggable "generate text" functions: a
// system instruction, a rolling history, the current prompt, and an optional
// image go in, text comes out. Provider-specific SDK behavior stays behind
// the Provider interface.
package llm

import "context"

// Provider is the interface all model providers implement.
type Provider interface {
	// Generate produces text from a bare prompt. Used for background
	// generation calls (summarization, tag extraction, feedback analysis)
	// that carry no conversation state.
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// GenerateChat produces the reply for one interactive turn: system
	// instruction, prior turns, the user's prompt, and an optional image.
	GenerateChat(ctx context.Context, req *ChatRequest, opts ...GenerateOption) (string, error)

	// Capabilities reports optional provider features the engine may key
	// assembly decisions on.
	Capabilities() Capabilities

	// Close releases provider resources.
	Close() error
}

// ChatRequest carries one interactive turn.
type ChatRequest struct {
	// System is the assembled system instruction for this turn.
	System string

	// History is the prior conversation, oldest first.
	History []Message

	// Prompt is the user's current message.
	Prompt string

	// Image is optional raw image bytes (JPEG or PNG) attached to the
	// prompt. Providers without vision support ignore it.
	Image []byte
}

// Message is a single turn in a conversation.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// Capabilities describes optional provider features.
type Capabilities struct {
	// SearchDirectives is true when the provider honors function-style
	// search directives embedded in the system instruction.
	SearchDirectives bool

	// Vision is true when the provider accepts image input.
	Vision bool
}

// GenerateOptions contains tunable generation parameters.
type GenerateOptions struct {
	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// MaxTokens limits the response length.
	MaxTokens int

	// TopP controls nucleus sampling (0.0-1.0).
	TopP float64

	// Stop contains sequences that end generation.
	Stop []string
}

// GenerateOption configures generation parameters.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Temperature = temp
	}
}

// WithMaxTokens limits the maximum number of tokens in the response.
func WithMaxTokens(max int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.MaxTokens = max
	}
}

// WithTopP sets the top-p (nucleus sampling) parameter.
func WithTopP(topP float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.TopP = topP
	}
}

// WithStop sets stop sequences.
func WithStop(stop ...string) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Stop = stop
	}
}

// ApplyGenerateOptions folds option functions over the defaults
// (Temperature=0.7, MaxTokens=1000, TopP=1.0).
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{
		Temperature: 0.7,
		MaxTokens:   1000,
		TopP:        1.0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
