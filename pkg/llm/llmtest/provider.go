// Package llmtest provides a scripted Provider implementation for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/mnemo-labs/mnemo-go/pkg/llm"
)

// Provider is a test double for llm.Provider. Responses come from
// GenerateFunc when set, otherwise from Reply. All prompts seen are
// recorded and can be inspected with Prompts.
type Provider struct {
	// Reply is returned verbatim when GenerateFunc is nil.
	Reply string

	// Err, when set, is returned by every call.
	Err error

	// GenerateFunc overrides the canned reply per call.
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	// Caps is what Capabilities reports.
	Caps llm.Capabilities

	mu      sync.Mutex
	prompts []string
	systems []string
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	p.mu.Unlock()

	if p.Err != nil {
		return "", p.Err
	}
	if p.GenerateFunc != nil {
		return p.GenerateFunc(ctx, prompt)
	}
	return p.Reply, nil
}

func (p *Provider) GenerateChat(ctx context.Context, req *llm.ChatRequest, opts ...llm.GenerateOption) (string, error) {
	p.mu.Lock()
	p.systems = append(p.systems, req.System)
	p.mu.Unlock()
	return p.Generate(ctx, req.Prompt, opts...)
}

func (p *Provider) Capabilities() llm.Capabilities { return p.Caps }

func (p *Provider) Close() error { return nil }

// Systems returns a copy of every system prompt seen by GenerateChat.
func (p *Provider) Systems() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.systems...)
}

// Prompts returns a copy of every prompt the provider has seen.
func (p *Provider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

// CallCount reports how many generate calls were made.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}
