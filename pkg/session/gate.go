// Package session implements generation-based cooperative cancellation.
//
// A Gate hands out one Token per interactive request. Starting a new request
// bumps the gate's generation, which invalidates every previously issued
// token. Long-running operations capture a token at start and check
// Token.Live at each safe checkpoint: before a network call, before a loop
// iteration, before staging another output chunk. A stale token means
// "unwind quietly": no error is raised and side effects already committed
// are not rolled back.
package session

import (
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
)

// Gate tracks the live interactive session.
//
// The zero value is not usable; construct with NewGate. A Gate is safe for
// concurrent use from the interactive thread and any number of background
// workers.
type Gate struct {
	generation atomic.Int64
	node       *snowflake.Node
}

// NewGate creates a session gate.
func NewGate() (*Gate, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	return &Gate{node: node}, nil
}

// NewSession invalidates all outstanding tokens and returns the token for
// the new live session.
func (g *Gate) NewSession() *Token {
	gen := g.generation.Add(1)
	return &Token{
		gate:       g,
		generation: gen,
		id:         g.node.Generate().String(),
	}
}

// Current returns a token for the currently live session without starting a
// new one. Useful for attaching late-spawned work to the ongoing request.
func (g *Gate) Current() *Token {
	return &Token{
		gate:       g,
		generation: g.generation.Load(),
		id:         g.node.Generate().String(),
	}
}

// Token is an opaque handle identifying one interactive session.
type Token struct {
	gate       *Gate
	generation int64
	id         string
}

// Live reports whether this token still belongs to the live session.
//
// A nil token is always live, so operations that run outside any session
// (background maintenance) can pass nil and never cancel.
func (t *Token) Live() bool {
	if t == nil {
		return true
	}
	return t.gate.generation.Load() == t.generation
}

// ID returns the session identifier, intended for log correlation only.
func (t *Token) ID() string {
	if t == nil {
		return ""
	}
	return t.id
}
