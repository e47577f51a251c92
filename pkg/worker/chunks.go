package worker

import (
	"sync"

	"github.com/mnemo-labs/mnemo-go/pkg/session"
)

// chunkAhead bounds how far production may run ahead of consumption.
const chunkAhead = 2

// ChunkQueue stages produced chunks for a consumer with natural
// backpressure: the producer blocks once it is chunkAhead chunks ahead.
//
// Both sides checkpoint the session token. Once the token goes stale the
// producer's next Stage returns false and the consumer's next Next returns
// false, so neither side issues further side effects for a dead session.
// Chunks already delivered are not recalled.
type ChunkQueue struct {
	tok  *session.Token
	ch   chan []byte
	done chan struct{}

	finishOnce sync.Once
	abortOnce  sync.Once
}

// NewChunkQueue creates a staging queue bound to the given session token.
// A nil token disables cancellation.
func NewChunkQueue(tok *session.Token) *ChunkQueue {
	return &ChunkQueue{
		tok:  tok,
		ch:   make(chan []byte, chunkAhead),
		done: make(chan struct{}),
	}
}

// Stage offers one chunk to the consumer, blocking while the queue is full.
// It returns false when the session is no longer live or the queue has been
// aborted; the producer should stop producing.
func (q *ChunkQueue) Stage(chunk []byte) bool {
	if !q.tok.Live() {
		return false
	}
	select {
	case q.ch <- chunk:
		return true
	case <-q.done:
		return false
	}
}

// Finish signals that no further chunks will be staged.
func (q *ChunkQueue) Finish() {
	q.finishOnce.Do(func() { close(q.ch) })
}

// Next blocks for the next chunk. ok is false once the stream is finished,
// aborted, or the session has gone stale.
func (q *ChunkQueue) Next() (chunk []byte, ok bool) {
	if !q.tok.Live() {
		q.abort()
		return nil, false
	}
	select {
	case c, open := <-q.ch:
		if !open {
			return nil, false
		}
		if !q.tok.Live() {
			q.abort()
			return nil, false
		}
		return c, true
	case <-q.done:
		return nil, false
	}
}

// abort unblocks a producer stuck in Stage after the consumer bailed out.
func (q *ChunkQueue) abort() {
	q.abortOnce.Do(func() { close(q.done) })
}
