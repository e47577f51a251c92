// Package worker provides the background execution model for the engine:
// a small fixed pool for maintenance tasks, a timeout runner for provider
// calls, a bounded chunk pipeline for producer/consumer staging, and a cron
// scheduler for periodic sweeps.
//
// The interactive path never blocks on background work: Submit enqueues and
// returns. Task failures and panics are logged, never propagated, so a
// background failure cannot crash the process.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/mnemo-labs/mnemo-go/pkg/logging"
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Pool runs background tasks on a fixed number of workers.
//
// The queue is unbounded so that Submit never blocks the caller; background
// work is expected to be rare (one consolidation per threshold breach, an
// occasional cache sweep) relative to the interactive turn rate.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []queued
	closed bool
	wg     sync.WaitGroup
}

type queued struct {
	name string
	task Task
}

// NewPool starts a pool with the given number of workers. Sizes below 1 are
// clamped to 1; the engine default is 3.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Submit enqueues a task and returns immediately. Tasks submitted after
// Close are dropped with a log entry.
func (p *Pool) Submit(name string, task Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		log := logging.Component("worker")
		log.Warn().Str("task", name).Msg("pool closed, task dropped")
		return
	}
	p.queue = append(p.queue, queued{name: name, task: task})
	p.cond.Signal()
}

// Close stops accepting tasks, waits for queued work to drain, and returns.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		next := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		execute(next.name, next.task)
	}
}

// execute runs one task, converting errors and panics into log entries.
func execute(name string, task Task) {
	log := logging.Component("worker")
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task", name).Msg(fmt.Sprintf("background task panic: %v", r))
		}
	}()
	if err := task(context.Background()); err != nil {
		log.Error().Str("task", name).Err(err).Msg("background task failed")
	}
}
