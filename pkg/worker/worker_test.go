package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-go/pkg/session"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	p := NewPool(3)

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		p.Submit("count", func(ctx context.Context) error {
			defer wg.Done()
			count.Add(1)
			return nil
		})
	}
	wg.Wait()
	p.Close()

	assert.Equal(t, int32(20), count.Load())
}

func TestSubmitAfterCloseIsDropped(t *testing.T) {
	p := NewPool(1)
	p.Close()

	var ran atomic.Bool
	p.Submit("late", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	assert.False(t, ran.Load())
}

func TestPoolSurvivesPanicAndError(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	var ran atomic.Bool
	var wg sync.WaitGroup
	wg.Add(2)
	p.Submit("panics", func(ctx context.Context) error {
		defer wg.Done()
		panic("boom")
	})
	p.Submit("fails-then-continues", func(ctx context.Context) error {
		defer wg.Done()
		ran.Store(true)
		return errors.New("expected failure")
	})
	wg.Wait()

	assert.True(t, ran.Load(), "a panicking task must not take down the worker")
}

func TestSubmitDoesNotBlockCaller(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	release := make(chan struct{})
	p.Submit("slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			p.Submit("queued", func(ctx context.Context) error { return nil })
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked while a worker was busy")
	}
	close(release)
}

func TestRunWithTimeout(t *testing.T) {
	err := RunWithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	assert.ErrorIs(t, err, ErrTimeout)

	err = RunWithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)

	wantErr := errors.New("provider exploded")
	err = RunWithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestChunkQueueBackpressure(t *testing.T) {
	gate, err := session.NewGate()
	require.NoError(t, err)
	q := NewChunkQueue(gate.NewSession())

	// Two chunks stage without a consumer; the third would block.
	assert.True(t, q.Stage([]byte("a")))
	assert.True(t, q.Stage([]byte("b")))

	staged := make(chan bool, 1)
	go func() { staged <- q.Stage([]byte("c")) }()

	select {
	case <-staged:
		t.Fatal("third chunk staged without consumption, backpressure broken")
	case <-time.After(50 * time.Millisecond):
	}

	chunk, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, []byte("a"), chunk)
	assert.True(t, <-staged)
}

func TestChunkQueueStopsOnStaleSession(t *testing.T) {
	gate, err := session.NewGate()
	require.NoError(t, err)
	tok := gate.NewSession()
	q := NewChunkQueue(tok)

	require.True(t, q.Stage([]byte("first")))

	// A new interactive request invalidates the old session.
	gate.NewSession()

	assert.False(t, q.Stage([]byte("second")), "producer must stop at its next checkpoint")

	_, ok := q.Next()
	assert.False(t, ok, "consumer must not deliver chunks for a dead session")
}

func TestChunkQueueFinish(t *testing.T) {
	gate, err := session.NewGate()
	require.NoError(t, err)
	q := NewChunkQueue(gate.NewSession())

	require.True(t, q.Stage([]byte("only")))
	q.Finish()

	chunk, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, []byte("only"), chunk)

	_, ok = q.Next()
	assert.False(t, ok)
}
