package worker

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a bounded operation exceeds its deadline.
// Callers distinguish it from other failures: interactive flows surface a
// "took too long" message, background flows abort silently.
var ErrTimeout = errors.New("operation timed out")

// RunWithTimeout runs fn with a deadline of d and returns ErrTimeout if the
// deadline expires first.
//
// fn receives a context that is cancelled at the deadline and should honor
// it promptly. If fn ignores the context it is abandoned in its goroutine;
// its result is discarded once the deadline has fired.
func RunWithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(tctx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return tctx.Err()
	}
}
