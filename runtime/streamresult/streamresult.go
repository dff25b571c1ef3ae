// Package streamresult adapts three Tool/Node output shapes — a plain
// value, a value behind an async computation, and a stream of values — into
// one consumer-facing type, following grafi/common/models/async_result.py's
// AsyncResult. Go has no async generators, so the producer runs on its own
// goroutine and items are buffered in a slice guarded by a mutex; a
// closed-and-replaced notify channel stands in for asyncio.Queue's blocking
// get, the same pattern runtime/eventbus uses for its consumer cursors.
//
// A StreamResult can be consumed either by repeated Next calls (stream
// iteration) or by a single Await call (collect everything produced); both
// are safe to use on the same instance, and the underlying producer runs
// exactly once regardless of which is called first.
package streamresult

import (
	"context"
	"sync"
)

// Producer emits zero or more values via emit and returns the terminal
// error, if any. It runs on its own goroutine, started lazily on first use.
type Producer[T any] func(ctx context.Context, emit func(T)) error

// StreamResult unifies single-value, awaitable, and streaming producers
// behind one type.
type StreamResult[T any] struct {
	produce Producer[T]

	mu       sync.Mutex
	items    []T
	err      error
	finished bool
	notify   chan struct{}
	nextIdx  int

	startOnce sync.Once
}

func newStreamResult[T any](produce Producer[T]) *StreamResult[T] {
	return &StreamResult[T]{produce: produce, notify: make(chan struct{})}
}

// FromValue wraps a single, already-available value.
func FromValue[T any](v T) *StreamResult[T] {
	return newStreamResult(func(_ context.Context, emit func(T)) error {
		emit(v)
		return nil
	})
}

// FromAwaitable wraps a computation that produces one value.
func FromAwaitable[T any](fn func(ctx context.Context) (T, error)) *StreamResult[T] {
	return newStreamResult(func(ctx context.Context, emit func(T)) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		emit(v)
		return nil
	})
}

// FromStream wraps a producer that emits a sequence of values.
func FromStream[T any](produce Producer[T]) *StreamResult[T] {
	return newStreamResult(produce)
}

func (r *StreamResult[T]) ensureStarted(ctx context.Context) {
	r.startOnce.Do(func() {
		go func() {
			err := r.produce(ctx, r.emit)
			r.finish(err)
		}()
	})
}

func (r *StreamResult[T]) emit(v T) {
	r.mu.Lock()
	r.items = append(r.items, v)
	r.wakeLocked()
	r.mu.Unlock()
}

func (r *StreamResult[T]) finish(err error) {
	r.mu.Lock()
	r.finished = true
	r.err = err
	r.wakeLocked()
	r.mu.Unlock()
}

func (r *StreamResult[T]) wakeLocked() {
	close(r.notify)
	r.notify = make(chan struct{})
}

// Next returns the next produced value. ok is false once the producer has
// finished, in which case err carries the producer's terminal error, if
// any. Next is not safe for concurrent use by multiple goroutines; the
// adapter models a single consumer, same as the original.
func (r *StreamResult[T]) Next(ctx context.Context) (value T, ok bool, err error) {
	r.ensureStarted(ctx)
	for {
		r.mu.Lock()
		if r.nextIdx < len(r.items) {
			v := r.items[r.nextIdx]
			r.nextIdx++
			r.mu.Unlock()
			return v, true, nil
		}
		if r.finished {
			terminalErr := r.err
			r.mu.Unlock()
			var zero T
			return zero, false, terminalErr
		}
		wait := r.notify
		r.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		}
	}
}

// Await blocks until the producer finishes and returns everything it
// produced, regardless of any prior Next calls — mirroring the Python
// adapter, where awaiting always returns the full accumulated result.
func (r *StreamResult[T]) Await(ctx context.Context) ([]T, error) {
	r.ensureStarted(ctx)
	for {
		r.mu.Lock()
		if r.finished {
			items := append([]T(nil), r.items...)
			err := r.err
			r.mu.Unlock()
			return items, err
		}
		wait := r.notify
		r.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// AwaitOne is a convenience for producers known to emit at most one value:
// it returns the zero value if nothing was produced.
func (r *StreamResult[T]) AwaitOne(ctx context.Context) (T, error) {
	items, err := r.Await(ctx)
	var zero T
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, nil
	}
	return items[0], nil
}
