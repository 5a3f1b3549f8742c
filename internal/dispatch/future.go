// internal/dispatch/future.go
package dispatch

import (
	"context"
	"sync"
)

// Future is a single-shot result. It completes exactly once; callbacks
// registered with Then run on the callback goroutine, once each.
type Future[T any] struct {
	once      sync.Once
	done      chan struct{}
	callbacks *CallbackRunner

	mu        sync.Mutex
	completed bool
	value     T
	err       error
	pending   []func(T, error)
}

func newFuture[T any](callbacks *CallbackRunner) *Future[T] {
	return &Future[T]{done: make(chan struct{}), callbacks: callbacks}
}

// Completed returns a future that already holds value and err
func Completed[T any](value T, err error) *Future[T] {
	f := newFuture[T](nil)
	f.complete(value, err)
	return f
}

// complete stores the result. Only the first call has an effect.
func (f *Future[T]) complete(value T, err error) bool {
	first := false
	f.once.Do(func() {
		first = true

		f.mu.Lock()
		f.value, f.err = value, err
		f.completed = true
		pending := f.pending
		f.pending = nil
		f.mu.Unlock()

		close(f.done)
		for _, fn := range pending {
			f.deliver(fn, value, err)
		}
	})
	return first
}

// Done is closed once the result is available
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx is done. Giving up on
// the wait does not cancel the operation.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the result without blocking. ok is false while pending.
func (f *Future[T]) Result() (value T, err error, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err, f.completed
}

// Then registers fn to receive the result. A completed future schedules
// fn immediately.
func (f *Future[T]) Then(fn func(T, error)) {
	f.mu.Lock()
	if !f.completed {
		f.pending = append(f.pending, fn)
		f.mu.Unlock()
		return
	}
	value, err := f.value, f.err
	f.mu.Unlock()
	f.deliver(fn, value, err)
}

// Map returns a future completed with fn applied to f's result. fn runs on
// the callback goroutine.
func Map[T, U any](f *Future[T], fn func(T, error) (U, error)) *Future[U] {
	out := newFuture[U](f.callbacks)
	f.Then(func(value T, err error) {
		out.complete(fn(value, err))
	})
	return out
}

func (f *Future[T]) deliver(fn func(T, error), value T, err error) {
	if f.callbacks == nil {
		go fn(value, err)
		return
	}
	f.callbacks.Post(func() { fn(value, err) })
}
