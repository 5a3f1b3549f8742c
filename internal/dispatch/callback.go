// internal/dispatch/callback.go
package dispatch

import (
	"sync"

	"go.uber.org/zap"
)

// CallbackRunner runs result callbacks one at a time on its own goroutine,
// in the order they were posted. The queue grows as needed, so Post never
// blocks, including when called from inside a callback.
type CallbackRunner struct {
	wake   chan struct{}
	done   chan struct{}
	logger *zap.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool
}

// NewCallbackRunner starts a callback goroutine. size is the initial queue
// capacity.
func NewCallbackRunner(size int, logger *zap.Logger) *CallbackRunner {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &CallbackRunner{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("component", "callback_runner")),
		queue:  make([]func(), 0, size),
	}
	go r.loop()
	return r
}

// Post queues fn. After Close, fn runs on a fresh goroutine so it is still
// delivered.
func (r *CallbackRunner) Post(fn func()) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		go r.invoke(fn)
		return
	}
	r.queue = append(r.queue, fn)
	r.mu.Unlock()
	r.signal()
}

// Close runs the queued callbacks and stops the goroutine
func (r *CallbackRunner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.signal()
	<-r.done
}

func (r *CallbackRunner) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *CallbackRunner) loop() {
	defer close(r.done)
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			closed := r.closed
			r.mu.Unlock()
			if closed {
				return
			}
			<-r.wake
			continue
		}
		fn := r.queue[0]
		r.queue[0] = nil
		r.queue = r.queue[1:]
		r.mu.Unlock()

		r.invoke(fn)
	}
}

func (r *CallbackRunner) invoke(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Result callback panicked", zap.Any("panic", rec))
		}
	}()
	fn()
}
