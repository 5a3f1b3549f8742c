// internal/dispatch/worker.go
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"printer-bridge/internal/model"
	"printer-bridge/internal/repository"
	"printer-bridge/internal/utils"
)

// Options configures the dispatcher
type Options struct {
	QueueSize         int
	CallbackQueueSize int
}

// Dispatcher runs device operations. Serialized operations execute one at
// a time on a single worker goroutine in submission order; the others run
// on their own goroutine. Every result is delivered through a Future.
type Dispatcher struct {
	jobs      chan func(ctx context.Context)
	callbacks *CallbackRunner
	ops       repository.OperationRepository
	events    model.EventPublisher
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewDispatcher creates and starts a dispatcher
func NewDispatcher(opts Options, ops repository.OperationRepository, events model.EventPublisher, logger *zap.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	if ops == nil {
		ops = repository.NewOperationRepository(0, logger)
	}
	if events == nil {
		events = model.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		jobs:      make(chan func(ctx context.Context), opts.QueueSize),
		callbacks: NewCallbackRunner(opts.CallbackQueueSize, logger),
		ops:       ops,
		events:    events,
		logger:    logger.With(zap.String("component", "dispatcher")),
		ctx:       ctx,
		cancel:    cancel,
	}

	d.wg.Add(1)
	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		job(d.ctx)
	}
}

// Operations returns the operation history
func (d *Dispatcher) Operations() repository.OperationRepository {
	return d.ops
}

// Stop rejects new work, cancels the running operation, completes the
// queued ones and waits for pending callbacks
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.cancel()
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
	d.callbacks.Close()
	d.logger.Info("Dispatcher stopped")
}

// Submit queues fn on the worker. A full queue completes the future with
// BUSY instead of blocking the caller.
func Submit[T any](d *Dispatcher, opType model.OperationType, target string, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T](d.callbacks)
	op := model.NewOperation(opType, target)
	d.record(op)

	job := func(ctx context.Context) {
		value, err := d.execute(ctx, op, func(ctx context.Context) (interface{}, error) {
			return fn(ctx)
		})
		v, _ := value.(T)
		f.complete(v, err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		reject(d, op, f, model.Busy("dispatcher is stopped"))
		return f
	}
	select {
	case d.jobs <- job:
	default:
		reject(d, op, f, model.Busy("operation queue is full"))
	}
	return f
}

// Go runs fn on its own goroutine. It is used for operations that do not
// touch the open session.
func Go[T any](d *Dispatcher, opType model.OperationType, target string, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T](d.callbacks)
	op := model.NewOperation(opType, target)
	d.record(op)

	d.mu.RLock()
	stopped := d.stopped
	if !stopped {
		d.wg.Add(1)
	}
	d.mu.RUnlock()

	if stopped {
		reject(d, op, f, model.Busy("dispatcher is stopped"))
		return f
	}

	go func() {
		defer d.wg.Done()
		value, err := d.execute(d.ctx, op, func(ctx context.Context) (interface{}, error) {
			return fn(ctx)
		})
		v, _ := value.(T)
		f.complete(v, err)
	}()
	return f
}

func reject[T any](d *Dispatcher, op *model.Operation, f *Future[T], err error) {
	d.finish(op, err)
	var zero T
	f.complete(zero, err)
}

// execute runs one operation and records its outcome. A panic is turned
// into an error so the future still completes.
func (d *Dispatcher) execute(ctx context.Context, op *model.Operation, fn func(ctx context.Context) (interface{}, error)) (value interface{}, err error) {
	started := time.Now()
	op.StartedAt = &started
	op.Status = model.OperationStatusProcessing
	d.update(op)

	opLogger := utils.NewOperationLogger(d.logger, string(op.Type), op.ID.String())
	opLogger.Start(zap.String("target", op.Target))
	d.publish(model.EventOperationStarted, op)

	defer func() {
		if rec := recover(); rec != nil {
			value = nil
			err = fmt.Errorf("operation %s panicked: %v", op.Type, rec)
		}
		if err != nil {
			opLogger.Error(err)
		} else {
			opLogger.Success()
		}
		d.finish(op, err)
	}()

	return fn(ctx)
}

func (d *Dispatcher) finish(op *model.Operation, err error) {
	completed := time.Now()
	op.CompletedAt = &completed
	if op.StartedAt == nil {
		op.StartedAt = &completed
	}

	eventType := model.EventOperationCompleted
	op.Status = model.OperationStatusSuccess
	if err != nil {
		eventType = model.EventOperationFailed
		op.Status = model.OperationStatusFailed
		msg := err.Error()
		op.Error = &msg
		if code := model.CodeOf(err); code != "" {
			op.ErrorCode = &code
		}
	}
	d.update(op)
	d.publish(eventType, op)
}

func (d *Dispatcher) record(op *model.Operation) {
	if err := d.ops.Create(context.Background(), op); err != nil {
		d.logger.Warn("Failed to record operation", zap.String("operation_id", op.ID.String()), zap.Error(err))
	}
}

func (d *Dispatcher) update(op *model.Operation) {
	if err := d.ops.Update(context.Background(), op); err != nil {
		d.logger.Debug("Failed to update operation", zap.String("operation_id", op.ID.String()), zap.Error(err))
	}
}

// publish emits operation events. Status polling is too frequent to
// broadcast.
func (d *Dispatcher) publish(eventType model.EventType, op *model.Operation) {
	if op.Type == model.OperationGetStatus || op.Type == model.OperationIsConnected {
		return
	}
	d.events.Publish(model.NewEvent(eventType, op.Target, op.EventData().ToMap()))
}
