package dispatch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"printer-bridge/internal/model"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []model.PrinterEvent
}

func (r *eventRecorder) Publish(e model.PrinterEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType
	}
	return out
}

func newTestDispatcher(t *testing.T, queue int) *Dispatcher {
	t.Helper()
	d := NewDispatcher(Options{QueueSize: queue, CallbackQueueSize: 8}, nil, nil, zap.NewNop())
	t.Cleanup(d.Stop)
	return d
}

func TestFutureCompletesOnce(t *testing.T) {
	f := newFuture[int](nil)

	_, _, ok := f.Result()
	assert.False(t, ok)

	assert.True(t, f.complete(1, nil))
	assert.False(t, f.complete(2, errors.New("late")))

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	select {
	case <-f.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestFutureAwaitHonoursContext(t *testing.T) {
	f := newFuture[string](nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The future can still complete afterwards
	f.complete("late", nil)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", v)
}

func TestFutureCallbacksRunOnCallbackGoroutine(t *testing.T) {
	runner := NewCallbackRunner(4, zap.NewNop())
	defer runner.Close()

	f := newFuture[int](runner)
	var calls int32
	got := make(chan int, 2)

	f.Then(func(v int, err error) {
		atomic.AddInt32(&calls, 1)
		got <- v
	})
	f.complete(7, nil)
	f.complete(8, nil)

	// Registered after completion
	f.Then(func(v int, err error) {
		atomic.AddInt32(&calls, 1)
		got <- v
	})

	assert.Equal(t, 7, <-got)
	assert.Equal(t, 7, <-got)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCallbackRunnerSurvivesPanics(t *testing.T) {
	runner := NewCallbackRunner(1, zap.NewNop())
	done := make(chan struct{})

	runner.Post(func() { panic("boom") })
	runner.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback after panic did not run")
	}

	runner.Close()
	runner.Close()

	// Posting after close still delivers
	late := make(chan struct{})
	runner.Post(func() { close(late) })
	select {
	case <-late:
	case <-time.After(time.Second):
		t.Fatal("late callback did not run")
	}
}

func TestSubmitSerializesInOrder(t *testing.T) {
	d := newTestDispatcher(t, 16)

	var mu sync.Mutex
	var order []int
	var running, maxRunning int32

	futures := make([]*Future[int], 10)
	for i := range futures {
		i := i
		futures[i] = Submit(d, model.OperationPrint, "TCP:192.0.2.5", func(ctx context.Context) (int, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				m := atomic.LoadInt32(&maxRunning)
				if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			atomic.AddInt32(&running, -1)
			return i * i, nil
		})
	}

	for i, f := range futures {
		v, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i*i, v)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
}

func TestSubmitFullQueueIsBusy(t *testing.T) {
	d := newTestDispatcher(t, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	first := Submit(d, model.OperationPrint, "", func(ctx context.Context) (bool, error) {
		close(started)
		<-release
		return true, nil
	})
	<-started

	queued := Submit(d, model.OperationPrint, "", func(ctx context.Context) (bool, error) { return true, nil })
	rejected := Submit(d, model.OperationPrint, "", func(ctx context.Context) (bool, error) { return true, nil })

	_, err := rejected.Await(context.Background())
	assert.Equal(t, model.ErrCodeBusy, model.CodeOf(err))

	close(release)
	ok, err := first.Await(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = queued.Await(context.Background())
	assert.NoError(t, err)
}

func TestSubmitDeliversFailuresAndPanics(t *testing.T) {
	d := newTestDispatcher(t, 4)

	_, err := Submit(d, model.OperationOpenCashDrawer, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, model.NewError(model.ErrCodeDrawerFailed, "no drawer", nil)
	}).Await(context.Background())
	assert.Equal(t, model.ErrCodeDrawerFailed, model.CodeOf(err))

	_, err = Submit(d, model.OperationPrint, "", func(ctx context.Context) (*int, error) {
		panic("encoder bug")
	}).Await(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoder bug")

	// The worker keeps running after a panic
	v, err := Submit(d, model.OperationGetStatus, "", func(ctx context.Context) (string, error) {
		return "ok", nil
	}).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestGoRunsConcurrently(t *testing.T) {
	d := newTestDispatcher(t, 1)
	release := make(chan struct{})

	blocked := Submit(d, model.OperationPrint, "", func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})

	v, err := Go(d, model.OperationDiscoverPrinters, "", func(ctx context.Context) (int, error) {
		return 2, nil
	}).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	close(release)
	v, err = blocked.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestOperationsAreRecordedAndPublished(t *testing.T) {
	events := &eventRecorder{}
	d := NewDispatcher(Options{}, nil, events, zap.NewNop())
	defer d.Stop()

	_, err := Submit(d, model.OperationPrint, "TCP:192.0.2.5", func(ctx context.Context) (int, error) {
		return 0, model.NewError(model.ErrCodePrintFailed, "paper out", nil)
	}).Await(context.Background())
	require.Error(t, err)

	_, err = Submit(d, model.OperationGetStatus, "", func(ctx context.Context) (int, error) {
		return 0, nil
	}).Await(context.Background())
	require.NoError(t, err)

	ops, total, err := d.Operations().List(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, total)

	statusOp, printOp := ops[0], ops[1]
	assert.Equal(t, model.OperationStatusSuccess, statusOp.Status)
	assert.Equal(t, model.OperationStatusFailed, printOp.Status)
	require.NotNil(t, printOp.ErrorCode)
	assert.Equal(t, model.ErrCodePrintFailed, *printOp.ErrorCode)
	assert.Equal(t, "TCP:192.0.2.5", printOp.Target)

	// Status polls are not broadcast
	assert.Equal(t, []model.EventType{model.EventOperationStarted, model.EventOperationFailed}, events.types())
}

func TestStopCompletesQueuedWork(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 4}, nil, nil, zap.NewNop())
	started := make(chan struct{})

	running := Submit(d, model.OperationConnect, "", func(ctx context.Context) (bool, error) {
		close(started)
		<-ctx.Done()
		return false, ctx.Err()
	})
	<-started
	queued := Submit(d, model.OperationPrint, "", func(ctx context.Context) (bool, error) {
		return false, ctx.Err()
	})

	d.Stop()

	_, err := running.Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	_, err = queued.Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled)

	_, err = Submit(d, model.OperationPrint, "", func(ctx context.Context) (bool, error) { return true, nil }).Await(context.Background())
	assert.Equal(t, model.ErrCodeBusy, model.CodeOf(err))
	_, err = Go(d, model.OperationPair, "", func(ctx context.Context) (bool, error) { return true, nil }).Await(context.Background())
	assert.Equal(t, model.ErrCodeBusy, model.CodeOf(err))
}

func TestCompleted(t *testing.T) {
	v, err := Completed(3, nil).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestThenInsideCallbackDoesNotBlockRunner(t *testing.T) {
	runner := NewCallbackRunner(2, zap.NewNop())
	defer runner.Close()

	var mu sync.Mutex
	var order []int
	record := func(v int) {
		mu.Lock()
		order = append(order, v)
		mu.Unlock()
	}

	release := make(chan struct{})
	finished := make(chan struct{})
	inner := newFuture[int](runner)
	inner.complete(10, nil)

	runner.Post(func() {
		<-release
		// The queue is already past its initial capacity here
		inner.Then(func(v int, err error) {
			record(v)
			close(finished)
		})
	})
	for i := 2; i <= 4; i++ {
		v := i
		runner.Post(func() { record(v) })
	}
	close(release)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("callback registered from a callback never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 3, 4, 10}, order)
}

func TestMap(t *testing.T) {
	runner := NewCallbackRunner(4, zap.NewNop())
	defer runner.Close()

	tests := []struct {
		name    string
		value   int
		err     error
		want    string
		wantErr bool
	}{
		{"value", 21, nil, "42", false},
		{"error passes through", 0, errors.New("offline"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFuture[int](runner)
			mapped := Map(src, func(v int, err error) (string, error) {
				if err != nil {
					return "", err
				}
				return strconv.Itoa(v * 2), nil
			})

			_, _, ok := mapped.Result()
			assert.False(t, ok)

			src.complete(tt.value, tt.err)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			got, err := mapped.Await(ctx)
			if tt.wantErr {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
