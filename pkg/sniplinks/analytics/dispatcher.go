package analytics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultTimeout bounds one background recording.
	DefaultTimeout = 5 * time.Second
	// DefaultConcurrency caps recordings in flight.
	DefaultConcurrency = 64
	// DefaultQueueSize is the number of events held per worker before new
	// ones are dropped.
	DefaultQueueSize = 64
)

// ErrQueueFull is reported when an event is dropped because every worker is
// busy and the queue has no room.
var ErrQueueFull = errors.New("analytics queue full")

// ErrClosed is reported when an event arrives after Close.
var ErrClosed = errors.New("analytics dispatcher closed")

// Dispatcher runs recordings on a fixed pool of workers so a redirect never
// waits on analytics. The work outlives the request that triggered it.
type Dispatcher struct {
	recorder *Recorder
	timeout  time.Duration
	queue    chan Event

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
	workers sync.WaitGroup
	dropped atomic.Int64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	queueSize int
}

// WithQueueSize sets how many events may wait for a worker.
func WithQueueSize(n int) DispatcherOption {
	return func(c *dispatcherConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// NewDispatcher creates a dispatcher and starts its workers. Non-positive
// values use the defaults. Close stops the workers.
func NewDispatcher(recorder *Recorder, timeout time.Duration, concurrency int, opts ...DispatcherOption) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	cfg := dispatcherConfig{queueSize: concurrency * DefaultQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &Dispatcher{
		recorder: recorder,
		timeout:  timeout,
		queue:    make(chan Event, cfg.queueSize),
	}
	d.workers.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go d.work()
	}
	return d
}

func (d *Dispatcher) work() {
	defer d.workers.Done()
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		_ = d.recorder.Record(ctx, ev)
		cancel()
		d.pending.Done()
	}
}

// Dispatch queues ev and returns immediately. When the queue is full or the
// dispatcher is closed the event is dropped, reported and false is returned.
// Recording failures reach the recorder's reporter.
func (d *Dispatcher) Dispatch(ev Event) bool {
	if ev.ClickedAt.IsZero() {
		ev.ClickedAt = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ErrClosed, ev)
		return false
	}
	d.pending.Add(1)
	select {
	case d.queue <- ev:
		return true
	default:
		d.pending.Done()
		d.drop(ErrQueueFull, ev)
		return false
	}
}

func (d *Dispatcher) drop(err error, ev Event) {
	d.dropped.Add(1)
	d.recorder.reporter.Report(err, "drop click", d.recorder.fields(ev)...)
}

// Dropped returns how many events were discarded without being recorded.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Wait blocks until every queued event has been recorded or failed.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// Close stops accepting events and waits for queued ones to finish, giving
// up when ctx is done. It may be called again to keep waiting.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
