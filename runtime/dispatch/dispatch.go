// Package dispatch runs background workflow events through a supervised
// worker pool. Latency-tolerant task types (logistics planning, payment
// verification, feedback collection) are enqueued here so the inbound chat
// path can answer immediately; availability checks bypass the queue and run
// synchronously on the caller's goroutine.
//
// The pool is supervised: a worker that panics is logged and replaced, and
// per-key failure records are kept so operators can see which workflows are
// stuck without trawling logs.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sokoflow/sokoflow/runtime/orchestrator"
	"github.com/sokoflow/sokoflow/runtime/telemetry"
)

type (
	// Handler consumes a dequeued event. The orchestrator's Handle method
	// satisfies it.
	Handler interface {
		Handle(ctx context.Context, ev orchestrator.Event) (*orchestrator.Outbound, error)
	}

	// Failure records the most recent handling failure for a workflow key.
	Failure struct {
		Key      orchestrator.Key
		Err      error
		Attempts int
		At       time.Time
	}

	// Options configures a Queue.
	Options struct {
		// Handler processes dequeued events. Required.
		Handler Handler
		// Workers is the pool size. Defaults to 4.
		Workers int
		// Buffer is the queue capacity. Enqueue fails fast when the buffer is
		// full rather than blocking the inbound path. Defaults to 256.
		Buffer int
		// Retries is how many times a retryable failure is reattempted before
		// the event is dropped and recorded. Defaults to 2.
		Retries int
		// RetryDelay spaces retry attempts. Defaults to 2s.
		RetryDelay time.Duration
		// Logger and Metrics default to no-ops.
		Logger  telemetry.Logger
		Metrics telemetry.Metrics
	}

	// Queue is the supervised background dispatcher.
	Queue struct {
		handler    Handler
		events     chan orchestrator.Event
		workers    int
		retries    int
		retryDelay time.Duration
		logger     telemetry.Logger
		metrics    telemetry.Metrics

		mu       sync.Mutex
		failures map[orchestrator.Key]Failure

		// sendMu serializes Enqueue sends against Stop closing the channel:
		// senders hold the read side for the duration of the send, so the
		// channel can only close while no send is in flight.
		sendMu sync.RWMutex
		closed bool

		startOnce sync.Once
		stopOnce  sync.Once
		wg        sync.WaitGroup
	}
)

// ErrQueueFull indicates the buffer is at capacity; the caller should fall
// back to synchronous handling or surface backpressure.
var ErrQueueFull = errors.New("dispatch queue full")

// ErrQueueClosed indicates the queue has been stopped.
var ErrQueueClosed = errors.New("dispatch queue closed")

// New constructs a Queue. Call Start to launch the workers.
func New(opts Options) (*Queue, error) {
	if opts.Handler == nil {
		return nil, errors.New("handler is required")
	}
	q := &Queue{
		handler:    opts.Handler,
		workers:    opts.Workers,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		failures:   make(map[orchestrator.Key]Failure),
	}
	if q.workers <= 0 {
		q.workers = 4
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	if q.retries <= 0 {
		q.retries = 2
	}
	if q.retryDelay <= 0 {
		q.retryDelay = 2 * time.Second
	}
	if q.logger == nil {
		q.logger = telemetry.NewNoopLogger()
	}
	if q.metrics == nil {
		q.metrics = telemetry.NewNoopMetrics()
	}
	q.events = make(chan orchestrator.Event, buffer)
	return q, nil
}

// Start launches the worker pool. Workers run until Stop; each is supervised
// so a panic in handling replaces the worker instead of shrinking the pool.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.supervise(ctx, i)
		}
	})
}

// Enqueue adds an event to the queue without blocking. It fails fast with
// ErrQueueFull under backpressure so the caller can degrade to synchronous
// handling, and with ErrQueueClosed once Stop has begun. Safe to call
// concurrently with Stop.
func (q *Queue) Enqueue(ev orchestrator.Event) error {
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.events <- ev:
		q.metrics.RecordGauge("dispatch.queue_depth", float64(len(q.events)))
		return nil
	default:
		q.metrics.IncCounter("dispatch.rejected", 1)
		return ErrQueueFull
	}
}

// Stop drains the queue and waits for in-flight work, bounded by the context.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() {
		q.sendMu.Lock()
		q.closed = true
		close(q.events)
		q.sendMu.Unlock()
	})
	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch drain: %w", ctx.Err())
	}
}

// Failures returns the recorded failures, most useful for health endpoints
// and tests.
func (q *Queue) Failures() []Failure {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Failure, 0, len(q.failures))
	for _, f := range q.failures {
		out = append(out, f)
	}
	return out
}

// supervise runs one worker and restarts it after a panic.
func (q *Queue) supervise(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		recovered := q.work(ctx, id)
		if !recovered {
			return
		}
		q.metrics.IncCounter("dispatch.worker_restarts", 1)
	}
}

// work consumes events until the queue closes. It returns true when it exited
// via a recovered panic and should be restarted.
func (q *Queue) work(ctx context.Context, id int) (restart bool) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error(ctx, "dispatch worker panic",
				"worker", id, "panic", r, "stack", string(debug.Stack()))
			restart = true
		}
	}()
	for ev := range q.events {
		q.process(ctx, ev)
	}
	return false
}

// process handles one event with bounded retries for retryable failures.
func (q *Queue) process(ctx context.Context, ev orchestrator.Event) {
	key := ev.Key()
	var (
		err      error
		attempts int
	)
	for attempt := 1; attempt <= q.retries+1; attempt++ {
		attempts = attempt
		_, err = q.handler.Handle(ctx, ev)
		if err == nil {
			q.clear(key)
			q.metrics.IncCounter("dispatch.handled", 1, "task", string(ev.TaskType))
			return
		}
		if !orchestrator.IsRetryable(err) || attempt == q.retries+1 {
			break
		}
		q.logger.Warn(ctx, "background event failed, retrying",
			"key", key.String(), "attempt", attempt, "error", err)
		select {
		case <-time.After(q.retryDelay):
		case <-ctx.Done():
			q.record(key, err, attempt)
			return
		}
	}
	q.record(key, err, attempts)
	q.metrics.IncCounter("dispatch.failed", 1, "task", string(ev.TaskType))
	q.logger.Error(ctx, "background event dropped", "key", key.String(), "error", err)
}

func (q *Queue) record(key orchestrator.Key, err error, attempts int) {
	q.mu.Lock()
	q.failures[key] = Failure{Key: key, Err: err, Attempts: attempts, At: time.Now().UTC()}
	q.mu.Unlock()
}

func (q *Queue) clear(key orchestrator.Key) {
	q.mu.Lock()
	delete(q.failures, key)
	q.mu.Unlock()
}
