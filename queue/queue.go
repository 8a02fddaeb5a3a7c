// Package queue provides an ordered, single-consumer job queue with
// durable-queue-like semantics: FIFO delivery, explicit job states, attempt
// bookkeeping, and lifecycle notifications.
//
// A Queue owns its job table exclusively. Jobs move one-directionally
// through waiting → active → completed|failed; at most one job is active at
// any instant, and ids are monotonic and never reused. Draining is an
// iterative loop on a single goroutine, so an arbitrarily long backlog never
// grows the call stack.
package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/conveyor"
	"github.com/xraph/conveyor/job"
	"github.com/xraph/conveyor/middleware"
	"github.com/xraph/conveyor/stream"
)

// ProgressFunc reports mid-execution progress for the job being processed.
// Each call updates the job record and emits a progress notification.
type ProgressFunc func(progress float64)

// Consumer is the caller-supplied function that performs the actual work
// for a job. Returning an error (or panicking) fails the job; the returned
// bytes become the job's result on success.
type Consumer func(ctx context.Context, payload json.RawMessage, progress ProgressFunc) (json.RawMessage, error)

// Queue is an in-process FIFO job queue driven by a single registered
// consumer. Safe for concurrent use.
type Queue struct {
	name    string
	logger  *slog.Logger
	events  *stream.Broker
	limiter *rate.Limiter
	mw      middleware.Middleware

	mu       sync.Mutex
	jobs     map[int64]*job.Job
	order    []int64 // insertion order; ids are monotonic so this is also id order
	seq      int64
	consumer Consumer
	closed   bool

	// wake nudges the drain goroutine; buffered so enqueues never block.
	wake chan struct{}
	wg   sync.WaitGroup

	// stopCtx is cancelled by Close. It bounds limiter waits and is the
	// base context handed to consumers.
	stopCtx    context.Context
	stopCancel context.CancelFunc
}

// New creates a queue with the given name.
func New(name string, opts ...Option) *Queue {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	q := &Queue{
		name:    name,
		logger:  cfg.logger,
		events:  cfg.events,
		limiter: cfg.limiter,
		jobs:    make(map[int64]*job.Job),
		wake:    make(chan struct{}, 1),
	}
	if q.events == nil {
		q.events = stream.NewBroker(q.logger)
	}
	q.stopCtx, q.stopCancel = context.WithCancel(context.Background())

	// Panic recovery is always innermost-adjacent; caller middleware wraps it.
	mws := append([]middleware.Middleware{}, cfg.middlewares...)
	mws = append(mws, middleware.Recover(q.logger))
	q.mw = middleware.Chain(mws...)

	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Events returns the queue's notification broker.
func (q *Queue) Events() *stream.Broker { return q.events }

// Enqueue assigns the next id, stores the job in waiting state, emits a
// waiting notification, and wakes the drain loop. The returned Job is a
// copy; callers cannot corrupt queue-internal state through it.
func (q *Queue) Enqueue(_ context.Context, payload json.RawMessage, opts ...job.Option) *job.Job {
	jobOpts := job.DefaultOptions()
	for _, opt := range opts {
		opt(&jobOpts)
	}

	q.mu.Lock()
	q.seq++
	j := &job.Job{
		ID:         q.seq,
		Queue:      q.name,
		Payload:    append(json.RawMessage(nil), payload...),
		Opts:       jobOpts,
		Status:     job.StatusWaiting,
		EnqueuedAt: time.Now().UTC(),
	}
	q.jobs[j.ID] = j
	q.order = append(q.order, j.ID)
	snapshot := j.Clone()

	// Emit under the lock so the waiting notification is serialized before
	// any active notification the drain goroutine might produce.
	q.events.JobWaiting(snapshot)
	q.mu.Unlock()

	q.signal()
	return snapshot
}

// RegisterConsumer installs the processing function and starts the drain
// goroutine. Re-registration while a consumer is installed is a
// configuration error. If jobs are already waiting, draining begins
// immediately.
func (q *Queue) RegisterConsumer(c Consumer) error {
	if c == nil {
		return conveyor.ErrNilConsumer
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return conveyor.ErrQueueClosed
	}
	if q.consumer != nil {
		q.mu.Unlock()
		return conveyor.ErrConsumerRegistered
	}
	q.consumer = c
	q.mu.Unlock()

	q.wg.Add(1)
	go q.run()

	q.signal()
	return nil
}

// GetJob returns a copy of the job with the given id.
func (q *Queue) GetJob(id int64) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return nil, conveyor.ErrJobNotFound
	}
	return j.Clone(), nil
}

// Jobs returns copies of the jobs whose status is in the given set, in
// insertion order. With no statuses, all jobs are returned.
func (q *Queue) Jobs(statuses ...job.Status) []*job.Job {
	var want map[job.Status]struct{}
	if len(statuses) > 0 {
		want = make(map[job.Status]struct{}, len(statuses))
		for _, s := range statuses {
			want[s] = struct{}{}
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]*job.Job, 0, len(q.order))
	for _, id := range q.order {
		j, ok := q.jobs[id]
		if !ok {
			continue
		}
		if want != nil {
			if _, match := want[j.Status]; !match {
				continue
			}
		}
		result = append(result, j.Clone())
	}
	return result
}

// Counts returns the number of jobs per status. Every status is present in
// the map; the values sum to the total job count.
func (q *Queue) Counts() map[job.Status]int {
	counts := make(map[job.Status]int, len(job.Statuses))
	for _, s := range job.Statuses {
		counts[s] = 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, j := range q.jobs {
		counts[j.Status]++
	}
	return counts
}

// Prune removes jobs in the given terminal status whose FinishedAt is older
// than age, returning the removed ids in insertion order. Waiting and active
// jobs are never pruned, so a non-terminal status removes nothing.
func (q *Queue) Prune(age time.Duration, status job.Status) []int64 {
	if !status.Terminal() {
		return nil
	}

	cutoff := time.Now().UTC().Add(-age)

	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []int64
	kept := q.order[:0]
	for _, id := range q.order {
		j, ok := q.jobs[id]
		if !ok {
			continue
		}
		if j.Status == status && j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
	return removed
}

// Clear removes all jobs regardless of status. Ids are not reset; the
// sequence keeps increasing for the lifetime of the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs = make(map[int64]*job.Job)
	q.order = nil
}

// Close stops autonomous draining and emits a closed notification.
// Already-enqueued jobs are kept, and a job the consumer is currently
// executing runs to completion. Close is idempotent and returns
// immediately; use Shutdown to wait for the drain goroutine.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.stopCancel()
	q.events.QueueClosed(q.name)

	q.logger.Debug("queue closed", slog.String("queue", q.name))
}

// Shutdown closes the queue and waits for the drain goroutine to finish the
// in-flight job, if any. Returns the context error if ctx expires first.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.Close()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.logger.Warn("queue shutdown timed out", slog.String("queue", q.name))
		return ctx.Err()
	}
}

// signal nudges the drain goroutine without blocking.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
