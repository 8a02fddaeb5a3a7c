package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/xraph/conveyor/job"
)

// run is the drain goroutine. It sleeps until woken by an enqueue or
// consumer registration, then drains the backlog iteratively. There is
// exactly one run goroutine per queue, which is what makes the
// at-most-one-active invariant hold without per-job locking.
func (q *Queue) run() {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCtx.Done():
			return
		case <-q.wake:
		}
		q.drain()
	}
}

// drain repeatedly selects and executes the oldest waiting job until the
// backlog is empty or the queue closes. A loop, not recursion: a long
// backlog must never grow the call stack.
func (q *Queue) drain() {
	for {
		if !q.hasWaiting() {
			return
		}

		if q.limiter != nil {
			if err := q.limiter.Wait(q.stopCtx); err != nil {
				return
			}
		}

		j := q.activateNext()
		if j == nil {
			// Closed or cleared since the waiting check.
			return
		}
		q.execute(j)
	}
}

// hasWaiting reports whether an un-closed queue has a waiting job.
func (q *Queue) hasWaiting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	for _, id := range q.order {
		if j, ok := q.jobs[id]; ok && j.Status == job.StatusWaiting {
			return true
		}
	}
	return false
}

// activateNext transitions the oldest waiting job to active, stamps
// StartedAt, and emits the active notification. Returns a snapshot of the
// activated job, or nil if there is nothing to do.
func (q *Queue) activateNext() *job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	// Ids are monotonic, so insertion order is FIFO order.
	for _, id := range q.order {
		j, ok := q.jobs[id]
		if !ok || j.Status != job.StatusWaiting {
			continue
		}

		now := time.Now().UTC()
		j.Status = job.StatusActive
		j.StartedAt = &now

		snapshot := j.Clone()
		q.events.JobActive(snapshot)
		return snapshot
	}
	return nil
}

// execute runs the consumer for an activated job through the middleware
// chain and applies the terminal transition. Consumer errors and panics are
// absorbed here; they never propagate to the enqueuer and never stop the
// drain loop.
func (q *Queue) execute(snapshot *job.Job) {
	progress := func(p float64) {
		q.mu.Lock()
		defer q.mu.Unlock()

		j, ok := q.jobs[snapshot.ID]
		if !ok || j.Status != job.StatusActive {
			return
		}
		j.Progress = p
		q.events.JobProgress(j.Clone(), p)
	}

	var result json.RawMessage
	terminal := func(ctx context.Context) error {
		res, err := q.consumer(ctx, snapshot.Payload, progress)
		result = res
		return err
	}

	start := time.Now()
	// The consumer gets a background context: closing the queue halts
	// further draining but never cancels the in-flight job.
	err := q.mw(context.Background(), snapshot, terminal)
	elapsed := time.Since(start)

	now := time.Now().UTC()

	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[snapshot.ID]
	if !ok || j.Status != job.StatusActive {
		// Cleared while executing; nothing left to transition.
		q.logger.Debug("job removed during execution",
			slog.String("queue", q.name),
			slog.Int64("job_id", snapshot.ID),
		)
		return
	}

	if err != nil {
		j.Status = job.StatusFailed
		j.Error = err.Error()
		j.Attempts++
		j.FinishedAt = &now
		q.events.JobFailed(j.Clone(), err, elapsed)

		q.logger.Debug("job failed",
			slog.String("queue", q.name),
			slog.Int64("job_id", j.ID),
			slog.Int("attempts", j.Attempts),
			slog.String("error", err.Error()),
		)
		return
	}

	j.Status = job.StatusCompleted
	if result != nil {
		j.Result = append(json.RawMessage(nil), result...)
	}
	j.FinishedAt = &now
	q.events.JobCompleted(j.Clone(), elapsed)
}
