// Package conveyor provides an in-process substitute for an external message
// broker and job-processing backend. Calling code enqueues units of work and
// observes their lifecycle without a network-connected broker.
//
// Conveyor is designed as a library, not a service. It has two core pieces:
// a generic key-value store with per-key TTL expiry (package kv), and a
// single-consumer FIFO job queue with durable-queue-like semantics: ordered
// delivery, job states, attempt bookkeeping, and progress/lifecycle
// notifications (package queue).
//
// # Quick Start
//
//	b := broker.New(broker.WithLogger(logger))
//	q := b.Queue("emails")
//	_ = q.RegisterConsumer(func(ctx context.Context, payload json.RawMessage, progress queue.ProgressFunc) (json.RawMessage, error) {
//	    progress(100)
//	    return json.RawMessage(`{"sent":true}`), nil
//	})
//	j := q.Enqueue(ctx, json.RawMessage(`{"to":"a@b.c"}`))
//
// # Architecture
//
// Each queue owns its job table exclusively; all mutation goes through the
// queue's own transition logic. Lifecycle notifications fan out through an
// instance-scoped stream broker (package stream), never a global one. The
// broker package holds an explicit registry of named queues so callers that
// need several queues share one broker-like owner instead of ambient state.
//
// Nothing here survives a process restart, and jobs are processed strictly
// serially per queue. Both are deliberate: conveyor stands in for a real
// broker during development and testing.
package conveyor
