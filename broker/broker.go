// Package broker ties the conveyor pieces together behind a single owner: a
// registry of named queues, a shared notification stream, and a TTL key-value
// store. Callers that need more than one queue hold one Broker instead of
// wiring queues, streams, and stores individually.
package broker

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/xraph/conveyor"
	"github.com/xraph/conveyor/job"
	"github.com/xraph/conveyor/kv"
	"github.com/xraph/conveyor/queue"
	"github.com/xraph/conveyor/stream"
)

// Broker owns a set of named queues that share one notification stream and
// one key-value store. Safe for concurrent use.
type Broker struct {
	logger *slog.Logger
	cfg    conveyor.Config
	events *stream.Broker
	store  *kv.Store[[]byte]

	queueOpts []queue.Option

	mu     sync.Mutex
	queues map[string]*queue.Queue
	closed bool
}

// New creates a broker and announces readiness on its notification stream.
func New(opts ...Option) *Broker {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Broker{
		logger: cfg.logger,
		cfg:    cfg.config,
		events: stream.NewBroker(cfg.logger,
			stream.WithBufferSize(cfg.config.EventBufferSize),
			stream.WithCredits(cfg.config.EventCredits),
		),
		store:     kv.New[[]byte](),
		queueOpts: cfg.queueOpts,
		queues:    make(map[string]*queue.Queue),
	}

	b.events.Ready()
	b.logger.Debug("broker ready")
	return b
}

// Queue returns the queue with the given name, creating it on first use.
// Repeated calls with the same name return the same instance. Queues created
// after Close start closed: they accept jobs but never drain them.
func (b *Broker) Queue(name string) *queue.Queue {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[name]; ok {
		return q
	}

	opts := append([]queue.Option{
		queue.WithLogger(b.logger),
		queue.WithEvents(b.events),
	}, b.queueOpts...)

	q := queue.New(name, opts...)
	if b.closed {
		q.Close()
	}
	b.queues[name] = q

	b.logger.Debug("queue created", slog.String("queue", name))
	return q
}

// GetQueue returns an existing queue without creating one.
func (b *Broker) GetQueue(name string) (*queue.Queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return nil, conveyor.ErrQueueNotFound
	}
	return q, nil
}

// Queues returns the names of all registered queues, sorted.
func (b *Broker) Queues() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Events returns the shared notification stream.
func (b *Broker) Events() *stream.Broker { return b.events }

// KV returns the broker's TTL key-value store.
func (b *Broker) KV() *kv.Store[[]byte] { return b.store }

// Subscribe attaches a new subscriber to the given topics on the shared
// stream. Returns ErrBrokerClosed after Close.
func (b *Broker) Subscribe(topics ...string) (*stream.Subscriber, error) {
	for _, topic := range topics {
		if err := stream.ValidateTopic(topic); err != nil {
			return nil, err
		}
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, conveyor.ErrBrokerClosed
	}

	return b.events.Subscribe(topics...), nil
}

// Stats aggregates job counts across all queues plus stream metrics.
type Stats struct {
	Queues int                `json:"queues"`
	Jobs   map[job.Status]int `json:"jobs"`
	Stream stream.Stats       `json:"stream"`
	KVKeys int                `json:"kv_keys"`
	Closed bool               `json:"closed"`
}

// Stats returns a snapshot of broker-wide metrics.
func (b *Broker) Stats() Stats {
	b.mu.Lock()
	queues := make([]*queue.Queue, 0, len(b.queues))
	for _, q := range b.queues {
		queues = append(queues, q)
	}
	closed := b.closed
	b.mu.Unlock()

	jobs := make(map[job.Status]int, len(job.Statuses))
	for _, s := range job.Statuses {
		jobs[s] = 0
	}
	for _, q := range queues {
		for status, n := range q.Counts() {
			jobs[status] += n
		}
	}

	return Stats{
		Queues: len(queues),
		Jobs:   jobs,
		Stream: b.events.Stats(),
		KVKeys: b.store.Len(),
		Closed: closed,
	}
}

// Close stops every queue, waits up to the configured shutdown timeout for
// in-flight consumers, flushes the key-value store, and closes the stream.
// Idempotent; returns the first shutdown error encountered.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	queues := make([]*queue.Queue, 0, len(b.queues))
	for _, q := range b.queues {
		queues = append(queues, q)
	}
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.ShutdownTimeout)
	defer cancel()

	var firstErr error
	for _, q := range queues {
		if err := q.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	b.store.Flush()
	b.events.Close()

	b.logger.Debug("broker closed", slog.Int("queues", len(queues)))
	return firstErr
}
