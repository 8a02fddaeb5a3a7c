package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/conveyor/id"
	"github.com/xraph/conveyor/job"
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is an instance-scoped notification fan-out. Queues publish their
// lifecycle transitions through it; observers subscribe to topics and read
// events off a buffered channel. A Broker is owned by exactly one queue or
// one conveyor broker facade, never shared ambiently.
type Broker struct {
	reg    *registry
	logger *slog.Logger

	subscribers sync.Map // subscriberID → *Subscriber

	totalPublished atomic.Int64
	totalDelivered atomic.Int64

	bufferSize     int
	defaultCredits int64
}

// Option configures a Broker.
type Option func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) Option {
	return func(b *Broker) { b.bufferSize = size }
}

// WithCredits sets the initial flow-control credits for new subscribers.
func WithCredits(credits int64) Option {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a stream broker.
func NewBroker(logger *slog.Logger, opts ...Option) *Broker {
	b := &Broker{
		reg:            newRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe creates a new subscriber attached to the given topics and emits
// a connect event. The subscriber ID is generated.
func (b *Broker) Subscribe(topics ...string) *Subscriber {
	sub := NewSubscriber(id.NewSubscriberID().String(), b.bufferSize, b.defaultCredits)
	b.subscribers.Store(sub.ID(), sub)
	for _, topic := range topics {
		b.reg.subscribe(topic, sub)
	}

	b.publish(&Event{
		Type:      EventConnect,
		Timestamp: time.Now().UTC(),
		Data:      mustMarshal(ConnEventData{SubscriberID: sub.ID()}),
	})

	return sub
}

// SubscribeTo attaches an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber)
	for _, topic := range topics {
		b.reg.subscribe(topic, sub)
	}
}

// Unsubscribe detaches a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.reg.unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber detaches a subscriber from all topics, closes it, and
// emits a disconnect event.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.reg.unsubscribeAll(subscriberID)
	val, ok := b.subscribers.LoadAndDelete(subscriberID)
	if !ok {
		return
	}
	val.(*Subscriber).Close()

	b.publish(&Event{
		Type:      EventDisconnect,
		Timestamp: time.Now().UTC(),
		Data:      mustMarshal(ConnEventData{SubscriberID: subscriberID}),
	})
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true
}

// Stats contains broker metrics.
type Stats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDelivered  int64 `json:"total_delivered"`
}

// Stats returns a snapshot of broker metrics.
func (b *Broker) Stats() Stats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return Stats{
		TopicCount:      b.reg.topicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDelivered:  b.totalDelivered.Load(),
	}
}

// Close closes every subscriber. The broker emits nothing afterwards.
func (b *Broker) Close() {
	b.subscribers.Range(func(key, value any) bool {
		value.(*Subscriber).Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Debug("stream broker closed")
}

// publish assigns an event ID and fans the event out to all matching topics.
func (b *Broker) publish(evt *Event) {
	evt.ID = id.NewEventID()
	delivered := b.reg.broadcast(resolveTopics(evt), evt)
	b.totalPublished.Add(1)
	b.totalDelivered.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Connection-level events ─────────────────────────

// Ready announces that the owning broker finished construction and can
// accept work.
func (b *Broker) Ready() {
	b.publish(&Event{
		Type:      EventReady,
		Timestamp: time.Now().UTC(),
		Data:      mustMarshal(ConnEventData{}),
	})
}

// QueueClosed announces that a queue stopped autonomous draining.
func (b *Broker) QueueClosed(queue string) {
	b.publish(&Event{
		Type:      EventClosed,
		Timestamp: time.Now().UTC(),
		Topic:     QueueTopic(queue),
		Data:      mustMarshal(ConnEventData{Queue: queue}),
	})
}

// ── Job lifecycle events ────────────────────────────

// JobWaiting announces a freshly enqueued job.
func (b *Broker) JobWaiting(j *job.Job) {
	b.publish(&Event{
		Type:      EventWaiting,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.Queue, j.ID),
		Data:      mustMarshal(JobEventData{Job: j}),
	})
}

// JobActive announces that the consumer picked a job up.
func (b *Broker) JobActive(j *job.Job) {
	b.publish(&Event{
		Type:      EventActive,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.Queue, j.ID),
		Data:      mustMarshal(JobEventData{Job: j}),
	})
}

// JobProgress announces a mid-execution progress update.
func (b *Broker) JobProgress(j *job.Job, progress float64) {
	b.publish(&Event{
		Type:      EventProgress,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.Queue, j.ID),
		Data:      mustMarshal(JobEventData{Job: j, Progress: progress}),
	})
}

// JobCompleted announces a successful terminal transition.
func (b *Broker) JobCompleted(j *job.Job, elapsed time.Duration) {
	b.publish(&Event{
		Type:      EventCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.Queue, j.ID),
		Data:      mustMarshal(JobEventData{Job: j, ElapsedMs: elapsed.Milliseconds()}),
	})
}

// JobFailed announces a failed terminal transition.
func (b *Broker) JobFailed(j *job.Job, jobErr error, elapsed time.Duration) {
	b.publish(&Event{
		Type:      EventFailed,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.Queue, j.ID),
		Data:      mustMarshal(JobEventData{Job: j, Error: jobErr.Error(), ElapsedMs: elapsed.Milliseconds()}),
	})
}
