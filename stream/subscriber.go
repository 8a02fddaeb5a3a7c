package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber receives events from the topics it is attached to. Delivery is
// non-blocking: if the subscriber has no flow-control credits left or its
// buffer is full, the event is dropped for that subscriber. A stalled
// observer can therefore never stall the queue that publishes.
type Subscriber struct {
	id string
	ch chan *Event

	// credits is the remaining flow-control grant. The broker skips the
	// subscriber when it reaches zero.
	credits atomic.Int64

	// topics tracks the topics this subscriber is attached to.
	mu     sync.RWMutex
	topics map[string]struct{}

	// filter, when set, gates delivery per event.
	filter func(*Event) bool

	closed atomic.Bool
}

// NewSubscriber creates a subscriber with the given buffer size and initial
// credit grant.
func NewSubscriber(id string, bufferSize int, credits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(credits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only event channel.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits replenishes flow-control credits.
func (s *Subscriber) AddCredits(n int64) { s.credits.Add(n) }

// Credits returns the current credit count.
func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// SetFilter installs a delivery predicate. Only events for which fn returns
// true are delivered. Set before publishing begins; not synchronized.
func (s *Subscriber) SetFilter(fn func(*Event) bool) { s.filter = fn }

// Topics returns a copy of the subscribed topic names.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// deliver attempts to hand an event to the subscriber. Returns false if it
// was dropped: subscriber closed, filter mismatch, no credits, or full buffer.
func (s *Subscriber) deliver(evt *Event) bool {
	if s.closed.Load() {
		return false
	}

	if s.filter != nil && !s.filter(evt) {
		return false
	}

	for {
		current := s.credits.Load()
		if current <= 0 {
			return false
		}
		if s.credits.CompareAndSwap(current, current-1) {
			break
		}
	}

	select {
	case s.ch <- evt:
		return true
	default:
		// Buffer full; the credit was not spent on a delivery.
		s.credits.Add(1)
		return false
	}
}

// Close closes the subscriber channel. Safe to call multiple times.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
