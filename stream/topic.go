package stream

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Topic names follow a pattern:
//
//	job:<queue>:<id>  — events for a specific job
//	queue:<name>      — all events for a queue
//	jobs              — all job lifecycle events
//	firehose          — everything
const (
	TopicJobs     = "jobs"
	TopicFirehose = "firehose"
)

// JobTopic returns the topic name for a specific job on a queue.
func JobTopic(queue string, jobID int64) string {
	return "job:" + queue + ":" + strconv.FormatInt(jobID, 10)
}

// QueueTopic returns the topic name for a queue.
func QueueTopic(queue string) string { return "queue:" + queue }

// registry manages subscriber sets per topic. Safe for concurrent use.
type registry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber // topic → subscriberID → subscriber
}

func newRegistry() *registry {
	return &registry{topics: make(map[string]map[string]*Subscriber)}
}

// subscribe attaches a subscriber to a topic, creating the topic if needed.
func (r *registry) subscribe(topic string, sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.topics[topic]
	if !ok {
		subs = make(map[string]*Subscriber)
		r.topics[topic] = subs
	}
	subs[sub.ID()] = sub
	sub.addTopic(topic)
}

// unsubscribe detaches a subscriber from a topic. Empty topics are removed.
func (r *registry) unsubscribe(topic, subscriberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.topics[topic]
	if !ok {
		return
	}
	if sub, exists := subs[subscriberID]; exists {
		sub.removeTopic(topic)
		delete(subs, subscriberID)
	}
	if len(subs) == 0 {
		delete(r.topics, topic)
	}
}

// unsubscribeAll detaches a subscriber from every topic.
func (r *registry) unsubscribeAll(subscriberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for topic, subs := range r.topics {
		if sub, ok := subs[subscriberID]; ok {
			sub.removeTopic(topic)
			delete(subs, subscriberID)
		}
		if len(subs) == 0 {
			delete(r.topics, topic)
		}
	}
}

// broadcast delivers an event to every subscriber on the listed topics,
// deduplicating subscribers attached to more than one of them. Returns the
// number of deliveries.
func (r *registry) broadcast(topics []string, evt *Event) int {
	r.mu.RLock()
	seen := make(map[string]*Subscriber)
	for _, topic := range topics {
		for sid, sub := range r.topics[topic] {
			seen[sid] = sub
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sub := range seen {
		if sub.deliver(evt) {
			delivered++
		}
	}
	return delivered
}

func (r *registry) topicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

func (r *registry) subscriberCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// resolveTopics returns all topics an event fans out to. Every event reaches
// the firehose; job events additionally reach the jobs topic; the event's own
// topic (queue or job scoped) is always included when set.
func resolveTopics(evt *Event) []string {
	topics := []string{TopicFirehose}

	if evt.Type.jobLevel() {
		topics = append(topics, TopicJobs)

		// A job topic implies the enclosing queue topic.
		if q, ok := queueOfJobTopic(evt.Topic); ok {
			topics = append(topics, QueueTopic(q))
		}
	}

	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}

	return topics
}

// queueOfJobTopic extracts the queue name from a "job:<queue>:<id>" topic.
func queueOfJobTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, "job:")
	if !ok {
		return "", false
	}
	idx := strings.LastIndexByte(rest, ':')
	if idx <= 0 {
		return "", false
	}
	return rest[:idx], true
}

// ValidateTopic checks whether a topic string names a known channel.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicJobs, TopicFirehose:
		return nil
	}

	idx := strings.IndexByte(topic, ':')
	if idx <= 0 || idx == len(topic)-1 {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}

	switch topic[:idx] {
	case "job", "queue":
		return nil
	default:
		return fmt.Errorf("stream: unknown topic entity type %q", topic[:idx])
	}
}
