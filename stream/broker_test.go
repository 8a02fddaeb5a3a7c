package stream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/xraph/conveyor/job"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testJob(queue string, id int64) *job.Job {
	return &job.Job{
		ID:         id,
		Queue:      queue,
		Payload:    json.RawMessage(`{}`),
		Status:     job.StatusWaiting,
		EnqueuedAt: time.Now().UTC(),
	}
}

func recv(t *testing.T, sub *Subscriber) *Event {
	t.Helper()
	select {
	case evt := <-sub.C():
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestSubscribeAndPublish(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe(TopicJobs)

	b.JobWaiting(testJob("emails", 1))

	evt := recv(t, sub)
	if evt.Type != EventWaiting {
		t.Errorf("Type = %q, want %q", evt.Type, EventWaiting)
	}
	if evt.ID.IsNil() {
		t.Error("event should carry a generated ID")
	}

	var data JobEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		t.Fatalf("unmarshal event data: %v", err)
	}
	if data.Job == nil || data.Job.ID != 1 || data.Job.Queue != "emails" {
		t.Errorf("event data job = %+v", data.Job)
	}
}

func TestSubscribeEmitsConnect(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	watcher := b.Subscribe(TopicFirehose)

	other := b.Subscribe(TopicJobs)

	evt := recv(t, watcher)
	if evt.Type != EventConnect {
		t.Fatalf("Type = %q, want %q", evt.Type, EventConnect)
	}
	var data ConnEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if data.SubscriberID != other.ID() {
		t.Errorf("SubscriberID = %q, want %q", data.SubscriberID, other.ID())
	}
}

func TestJobTopicIsolation(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe(JobTopic("emails", 42))

	b.JobCompleted(testJob("emails", 42), 5*time.Millisecond)

	if evt := recv(t, sub); evt.Type != EventCompleted {
		t.Errorf("Type = %q, want %q", evt.Type, EventCompleted)
	}

	// An event for a different job must not arrive.
	b.JobCompleted(testJob("emails", 43), time.Millisecond)

	select {
	case <-sub.C():
		t.Fatal("should not receive event for a different job")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueueTopicReceivesJobEvents(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe(QueueTopic("emails"))

	b.JobActive(testJob("emails", 7))
	if evt := recv(t, sub); evt.Type != EventActive {
		t.Errorf("Type = %q, want %q", evt.Type, EventActive)
	}

	// Jobs on other queues stay invisible.
	b.JobActive(testJob("reports", 7))
	select {
	case <-sub.C():
		t.Fatal("should not receive event for a different queue")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueueClosedEvent(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe(QueueTopic("emails"))

	b.QueueClosed("emails")

	evt := recv(t, sub)
	if evt.Type != EventClosed {
		t.Errorf("Type = %q, want %q", evt.Type, EventClosed)
	}
}

func TestRemoveSubscriber(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe(TopicFirehose)

	b.RemoveSubscriber(sub.ID())

	// Channel must be closed and no further events delivered.
	b.JobWaiting(testJob("q", 1))

	for {
		select {
		case _, ok := <-sub.C():
			if !ok {
				return // closed as expected
			}
		case <-time.After(time.Second):
			t.Fatal("channel should be closed after RemoveSubscriber")
		}
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	_ = b.Subscribe(TopicJobs)
	_ = b.Subscribe(TopicFirehose, TopicJobs)

	b.JobWaiting(testJob("q", 1))

	stats := b.Stats()
	if stats.SubscriberCount != 2 {
		t.Errorf("SubscriberCount = %d, want 2", stats.SubscriberCount)
	}
	if stats.TopicCount < 2 {
		t.Errorf("TopicCount = %d, want >= 2", stats.TopicCount)
	}
	// 2 connect events + 1 waiting event.
	if stats.TotalPublished != 3 {
		t.Errorf("TotalPublished = %d, want 3", stats.TotalPublished)
	}
}

func TestSubscriberCredits(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("credit-sub", 10, 2)
	evt := &Event{Type: EventWaiting, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	if !sub.deliver(evt) {
		t.Fatal("first deliver should succeed")
	}
	if !sub.deliver(evt) {
		t.Fatal("second deliver should succeed")
	}
	if sub.deliver(evt) {
		t.Fatal("third deliver should fail with no credits left")
	}

	sub.AddCredits(5)
	if sub.Credits() != 5 {
		t.Errorf("Credits = %d, want 5", sub.Credits())
	}
	if !sub.deliver(evt) {
		t.Fatal("deliver after replenishment should succeed")
	}
}

func TestSubscriberFilter(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("filter-sub", 10, 100)
	sub.SetFilter(func(e *Event) bool { return e.Type == EventFailed })

	if sub.deliver(&Event{Type: EventCompleted, Timestamp: time.Now().UTC()}) {
		t.Fatal("completed event should be filtered out")
	}
	if !sub.deliver(&Event{Type: EventFailed, Timestamp: time.Now().UTC()}) {
		t.Fatal("failed event should pass the filter")
	}
}

func TestBroadcastDeduplication(t *testing.T) {
	t.Parallel()

	reg := newRegistry()
	sub := NewSubscriber("dedup-sub", 10, 100)

	reg.subscribe("topic-x", sub)
	reg.subscribe("topic-y", sub)

	evt := &Event{Type: EventWaiting, Timestamp: time.Now().UTC()}
	if delivered := reg.broadcast([]string{"topic-x", "topic-y"}, evt); delivered != 1 {
		t.Errorf("broadcast delivered %d, want 1 (deduplicated)", delivered)
	}
}

func TestRegistryUnsubscribe(t *testing.T) {
	t.Parallel()

	reg := newRegistry()
	s1 := NewSubscriber("s1", 10, 100)
	s2 := NewSubscriber("s2", 10, 100)

	reg.subscribe("topic-a", s1)
	reg.subscribe("topic-a", s2)
	reg.subscribe("topic-b", s1)

	if reg.topicCount() != 2 {
		t.Errorf("topicCount = %d, want 2", reg.topicCount())
	}
	if reg.subscriberCount("topic-a") != 2 {
		t.Errorf("subscriberCount(topic-a) = %d, want 2", reg.subscriberCount("topic-a"))
	}

	reg.unsubscribe("topic-a", "s2")
	if reg.subscriberCount("topic-a") != 1 {
		t.Errorf("subscriberCount(topic-a) = %d, want 1", reg.subscriberCount("topic-a"))
	}

	reg.unsubscribeAll("s1")
	if reg.topicCount() != 0 {
		t.Errorf("topicCount after unsubscribeAll = %d, want 0", reg.topicCount())
	}
}

func TestResolveTopics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		evt      *Event
		expected []string
	}{
		{
			name:     "job event",
			evt:      &Event{Type: EventWaiting, Topic: JobTopic("emails", 5)},
			expected: []string{TopicFirehose, TopicJobs, "queue:emails", "job:emails:5"},
		},
		{
			name:     "queue event",
			evt:      &Event{Type: EventClosed, Topic: QueueTopic("emails")},
			expected: []string{TopicFirehose, "queue:emails"},
		},
		{
			name:     "connection event",
			evt:      &Event{Type: EventReady},
			expected: []string{TopicFirehose},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topics := resolveTopics(tt.evt)
			if len(topics) != len(tt.expected) {
				t.Fatalf("got %v, want %v", topics, tt.expected)
			}
			for i := range topics {
				if topics[i] != tt.expected[i] {
					t.Errorf("topic[%d] = %q, want %q", i, topics[i], tt.expected[i])
				}
			}
		})
	}
}

func TestValidateTopic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		topic string
		valid bool
	}{
		{TopicJobs, true},
		{TopicFirehose, true},
		{"job:emails:1", true},
		{"queue:default", true},
		{"invalid", false},
		{"unknown:entity", false},
		{":", false},
		{"", false},
	}

	for _, tt := range tests {
		err := ValidateTopic(tt.topic)
		if tt.valid && err != nil {
			t.Errorf("ValidateTopic(%q) = %v, want nil", tt.topic, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("ValidateTopic(%q) = nil, want error", tt.topic)
		}
	}
}

func TestJobFailedCarriesError(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe(TopicJobs)

	b.JobFailed(testJob("q", 9), errors.New("boom"), 3*time.Millisecond)

	evt := recv(t, sub)
	var data JobEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if data.Error != "boom" {
		t.Errorf("Error = %q, want %q", data.Error, "boom")
	}
}
