// Package stream provides the notification channel for conveyor lifecycle
// events: instance-scoped, topic-based pub/sub with buffered, flow-controlled
// subscribers. Each queue or broker owns its own fan-out; there is no global
// broadcast mechanism.
package stream

import (
	"encoding/json"
	"time"

	"github.com/xraph/conveyor/id"
	"github.com/xraph/conveyor/job"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Connection-level events. These carry no job.
	EventReady      EventType = "ready"
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"
	EventClosed     EventType = "closed"

	// Job lifecycle events, emitted in the order
	// waiting → active → (progress)* → completed | failed.
	EventWaiting   EventType = "waiting"
	EventActive    EventType = "active"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// jobLevel reports whether t is a per-job lifecycle event.
func (t EventType) jobLevel() bool {
	switch t {
	case EventWaiting, EventActive, EventProgress, EventCompleted, EventFailed:
		return true
	default:
		return false
	}
}

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// ID uniquely identifies this event (K-sortable).
	ID id.ID `json:"id"`

	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the most specific channel this event belongs to.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobEventData is the payload for job lifecycle events. It carries a
// snapshot of the job at emission time.
type JobEventData struct {
	Job       *job.Job `json:"job"`
	Progress  float64  `json:"progress,omitempty"`
	Error     string   `json:"error,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms,omitempty"`
}

// ConnEventData is the payload for connection-level events.
type ConnEventData struct {
	SubscriberID string `json:"subscriber_id,omitempty"`
	Queue        string `json:"queue,omitempty"`
}
