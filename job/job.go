// Package job defines the job record and its lifecycle states.
//
// A queue instance exclusively owns its job table; no external component
// mutates a Job directly. Callers always receive copies.
package job

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusWaiting means the job is enqueued and not yet picked up.
	StatusWaiting Status = "waiting"
	// StatusActive means the consumer is currently executing the job.
	StatusActive Status = "active"
	// StatusCompleted means the consumer finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the consumer returned an error or panicked.
	StatusFailed Status = "failed"
)

// Statuses lists all statuses in lifecycle order.
var Statuses = []Status{StatusWaiting, StatusActive, StatusCompleted, StatusFailed}

// Terminal reports whether s is a state no transition leaves.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job represents a unit of work owned by a queue instance.
//
// IDs are int64 sequence numbers, monotonically increasing per queue and
// assigned at enqueue time. They are never reused within a queue's lifetime.
type Job struct {
	ID         int64           `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Opts       Options         `json:"opts"`
	Status     Status          `json:"status"`
	Attempts   int             `json:"attempts"`
	Progress   float64         `json:"progress"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Clone returns a deep copy of the job. Payload and Result bytes are
// duplicated so callers cannot corrupt queue-internal state.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Payload != nil {
		cp.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	if j.Result != nil {
		cp.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	cp.Opts = j.Opts.clone()
	return &cp
}
