// Package model defines the core data types shared by the synthesis job system.
package model

import (
	"errors"
	"time"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusQueued indicates a job is waiting for a worker slot.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates a worker is synthesizing the job.
	JobStatusRunning JobStatus = "running"
	// JobStatusDone indicates the job finished and produced a result.
	JobStatusDone JobStatus = "done"
	// JobStatusError indicates synthesis failed.
	JobStatusError JobStatus = "error"
)

// ErrNoJobsAvailable is returned when no queued job is available to claim.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusQueued || s == JobStatusRunning || s == JobStatusDone || s == JobStatusError
}

// IsTerminal reports whether no further transition is possible from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// CanTransitionTo reports whether s may move to next.
// Allowed: queued→running, running→done, running→error.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusDone || next == JobStatusError
	default:
		return false
	}
}

// Job represents a synthesis job with its parameters and lifecycle state.
type Job struct {
	ID     string           `json:"job_id"`
	Status JobStatus        `json:"status"`
	Params SynthesisParams  `json:"params"`
	Error  string           `json:"error,omitempty"`
	Result *ResultReference `json:"result,omitempty"`
	// Seq is the submission sequence number; claims follow ascending Seq.
	Seq uint64 `json:"-"`
	// Version increases by one on every status transition, starting at 1 when queued.
	Version     uint64     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand out of a store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.Result != nil {
		ref := *j.Result
		out.Result = &ref
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// ResultReference is what a done job knows about its result. The bytes live in the result store.
type ResultReference struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

// JobStats counts jobs per status.
type JobStats struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Done    int `json:"done"`
	Error   int `json:"error"`
}
