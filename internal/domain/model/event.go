package model

import "time"

// StatusEvent is a single job status transition as delivered to subscribers.
type StatusEvent struct {
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Error    string    `json:"error,omitempty"`
	Filename string    `json:"filename,omitempty"`
	MimeType string    `json:"mime_type,omitempty"`
	// Seq is the job version the event describes; it increases by one per transition.
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`
}

// Terminal reports whether the event carries a terminal status.
func (e StatusEvent) Terminal() bool {
	return e.Status.IsTerminal()
}

// EventFromJob builds the event describing j's current state.
func EventFromJob(j *Job, at time.Time) StatusEvent {
	ev := StatusEvent{
		JobID:  j.ID,
		Status: j.Status,
		Error:  j.Error,
		Seq:    j.Version,
		At:     at,
	}
	if j.Result != nil {
		ev.Filename = j.Result.Filename
		ev.MimeType = j.Result.MimeType
	}
	return ev
}
