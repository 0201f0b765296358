// Package notify defines the terminal job event delivered to external sinks
// (callback webhooks, Slack, event buses, history).
package notify

import (
	"context"
	"time"

	"github.com/espeech/espeech-api/internal/domain/model"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityInfo     = "info"
	SeverityCritical = "critical"
)

// JobEvent captures the canonical data we emit when a job reaches a terminal state.
type JobEvent struct {
	JobID       string
	VoiceID     string
	Format      model.AudioFormat
	Status      model.JobStatus
	Error       string
	ErrorClass  string
	Filename    string
	MimeType    string
	CallbackURL string
	TextPreview string
	Severity    string
	CreatedAt   time.Time
	OccurredAt  time.Time
	Duration    time.Duration
	Metadata    map[string]string
}

// Failed reports whether the event describes a failed job.
func (e JobEvent) Failed() bool {
	return e.Status == model.JobStatusError
}

// Sink describes a destination capable of consuming terminal job events.
type Sink interface {
	SendJobEvent(ctx context.Context, event JobEvent) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, event JobEvent) error

// SendJobEvent implements the Sink interface.
func (f SinkFunc) SendJobEvent(ctx context.Context, event JobEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// FailuresOnly wraps a sink so it only receives events for failed jobs.
func FailuresOnly(sink Sink) Sink {
	if sink == nil {
		return nil
	}
	return SinkFunc(func(ctx context.Context, event JobEvent) error {
		if !event.Failed() {
			return nil
		}
		return sink.SendJobEvent(ctx, event)
	})
}
