// Package jobnotifier fans terminal job events out to external sinks such as
// callback webhooks, event buses, history storage and operator alerting.
package jobnotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/espeech/espeech-api/internal/domain/model"
	"github.com/espeech/espeech-api/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the job notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Timeout bounds the whole fan-out for one event. Zero means 30s.
	Timeout time.Duration
	// PreviewLength caps the text preview attached to events. Zero means 200 runes.
	PreviewLength int
}

// Service dispatches terminal job events to all registered sinks.
type Service struct {
	logger        *slog.Logger
	sinks         []SinkRegistration
	timeout       time.Duration
	previewLength int
}

// NewService constructs a job notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	preview := opts.PreviewLength
	if preview <= 0 {
		preview = 200
	}

	return &Service{
		logger:        logger.With("component", "job_notifier"),
		sinks:         sinks,
		timeout:       timeout,
		previewLength: preview,
	}
}

// NotifyTerminal delivers the event for a finished job to every sink concurrently
// and waits for all of them. Sink errors are logged and never returned.
func (s *Service) NotifyTerminal(ctx context.Context, job *model.Job) {
	if s == nil || len(s.sinks) == 0 || job == nil || !job.Status.IsTerminal() {
		return
	}

	event := EventFromJob(job, s.previewLength)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendJobEvent(ctx, event); err != nil {
				s.logger.WarnContext(ctx, "job notifier delivery error",
					"sink", entry.Name,
					"job_id", event.JobID,
					"status", event.Status,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

// EventFromJob converts a terminal job into the event handed to sinks.
func EventFromJob(job *model.Job, previewLength int) notify.JobEvent {
	event := notify.JobEvent{
		JobID:       job.ID,
		VoiceID:     job.Params.VoiceID,
		Format:      job.Params.Format,
		Status:      job.Status,
		Error:       job.Error,
		CallbackURL: job.Params.CallbackURL,
		TextPreview: Preview(job.Params.Text, previewLength),
		Severity:    notify.SeverityInfo,
		CreatedAt:   job.CreatedAt,
		OccurredAt:  time.Now().UTC(),
	}
	if job.CompletedAt != nil {
		event.OccurredAt = *job.CompletedAt
		if job.StartedAt != nil {
			event.Duration = job.CompletedAt.Sub(*job.StartedAt)
		}
	}
	if job.Result != nil {
		event.Filename = job.Result.Filename
		event.MimeType = job.Result.MimeType
	}
	if job.Status == model.JobStatusError {
		event.Severity = notify.SeverityCritical
		event.ErrorClass = "synthesis_failed"
	}
	return event
}

// Preview truncates text to at most n runes.
func Preview(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
