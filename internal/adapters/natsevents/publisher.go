// Package natsevents publishes terminal job events to NATS subjects
// of the form <prefix>.<status>, for example espeech.jobs.done.
package natsevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/espeech/espeech-api/internal/observability/notify"
	"github.com/nats-io/nats.go"
)

// Message is the JSON body of a published event.
type Message struct {
	JobID       string    `json:"job_id"`
	VoiceID     string    `json:"voice_id"`
	Status      string    `json:"status"`
	Format      string    `json:"format"`
	Error       string    `json:"error,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	MimeType    string    `json:"mime_type,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	CompletedAt time.Time `json:"completed_at"`
}

// Options configures NewPublisher.
type Options struct {
	Conn          *nats.Conn
	SubjectPrefix string
	Logger        *slog.Logger
}

// Publisher is a notify.Sink backed by a NATS connection.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// Connect dials url with reconnect settings suited to a long-running service.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return conn, nil
}

// NewPublisher creates a publisher on an established connection.
func NewPublisher(opts Options) (*Publisher, error) {
	if opts.Conn == nil {
		return nil, errors.New("nats connection is required")
	}
	prefix := strings.Trim(strings.TrimSpace(opts.SubjectPrefix), ".")
	if prefix == "" {
		prefix = "espeech.jobs"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   opts.Conn,
		prefix: prefix,
		logger: logger.With("component", "nats_publisher"),
	}, nil
}

// Subject returns the subject events with the given status are published on.
func (p *Publisher) Subject(status string) string {
	return p.prefix + "." + status
}

// SendJobEvent implements notify.Sink.
func (p *Publisher) SendJobEvent(ctx context.Context, event notify.JobEvent) error {
	body, err := json.Marshal(Message{
		JobID:       event.JobID,
		VoiceID:     event.VoiceID,
		Status:      string(event.Status),
		Format:      string(event.Format),
		Error:       event.Error,
		Filename:    event.Filename,
		MimeType:    event.MimeType,
		DurationMs:  event.Duration.Milliseconds(),
		CompletedAt: event.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode job event: %w", err)
	}

	msg := &nats.Msg{
		Subject: p.Subject(string(event.Status)),
		Data:    body,
		Header:  nats.Header{},
	}
	msg.Header.Set("Job-Id", event.JobID)

	if err = p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish job event: %w", err)
	}
	p.logger.DebugContext(ctx, "published job event", "subject", msg.Subject, "job_id", event.JobID)
	return nil
}

// Close drains the connection, flushing pending publishes.
func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

var _ notify.Sink = (*Publisher)(nil)
