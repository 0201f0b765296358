package jobnotifier

import (
	"context"

	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/domain/model"
	"github.com/espeech/espeech-api/internal/observability/notify"
)

// HistorySink records terminal events in a HistoryRepository.
type HistorySink struct {
	repo core.HistoryRepository
}

// NewHistorySink creates a sink backed by repo.
func NewHistorySink(repo core.HistoryRepository) *HistorySink {
	return &HistorySink{repo: repo}
}

// SendJobEvent implements notify.Sink.
func (h *HistorySink) SendJobEvent(ctx context.Context, event notify.JobEvent) error {
	return h.repo.Record(ctx, model.HistoryRecord{
		JobID:       event.JobID,
		VoiceID:     event.VoiceID,
		Status:      event.Status,
		Format:      event.Format,
		TextPreview: event.TextPreview,
		Error:       event.Error,
		Filename:    event.Filename,
		CreatedAt:   event.CreatedAt,
		CompletedAt: event.OccurredAt,
		DurationMs:  event.Duration.Milliseconds(),
	})
}

var _ notify.Sink = (*HistorySink)(nil)
