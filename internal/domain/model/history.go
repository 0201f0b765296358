package model

import "time"

// HistoryRecord is the persisted summary of a finished job.
type HistoryRecord struct {
	JobID       string      `json:"job_id"`
	VoiceID     string      `json:"voice_id"`
	Status      JobStatus   `json:"status"`
	Format      AudioFormat `json:"format"`
	TextPreview string      `json:"text_preview"`
	Error       string      `json:"error,omitempty"`
	Filename    string      `json:"filename,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt time.Time   `json:"completed_at"`
	DurationMs  int64       `json:"duration_ms"`
}
