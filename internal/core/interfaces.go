package core

import (
	"context"
	"time"

	"github.com/espeech/espeech-api/internal/domain/model"
)

// This file contains repository and collaborator interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not on concrete adapters.

// JobRepository is the authoritative store of job state.
type JobRepository interface {
	// Create inserts a queued job and returns a snapshot of it.
	Create(ctx context.Context, params model.SynthesisParams) (*model.Job, error)
	// ClaimNext atomically moves the oldest queued job to running.
	// It returns model.ErrNoJobsAvailable when the queue is empty.
	ClaimNext(ctx context.Context) (*model.Job, error)
	// Complete moves a running job to done.
	Complete(ctx context.Context, id string, ref model.ResultReference) (*model.Job, error)
	// Fail moves a running job to error with a message.
	Fail(ctx context.Context, id, message string) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	Stats(ctx context.Context) (*model.JobStats, error)
	// DeleteTerminalBefore removes done and error jobs that finished before cutoff and returns their ids.
	// Jobs for which keep reports true survive; a nil keep removes them all.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time, keep func(jobID string) bool) ([]string, error)
}

// StoreResultParams groups the inputs of ResultRepository.Store.
type StoreResultParams struct {
	JobID    string
	Data     []byte
	MimeType string
	Filename string
}

// ResultRepository owns produced audio.
//
// Get distinguishes a result that was evicted (data.ErrResultExpired) from one
// that was never stored (data.ErrResultNotFound).
type ResultRepository interface {
	Store(ctx context.Context, params StoreResultParams) (*model.Result, error)
	Get(ctx context.Context, jobID string) (*model.Result, error)
	// Touch restarts the TTL of an available result.
	Touch(ctx context.Context, jobID string) error
	// Evict removes the payload of a single result, leaving it expired.
	Evict(ctx context.Context, jobID string) error
	// EvictExpired removes every payload past its TTL at now and returns the count.
	EvictExpired(ctx context.Context, now time.Time) (int, error)
	// Forget drops all knowledge of the given results, including expiry markers.
	Forget(ctx context.Context, jobIDs []string) error
}

// SynthesisInput is a single engine call.
type SynthesisInput struct {
	Voice  *model.Voice
	Params model.SynthesisParams
}

// SynthesisEngine turns text into audio. Calls may be slow and may fail.
type SynthesisEngine interface {
	Synthesize(ctx context.Context, in SynthesisInput) ([]byte, error)
	Name() string
}

// VoiceCatalog resolves voice ids to reference material.
type VoiceCatalog interface {
	List(ctx context.Context) ([]*model.Voice, error)
	// Get returns data.ErrVoiceNotFound for unknown ids.
	Get(ctx context.Context, id string) (*model.Voice, error)
	Refresh(ctx context.Context) error
}

// HistoryRepository persists terminal jobs for auditing.
type HistoryRepository interface {
	Record(ctx context.Context, rec model.HistoryRecord) error
	List(ctx context.Context, limit int) ([]*model.HistoryRecord, error)
	DeleteOlderThan(ctx context.Context, params DeleteOldHistoryParams) (int64, error)
}

// DeleteOldHistoryParams groups parameters for HistoryRepository.DeleteOlderThan.
type DeleteOldHistoryParams struct {
	MaxAge    time.Duration
	BatchSize int
}
