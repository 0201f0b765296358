package data

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/domain/model"
	"github.com/google/uuid"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
	// NewID overrides job id generation (defaults to random UUIDs).
	NewID func() string
}

// JobRepo is the in-memory job store. All mutations are serialized under one lock and
// every returned job is a snapshot that callers may keep or modify freely.
type JobRepo struct {
	mu    sync.Mutex
	jobs  map[string]*model.Job
	queue []string
	seq   uint64

	timeProvider TimeProvider
	newID        func() string
	logger       *slog.Logger
}

// NewJobRepo creates a new in-memory JobRepo.
func NewJobRepo(cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		jobs:         make(map[string]*model.Job),
		timeProvider: tp,
		newID:        newID,
		logger:       logger.With("component", "job_repo"),
	}
}

// Create inserts a queued job at the tail of the FIFO queue.
func (r *JobRepo) Create(ctx context.Context, params model.SynthesisParams) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	if _, exists := r.jobs[id]; exists {
		return nil, fmt.Errorf("create job: duplicate id %s", id)
	}

	r.seq++
	job := &model.Job{
		ID:        id,
		Status:    model.JobStatusQueued,
		Params:    params,
		Seq:       r.seq,
		Version:   1,
		CreatedAt: r.timeProvider.Now(),
	}
	r.jobs[id] = job
	r.queue = append(r.queue, id)

	return job.Clone(), nil
}

// ClaimNext atomically moves the oldest queued job to running.
func (r *JobRepo) ClaimNext(ctx context.Context) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.queue) > 0 {
		id := r.queue[0]
		r.queue[0] = ""
		r.queue = r.queue[1:]

		job, ok := r.jobs[id]
		if !ok || job.Status != model.JobStatusQueued {
			continue
		}

		now := r.timeProvider.Now()
		job.Status = model.JobStatusRunning
		job.StartedAt = &now
		job.Version++
		return job.Clone(), nil
	}

	r.queue = nil
	return nil, model.ErrNoJobsAvailable
}

// Complete moves a running job to done and records its result reference.
func (r *JobRepo) Complete(ctx context.Context, id string, ref model.ResultReference) (*model.Job, error) {
	return r.finish(ctx, id, model.JobStatusDone, func(job *model.Job) {
		job.Result = &ref
	})
}

// Fail moves a running job to error with message.
func (r *JobRepo) Fail(ctx context.Context, id, message string) (*model.Job, error) {
	return r.finish(ctx, id, model.JobStatusError, func(job *model.Job) {
		job.Error = message
	})
}

func (r *JobRepo) finish(ctx context.Context, id string, next model.JobStatus, apply func(*model.Job)) (*model.Job, error) {
	if id == "" {
		return nil, ErrJobIDRequired
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !job.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: job %s is %s, cannot become %s", ErrInvalidTransition, id, job.Status, next)
	}

	now := r.timeProvider.Now()
	job.Status = next
	job.CompletedAt = &now
	job.Version++
	apply(job)

	return job.Clone(), nil
}

// GetByID returns a snapshot of the job.
func (r *JobRepo) GetByID(_ context.Context, id string) (*model.Job, error) {
	if id == "" {
		return nil, ErrJobIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

// Stats counts jobs per status.
func (r *JobRepo) Stats(_ context.Context) (*model.JobStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats model.JobStats
	for _, job := range r.jobs {
		switch job.Status {
		case model.JobStatusQueued:
			stats.Queued++
		case model.JobStatusRunning:
			stats.Running++
		case model.JobStatusDone:
			stats.Done++
		case model.JobStatusError:
			stats.Error++
		}
	}
	return &stats, nil
}

// DeleteTerminalBefore removes terminal jobs that completed before cutoff.
// Returned ids are in submission order. keep runs under the repository lock.
func (r *JobRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time, keep func(string) bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped []*model.Job
	for id, job := range r.jobs {
		if !job.Status.IsTerminal() || job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
			continue
		}
		if keep != nil && keep(id) {
			continue
		}
		reaped = append(reaped, job)
		delete(r.jobs, id)
	}

	sort.Slice(reaped, func(i, j int) bool { return reaped[i].Seq < reaped[j].Seq })
	ids := make([]string, 0, len(reaped))
	for _, job := range reaped {
		ids = append(ids, job.ID)
	}
	return ids, nil
}

var _ core.JobRepository = (*JobRepo)(nil)
