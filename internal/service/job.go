package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/data"
	domainjob "github.com/espeech/espeech-api/internal/domain/job"
	"github.com/espeech/espeech-api/internal/domain/model"
	apperrors "github.com/espeech/espeech-api/internal/errors"
	"github.com/espeech/espeech-api/internal/observability/metrics"
	"github.com/espeech/espeech-api/internal/observability/statsd"
)

// TerminalNotifier receives every job that reaches done or error.
type TerminalNotifier interface {
	NotifyTerminal(ctx context.Context, job *model.Job)
}

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo        core.JobRepository     // Required: job store
	Broadcaster *domainjob.Broadcaster // Optional: per-job status fan-out
	Notifier    domainjob.Notifier     // Optional: work-available signal for idle workers
	Terminal    TerminalNotifier       // Optional: callback/history/alert fan-out
	Metrics     statsd.Sink            // Optional: metrics sink
	Logger      *slog.Logger           // Optional: structured logger
	Clock       func() time.Time       // Optional: event timestamps
	EventBuffer int                    // Optional: broadcaster buffer when Broadcaster is nil
	OnDrop      func(jobID string)     // Optional: broadcaster drop hook when Broadcaster is nil
}

// JobService owns the job lifecycle: every transition goes through the store,
// is published to status subscribers, and terminal jobs are handed to the
// terminal notifier without blocking the caller.
type JobService struct {
	repo        core.JobRepository
	broadcaster *domainjob.Broadcaster
	notifier    domainjob.Notifier
	terminal    TerminalNotifier
	metrics     statsd.Sink
	logger      *slog.Logger
	clock       func() time.Time

	inflight sync.WaitGroup
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "job_service")

	broadcaster := opts.Broadcaster
	if broadcaster == nil {
		broadcaster = domainjob.NewBroadcaster(domainjob.BroadcasterOptions{
			Buffer: opts.EventBuffer,
			Logger: opts.Logger,
			OnDrop: opts.OnDrop,
		})
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = domainjob.NewNotifier()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &JobService{
		repo:        opts.Repo,
		broadcaster: broadcaster,
		notifier:    notifier,
		terminal:    opts.Terminal,
		metrics:     opts.Metrics,
		logger:      logger,
		clock:       clock,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Create enqueues a job and wakes idle workers.
func (s *JobService) Create(ctx context.Context, params model.SynthesisParams) (*model.Job, error) {
	job, err := s.repo.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.publish(job)
	s.notifier.Notify()
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: metrics.TransitionCreated,
		Result:     metrics.ResultSuccess,
		Format:     string(job.Params.Format),
	})

	s.logger.DebugContext(ctx, "job created",
		"job_id", job.ID,
		"voice_id", job.Params.VoiceID,
		"format", job.Params.Format,
	)
	return job, nil
}

// ClaimNext claims the oldest queued job. It returns model.ErrNoJobsAvailable
// when the queue is empty.
func (s *JobService) ClaimNext(ctx context.Context) (*model.Job, error) {
	job, err := s.repo.ClaimNext(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}

	s.publish(job)
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: metrics.TransitionClaimed,
		Result:     metrics.ResultSuccess,
		Format:     string(job.Params.Format),
		Duration:   s.clock().Sub(job.CreatedAt),
	})
	return job, nil
}

// Complete marks a running job done.
func (s *JobService) Complete(ctx context.Context, id string, ref model.ResultReference) (*model.Job, error) {
	job, err := s.repo.Complete(ctx, id, ref)
	if err != nil {
		s.logTransitionError(ctx, "complete", id, err)
		return nil, fmt.Errorf("complete job: %w", err)
	}
	s.finish(ctx, job, metrics.TransitionComplete, metrics.ResultSuccess, nil)
	return job, nil
}

// Fail marks a running job as error with a client-safe message.
func (s *JobService) Fail(ctx context.Context, id, message string) (*model.Job, error) {
	job, err := s.repo.Fail(ctx, id, message)
	if err != nil {
		s.logTransitionError(ctx, "fail", id, err)
		return nil, fmt.Errorf("fail job: %w", err)
	}
	s.finish(ctx, job, metrics.TransitionFail, metrics.ResultError,
		apperrors.New(apperrors.ErrCodeSynthesisFailed, message))
	return job, nil
}

// Get returns a job snapshot or a not_found application error.
func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeNotFound, "job %s not found", id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Stats returns counts per status.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	return s.repo.Stats(ctx)
}

// Subscribe opens a status subscription for a job. The current state is the
// first event. It returns a not_found application error for unknown jobs.
func (s *JobService) Subscribe(ctx context.Context, id string) (*domainjob.Subscription, error) {
	var lookupErr error
	sub, ok := s.broadcaster.Subscribe(id, func() (model.StatusEvent, bool) {
		job, err := s.repo.GetByID(ctx, id)
		if err != nil {
			lookupErr = err
			return model.StatusEvent{}, false
		}
		return model.EventFromJob(job, s.clock()), true
	})
	if ok {
		return sub, nil
	}
	if lookupErr == nil || errors.Is(lookupErr, data.ErrJobNotFound) {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return nil, fmt.Errorf("subscribe: %w", lookupErr)
}

// WaitForWork registers an idle-worker listener that is signalled on every Create.
func (s *JobService) WaitForWork() (func(), <-chan struct{}) {
	return s.notifier.Subscribe()
}

// ReapTerminal deletes terminal jobs that finished before cutoff and returns
// their ids. Jobs for which keep reports true are left in place.
func (s *JobService) ReapTerminal(ctx context.Context, cutoff time.Time, keep func(jobID string) bool) ([]string, error) {
	return s.repo.DeleteTerminalBefore(ctx, cutoff, keep)
}

// CloseSubscriptions ends every open status stream. Later subscribers receive
// only the current snapshot.
func (s *JobService) CloseSubscriptions() {
	s.broadcaster.CloseAll()
}

// Shutdown stops idle workers, closes status subscriptions and waits for
// in-flight terminal notifications until ctx is done.
func (s *JobService) Shutdown(ctx context.Context) error {
	s.notifier.StopAll()
	s.CloseSubscriptions()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *JobService) finish(ctx context.Context, job *model.Job, transition, result string, err error) {
	s.publish(job)

	var elapsed time.Duration
	if job.StartedAt != nil && job.CompletedAt != nil {
		elapsed = job.CompletedAt.Sub(*job.StartedAt)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: transition,
		Result:     result,
		Format:     string(job.Params.Format),
		Duration:   elapsed,
		Err:        err,
	})

	s.logger.InfoContext(ctx, "job finished",
		"job_id", job.ID,
		"status", job.Status,
		"duration", elapsed,
	)

	if s.terminal == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.terminal.NotifyTerminal(context.WithoutCancel(ctx), job.Clone())
	}()
}

func (s *JobService) publish(job *model.Job) {
	s.broadcaster.Publish(model.EventFromJob(job, s.clock()))
}

func (s *JobService) logTransitionError(ctx context.Context, op, id string, err error) {
	if errors.Is(err, data.ErrInvalidTransition) {
		s.logger.ErrorContext(ctx, "invalid job transition", "op", op, "job_id", id, "error", err)
		return
	}
	s.logger.WarnContext(ctx, "job transition failed", "op", op, "job_id", id, "error", err)
}
