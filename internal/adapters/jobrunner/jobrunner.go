// Package jobrunner provides the synthesis worker pool: workers claim queued jobs,
// run them through the engine and record the outcome.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/espeech/espeech-api/internal/domain/model"
	"github.com/espeech/espeech-api/internal/observability/metrics"
	"github.com/espeech/espeech-api/internal/observability/statsd"
	"github.com/espeech/espeech-api/internal/service"
	"golang.org/x/sync/errgroup"
)

const defaultQueueDepthInterval = 15 * time.Second

// RunnerOptions configures the worker pool.
type RunnerOptions struct {
	Jobs      *service.JobService       // Required: job lifecycle
	Synthesis *service.SynthesisService // Required: engine access
	Results   *service.ResultService    // Required: result storage
	Slots     *service.SlotLimiter      // Required: engine slots shared with the stream endpoint

	// Workers is the number of worker goroutines; defaults to the slot count.
	Workers int
	// JobTimeout bounds a single synthesis; zero means no limit beyond the engine's own.
	JobTimeout time.Duration
	// QueueDepthInterval is how often queue depth gauges are emitted; defaults to 15s.
	QueueDepthInterval time.Duration

	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Runner pulls queued jobs and executes them.
type Runner struct {
	jobs       *service.JobService
	synthesis  *service.SynthesisService
	results    *service.ResultService
	slots      *service.SlotLimiter
	workers    int
	jobTimeout time.Duration
	depthEvery time.Duration
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewRunner constructs a worker pool.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobService is required")
	case opts.Synthesis == nil:
		return nil, errors.New("SynthesisService is required")
	case opts.Results == nil:
		return nil, errors.New("ResultService is required")
	case opts.Slots == nil:
		return nil, errors.New("SlotLimiter is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = opts.Slots.Size()
	}
	depthEvery := opts.QueueDepthInterval
	if depthEvery <= 0 {
		depthEvery = defaultQueueDepthInterval
	}

	return &Runner{
		jobs:       opts.Jobs,
		synthesis:  opts.Synthesis,
		results:    opts.Results,
		slots:      opts.Slots,
		workers:    workers,
		jobTimeout: opts.JobTimeout,
		depthEvery: depthEvery,
		logger:     logger.With("component", "job_runner"),
		metrics:    opts.Metrics,
	}, nil
}

// Run starts the workers and blocks until ctx is cancelled or a worker fails.
// Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner",
		"workers", r.workers,
		"slots", r.slots.Size(),
		"engine", r.synthesis.EngineName(),
	)

	g, gctx := errgroup.WithContext(ctx)
	for worker := range r.workers {
		g.Go(func() error { return r.workerLoop(gctx, worker) })
	}
	if r.metrics != nil {
		g.Go(func() error { return r.reportQueueDepth(gctx) })
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	r.logger.InfoContext(ctx, "job runner stopped")
	return nil
}

// workerLoop holds an engine slot before claiming, so a claimed job always starts immediately.
func (r *Runner) workerLoop(ctx context.Context, worker int) error {
	unsubscribe, notify := r.jobs.WaitForWork()
	defer unsubscribe()

	logger := r.logger.With("worker", worker)
	for ctx.Err() == nil {
		release, err := r.slots.Acquire(ctx)
		if err != nil {
			return nil
		}

		job, err := r.jobs.ClaimNext(ctx)
		switch {
		case err == nil:
			r.processJob(ctx, logger, job)
			release()
		case errors.Is(err, model.ErrNoJobsAvailable):
			release()
			if !waitForNotify(ctx, notify) {
				return nil
			}
		case ctx.Err() != nil:
			release()
			return nil
		default:
			release()
			return fmt.Errorf("claim next: %w", err)
		}
	}
	return nil
}

func waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case _, ok := <-notify:
		return ok
	}
}

// processJob runs one claimed job to a terminal state. It never returns an
// error: every failure, including a panic, becomes a failed job and the worker
// keeps its place in the pool.
func (r *Runner) processJob(ctx context.Context, logger *slog.Logger, job *model.Job) {
	// Transitions are recorded even when ctx is cancelled mid-job.
	recordCtx := context.WithoutCancel(ctx)
	logger = logger.With("job_id", job.ID, "voice_id", job.Params.VoiceID)

	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, "panic while processing job",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			r.fail(recordCtx, logger, job, service.MsgInternalError)
		}
	}()

	logger.InfoContext(ctx, "processing job", "format", job.Params.Format, "text_len", len(job.Params.Text))

	voice, err := r.synthesis.Voice(ctx, job.Params.VoiceID)
	if err != nil {
		logger.WarnContext(ctx, "voice unavailable", "error", err)
		r.fail(recordCtx, logger, job, service.SanitizeFailure(err))
		return
	}

	runCtx := ctx
	if r.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.jobTimeout)
		defer cancel()
	}

	audio, err := r.synthesis.Run(runCtx, service.ModeAsync, voice, job.Params)
	if err != nil {
		r.fail(recordCtx, logger, job, service.SanitizeFailure(err))
		return
	}

	ref, err := r.results.Store(recordCtx, job, audio)
	if err != nil {
		logger.ErrorContext(ctx, "store result failed", "error", err)
		r.fail(recordCtx, logger, job, service.MsgInternalError)
		return
	}

	if _, err = r.jobs.Complete(recordCtx, job.ID, ref); err != nil {
		logger.ErrorContext(ctx, "complete job failed", "error", err)
		return
	}
	logger.InfoContext(ctx, "job completed", "filename", ref.Filename, "bytes", len(audio))
}

func (r *Runner) fail(ctx context.Context, logger *slog.Logger, job *model.Job, message string) {
	if _, err := r.jobs.Fail(ctx, job.ID, message); err != nil {
		logger.ErrorContext(ctx, "fail job error", "error", err, "message", message)
	}
}

func (r *Runner) reportQueueDepth(ctx context.Context) error {
	ticker := time.NewTicker(r.depthEvery)
	defer ticker.Stop()

	for {
		stats, err := r.jobs.Stats(ctx)
		if err == nil {
			metrics.EmitQueueDepth(r.metrics, stats.Queued, stats.Running)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
