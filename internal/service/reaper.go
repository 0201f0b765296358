package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/espeech/espeech-api/config"
	"github.com/espeech/espeech-api/internal/core"
	obserrors "github.com/espeech/espeech-api/internal/observability/errors"
	"github.com/espeech/espeech-api/internal/observability/metrics"
	"github.com/espeech/espeech-api/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Jobs    *JobService            // Required: job lifecycle
	Results core.ResultRepository  // Required: result store
	History core.HistoryRepository // Optional: history store
	Config  config.ReaperConfig    // Required: reaper configuration
	Logger  *slog.Logger           // Optional: structured logger
	Metrics statsd.Sink            // Optional: metrics sink (StatsD-compatible)
	Clock   func() time.Time       // Optional: time source
}

// ReaperService runs periodic cleanup.
//
// Every tick it:
//   - evicts results past their TTL, independent of reads.
//   - deletes terminal jobs older than the job retention together with their result markers,
//     skipping jobs whose result is still downloadable.
//   - deletes old history rows when a history store is configured.
type ReaperService struct {
	jobs    *JobService
	results core.ResultRepository
	history core.HistoryRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
	clock   func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if opts.Results == nil {
		return nil, errors.New("ResultRepository is required")
	}
	if opts.Config.Interval() <= 0 {
		return nil, errors.New("reaper interval must be positive")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reaper_service")
	logger.Debug("ReaperService initialized",
		"interval", opts.Config.Interval(),
		"job_retention", opts.Config.JobRetention(),
		"history_max_age", opts.Config.HistoryMaxAge,
	)

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &ReaperService{
		jobs:    opts.Jobs,
		results: opts.Results,
		history: opts.History,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
		clock:   clock,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	interval := s.config.Interval()
	s.logger.InfoContext(ctx, "starting reaper service", "interval", interval)

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval() / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// RunOnce performs every cleanup step once.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()

	steps := []cleanupStep{
		{fn: s.evictExpiredResults, label: "evict expired results", operation: "evict_results"},
		{fn: s.reapTerminalJobs, label: "reap terminal jobs", operation: "reap_jobs"},
		{fn: s.deleteOldHistory, label: "delete old history", operation: "delete_history"},
	}

	var (
		errs               []error
		allContextCanceled = true
		outcomes           = make([]cleanupStepOutcome, 0, len(steps))
	)
	for _, step := range steps {
		outcome := s.executeCleanupStep(ctx, step)
		outcomes = append(outcomes, outcome)
		if outcome.aggregateErr != nil {
			errs = append(errs, outcome.aggregateErr)
			allContextCanceled = allContextCanceled && outcome.canceled
		}
	}

	s.emitCleanupMetrics(outcomes, time.Since(start))

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}
	return nil
}

type cleanupFunc func(context.Context) (int64, error)

type cleanupStep struct {
	fn        cleanupFunc
	label     string
	operation string
}

type cleanupStepOutcome struct {
	operation    string
	count        int64
	metricErr    error
	aggregateErr error
	canceled     bool
}

func (s *ReaperService) executeCleanupStep(ctx context.Context, step cleanupStep) cleanupStepOutcome {
	count, err := step.fn(ctx)
	outcome := cleanupStepOutcome{
		operation: step.operation,
		count:     count,
		metricErr: suppressContextCancellation(err),
		canceled:  isContextCancellation(err),
	}
	if err != nil {
		outcome.aggregateErr = fmt.Errorf("%s: %w", step.label, err)
	}
	return outcome
}

func (s *ReaperService) evictExpiredResults(ctx context.Context) (int64, error) {
	count, err := s.results.EvictExpired(ctx, s.clock())
	if err != nil {
		return int64(count), err
	}
	if count > 0 {
		s.logger.InfoContext(ctx, "evicted expired results", "count", count)
	}
	return int64(count), nil
}

func (s *ReaperService) reapTerminalJobs(ctx context.Context) (int64, error) {
	cutoff := s.clock().Add(-s.config.JobRetention())
	// A read can extend a result past the job cutoff; its job stays until the
	// result itself expires.
	ids, err := s.jobs.ReapTerminal(ctx, cutoff, func(jobID string) bool {
		_, getErr := s.results.Get(ctx, jobID)
		return getErr == nil
	})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err = s.results.Forget(ctx, ids); err != nil {
		return int64(len(ids)), fmt.Errorf("forget results: %w", err)
	}
	s.logger.InfoContext(ctx, "reaped terminal jobs",
		"count", len(ids),
		"retention", s.config.JobRetention(),
	)
	return int64(len(ids)), nil
}

// deleteOldHistory loops in batches until no more rows are affected.
func (s *ReaperService) deleteOldHistory(ctx context.Context) (int64, error) {
	if s.history == nil {
		return 0, nil
	}

	var totalCount int64
	for {
		count, err := s.history.DeleteOlderThan(ctx, core.DeleteOldHistoryParams{
			MaxAge:    s.config.HistoryMaxAge,
			BatchSize: s.config.BatchSize,
		})
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count < int64(s.config.BatchSize) {
			break
		}
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 {
		s.logger.InfoContext(ctx, "deleted old history",
			"count", totalCount,
			"max_age", s.config.HistoryMaxAge,
		)
	}
	return totalCount, nil
}

func (s *ReaperService) emitCleanupMetrics(outcomes []cleanupStepOutcome, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var (
		total    int64
		firstErr error
	)
	for _, o := range outcomes {
		total += o.count
		if firstErr == nil {
			firstErr = o.metricErr
		}
	}

	tags := map[string]string{"result": outcomeResult(total, firstErr)}
	if firstErr != nil {
		tags["error_class"] = obserrors.Classify(firstErr)
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}

	for _, o := range outcomes {
		opTags := map[string]string{
			"operation": o.operation,
			"result":    outcomeResult(o.count, o.metricErr),
		}
		if o.metricErr != nil {
			opTags["error_class"] = obserrors.Classify(o.metricErr)
		}
		s.metrics.Count("reaper.cleanup_operation", 1, opTags)
		if o.metricErr == nil && o.count > 0 {
			s.metrics.Count("reaper.items_processed", o.count, metrics.CloneTags(opTags))
		}
	}

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(s.clock().Unix()), nil)
	}
}

func outcomeResult(count int64, err error) string {
	switch {
	case err != nil:
		return metrics.ResultError
	case count == 0:
		return metrics.ResultNoop
	default:
		return metrics.ResultSuccess
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
