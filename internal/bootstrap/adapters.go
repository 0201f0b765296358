package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/espeech/espeech-api/config"
	"github.com/espeech/espeech-api/internal/adapters/jobrunner"
	"github.com/espeech/espeech-api/internal/adapters/reaper"
	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/observability/statsd"
	"github.com/espeech/espeech-api/internal/service"
)

// WorkerPoolConfig contains configuration for the synthesis worker pool.
type WorkerPoolConfig struct {
	Jobs       *service.JobService
	Synthesis  *service.SynthesisService
	Results    *service.ResultService
	Slots      *service.SlotLimiter
	Workers    int
	JobTimeout time.Duration
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// RunWorkerPool starts the worker pool and blocks until ctx is cancelled.
func RunWorkerPool(ctx context.Context, cfg WorkerPoolConfig) error {
	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Jobs:       cfg.Jobs,
		Synthesis:  cfg.Synthesis,
		Results:    cfg.Results,
		Slots:      cfg.Slots,
		Workers:    cfg.Workers,
		JobTimeout: cfg.JobTimeout,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create job runner: %w", err)
	}

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run job runner: %w", runErr)
	}
	return nil
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	Jobs    *service.JobService
	Results core.ResultRepository
	History core.HistoryRepository
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Jobs:    cfg.Jobs,
		Results: cfg.Results,
		History: cfg.History,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
