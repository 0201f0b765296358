// Package reaper provides adapters for running the cleanup loop.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/espeech/espeech-api/config"
	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/observability/statsd"
	"github.com/espeech/espeech-api/internal/service"
)

// Runner provides a simple adapter to run the reaper loop.
// It constructs the reaper service and runs the cleanup loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Jobs    *service.JobService
	Results core.ResultRepository
	Config  config.ReaperConfig
	Logger  *slog.Logger

	// Optional
	History core.HistoryRepository
	Metrics statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Jobs:    opts.Jobs,
		Results: opts.Results,
		History: opts.History,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Jobs == nil {
		return errors.New("job service is required")
	}
	if opts.Results == nil {
		return errors.New("result repository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}
