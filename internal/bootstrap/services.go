package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/espeech/espeech-api/config"
	"github.com/espeech/espeech-api/internal/adapters/engine"
	"github.com/espeech/espeech-api/internal/adapters/natsevents"
	"github.com/espeech/espeech-api/internal/adapters/voices"
	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/data"
	"github.com/espeech/espeech-api/internal/domain/model"
	"github.com/espeech/espeech-api/internal/observability/metrics"
	"github.com/espeech/espeech-api/internal/observability/notify"
	"github.com/espeech/espeech-api/internal/observability/notify/slack"
	"github.com/espeech/espeech-api/internal/observability/notify/webhook"
	"github.com/espeech/espeech-api/internal/observability/statsd"
	"github.com/espeech/espeech-api/internal/service"
	"github.com/espeech/espeech-api/internal/service/jobnotifier"
	"github.com/redis/go-redis/v9"
)

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second

	clientName = "espeech-api"

	engineHealthTimeout = 5 * time.Second
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Synthesis     *service.SynthesisService
	Results       *service.ResultService
	ResultRepo    core.ResultRepository
	Slots         *service.SlotLimiter
	Voices        core.VoiceCatalog
	Engine        core.SynthesisEngine
	History       core.HistoryRepository
	Observability ObservabilityContainer

	closers []namedCloser
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink    *statsd.Client
	MetricsConfig  config.ObservabilityMetricsConfig
	Notifier       *jobnotifier.Service
	NotifierConfig config.ObservabilityNotificationsConfig
}

// Sink returns the metrics sink, or nil when metrics are disabled.
//
//nolint:ireturn // callers test the interface for nil to skip metric work.
func (o ObservabilityContainer) Sink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

type namedCloser struct {
	name  string
	close func() error
}

// Close releases connections opened while building the container.
func (c *ServiceContainer) Close(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		entry := c.closers[i]
		if err := entry.close(); err != nil {
			logger.Warn("close failed", "resource", entry.name, "error", err)
		}
	}
	c.closers = nil
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "espeech",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:    metricsSink,
		MetricsConfig:  cfg.Metrics,
		NotifierConfig: cfg.Notifications,
	}
}

// buildResultRepo selects the result store backend.
//
//nolint:ireturn // returning core.ResultRepository lets the backend be chosen at runtime.
func buildResultRepo(deps *ServiceDeps, logger *slog.Logger) (core.ResultRepository, error) {
	cfg := deps.Config
	opts := data.ResultRepoOptions{
		TTL:    cfg.Results.TTL(),
		Logger: logger,
	}

	switch cfg.Results.Backend {
	case config.ResultBackendFile:
		repo, err := data.NewFileResultRepo(cfg.Results.OutputDir, opts)
		if err != nil {
			return nil, fmt.Errorf("create file result store: %w", err)
		}
		return repo, nil
	case config.ResultBackendRedis:
		if deps.RedisClient == nil {
			return nil, errors.New("redis result backend requires a redis connection")
		}
		repo, err := data.NewRedisResultRepo(deps.RedisClient, data.RedisResultRepoOptions{
			TTL:             cfg.Results.TTL(),
			KeyPrefix:       cfg.Redis.KeyPrefix,
			MarkerRetention: cfg.Reaper.JobRetention(),
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis result store: %w", err)
		}
		return repo, nil
	case config.ResultBackendMemory:
		return data.NewMemoryResultRepo(opts), nil
	}
	return nil, fmt.Errorf("unknown result backend %q", cfg.Results.Backend)
}

// buildEngine selects the synthesis engine.
//
//nolint:ireturn // returning core.SynthesisEngine lets the engine be chosen at runtime.
func buildEngine(cfg config.EngineConfig, logger *slog.Logger) (core.SynthesisEngine, error) {
	switch cfg.Kind {
	case config.EngineKindHTTP:
		eng, err := engine.NewHTTPEngine(engine.HTTPEngineOptions{
			BaseURL: cfg.URL,
			Timeout: cfg.Timeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create http engine: %w", err)
		}
		// The inference server may still be loading its model; jobs fail
		// individually until it answers.
		ctx, cancel := context.WithTimeout(context.Background(), engineHealthTimeout)
		defer cancel()
		if healthErr := eng.HealthCheck(ctx); healthErr != nil {
			logger.Warn("synthesis engine not healthy at startup", "url", cfg.URL, "error", healthErr)
		}
		return eng, nil
	case config.EngineKindTone:
		return engine.NewToneEngine(0), nil
	}
	return nil, fmt.Errorf("unknown engine %q", cfg.Kind)
}

// terminalSinks groups the sinks receiving terminal job events and the
// resources they hold open.
type terminalSinks struct {
	sinks   []jobnotifier.SinkRegistration
	history core.HistoryRepository
	closers []namedCloser
}

// buildTerminalSinks registers the callback webhook and every optional sink that is configured.
func buildTerminalSinks(deps *ServiceDeps, logger *slog.Logger) (terminalSinks, error) {
	cfg := deps.Config
	var out terminalSinks

	callbacks := webhook.NewClient(webhook.Config{
		Timeout:    cfg.Observability.Callbacks.Timeout,
		RetryLimit: cfg.Observability.Callbacks.RetryLimit,
		UserAgent:  clientName,
	})
	out.sinks = append(out.sinks, jobnotifier.SinkRegistration{Name: "callback", Sink: callbacks})

	if cfg.Observability.Events.Enabled {
		conn, err := natsevents.Connect(cfg.Observability.Events.URL, clientName)
		if err != nil {
			return out, err
		}
		publisher, err := natsevents.NewPublisher(natsevents.Options{
			Conn:          conn,
			SubjectPrefix: cfg.Observability.Events.SubjectPrefix,
			Logger:        logger,
		})
		if err != nil {
			conn.Close()
			return out, fmt.Errorf("create nats publisher: %w", err)
		}
		out.sinks = append(out.sinks, jobnotifier.SinkRegistration{Name: "nats", Sink: publisher})
		out.closers = append(out.closers, namedCloser{name: "nats", close: publisher.Close})
	}

	if cfg.History.Enabled {
		if deps.DB == nil {
			return out, errors.New("job history requires a database connection")
		}
		repo := data.NewHistoryRepo(deps.DB, nil)
		out.history = repo
		out.sinks = append(out.sinks, jobnotifier.SinkRegistration{Name: "history", Sink: jobnotifier.NewHistorySink(repo)})
	}

	if slackSink := buildSlackSink(logger, cfg.Observability.Notifications); slackSink != nil {
		out.sinks = append(out.sinks, *slackSink)
	}

	return out, nil
}

// buildSlackSink returns the failure alert sink, or nil when alerting is disabled.
func buildSlackSink(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *jobnotifier.SinkRegistration {
	if !cfg.Enabled || !cfg.Slack.Enabled {
		return nil
	}
	client, err := slack.NewClient(slack.Config{
		WebhookURL:   cfg.Slack.WebhookURL,
		Channel:      cfg.Slack.Channel,
		Username:     cfg.Slack.Username,
		Timeout:      cfg.Timeout,
		RetryLimit:   cfg.RetryLimit,
		JobURLPrefix: cfg.Slack.JobURLPrefix,
	})
	if err != nil {
		logger.Error("failed to initialise slack notifier", "error", err)
		return nil
	}
	var sink notify.Sink = client
	if cfg.Slack.FailuresOnly {
		sink = notify.FailuresOnly(client)
	}
	return &jobnotifier.SinkRegistration{Name: "slack", Sink: sink}
}

// NewServices wires stores, engine, notifiers and services from configuration.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observability := buildObservability(logger, cfg.Observability)
	container := ServiceContainer{Observability: observability}

	resultRepo, err := buildResultRepo(deps, logger)
	if err != nil {
		return container, err
	}
	container.ResultRepo = resultRepo

	eng, err := buildEngine(cfg.Engine, logger)
	if err != nil {
		return container, err
	}
	container.Engine = eng

	catalog := voices.NewCatalog(voices.CatalogOptions{Dir: cfg.Voices.Dir, Logger: logger})
	container.Voices = catalog

	sinks, err := buildTerminalSinks(deps, logger)
	container.closers = append(container.closers, sinks.closers...)
	if err != nil {
		container.Close(logger)
		return container, err
	}
	container.History = sinks.history

	notifier := jobnotifier.NewService(jobnotifier.Options{
		Logger:        logger,
		Sinks:         sinks.sinks,
		PreviewLength: cfg.History.TextPreviewLength,
	})
	container.Observability.Notifier = notifier

	var terminal service.TerminalNotifier
	if notifier.Enabled() {
		terminal = notifier
	}

	metricsSink := observability.Sink()
	container.Jobs = service.MustNewJobService(service.JobServiceOptions{
		Repo:        data.NewJobRepo(data.RepoConfig{Logger: logger}),
		Terminal:    terminal,
		Metrics:     metricsSink,
		Logger:      logger,
		EventBuffer: cfg.Jobs.EventBuffer,
		OnDrop: func(string) {
			metrics.EmitEventDropped(metricsSink, "subscriber")
		},
	})

	results, err := service.NewResultService(service.ResultServiceOptions{
		Repo:          resultRepo,
		SingleRead:    cfg.Results.SingleRead,
		TouchOnAccess: cfg.Results.TouchOnAccess,
		Logger:        logger,
	})
	if err != nil {
		container.Close(logger)
		return container, fmt.Errorf("create result service: %w", err)
	}
	container.Results = results

	container.Slots = service.NewSlotLimiter(cfg.Jobs.MaxWorkers)

	synthesis, err := service.NewSynthesisService(service.SynthesisServiceOptions{
		Jobs:   container.Jobs,
		Voices: catalog,
		Engine: eng,
		Slots:  container.Slots,
		Defaults: model.SynthesisDefaults{
			NFEStep:       cfg.Jobs.DefaultNFEStep,
			MaxTextLength: cfg.Jobs.MaxTextLength,
		},
		Metrics: metricsSink,
		Logger:  logger,
	})
	if err != nil {
		container.Close(logger)
		return container, fmt.Errorf("create synthesis service: %w", err)
	}
	container.Synthesis = synthesis

	logger.Info("services initialised",
		"result_backend", cfg.Results.Backend,
		"engine", eng.Name(),
		"voices_dir", cfg.Voices.Dir,
		"max_workers", container.Slots.Size(),
		"terminal_sinks", len(sinks.sinks),
	)

	return container, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) (*http.Server, error) {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil, nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "worker pool",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			svcs := deps.cfg.Services
			return RunWorkerPool(ctx, WorkerPoolConfig{
				Jobs:      svcs.Jobs,
				Synthesis: svcs.Synthesis,
				Results:   svcs.Results,
				Slots:     svcs.Slots,
				Logger:    deps.logger,
				Metrics:   svcs.Observability.Sink(),
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			svcs := deps.cfg.Services
			return RunReaper(ctx, ReaperConfig{
				Jobs:    svcs.Jobs,
				Results: svcs.ResultRepo,
				History: svcs.History,
				Logger:  deps.logger,
				Config:  reaperCfg,
				Metrics: svcs.Observability.Sink(),
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
// Background services start first so the gateway never accepts work nobody will run.
func startServices(deps *serviceStartupDeps) (ServiceStartupResult, error) {
	result := ServiceStartupResult{
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
	server, err := startHTTPServerIfEnabled(deps)
	if err != nil {
		return result, fmt.Errorf("start http server: %w", err)
	}
	result.HTTPServer = server
	return result, nil
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result, startErr := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	stop := shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		jobService:  cfg.Services.Jobs,
		logger:      logger,
		backgrounds: result.Background,
	}
	if startErr != nil {
		cancel()
		if stopErr := gracefulStop(stop); stopErr != nil {
			logger.Error("graceful stop failed", "error", stopErr)
		}
		return startErr
	}

	// Wait for shutdown signal or error
	return waitForShutdown(stop)
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	jobService  *service.JobService
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop stops the HTTP server, waits for workers to record the jobs
// they were running, then drains terminal notifications.
func gracefulStop(cfg shutdownConfig) error {
	// The service context is already cancelled; shutdown gets its own budget.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
	defer cancel()

	var errs []error
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context:    shutdownCtx,
			Server:     cfg.httpServer,
			JobService: cfg.jobService,
			Logger:     cfg.logger,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if cfg.jobService != nil {
		if err := cfg.jobService.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain job notifications: %w", err))
		}
	}

	return errors.Join(errs...)
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
