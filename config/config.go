package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Redis and Postgres configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode and reaper configuration
//   - synthesis.go: Worker pool, result store, voice catalog and engine configuration
//   - observability.go: Metrics, alerting, callbacks and event publishing
type AppConfig struct {
	// LogLevel selects the minimum slog level (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// History controls the optional Postgres job history sink.
	History HistoryConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,worker,reaper"`

	// Synthesis pipeline configuration
	Jobs    JobsConfig
	Results ResultsConfig
	Voices  VoicesConfig
	Engine  EngineConfig

	// Reaper configuration
	Reaper ReaperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Jobs.Sanitize()
	c.Results.Sanitize()
	c.Voices.Sanitize()
	c.Engine.Sanitize()
	c.Reaper.Sanitize()
	c.History.Sanitize()
	c.Observability.Sanitize()

	// Results are evicted on the reaper tick, so the tick must not outlive the TTL,
	// and a terminal job must outlive its result.
	if c.Reaper.IntervalSeconds > c.Results.RetentionSeconds {
		c.Reaper.IntervalSeconds = c.Results.RetentionSeconds
	}
	if c.Reaper.JobRetentionSeconds < c.Results.RetentionSeconds {
		c.Reaper.JobRetentionSeconds = c.Results.RetentionSeconds
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.isEnabled(ServiceModeHTTP)
}

// IsWorkerEnabled returns true if the synthesis worker pool is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	return c.isEnabled(ServiceModeWorker)
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.isEnabled(ServiceModeReaper)
}

func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
