package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "espeech"

// ObservabilityConfig groups configuration that controls metrics, alerting and job event fan-out.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
	Callbacks     CallbackConfig
	Events        EventsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
	c.Callbacks.Sanitize()
	c.Events.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls operator alerts for synthesis failures.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                    `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration           `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int                     `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	Slack      SlackNotificationConfig `                                                                 envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	c.Slack.sanitize()

	if !c.Enabled {
		c.Slack.Enabled = false
		return
	}

	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}
}

// SlackNotificationConfig controls Slack webhook fan-out.
type SlackNotificationConfig struct {
	Enabled      bool   `env:"ENABLED"         envDefault:"false"`
	WebhookURL   string `env:"WEBHOOK_URL"`
	Channel      string `env:"CHANNEL"`
	Username     string `env:"USERNAME"        envDefault:"espeech"`
	JobURLPrefix string `env:"JOB_URL_PREFIX"`
	// FailuresOnly limits Slack messages to failed jobs.
	FailuresOnly bool `env:"FAILURES_ONLY" envDefault:"true"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.JobURLPrefix = strings.TrimRight(strings.TrimSpace(c.JobURLPrefix), "/")
	if c.Username == "" {
		c.Username = defaultObservabilityName
	}
}

// CallbackConfig controls delivery of per-job callback webhooks.
type CallbackConfig struct {
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration `env:"ESPEECH_CALLBACK_TIMEOUT" envDefault:"5s"`

	// RetryLimit is the number of retries after the first failed attempt.
	RetryLimit int `env:"ESPEECH_CALLBACK_RETRY_LIMIT" envDefault:"2"`
}

// Sanitize normalises callback configuration values.
func (c *CallbackConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Timeout > time.Minute {
		c.Timeout = time.Minute
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.RetryLimit > 5 {
		c.RetryLimit = 5
	}
}

// EventsConfig controls publishing of job status events to NATS.
type EventsConfig struct {
	Enabled       bool   `env:"NATS_ENABLED"        envDefault:"false"`
	URL           string `env:"NATS_URL"            envDefault:"nats://127.0.0.1:4222"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"espeech.jobs"`
}

// Sanitize normalises event publishing configuration values.
func (c *EventsConfig) Sanitize() {
	c.URL = strings.TrimSpace(c.URL)
	c.SubjectPrefix = strings.Trim(strings.TrimSpace(c.SubjectPrefix), ".")
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "espeech.jobs"
	}
	if c.URL == "" {
		c.Enabled = false
	}
}
