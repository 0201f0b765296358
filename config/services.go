package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the synthesis worker pool.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs result eviction and job cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ReaperConfig contains reaper service configuration.
type ReaperConfig struct {
	// IntervalSeconds is the reaper tick interval. Expired results are evicted on every tick.
	IntervalSeconds int `env:"ESPEECH_CLEANUP_INTERVAL_SECONDS" envDefault:"300"`

	// JobRetentionSeconds is how long terminal jobs are kept before being reaped.
	// It is raised to at least the result TTL so a job always outlives its result.
	JobRetentionSeconds int `env:"ESPEECH_JOB_RETENTION_SECONDS" envDefault:"86400"`

	// HistoryMaxAge is the maximum age for persisted history rows before deletion.
	HistoryMaxAge time.Duration `env:"REAPER_HISTORY_MAX_AGE" envDefault:"2160h"` // 90 days

	// BatchSize is the maximum number of history rows deleted per statement.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Interval returns the reaper tick interval.
func (r *ReaperConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// JobRetention returns how long terminal jobs are retained.
func (r *ReaperConfig) JobRetention() time.Duration {
	return time.Duration(r.JobRetentionSeconds) * time.Second
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.IntervalSeconds < 1 {
		r.IntervalSeconds = 1
	}
	if r.JobRetentionSeconds < 60 {
		r.JobRetentionSeconds = 60
	}
	if r.HistoryMaxAge < 24*time.Hour {
		r.HistoryMaxAge = 24 * time.Hour
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
