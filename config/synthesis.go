package config

import (
	"strings"
	"time"
)

// ResultBackend names a result storage implementation.
type ResultBackend string

const (
	// ResultBackendMemory keeps audio bytes in process memory.
	ResultBackendMemory ResultBackend = "memory"
	// ResultBackendFile writes audio to ESPEECH_OUTPUT_DIR.
	ResultBackendFile ResultBackend = "file"
	// ResultBackendRedis stores audio in Redis with native key expiry.
	ResultBackendRedis ResultBackend = "redis"
)

// EngineKind names a synthesis engine implementation.
type EngineKind string

const (
	// EngineKindHTTP calls a remote inference server.
	EngineKindHTTP EngineKind = "http"
	// EngineKindTone generates placeholder audio locally.
	EngineKindTone EngineKind = "tone"
)

// JobsConfig contains job queue and worker pool configuration.
type JobsConfig struct {
	// MaxWorkers is the number of concurrent synthesis slots shared by the
	// async worker pool and the synchronous stream endpoint.
	MaxWorkers int `env:"ESPEECH_MAX_WORKERS" envDefault:"1"`

	// DefaultNFEStep is applied when a request omits nfe_step.
	DefaultNFEStep int `env:"ESPEECH_DEFAULT_NFE_STEP" envDefault:"71"`

	// MaxTextLength caps the request text length in runes.
	MaxTextLength int `env:"ESPEECH_MAX_TEXT_LENGTH" envDefault:"5000"`

	// EventBuffer is the per-subscriber status event buffer size.
	EventBuffer int `env:"ESPEECH_EVENT_BUFFER" envDefault:"16"`
}

// Sanitize applies guardrails to job configuration values.
func (j *JobsConfig) Sanitize() {
	if j.MaxWorkers < 1 {
		j.MaxWorkers = 1
	}
	if j.MaxWorkers > 64 {
		j.MaxWorkers = 64
	}
	if j.DefaultNFEStep < 8 || j.DefaultNFEStep > 128 {
		j.DefaultNFEStep = 71
	}
	if j.MaxTextLength < 1 {
		j.MaxTextLength = 5000
	}
	if j.EventBuffer < 1 {
		j.EventBuffer = 1
	}
	if j.EventBuffer > 1024 {
		j.EventBuffer = 1024
	}
}

// ResultsConfig contains result storage configuration.
type ResultsConfig struct {
	// Backend selects the result store (memory, file, redis).
	Backend ResultBackend `env:"ESPEECH_RESULT_BACKEND" envDefault:"memory"`

	// OutputDir is where the file backend writes audio.
	OutputDir string `env:"ESPEECH_OUTPUT_DIR" envDefault:"outputs"`

	// RetentionSeconds is the result TTL, measured from creation.
	RetentionSeconds int `env:"ESPEECH_OUTPUT_RETENTION_SECONDS" envDefault:"3600"`

	// SingleRead evicts a result after its first complete download.
	SingleRead bool `env:"ESPEECH_SINGLE_READ" envDefault:"false"`

	// TouchOnAccess restarts a result's TTL whenever it is polled or downloaded.
	TouchOnAccess bool `env:"ESPEECH_TOUCH_ON_ACCESS" envDefault:"false"`
}

// TTL returns the result time-to-live.
func (r *ResultsConfig) TTL() time.Duration {
	return time.Duration(r.RetentionSeconds) * time.Second
}

// Sanitize applies guardrails to result configuration values.
func (r *ResultsConfig) Sanitize() {
	switch ResultBackend(strings.ToLower(strings.TrimSpace(string(r.Backend)))) {
	case ResultBackendFile:
		r.Backend = ResultBackendFile
	case ResultBackendRedis:
		r.Backend = ResultBackendRedis
	default:
		r.Backend = ResultBackendMemory
	}
	r.OutputDir = strings.TrimSpace(r.OutputDir)
	if r.OutputDir == "" {
		r.OutputDir = "outputs"
	}
	if r.RetentionSeconds < 1 {
		r.RetentionSeconds = 3600
	}
}

// VoicesConfig contains voice catalog configuration.
type VoicesConfig struct {
	// Dir holds one sub-directory per voice with reference audio and text.
	Dir string `env:"ESPEECH_VOICES_DIR" envDefault:"voices"`
}

// Sanitize applies guardrails to voice configuration values.
func (v *VoicesConfig) Sanitize() {
	v.Dir = strings.TrimSpace(v.Dir)
	if v.Dir == "" {
		v.Dir = "voices"
	}
}

// EngineConfig selects and configures the synthesis engine.
type EngineConfig struct {
	// Kind selects the engine implementation (http, tone).
	Kind EngineKind `env:"ESPEECH_ENGINE" envDefault:"tone"`

	// URL is the base URL of the remote inference server.
	URL string `env:"ESPEECH_ENGINE_URL" envDefault:"http://localhost:9000"`

	// Timeout bounds a single remote synthesis call.
	Timeout time.Duration `env:"ESPEECH_ENGINE_TIMEOUT" envDefault:"10m"`
}

// Sanitize applies guardrails to engine configuration values.
func (e *EngineConfig) Sanitize() {
	switch EngineKind(strings.ToLower(strings.TrimSpace(string(e.Kind)))) {
	case EngineKindHTTP:
		e.Kind = EngineKindHTTP
	default:
		e.Kind = EngineKindTone
	}
	e.URL = strings.TrimRight(strings.TrimSpace(e.URL), "/")
	if e.Timeout <= 0 {
		e.Timeout = 10 * time.Minute
	}
}
