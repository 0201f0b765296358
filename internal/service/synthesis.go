package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/data"
	"github.com/espeech/espeech-api/internal/domain/model"
	apperrors "github.com/espeech/espeech-api/internal/errors"
	"github.com/espeech/espeech-api/internal/observability/metrics"
	"github.com/espeech/espeech-api/internal/observability/statsd"
)

// Client-facing failure messages.
const (
	MsgSynthesisFailed   = "synthesis failed"
	MsgSynthesisTimeout  = "synthesis timed out"
	MsgSynthesisCanceled = "synthesis canceled"
	MsgInternalError     = "internal error during synthesis"

	maxFailureMessageRunes = 300
)

// Synthesis modes for metrics.
const (
	ModeAsync  = "async"
	ModeStream = "stream"
)

// SynthesisServiceOptions groups dependencies for SynthesisService.
type SynthesisServiceOptions struct {
	Jobs     *JobService             // Required: job lifecycle
	Voices   core.VoiceCatalog       // Required: voice catalog
	Engine   core.SynthesisEngine    // Required: synthesis engine
	Slots    *SlotLimiter            // Required: shared engine slot limiter
	Defaults model.SynthesisDefaults // Optional: request defaults and limits
	Metrics  statsd.Sink             // Optional: metrics sink
	Logger   *slog.Logger            // Optional: structured logger
}

// SynthesisService validates requests, submits async jobs and runs synchronous syntheses.
type SynthesisService struct {
	jobs     *JobService
	voices   core.VoiceCatalog
	engine   core.SynthesisEngine
	slots    *SlotLimiter
	defaults model.SynthesisDefaults
	metrics  statsd.Sink
	logger   *slog.Logger
}

// StreamResult is the audio produced by a synchronous synthesis.
type StreamResult struct {
	Data     []byte
	Filename string
	MimeType string
}

// NewSynthesisService constructs a SynthesisService.
func NewSynthesisService(opts SynthesisServiceOptions) (*SynthesisService, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobService is required")
	case opts.Voices == nil:
		return nil, errors.New("VoiceCatalog is required")
	case opts.Engine == nil:
		return nil, errors.New("SynthesisEngine is required")
	case opts.Slots == nil:
		return nil, errors.New("SlotLimiter is required")
	}

	defaults := opts.Defaults
	if defaults.NFEStep == 0 {
		defaults.NFEStep = model.DefaultNFEStep
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SynthesisService{
		jobs:     opts.Jobs,
		voices:   opts.Voices,
		engine:   opts.Engine,
		slots:    opts.Slots,
		defaults: defaults,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "synthesis_service"),
	}, nil
}

// Submit validates req, checks the voice exists and enqueues a job.
// Unknown voices are rejected before any job is created.
func (s *SynthesisService) Submit(ctx context.Context, req *model.SynthesisRequest) (*model.Job, error) {
	params, _, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.jobs.Create(ctx, params)
}

// Stream synthesizes req synchronously. It waits for an engine slot shared with
// the worker pool and bypasses the job store.
func (s *SynthesisService) Stream(ctx context.Context, req *model.SynthesisRequest) (*StreamResult, error) {
	params, voice, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	release, err := s.slots.Acquire(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeCanceled, "request canceled while waiting for a synthesis slot")
	}
	defer release()

	audio, err := s.Run(ctx, ModeStream, voice, params)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSynthesisFailed, SanitizeFailure(err))
	}

	return &StreamResult{
		Data:     audio,
		Filename: StreamFilename(voice.ID, params.Format),
		MimeType: params.Format.MimeType(),
	}, nil
}

// Run calls the engine once and records its latency. Callers must hold a slot.
func (s *SynthesisService) Run(
	ctx context.Context,
	mode string,
	voice *model.Voice,
	params model.SynthesisParams,
) ([]byte, error) {
	start := time.Now()
	audio, err := s.engine.Synthesize(ctx, core.SynthesisInput{Voice: voice, Params: params})
	metrics.EmitSynthesis(s.metrics, metrics.SynthesisMetric{
		Engine:   s.engine.Name(),
		Format:   string(params.Format),
		Mode:     mode,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "engine call failed",
			"mode", mode,
			"voice_id", voice.ID,
			"error", err,
		)
		return nil, err
	}
	if len(audio) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeSynthesisFailed, "engine returned no audio")
	}
	return audio, nil
}

// Voice resolves a voice id, mapping unknown ids to an unknown_voice error.
func (s *SynthesisService) Voice(ctx context.Context, id string) (*model.Voice, error) {
	voice, err := s.voices.Get(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrVoiceNotFound) {
			return nil, apperrors.UnknownVoice(id)
		}
		return nil, fmt.Errorf("lookup voice: %w", err)
	}
	return voice, nil
}

// Voices lists the catalog, rescanning first when refresh is set.
func (s *SynthesisService) Voices(ctx context.Context, refresh bool) ([]*model.Voice, error) {
	if refresh {
		if err := s.voices.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("refresh voices: %w", err)
		}
	}
	return s.voices.List(ctx)
}

// EngineName returns the configured engine's name.
func (s *SynthesisService) EngineName() string { return s.engine.Name() }

func (s *SynthesisService) prepare(
	ctx context.Context,
	req *model.SynthesisRequest,
) (model.SynthesisParams, *model.Voice, error) {
	if req == nil {
		return model.SynthesisParams{}, nil, apperrors.ValidationField("body", "request body is required")
	}
	params, err := req.Normalize(s.defaults)
	if err != nil {
		return model.SynthesisParams{}, nil, err
	}
	voice, err := s.Voice(ctx, params.VoiceID)
	if err != nil {
		return model.SynthesisParams{}, nil, err
	}
	return params, voice, nil
}

// SanitizeFailure converts an engine or internal error into a message safe to show
// clients: a single line with no internal detail beyond an engine-reported reason.
func SanitizeFailure(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return MsgSynthesisTimeout
	case errors.Is(err, context.Canceled):
		return MsgSynthesisCanceled
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return MsgSynthesisFailed
	}
	switch appErr.Code {
	case apperrors.ErrCodeSynthesisFailed, apperrors.ErrCodeUnknownVoice, apperrors.ErrCodeValidation:
	case apperrors.ErrCodeInternal:
		return MsgInternalError
	default:
		return MsgSynthesisFailed
	}

	msg := strings.Join(strings.FieldsFunc(appErr.Message, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}), " ")
	if msg == "" {
		return MsgSynthesisFailed
	}
	if runes := []rune(msg); len(runes) > maxFailureMessageRunes {
		msg = string(runes[:maxFailureMessageRunes]) + "…"
	}
	if !strings.HasPrefix(msg, MsgSynthesisFailed) && appErr.Code == apperrors.ErrCodeSynthesisFailed {
		msg = MsgSynthesisFailed + ": " + msg
	}
	return msg
}
